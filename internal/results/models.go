package results

import "time"

// SearchResult is one hit returned by the search provider for a queue item.
type SearchResult struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SearchBatchID uint64    `gorm:"column:search_id;index;not null" json:"search_batch_id"`
	Query         string    `gorm:"type:text;not null" json:"query"`
	Title         string    `gorm:"type:text" json:"title"`
	Link          string    `gorm:"type:varchar(1024);not null" json:"link"`
	Snippet       string    `gorm:"type:text" json:"snippet"`
	CreatedAt     time.Time `json:"created_at"`
}

func (SearchResult) TableName() string { return "google_search_results" }

// Hit is what a search provider returns per match.
type Hit struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type ProfileLink struct {
	ResultID uint64 `json:"result_id"`
	Link     string `json:"link"`
}
