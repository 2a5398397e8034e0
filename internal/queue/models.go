package queue

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Item is one queued search query. Its ID doubles as the search batch id
// that results and enriched people point back to.
type Item struct {
	ID                 uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Query              string     `gorm:"type:text;not null" json:"query"`
	Status             Status     `gorm:"type:varchar(16);index;not null" json:"status"`
	ParsedTechnologies []string   `gorm:"serializer:json;type:text" json:"parsed_technologies"`
	ParsedLocations    []string   `gorm:"serializer:json;type:text" json:"parsed_locations"`
	ParserVersion      *string    `gorm:"type:varchar(64)" json:"parser_version,omitempty"`
	LeaseToken         *string    `gorm:"type:varchar(26);index" json:"-"`
	LeasedAt           *time.Time `json:"leased_at,omitempty"`
	ErrorMessage       *string    `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (Item) TableName() string { return "search_query_queue" }

// Lease returns the token of the lease this copy of the item was read under.
func (it Item) Lease() string {
	if it.LeaseToken == nil {
		return ""
	}
	return *it.LeaseToken
}

// Metadata is the parsed intent snapshot attached to every query of one Enqueue call.
type Metadata struct {
	Technologies  []string
	Locations     []string
	ParserVersion string
}

type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Done       int64 `json:"done"`
	Failed     int64 `json:"failed"`
	Total      int64 `json:"total"`
}
