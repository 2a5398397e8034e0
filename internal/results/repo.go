package results

import (
	"context"
	"strings"

	"gorm.io/gorm"
)

// ProfilePathSegment marks an individual profile URL on the target network.
const ProfilePathSegment = "linkedin.com/in"

// IsProfileLink is a structural check only, not a URL validator.
func IsProfileLink(link string) bool {
	return strings.Contains(strings.ToLower(link), ProfilePathSegment)
}

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// SaveResults stores every hit as its own row. Repeated links are kept;
// deduplication happens at enrichment time.
func (r *Repo) SaveResults(ctx context.Context, batchID uint64, query string, hits []Hit) error {
	if len(hits) == 0 {
		return nil
	}
	rows := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		rows = append(rows, SearchResult{
			SearchBatchID: batchID,
			Query:         query,
			Title:         h.Title,
			Link:          h.Link,
			Snippet:       h.Snippet,
		})
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

// GetProfileLinks returns the batch's results that look like profile URLs, in
// insertion order.
func (r *Repo) GetProfileLinks(ctx context.Context, batchID uint64) ([]ProfileLink, error) {
	var rows []SearchResult
	if err := r.db.WithContext(ctx).
		Select("id", "link").
		Where("search_id = ? AND LOWER(link) LIKE ?", batchID, "%"+ProfilePathSegment+"%").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]ProfileLink, 0, len(rows))
	for _, row := range rows {
		if !IsProfileLink(row.Link) {
			continue
		}
		out = append(out, ProfileLink{ResultID: row.ID, Link: row.Link})
	}
	return out, nil
}

func (r *Repo) ListByBatch(ctx context.Context, batchID uint64, limit, offset int) ([]SearchResult, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	var rows []SearchResult
	if err := r.db.WithContext(ctx).
		Where("search_id = ?", batchID).
		Order("id ASC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
