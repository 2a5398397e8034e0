package people

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// upsertColumns are overwritten when a (search_id, linkedin_url) row exists.
// google_result_id keeps the first source row.
var upsertColumns = []string{
	"person_uuid", "full_name", "first_name", "last_name",
	"title", "headline", "person_industry", "image_url",
	"person_city", "person_state", "person_country_code", "person_country", "person_region",
	"org_uuid", "org_name", "org_website", "org_domain", "org_linkedin_url", "org_employees", "org_industry",
	"org_city", "org_state", "org_country_code", "org_country", "org_region",
	"emails_json", "phones_json", "raw_json",
	"updated_at",
}

// searchColumns are matched by the free-text filter.
var searchColumns = []string{
	"full_name", "first_name", "last_name", "title", "headline",
	"person_industry", "person_city", "person_state", "person_country",
	"org_name", "org_industry", "org_city", "org_state", "org_country",
	"linkedin_url", "org_website", "org_domain",
}

var locationColumns = []string{
	"person_city", "person_state", "person_country",
	"org_city", "org_state", "org_country",
}

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Upsert inserts the record or overwrites the derived columns of the row with
// the same (search batch, linkedin url). Last write wins.
func (r *Repo) Upsert(ctx context.Context, rec *Record) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "search_id"}, {Name: "linkedin_url"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).
		Create(rec).Error
}

// ExistingLinks returns the linkedin urls already enriched for the batch.
func (r *Repo) ExistingLinks(ctx context.Context, batchID uint64) (map[string]struct{}, error) {
	var links []string
	if err := r.db.WithContext(ctx).Model(&Record{}).
		Where("search_id = ?", batchID).
		Pluck("linkedin_url", &links).Error; err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(links))
	for _, l := range links {
		out[l] = struct{}{}
	}
	return out, nil
}

// CountByBatch counts the people enriched for one search batch.
func (r *Repo) CountByBatch(ctx context.Context, batchID uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Record{}).Where("search_id = ?", batchID).Count(&n).Error
	return n, err
}

// List returns one page of people matching f plus the total match count.
// Q also matches the technologies parsed for the originating query.
func (r *Repo) List(ctx context.Context, f Filter) ([]Record, int64, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := r.db.WithContext(ctx).Model(&Record{})
	if f.SearchBatchID != nil {
		q = q.Where("search_id = ?", *f.SearchBatchID)
	}

	if term := strings.ToLower(strings.TrimSpace(f.Q)); term != "" {
		like := "%" + term + "%"
		parts := make([]string, 0, len(searchColumns)+1)
		args := make([]any, 0, len(searchColumns)+1)
		for _, c := range searchColumns {
			parts = append(parts, "LOWER("+c+") LIKE ?")
			args = append(args, like)
		}
		parts = append(parts, "search_id IN (SELECT id FROM search_query_queue WHERE LOWER(parsed_technologies) LIKE ?)")
		args = append(args, like)
		q = q.Where("("+strings.Join(parts, " OR ")+")", args...)
	}

	if loc := strings.ToLower(strings.TrimSpace(f.Location)); loc != "" {
		parts := make([]string, 0, len(locationColumns)+1)
		args := make([]any, 0, len(locationColumns)+1)
		for _, c := range locationColumns {
			parts = append(parts, "LOWER("+c+") = ?")
			args = append(args, loc)
		}
		parts = append(parts, "search_id IN (SELECT id FROM search_query_queue WHERE LOWER(parsed_locations) LIKE ?)")
		args = append(args, `%"`+loc+`"%`)
		q = q.Where("("+strings.Join(parts, " OR ")+")", args...)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "id DESC"
	if f.Sort == SortName {
		order = "full_name ASC, id ASC"
	}

	var recs []Record
	if err := q.Order(order).Limit(f.Limit).Offset(f.Offset).Find(&recs).Error; err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}
