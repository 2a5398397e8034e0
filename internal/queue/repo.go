package queue

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("queue item not found")

const maxErrorMessageLength = 2000

var openStatuses = []Status{StatusPending, StatusProcessing}

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Enqueue trims the queries, drops empty strings and repeats within the call,
// and inserts the rest as pending items in a single statement.
func (r *Repo) Enqueue(ctx context.Context, queries []string, meta Metadata) (int, error) {
	techs := append([]string{}, meta.Technologies...)
	locs := append([]string{}, meta.Locations...)
	var version *string
	if v := strings.TrimSpace(meta.ParserVersion); v != "" {
		version = &v
	}

	seen := make(map[string]struct{}, len(queries))
	items := make([]Item, 0, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		items = append(items, Item{
			Query:              q,
			Status:             StatusPending,
			ParsedTechnologies: techs,
			ParsedLocations:    locs,
			ParserVersion:      version,
		})
	}
	if len(items) == 0 {
		return 0, nil
	}

	if err := r.db.WithContext(ctx).Create(&items).Error; err != nil {
		return 0, err
	}
	return len(items), nil
}

// LeasePending claims up to limit pending items, oldest first. The claim is a
// conditional update guarded by status = pending, so concurrent callers never
// receive the same row; a caller that loses a race just gets fewer items.
func (r *Repo) LeasePending(ctx context.Context, limit int) ([]Item, error) {
	if limit <= 0 {
		return nil, nil
	}

	token := ulid.Make().String()
	now := time.Now()

	var leased []Item
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint64
		if err := tx.Model(&Item{}).
			Where("status = ?", StatusPending).
			Order("id ASC").
			Limit(limit).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		res := tx.Model(&Item{}).
			Where("id IN ? AND status = ?", ids, StatusPending).
			Updates(map[string]any{
				"status":      StatusProcessing,
				"lease_token": token,
				"leased_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		return tx.Where("lease_token = ? AND status = ?", token, StatusProcessing).
			Order("id ASC").
			Find(&leased).Error
	})
	if err != nil {
		return nil, err
	}
	return leased, nil
}

// MarkDone is a no-op for items that already reached a terminal state, and
// for processing items whose lease was handed to another worker. An empty
// leaseToken only matches pending items.
func (r *Repo) MarkDone(ctx context.Context, id uint64, leaseToken string) error {
	return r.finish(ctx, id, leaseToken, map[string]any{
		"status":        StatusDone,
		"error_message": nil,
	})
}

// MarkFailed follows the same fencing rules as MarkDone.
func (r *Repo) MarkFailed(ctx context.Context, id uint64, leaseToken, reason string) error {
	var msg any
	if s := sanitizeErrorMessage(reason); s != "" {
		msg = s
	}
	return r.finish(ctx, id, leaseToken, map[string]any{
		"status":        StatusFailed,
		"error_message": msg,
	})
}

func (r *Repo) finish(ctx context.Context, id uint64, leaseToken string, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&Item{}).
		Where("id = ? AND status IN ?", id, openStatuses).
		Where("lease_token = ? OR status = ?", leaseToken, StatusPending).
		Updates(updates).Error
}

// ReleaseStale puts items leased longer than olderThan ago back to pending,
// for workers that died between lease and completion.
func (r *Repo) ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res := r.db.WithContext(ctx).Model(&Item{}).
		Where("status = ? AND leased_at < ?", StatusProcessing, cutoff).
		Updates(map[string]any{
			"status":      StatusPending,
			"lease_token": nil,
			"leased_at":   nil,
		})
	return res.RowsAffected, res.Error
}

func (r *Repo) Get(ctx context.Context, id uint64) (*Item, error) {
	var it Item
	if err := r.db.WithContext(ctx).First(&it, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &it, nil
}

func (r *Repo) Stats(ctx context.Context) (Stats, error) {
	var rows []struct {
		Status Status
		N      int64
	}
	if err := r.db.WithContext(ctx).Model(&Item{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error; err != nil {
		return Stats{}, err
	}

	var st Stats
	for _, row := range rows {
		switch row.Status {
		case StatusPending:
			st.Pending = row.N
		case StatusProcessing:
			st.Processing = row.N
		case StatusDone:
			st.Done = row.N
		case StatusFailed:
			st.Failed = row.N
		}
		st.Total += row.N
	}
	return st, nil
}

// sanitizeErrorMessage drops control characters other than whitespace and
// truncates to maxErrorMessageLength runes.
func sanitizeErrorMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(msg))
	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	out := b.String()

	if utf8.RuneCountInString(out) > maxErrorMessageLength {
		runes := []rune(out)
		out = string(runes[:maxErrorMessageLength-3]) + "..."
	}
	return out
}
