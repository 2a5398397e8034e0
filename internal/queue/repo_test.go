package queue

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps the in-memory database alive and serializes writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&Item{}))
	return db
}

// openFileTestDB opens a file-backed database with a real connection pool so
// concurrent transactions contend for the write lock.
func openFileTestDB(t *testing.T, conns int) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "queue.db") +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(conns)
	sqlDB.SetMaxIdleConns(conns)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&Item{}))
	return db
}

func TestEnqueue_TrimsAndDropsDuplicates(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	n, err := repo.Enqueue(ctx, []string{" q1 ", "", "q1", "q2", "   "}, Metadata{
		Technologies:  []string{"Go", "Kafka"},
		Locations:     []string{"Pune"},
		ParserVersion: "v2",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var items []Item
	require.NoError(t, db.Order("id ASC").Find(&items).Error)
	require.Len(t, items, 2)
	assert.Equal(t, "q1", items[0].Query)
	assert.Equal(t, "q2", items[1].Query)
	for _, it := range items {
		assert.Equal(t, StatusPending, it.Status)
		assert.Equal(t, []string{"Go", "Kafka"}, it.ParsedTechnologies)
		assert.Equal(t, []string{"Pune"}, it.ParsedLocations)
		require.NotNil(t, it.ParserVersion)
		assert.Equal(t, "v2", *it.ParserVersion)
	}
}

func TestEnqueue_EmptyInputIsNoop(t *testing.T) {
	repo := NewRepo(openTestDB(t))

	n, err := repo.Enqueue(context.Background(), nil, Metadata{})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = repo.Enqueue(context.Background(), []string{"", "  "}, Metadata{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEnqueue_NoMetadataStoresEmptyLists(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	_, err := repo.Enqueue(ctx, []string{"q"}, Metadata{})
	require.NoError(t, err)

	it, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{}, it.ParsedTechnologies)
	assert.Nil(t, it.ParserVersion)
}

func TestLeasePending_FIFOAndMarksProcessing(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	_, err := repo.Enqueue(ctx, []string{"a", "b", "c"}, Metadata{})
	require.NoError(t, err)

	leased, err := repo.LeasePending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, leased, 2)
	assert.Equal(t, "a", leased[0].Query)
	assert.Equal(t, "b", leased[1].Query)
	for _, it := range leased {
		assert.Equal(t, StatusProcessing, it.Status)
		assert.NotNil(t, it.LeasedAt)
	}

	next, err := repo.LeasePending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, "c", next[0].Query)

	none, err := repo.LeasePending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLeasePending_NonPositiveLimit(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	_, err := repo.Enqueue(context.Background(), []string{"a"}, Metadata{})
	require.NoError(t, err)

	leased, err := repo.LeasePending(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, leased)
}

func TestLeasePending_ConcurrentLeasesAreExclusive(t *testing.T) {
	const workers = 8
	repo := NewRepo(openFileTestDB(t, workers))
	ctx := context.Background()

	const total = 40
	queries := make([]string, 0, total)
	for i := 0; i < total; i++ {
		queries = append(queries, fmt.Sprintf("query-%d", i))
	}
	_, err := repo.Enqueue(ctx, queries, Metadata{})
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		seen   = make(map[uint64]int)
		wg     sync.WaitGroup
		start  = make(chan struct{})
		misses int
	)
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			<-start
			for attempt := 0; attempt < 500; attempt++ {
				leased, err := repo.LeasePending(ctx, 3)
				if err != nil {
					// a writer that lost the lock upgrade retries like the next worker tick would
					mu.Lock()
					misses++
					mu.Unlock()
					continue
				}
				if len(leased) == 0 {
					st, err := repo.Stats(ctx)
					if err == nil && st.Pending == 0 {
						return
					}
					continue
				}
				mu.Lock()
				for _, it := range leased {
					seen[it.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	t.Logf("lease attempts that hit a busy database: %d", misses)
	assert.Len(t, seen, total)
	for id, n := range seen {
		assert.Equal(t, 1, n, "item %d leased %d times", id, n)
	}

	st, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, total, st.Processing)
}

func TestMarkDoneAndFailed_TerminalStatesAreSticky(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	_, err := repo.Enqueue(ctx, []string{"a", "b"}, Metadata{})
	require.NoError(t, err)
	leased, err := repo.LeasePending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, leased, 2)

	require.NoError(t, repo.MarkDone(ctx, leased[0].ID, leased[0].Lease()))
	require.NoError(t, repo.MarkFailed(ctx, leased[1].ID, leased[1].Lease(), "boom"))

	// retries of the worker loop must not move terminal items
	require.NoError(t, repo.MarkFailed(ctx, leased[0].ID, leased[0].Lease(), "late failure"))
	require.NoError(t, repo.MarkDone(ctx, leased[1].ID, leased[1].Lease()))
	require.NoError(t, repo.MarkDone(ctx, leased[0].ID, leased[0].Lease()))

	a, err := repo.Get(ctx, leased[0].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, a.Status)
	assert.Nil(t, a.ErrorMessage)

	b, err := repo.Get(ctx, leased[1].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, b.Status)
	require.NotNil(t, b.ErrorMessage)
	assert.Equal(t, "boom", *b.ErrorMessage)
}

func TestMarkFailed_FromPendingAndTruncates(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	_, err := repo.Enqueue(ctx, []string{"a"}, Metadata{})
	require.NoError(t, err)

	require.NoError(t, repo.MarkFailed(ctx, 1, "", strings.Repeat("x", 5000)+"\x00"))

	it, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, it.Status)
	require.NotNil(t, it.ErrorMessage)
	assert.Len(t, []rune(*it.ErrorMessage), maxErrorMessageLength)
	assert.True(t, strings.HasSuffix(*it.ErrorMessage, "..."))
}

func TestMarkDone_UnknownIDIsNoop(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	require.NoError(t, repo.MarkDone(context.Background(), 999, ""))
}

func TestGet_NotFound(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	_, err := repo.Get(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStats(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	_, err := repo.Enqueue(ctx, []string{"a", "b", "c", "d"}, Metadata{})
	require.NoError(t, err)
	leased, err := repo.LeasePending(ctx, 3)
	require.NoError(t, err)
	require.NoError(t, repo.MarkDone(ctx, leased[0].ID, leased[0].Lease()))
	require.NoError(t, repo.MarkFailed(ctx, leased[1].ID, leased[1].Lease(), "x"))

	st, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Pending: 1, Processing: 1, Done: 1, Failed: 1, Total: 4}, st)
}

func TestReleaseStale(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	_, err := repo.Enqueue(ctx, []string{"old", "fresh", "done"}, Metadata{})
	require.NoError(t, err)
	leased, err := repo.LeasePending(ctx, 3)
	require.NoError(t, err)
	require.Len(t, leased, 3)
	require.NoError(t, repo.MarkDone(ctx, leased[2].ID, leased[2].Lease()))

	past := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&Item{}).Where("id IN ?", []uint64{leased[0].ID, leased[2].ID}).
		Update("leased_at", past).Error)

	n, err := repo.ReleaseStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	old, err := repo.Get(ctx, leased[0].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, old.Status)
	assert.Nil(t, old.LeaseToken)

	fresh, err := repo.Get(ctx, leased[1].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, fresh.Status)

	done, err := repo.Get(ctx, leased[2].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, done.Status)
}

func TestMarkDone_LateHolderCannotFinishReleasedLease(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	_, err := repo.Enqueue(ctx, []string{"q"}, Metadata{})
	require.NoError(t, err)

	first, err := repo.LeasePending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, first, 1)

	n, err := repo.ReleaseStale(ctx, -time.Second)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	second, err := repo.LeasePending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, first[0].ID, second[0].ID)
	require.NotEqual(t, first[0].Lease(), second[0].Lease())

	// the original holder wakes up after its lease was handed over
	require.NoError(t, repo.MarkFailed(ctx, first[0].ID, first[0].Lease(), "late failure"))
	mid, err := repo.Get(ctx, first[0].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, mid.Status)

	require.NoError(t, repo.MarkDone(ctx, second[0].ID, second[0].Lease()))

	final, err := repo.Get(ctx, first[0].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, final.Status)
	assert.Nil(t, final.ErrorMessage)
}

func TestMarkDone_EmptyTokenDoesNotFinishLeasedItem(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	_, err := repo.Enqueue(ctx, []string{"q"}, Metadata{})
	require.NoError(t, err)
	leased, err := repo.LeasePending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, leased, 1)

	require.NoError(t, repo.MarkDone(ctx, leased[0].ID, ""))
	it, err := repo.Get(ctx, leased[0].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, it.Status)
}
