package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/suPer8Hu/talent-pipeline/internal/common"
	"github.com/suPer8Hu/talent-pipeline/internal/enrich"
	"github.com/suPer8Hu/talent-pipeline/internal/httpapi/middleware"
	"github.com/suPer8Hu/talent-pipeline/internal/intent"
	"github.com/suPer8Hu/talent-pipeline/internal/people"
	"github.com/suPer8Hu/talent-pipeline/internal/queue"
	"github.com/suPer8Hu/talent-pipeline/internal/results"
	"github.com/suPer8Hu/talent-pipeline/internal/search"
	"github.com/suPer8Hu/talent-pipeline/internal/store/rabbitmq"
)

type QueueStore interface {
	Enqueue(ctx context.Context, queries []string, meta queue.Metadata) (int, error)
	Get(ctx context.Context, id uint64) (*queue.Item, error)
	Stats(ctx context.Context) (queue.Stats, error)
}

type ResultReader interface {
	ListByBatch(ctx context.Context, batchID uint64, limit, offset int) ([]results.SearchResult, error)
}

type PeopleReader interface {
	List(ctx context.Context, f people.Filter) ([]people.Record, int64, error)
	CountByBatch(ctx context.Context, batchID uint64) (int64, error)
}

type SearchRunner interface {
	RunOnce(ctx context.Context, batchLimit, resultsPerQuery int) (search.Summary, error)
}

type Enricher interface {
	EnrichBatch(ctx context.Context, batchID uint64, maxProfiles int) (enrich.Summary, error)
}

type Planner interface {
	Plan(ctx context.Context, text string, opts intent.PlanOptions) (intent.PlanResult, error)
}

type EnrichPublisher interface {
	PublishEnrich(ctx context.Context, req rabbitmq.EnrichRequest) error
}

// Deps are the services behind the HTTP surface. Planner and Publisher may be
// nil; their endpoints then answer 503.
type Deps struct {
	Queue     QueueStore
	Results   ResultReader
	People    PeopleReader
	Worker    SearchRunner
	Enricher  Enricher
	Planner   Planner
	Publisher EnrichPublisher

	BatchLimit      int
	ResultsPerQuery int
	ParserVersion   string
}

type Handler struct {
	Deps
	log *zap.Logger
}

func NewHandler(d Deps, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if d.BatchLimit <= 0 {
		d.BatchLimit = 5
	}
	if d.ResultsPerQuery <= 0 {
		d.ResultsPerQuery = 20
	}
	return &Handler{Deps: d, log: log}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

// internalError logs err with the request id and answers a 500 envelope.
func (h *Handler) internalError(c *gin.Context, code int, msg string, err error) {
	h.log.Error(msg,
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.String("path", c.FullPath()),
		zap.Error(err))
	common.Fail(c, http.StatusInternalServerError, code, msg)
}

// bindOptionalJSON binds the request body into obj. An empty body keeps obj's
// zero values; anything else that fails to bind answers 400.
func bindOptionalJSON(c *gin.Context, obj any) bool {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return true
	}
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return false
	}
	return true
}

func parseID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid "+name)
		return 0, false
	}
	return id, true
}

// queryInt reads an integer query parameter; absent means def.
func queryInt(c *gin.Context, name string, def int) (int, bool) {
	v := c.Query(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10005, "invalid "+name)
		return 0, false
	}
	return n, true
}
