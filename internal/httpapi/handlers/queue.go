package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/talent-pipeline/internal/common"
	"github.com/suPer8Hu/talent-pipeline/internal/queue"
)

type createQueriesReq struct {
	Queries       []string `json:"queries" binding:"required"`
	Technologies  []string `json:"technologies"`
	Locations     []string `json:"locations"`
	ParserVersion string   `json:"parser_version"`
}

func (h *Handler) CreateQueries(c *gin.Context) {
	var req createQueriesReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if len(req.Queries) > 1000 {
		common.Fail(c, http.StatusBadRequest, 10002, "at most 1000 queries per request")
		return
	}
	version := req.ParserVersion
	if version == "" {
		version = h.ParserVersion
	}

	n, err := h.Queue.Enqueue(c.Request.Context(), req.Queries, queue.Metadata{
		Technologies:  req.Technologies,
		Locations:     req.Locations,
		ParserVersion: version,
	})
	if err != nil {
		h.internalError(c, 20001, "failed to enqueue queries", err)
		return
	}
	common.OK(c, gin.H{"created": n})
}

type runWorkerReq struct {
	BatchLimit      int `json:"batch_limit"`
	ResultsPerQuery int `json:"results_per_query"`
}

func (h *Handler) RunWorker(c *gin.Context) {
	var req runWorkerReq
	if !bindOptionalJSON(c, &req) {
		return
	}

	if req.BatchLimit == 0 {
		req.BatchLimit = h.BatchLimit
	}
	if req.ResultsPerQuery == 0 {
		req.ResultsPerQuery = h.ResultsPerQuery
	}
	if req.BatchLimit < 1 || req.BatchLimit > 100 {
		common.Fail(c, http.StatusBadRequest, 10006, "batch_limit must be in 1..100")
		return
	}
	if req.ResultsPerQuery < 1 || req.ResultsPerQuery > 100 {
		common.Fail(c, http.StatusBadRequest, 10007, "results_per_query must be in 1..100")
		return
	}

	sum, err := h.Worker.RunOnce(c.Request.Context(), req.BatchLimit, req.ResultsPerQuery)
	if err != nil {
		h.internalError(c, 20002, "failed to lease queries", err)
		return
	}
	common.OK(c, sum)
}

func (h *Handler) QueueStats(c *gin.Context) {
	st, err := h.Queue.Stats(c.Request.Context())
	if err != nil {
		h.internalError(c, 20001, "db error", err)
		return
	}
	common.OK(c, st)
}

func (h *Handler) GetQueueItem(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	it, err := h.Queue.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "query not found")
			return
		}
		h.internalError(c, 20001, "db error", err)
		return
	}
	common.OK(c, it)
}
