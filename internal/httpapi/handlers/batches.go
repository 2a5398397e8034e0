package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/talent-pipeline/internal/common"
	"github.com/suPer8Hu/talent-pipeline/internal/store/rabbitmq"
)

func (h *Handler) BatchResults(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 100)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := h.Results.ListByBatch(c.Request.Context(), id, limit, offset)
	if err != nil {
		h.internalError(c, 20001, "db error", err)
		return
	}
	enriched, err := h.People.CountByBatch(c.Request.Context(), id)
	if err != nil {
		h.internalError(c, 20001, "db error", err)
		return
	}
	common.OK(c, gin.H{
		"search_id": id,
		"items":     rows,
		"count":     len(rows),
		"enriched":  enriched,
	})
}

type enrichReq struct {
	MaxProfiles int `json:"max_profiles"`
}

// EnrichBatch runs enrichment inline, or queues it for the worker when
// ?async=1.
func (h *Handler) EnrichBatch(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req enrichReq
	if !bindOptionalJSON(c, &req) {
		return
	}
	if req.MaxProfiles < 0 {
		common.Fail(c, http.StatusBadRequest, 10008, "max_profiles must not be negative")
		return
	}

	if c.Query("async") == "1" || c.Query("async") == "true" {
		if h.Publisher == nil {
			common.Fail(c, http.StatusServiceUnavailable, 50302, "async enrichment not configured")
			return
		}
		err := h.Publisher.PublishEnrich(c.Request.Context(), rabbitmq.EnrichRequest{
			SearchBatchID: id,
			MaxProfiles:   req.MaxProfiles,
		})
		if err != nil {
			h.internalError(c, 50002, "enqueue failed", err)
			return
		}
		common.Accepted(c, gin.H{"search_id": id, "queued": true})
		return
	}

	sum, err := h.Enricher.EnrichBatch(c.Request.Context(), id, req.MaxProfiles)
	if err != nil {
		h.internalError(c, 20004, "enrichment aborted", err)
		return
	}
	common.OK(c, sum)
}
