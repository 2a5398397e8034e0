package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/talent-pipeline/internal/common"
	"github.com/suPer8Hu/talent-pipeline/internal/intent"
)

type planReq struct {
	UserInput          string `json:"user_input" binding:"required"`
	RunSearch          *bool  `json:"run_search"`
	MaxResultsPerQuery int    `json:"max_results_per_query"`
}

// Plan turns a hiring request into queued search queries and, unless
// run_search is false, runs one worker pass right away.
func (h *Handler) Plan(c *gin.Context) {
	if h.Planner == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "query planner not configured")
		return
	}
	var req planReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.MaxResultsPerQuery == 0 {
		req.MaxResultsPerQuery = h.ResultsPerQuery
	}
	if req.MaxResultsPerQuery < 1 || req.MaxResultsPerQuery > 100 {
		common.Fail(c, http.StatusBadRequest, 10007, "max_results_per_query must be in 1..100")
		return
	}
	run := true
	if req.RunSearch != nil {
		run = *req.RunSearch
	}

	res, err := h.Planner.Plan(c.Request.Context(), req.UserInput, intent.PlanOptions{
		RunSearch:          run,
		BatchLimit:         h.BatchLimit,
		MaxResultsPerQuery: req.MaxResultsPerQuery,
	})
	if err != nil {
		if errors.Is(err, intent.ErrMalformedOutput) {
			common.Fail(c, http.StatusBadGateway, 50201, err.Error())
			return
		}
		h.internalError(c, 20003, "failed to plan queries", err)
		return
	}
	common.OK(c, res)
}
