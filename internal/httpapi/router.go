package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/suPer8Hu/talent-pipeline/internal/common"
	"github.com/suPer8Hu/talent-pipeline/internal/httpapi/handlers"
	"github.com/suPer8Hu/talent-pipeline/internal/httpapi/middleware"
)

// NewRouter mounts every endpoint. gatherer may be nil to skip /metrics.
func NewRouter(h *handlers.Handler, log *zap.Logger, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(log))
	r.Use(middleware.AccessLog(log))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// planning and the search queue
	r.POST("/plan", h.Plan)
	r.POST("/queries", h.CreateQueries)
	r.POST("/worker/run", h.RunWorker)
	r.GET("/queue/stats", h.QueueStats)
	r.GET("/queue/:id", h.GetQueueItem)

	// search batches
	r.GET("/batches/:id/results", h.BatchResults)
	r.POST("/batches/:id/enrich", h.EnrichBatch)

	r.GET("/people", h.ListPeople)
	return r
}
