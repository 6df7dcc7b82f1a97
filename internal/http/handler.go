package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"mobility-ingest/internal/db"
	"mobility-ingest/internal/derive"
	"mobility-ingest/internal/metrics"
	"mobility-ingest/internal/watermark"
)

// Handler serves the operational API: watermark inspection and derivation-job
// triggers. Job runs are serialized per job by the watermark row lock, so
// concurrent trigger requests block rather than conflict.
type Handler struct {
	database     *gorm.DB
	wm           *watermark.Controller
	routes       *derive.RouteAggregator
	availability *derive.AvailabilityDeriver
	metrics      *metrics.Metrics
	log          zerolog.Logger
}

func NewHandler(
	database *gorm.DB,
	wm *watermark.Controller,
	routes *derive.RouteAggregator,
	availability *derive.AvailabilityDeriver,
	m *metrics.Metrics,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		database:     database,
		wm:           wm,
		routes:       routes,
		availability: availability,
		metrics:      m,
		log:          log,
	}
}

func (h *Handler) health(c *gin.Context) {
	if err := db.HealthCheck(c.Request.Context(), h.database); err != nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse("database unreachable"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) listWatermarks(c *gin.Context) {
	wms, err := h.wm.List(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list watermarks")
		c.JSON(http.StatusInternalServerError, errorResponse("failed to list watermarks"))
		return
	}
	c.JSON(http.StatusOK, successResponse(gin.H{"items": wms}))
}

func (h *Handler) runJob(c *gin.Context) {
	job := c.Param("name")

	var win watermark.Window
	var stats derive.Stats
	var err error

	switch job {
	case derive.RouteJob:
		win, stats, err = h.routes.Run(c.Request.Context())
	case derive.AvailabilityJob:
		win, stats, err = h.availability.Run(c.Request.Context())
	default:
		c.JSON(http.StatusNotFound, errorResponse("unknown job"))
		return
	}

	h.metrics.DerivationRuns.WithLabelValues(job).Inc()
	if err != nil {
		h.metrics.DerivationErrors.WithLabelValues(job).Inc()
		h.log.Error().Err(err).Str("job", job).Msg("derivation run failed")
		c.JSON(http.StatusInternalServerError, errorResponse(err.Error()))
		return
	}
	h.metrics.DerivedRows.WithLabelValues(job).Add(float64(stats.DerivedRows))

	c.JSON(http.StatusOK, successResponse(gin.H{
		"job":          job,
		"window_start": win.Start,
		"window_end":   win.End,
		"empty":        win.Empty(),
		"source_rows":  stats.SourceRows,
		"derived_rows": stats.DerivedRows,
	}))
}

func successResponse(data any) gin.H {
	return gin.H{"success": true, "data": data}
}

func errorResponse(msg string) gin.H {
	return gin.H{"success": false, "error": msg}
}
