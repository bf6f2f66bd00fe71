package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/aggregator"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/domain"
	apperrors "github.com/kurihiro0119/omeka-channel-migrator/internal/errors"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/storage"
)

// Handler handles API requests
type Handler struct {
	aggregator aggregator.Aggregator
	journal    storage.Storage
}

// NewHandler creates a new API handler. journal may be nil when runs are
// not journaled; the run endpoints then report no runs.
func NewHandler(agg aggregator.Aggregator, journal storage.Storage) *Handler {
	return &Handler{
		aggregator: agg,
		journal:    journal,
	}
}

// GetReport returns the report as stored
// GET /api/v1/report
func (h *Handler) GetReport(c *gin.Context) {
	rep, err := h.aggregator.Report(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": rep,
	})
}

// GetSummary returns the report totals
// GET /api/v1/report/summary
func (h *Handler) GetSummary(c *gin.Context) {
	summary, err := h.aggregator.Summary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": summary,
	})
}

// GetChannels returns one summary row per channel
// GET /api/v1/report/channels
func (h *Handler) GetChannels(c *gin.Context) {
	rows, err := h.aggregator.Channels(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	if status := c.Query("status"); status != "" {
		filtered := rows[:0]
		for _, row := range rows {
			if string(row.Status) == status {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}

	c.JSON(http.StatusOK, gin.H{
		"data": rows,
	})
}

// GetChannel returns the summary row of one channel
// GET /api/v1/report/channels/:slug
func (h *Handler) GetChannel(c *gin.Context) {
	row, err := h.aggregator.Channel(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": row,
	})
}

// GetRuns returns the most recent journaled runs
// GET /api/v1/runs?limit=N
func (h *Handler) GetRuns(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(c, apperrors.NewBadRequestError("limit must be a positive integer"))
			return
		}
		limit = n
	}

	runs := []*domain.MigrationRun{}
	if h.journal != nil {
		found, err := h.journal.GetRuns(c.Request.Context(), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		runs = append(runs, found...)
	}

	c.JSON(http.StatusOK, gin.H{
		"data": runs,
	})
}

// GetRunOutcomes returns a run and the outcomes it journaled
// GET /api/v1/runs/:id/outcomes
func (h *Handler) GetRunOutcomes(c *gin.Context) {
	id := c.Param("id")
	if h.journal == nil {
		respondError(c, apperrors.NewNotFoundError("run "+id))
		return
	}

	run, err := h.journal.GetRun(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	outcomes, err := h.journal.GetOutcomes(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if outcomes == nil {
		outcomes = []*domain.OutcomeRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"run":      run,
			"outcomes": outcomes,
		},
	})
}

// GetChannelHistory returns the journaled outcomes of one channel
// GET /api/v1/channels/:slug/history
func (h *Handler) GetChannelHistory(c *gin.Context) {
	history := []*domain.OutcomeRecord{}
	if h.journal != nil {
		found, err := h.journal.GetChannelHistory(c.Request.Context(), c.Param("slug"))
		if err != nil {
			respondError(c, err)
			return
		}
		history = append(history, found...)
	}

	c.JSON(http.StatusOK, gin.H{
		"data": history,
	})
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// respondError sends an error response
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		switch appErr.Code {
		case apperrors.ErrCodeNotFound:
			status = http.StatusNotFound
		case apperrors.ErrCodeUnauthorized:
			status = http.StatusUnauthorized
		case apperrors.ErrCodeBadRequest:
			status = http.StatusBadRequest
		case apperrors.ErrCodeRemote:
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			},
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{
			"code":    "INTERNAL_ERROR",
			"message": err.Error(),
		},
	})
}
