package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"schemagraph/internal/layout"
	"schemagraph/internal/models"
	"schemagraph/internal/responses"
	"schemagraph/internal/services"
)

const keepAliveInterval = 30 * time.Second

// HistoryLister is satisfied by the rebuild history repository.
type HistoryLister interface {
	List(ctx context.Context, limit int) ([]models.RebuildRecord, error)
}

type GraphHandler struct {
	controller *services.GraphViewController
	history    HistoryLister
	logger     *zap.Logger
}

// NewGraphHandler creates a GraphHandler. history may be nil when no
// control-plane database is configured.
func NewGraphHandler(controller *services.GraphViewController, history HistoryLister, logger *zap.Logger) *GraphHandler {
	return &GraphHandler{
		controller: controller,
		history:    history,
		logger:     logger,
	}
}

// GetGraph handles GET /api/v1/graph
func (h *GraphHandler) GetGraph(c *gin.Context) {
	responses.Success(c, http.StatusOK, h.controller.Snapshot(), "")
}

// Refresh handles POST /api/v1/graph/refresh
func (h *GraphHandler) Refresh(c *gin.Context) {
	snap := h.controller.Refresh(c.Request.Context())
	if snap.State == services.StateError {
		responses.JSON(c, http.StatusBadGateway, responses.StatusError, snap, "Failed to rebuild graph", errors.New(snap.Error))
		return
	}
	responses.Success(c, http.StatusOK, snap, "Graph rebuilt successfully")
}

type setLayoutRequest struct {
	Layout string `json:"layout" binding:"required"`
}

// SetLayout handles PUT /api/v1/graph/layout
func (h *GraphHandler) SetLayout(c *gin.Context) {
	var req setLayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	kind, err := layout.ParseKind(req.Layout)
	if err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid layout")
		return
	}

	snap, err := h.controller.SetLayout(kind)
	if err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid layout")
		return
	}
	responses.Success(c, http.StatusOK, snap, "Layout updated")
}

// Mermaid handles GET /api/v1/graph/mermaid
func (h *GraphHandler) Mermaid(c *gin.Context) {
	snap := h.controller.Snapshot()
	if snap.State != services.StateReady {
		responses.Fail(c, http.StatusConflict, nil, "Graph is not ready (state: "+snap.State.String()+")")
		return
	}

	responses.Success(c, http.StatusOK, gin.H{
		"mermaid": services.Mermaid(snap.Model),
		"schema":  snap.Schema,
	}, "Schema visualization generated successfully")
}

// History handles GET /api/v1/graph/history?limit=N
func (h *GraphHandler) History(c *gin.Context) {
	if h.history == nil {
		responses.Fail(c, http.StatusNotFound, nil, "Rebuild history is not enabled")
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		responses.Fail(c, http.StatusBadRequest, err, "limit must be a positive integer")
		return
	}

	records, err := h.history.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list rebuild history", zap.Error(err))
		responses.Fail(c, http.StatusInternalServerError, err, "Failed to list rebuild history")
		return
	}
	responses.Success(c, http.StatusOK, records, "")
}

// Events handles GET /api/v1/graph/events as a Server-Sent Events stream.
// The current snapshot is sent first, then one event per state change.
// Slow clients miss intermediate snapshots rather than blocking rebuilds.
func (h *GraphHandler) Events(c *gin.Context) {
	updates := make(chan services.Snapshot, 16)
	stop := h.controller.Watch(func(s services.Snapshot) {
		select {
		case updates <- s:
		default:
		}
	})
	defer stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.SSEvent("snapshot", h.controller.Snapshot())
	c.Writer.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case s := <-updates:
			c.SSEvent("snapshot", s)
			c.Writer.Flush()
		case <-ticker.C:
			if _, err := c.Writer.WriteString(": keepalive\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}
