package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"schemagraph/internal/responses"
	"schemagraph/internal/services"
)

type ContextHandler struct {
	contextService *services.ContextService
}

func NewContextHandler(contextService *services.ContextService) *ContextHandler {
	return &ContextHandler{contextService: contextService}
}

// GetContext handles GET /api/v1/context
func (h *ContextHandler) GetContext(c *gin.Context) {
	responses.Success(c, http.StatusOK, h.contextService.Current(), "")
}

type selectDatabaseRequest struct {
	Database string `json:"database" binding:"required"`
	Schema   string `json:"schema"`
}

// SelectDatabase handles PUT /api/v1/context/database
func (h *ContextHandler) SelectDatabase(c *gin.Context) {
	var req selectDatabaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	active, err := h.contextService.SelectDatabase(c.Request.Context(), req.Database, req.Schema)
	if err != nil {
		h.fail(c, err)
		return
	}
	responses.Success(c, http.StatusOK, active, "Active database changed")
}

type selectSchemaRequest struct {
	Schema string `json:"schema" binding:"required"`
}

// SelectSchema handles PUT /api/v1/context/schema
func (h *ContextHandler) SelectSchema(c *gin.Context) {
	var req selectSchemaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	active, err := h.contextService.SelectSchema(c.Request.Context(), req.Schema)
	if err != nil {
		h.fail(c, err)
		return
	}
	responses.Success(c, http.StatusOK, active, "Active schema changed")
}

func (h *ContextHandler) fail(c *gin.Context, err error) {
	if errors.Is(err, services.ErrDatabaseRequired) || errors.Is(err, services.ErrSchemaRequired) {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid selection")
		return
	}
	responses.Fail(c, http.StatusInternalServerError, err, "Failed to change active context")
}
