package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"schemagraph/internal/responses"
	"schemagraph/internal/services"
)

type SchemaHandler struct {
	schemaService *services.SchemaService
	logger        *zap.Logger
}

func NewSchemaHandler(schemaService *services.SchemaService, logger *zap.Logger) *SchemaHandler {
	return &SchemaHandler{
		schemaService: schemaService,
		logger:        logger,
	}
}

// ListSchemas handles GET /api/v1/schemas
func (h *SchemaHandler) ListSchemas(c *gin.Context) {
	schemas, err := h.schemaService.ListSchemas(c.Request.Context())
	if errors.Is(err, services.ErrSchemaListingUnsupported) {
		responses.Fail(c, http.StatusNotImplemented, err, "Schema listing is not supported by this database")
		return
	}
	if err != nil {
		h.logger.Warn("failed to list schemas", zap.Error(err))
		responses.Fail(c, http.StatusBadGateway, err, "Failed to list schemas")
		return
	}
	responses.Success(c, http.StatusOK, schemas, "")
}

// ListTables handles GET /api/v1/schemas/:schema/tables
func (h *SchemaHandler) ListTables(c *gin.Context) {
	schema := c.Param("schema")

	tables, err := h.schemaService.ListTables(c.Request.Context(), schema)
	if err != nil {
		h.logger.Warn("failed to list tables", zap.String("schema", schema), zap.Error(err))
		responses.Fail(c, http.StatusBadGateway, err, "Failed to list tables")
		return
	}
	responses.Success(c, http.StatusOK, gin.H{
		"schema": schema,
		"tables": tables,
	}, "")
}

// GetTableStructure handles GET /api/v1/schemas/:schema/tables/:table/structure
func (h *SchemaHandler) GetTableStructure(c *gin.Context) {
	schema := c.Param("schema")
	table := c.Param("table")

	meta, err := h.schemaService.GetTable(c.Request.Context(), schema, table)
	if err != nil {
		h.logger.Warn("failed to get table structure",
			zap.String("schema", schema),
			zap.String("table", table),
			zap.Error(err),
		)
		responses.Fail(c, http.StatusBadGateway, err, "Failed to get table structure")
		return
	}
	responses.Success(c, http.StatusOK, meta, "")
}
