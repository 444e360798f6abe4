package routes

import (
	"schemagraph/internal/handlers"

	"github.com/gin-gonic/gin"
)

type SchemaRoutes struct {
	handler *handlers.SchemaHandler
}

func NewSchemaRoutes(handler *handlers.SchemaHandler) *SchemaRoutes {
	return &SchemaRoutes{handler: handler}
}

func (r *SchemaRoutes) RegisterRoutes(router *gin.RouterGroup) {
	schemas := router.Group("/schemas")
	{
		schemas.GET("", r.handler.ListSchemas)
		schemas.GET("/:schema/tables", r.handler.ListTables)
		schemas.GET("/:schema/tables/:table/structure", r.handler.GetTableStructure)
	}
}
