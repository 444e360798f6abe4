package routes

import (
	"net/http"

	"schemagraph/internal/handlers"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Schema  *handlers.SchemaHandler
	Graph   *handlers.GraphHandler
	Context *handlers.ContextHandler
	Signal  *handlers.SignalHandler
}

func RegisterRoutes(router *gin.Engine, h Handlers) {
	api := router.Group("/api/v1")

	schemaRoutes := NewSchemaRoutes(h.Schema)
	schemaRoutes.RegisterRoutes(api)

	graphRoutes := NewGraphRoutes(h.Graph)
	graphRoutes.RegisterRoutes(api)

	contextRoutes := NewContextRoutes(h.Context, h.Signal)
	contextRoutes.RegisterRoutes(api)

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})
}
