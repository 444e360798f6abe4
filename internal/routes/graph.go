package routes

import (
	"schemagraph/internal/handlers"

	"github.com/gin-gonic/gin"
)

type GraphRoutes struct {
	handler *handlers.GraphHandler
}

func NewGraphRoutes(handler *handlers.GraphHandler) *GraphRoutes {
	return &GraphRoutes{handler: handler}
}

func (r *GraphRoutes) RegisterRoutes(router *gin.RouterGroup) {
	graph := router.Group("/graph")
	{
		graph.GET("", r.handler.GetGraph)
		graph.POST("/refresh", r.handler.Refresh)
		graph.PUT("/layout", r.handler.SetLayout)
		graph.GET("/mermaid", r.handler.Mermaid)
		graph.GET("/events", r.handler.Events)
		graph.GET("/history", r.handler.History)
	}
}
