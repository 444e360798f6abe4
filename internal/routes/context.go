package routes

import (
	"schemagraph/internal/handlers"

	"github.com/gin-gonic/gin"
)

type ContextRoutes struct {
	contextHandler *handlers.ContextHandler
	signalHandler  *handlers.SignalHandler
}

func NewContextRoutes(contextHandler *handlers.ContextHandler, signalHandler *handlers.SignalHandler) *ContextRoutes {
	return &ContextRoutes{
		contextHandler: contextHandler,
		signalHandler:  signalHandler,
	}
}

func (r *ContextRoutes) RegisterRoutes(router *gin.RouterGroup) {
	active := router.Group("/context")
	{
		active.GET("", r.contextHandler.GetContext)
		active.PUT("/database", r.contextHandler.SelectDatabase)
		active.PUT("/schema", r.contextHandler.SelectSchema)
	}

	router.POST("/signals/:topic", r.signalHandler.Publish)
}
