package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"schemagraph/internal/responses"
	"schemagraph/internal/signals"
)

// SignalHandler lets external components announce a context switch that
// happened outside this service.
type SignalHandler struct {
	publisher signals.Publisher
}

func NewSignalHandler(publisher signals.Publisher) *SignalHandler {
	return &SignalHandler{publisher: publisher}
}

// Publish handles POST /api/v1/signals/:topic
func (h *SignalHandler) Publish(c *gin.Context) {
	topic, err := signals.ParseTopic(c.Param("topic"))
	if err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Unknown signal topic")
		return
	}

	h.publisher.Publish(topic)
	responses.Success(c, http.StatusAccepted, gin.H{"topic": topic.String()}, "Signal published")
}
