package responses

import "github.com/gin-gonic/gin"

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// JSON writes an envelope carrying both data and an error, e.g. a graph
// snapshot whose rebuild failed.
func JSON(c *gin.Context, statusCode int, status string, data any, message string, err error) {
	response := APIResponse{
		Status:  status,
		Message: message,
		Data:    data,
	}
	if err != nil {
		response.Error = err.Error()
	}
	c.JSON(statusCode, response)
}

func Success(c *gin.Context, statusCode int, data any, message string) {
	JSON(c, statusCode, StatusSuccess, data, message, nil)
}

func Fail(c *gin.Context, statusCode int, err error, message string) {
	JSON(c, statusCode, StatusError, nil, message, err)
}
