package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the body of every non-2xx response.
type ErrorBody struct {
	Message string `json:"message"`
}

func RespondError(c *gin.Context, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, ErrorBody{Message: message})
}

// RespondErr classifies err and writes it.
func RespondErr(c *gin.Context, err error) {
	status, message := StatusForError(err)
	if err != nil {
		_ = c.Error(err)
	}
	RespondError(c, status, message)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
