package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dusk-indust/reportgen/internal/orchestrator"
)

// APIError is the body of every error response.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorEnvelope wraps an APIError.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError writes an error envelope.
func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondOK writes payload with status 200.
func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// respondControllerError maps a controller error to its HTTP status.
func respondControllerError(c *gin.Context, err error) {
	code := orchestrator.ErrorCode(err)
	RespondError(c, statusForCode(code), code, err)
}

func statusForCode(code string) int {
	switch code {
	case orchestrator.CodeAlreadyExists, orchestrator.CodeAlreadyInProgress, orchestrator.CodeNotComplete:
		return http.StatusConflict
	case orchestrator.CodeMissingUpstreamData:
		return http.StatusUnprocessableEntity
	case orchestrator.CodeNotFound:
		return http.StatusNotFound
	case orchestrator.CodeInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// HealthCheck answers liveness probes.
func HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
