package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/tcm-knowledge-backend/internal/platform/apierr"
	"github.com/yungbote/tcm-knowledge-backend/internal/services"
)

// FlatErrorsKey marks a request whose errors render as {"error": message}
// instead of the {error:{message,code}} envelope.
const FlatErrorsKey = "response.flat_errors"

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	if c.GetBool(FlatErrorsKey) {
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// AbortError is RespondError for middleware.
func AbortError(c *gin.Context, status int, code string, err error) {
	RespondError(c, status, code, err)
	c.Abort()
}

// RespondErr picks the status from err: apierr values carry their own,
// the auth sentinels map to 401/403, anything else is a 500.
func RespondErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		RespondError(c, http.StatusUnauthorized, "unauthorized", err)
	case errors.Is(err, services.ErrForbidden):
		RespondError(c, http.StatusForbidden, "forbidden", err)
	default:
		status, code := apierr.StatusOf(err)
		RespondError(c, status, code, err)
	}
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
