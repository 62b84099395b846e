package rest

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/vidaccounts/internal/common"
	"github.com/gin-gonic/gin"
)

type apiResponse struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

type apiError struct {
	StatusCode int    `json:"statusCode"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

func respond(c *gin.Context, status int, data any, message string) {
	if data == nil {
		data = gin.H{}
	}
	c.JSON(status, apiResponse{StatusCode: status, Data: data, Message: message, Success: true})
}

// errorStatus maps an error of the common taxonomy to its HTTP status and
// machine-readable code. Order matters: derived errors come before their
// parents.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrInvalidArgument):
		return http.StatusBadRequest, "INVALID_ARGUMENT"
	case errors.Is(err, common.ErrUnauthenticated):
		return http.StatusUnauthorized, "UNAUTHENTICATED"
	case errors.Is(err, common.ErrTokenReuseDetected):
		return http.StatusUnauthorized, "TOKEN_REUSE_DETECTED"
	case errors.Is(err, common.ErrInvalidToken):
		return http.StatusUnauthorized, "INVALID_TOKEN"
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, common.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, common.ErrUpstreamFailure):
		return http.StatusServiceUnavailable, "UPSTREAM_FAILURE"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

// writeError is the single place where service errors become responses.
// Server-side failures are logged and their details kept out of the body.
func (s *HTTPServer) writeError(c *gin.Context, err error) {
	status, code := errorStatus(err)

	message := err.Error()
	switch status {
	case http.StatusServiceUnavailable:
		s.logger.Error(c.Request.Context(), "upstream failure", "path", c.FullPath(), "error", err)
		message = common.ErrUpstreamFailure.Error()
	case http.StatusInternalServerError:
		s.logger.Error(c.Request.Context(), "internal error", "path", c.FullPath(), "error", err)
		message = common.ErrorInternal.Error()
	}

	c.AbortWithStatusJSON(status, apiError{StatusCode: status, Code: code, Message: message, Success: false})
}
