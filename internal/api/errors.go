package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/selfie2snap/selfie2snap/internal/gallery"
	"github.com/selfie2snap/selfie2snap/internal/job"
	"github.com/selfie2snap/selfie2snap/internal/media"
	"github.com/selfie2snap/selfie2snap/internal/options"
	"github.com/selfie2snap/selfie2snap/internal/orchestrator"
	"github.com/selfie2snap/selfie2snap/internal/session"
	"github.com/selfie2snap/selfie2snap/internal/settings"
	"github.com/selfie2snap/selfie2snap/internal/store"
	"github.com/selfie2snap/selfie2snap/internal/upload"
)

var errBadRequest = errors.New("bad request")

var errTooLarge = errors.New("upload too large")

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error  string            `json:"error"`
	Code   string            `json:"code"`
	Fields map[string]string `json:"fields,omitempty"`
}

// classify maps domain errors to an HTTP status and a stable code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, upload.ErrMissingInput):
		return http.StatusBadRequest, "missing_input"
	case errors.Is(err, media.ErrInvalidMediaType):
		return http.StatusBadRequest, "invalid_media_type"
	case errors.Is(err, options.ErrInvalidOption):
		return http.StatusBadRequest, "invalid_option"
	case errors.Is(err, upload.ErrInvalidPosition):
		return http.StatusBadRequest, "invalid_position"
	case errors.Is(err, settings.ErrInvalidPreference):
		return http.StatusBadRequest, "invalid_preference"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, errTooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, job.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, job.ErrRetryLimit):
		return http.StatusConflict, "retry_limit"
	case errors.Is(err, session.ErrNoJob):
		return http.StatusConflict, "no_job"
	case errors.Is(err, orchestrator.ErrJobNotFound),
		errors.Is(err, job.ErrFrameNotFound),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, gallery.ErrNotReady):
		return http.StatusNotFound, "not_ready"
	case errors.Is(err, orchestrator.ErrClosed):
		return http.StatusServiceUnavailable, "shutting_down"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, errorBody{Error: err.Error(), Code: code})
}

// bindJSON decodes and validates a request body. It writes the error
// response itself and returns false on failure.
func (s *Server) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		s.fail(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			s.fail(c, fmt.Errorf("%w: %v", errBadRequest, err))
			return false
		}
		fields := make(map[string]string, len(verrs))
		var msgs []string
		for _, fe := range verrs {
			msg := fieldMessage(fe)
			fields[fe.Field()] = msg
			msgs = append(msgs, fe.Field()+": "+msg)
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{
			Error:  strings.Join(msgs, "; "),
			Code:   "validation_failed",
			Fields: fields,
		})
		return false
	}
	return true
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "required":
		return "is required"
	default:
		return "failed " + fe.Tag() + " check"
	}
}
