package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Freeeeeet/clinic_scheduler/internal/model"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

var errorStatuses = []struct {
	err    error
	status int
	code   string
}{
	{model.ErrValidation, http.StatusBadRequest, "validation_error"},
	{model.ErrNotFound, http.StatusNotFound, "not_found"},
	{model.ErrForbidden, http.StatusForbidden, "forbidden"},
	{model.ErrSlotFull, http.StatusConflict, "slot_full"},
	{model.ErrDuplicateBooking, http.StatusConflict, "duplicate_booking"},
	{model.ErrSlotOverlap, http.StatusConflict, "slot_overlap"},
	{model.ErrInvalidState, http.StatusConflict, "invalid_state"},
	{model.ErrSlotExpired, http.StatusGone, "slot_expired"},
	{model.ErrTransientStore, http.StatusServiceUnavailable, "store_unavailable"},
}

// statusOf maps a domain error to its HTTP status and stable code.
func statusOf(err error) (int, string) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// ErrorHandler renders domain errors and echo errors as JSON.
func ErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		rid, _ := c.Get(requestIDKey).(string)
		resp := errorResponse{RequestID: rid}

		var (
			status int
			he     *echo.HTTPError
		)
		if errors.As(err, &he) {
			status = he.Code
			if msg, ok := he.Message.(string); ok {
				resp.Error = msg
			} else {
				resp.Error = http.StatusText(he.Code)
			}
		} else {
			status, resp.Code = statusOf(err)
			resp.Error = err.Error()
			if status == http.StatusInternalServerError {
				logger.Error("Unhandled error", zap.Error(err), zap.String("request_id", rid))
				resp.Error = http.StatusText(status)
			}
			if status == http.StatusServiceUnavailable {
				c.Response().Header().Set("Retry-After", "1")
			}
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, resp)
		}
		if writeErr != nil {
			logger.Warn("Failed to write error response", zap.Error(writeErr))
		}
	}
}
