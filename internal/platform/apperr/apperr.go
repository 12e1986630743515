// Package apperr defines the error taxonomy shared by the domain services and
// the echo error handler that turns it into HTTP responses.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// StatusClientClosedRequest is logged for requests whose client went away
// before the handler failed.
const StatusClientClosedRequest = 499

var (
	ErrNotFound              = errors.New("not found")
	ErrReferenceNotFound     = errors.New("referenced record not found")
	ErrDuplicateKey          = errors.New("duplicate key")
	ErrInvalidInput          = errors.New("invalid input")
	ErrStorage               = errors.New("storage error")
	ErrPredictionUnavailable = errors.New("prediction unavailable")

	// ErrPersonNotFound is the ErrNotFound kind used for doctors and patients.
	ErrPersonNotFound error = &subKind{msg: "not found", parent: ErrNotFound}
)

type subKind struct {
	msg    string
	parent error
}

func (k *subKind) Error() string { return k.msg }
func (k *subKind) Unwrap() error { return k.parent }

// Wrap annotates kind with a formatted message while keeping it matchable
// with errors.Is.
func Wrap(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), kind)
}

// NotFound reports that the entity with the given id does not exist.
func NotFound(entity string, id interface{}) error {
	return Wrap(ErrNotFound, "%s %v", entity, id)
}

// PersonNotFound is NotFound for doctor and patient records.
func PersonNotFound(entity string, id interface{}) error {
	return Wrap(ErrPersonNotFound, "%s %v", entity, id)
}

// MissingReference reports that a foreign-key style reference did not resolve.
func MissingReference(entity string, id interface{}) error {
	return Wrap(ErrReferenceNotFound, "%s %v", entity, id)
}

// Invalid reports malformed or missing request data.
func Invalid(format string, args ...interface{}) error {
	return Wrap(ErrInvalidInput, format, args...)
}

// HandlerOptions tunes the status mapping of ErrorHandler.
type HandlerOptions struct {
	// NotFoundAsServerError answers a missing doctor or patient with 500
	// instead of 404, matching clients written against the legacy service.
	// Other NotFound errors stay 404.
	NotFoundAsServerError bool
}

// Status returns the HTTP status code for err.
func Status(err error, opts HandlerOptions) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, ErrNotFound):
		if opts.NotFoundAsServerError && errors.Is(err, ErrPersonNotFound) {
			return http.StatusInternalServerError
		}
		return http.StatusNotFound
	case errors.Is(err, ErrReferenceNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrDuplicateKey):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrPredictionUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler returns an echo.HTTPErrorHandler that writes {"error": "..."}
// bodies using the taxonomy above.
func ErrorHandler(logger zerolog.Logger, opts HandlerOptions) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := Status(err, opts)
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg = fmt.Sprintf("%v", he.Message)
		}

		if code >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Int("status", code).
				Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = c.JSON(code, map[string]string{"error": msg})
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}
