package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/oncoscan/oncoscan/internal/platform/apperr"
)

// RequestTimeout puts a deadline on the request context and runs the handler
// on the request goroutine, so the response is only ever written by the
// handler or by the error handler after it returned. Handlers are expected to
// honor the deadline; those that outlive the request on purpose (the
// prediction call) derive their own detached context.
//
// A handler that failed or wrote nothing after the deadline is answered with
// 504. A failure after the client went away is answered with 499.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 {
				return next(c)
			}

			parent := c.Request().Context()
			ctx, cancel := context.WithTimeout(parent, timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if c.Response().Committed {
				return err
			}

			switch {
			case parent.Err() != nil:
				if err == nil {
					return nil
				}
				return echo.NewHTTPError(apperr.StatusClientClosedRequest, "client closed request")
			case errors.Is(ctx.Err(), context.DeadlineExceeded) && (err == nil || errors.Is(err, context.DeadlineExceeded)):
				return echo.NewHTTPError(http.StatusGatewayTimeout, "request exceeded the allowed time limit")
			}
			return err
		}
	}
}
