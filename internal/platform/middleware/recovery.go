package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ErrorBody is the JSON error shape every dev store failure uses. The
// client gateway reads Message into its classified errors.
type ErrorBody struct {
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Recovery answers a handler panic with a 500 ErrorBody. The panic value
// stays in the log; the caller only sees the request id to quote. Register
// it after RequestID so the id is known.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				stack := make([]byte, 8<<10)
				stack = stack[:runtime.Stack(stack, false)]
				rid, _ := c.Get("request_id").(string)

				logger.Error().
					Str("request_id", rid).
					Str("method", c.Request().Method).
					Str("path", c.Request().URL.Path).
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", stack).
					Msg("handler panicked")

				if c.Response().Committed {
					// Headers are out; nothing useful can be sent.
					err = nil
					return
				}
				err = c.JSON(http.StatusInternalServerError, ErrorBody{Message: "internal server error", RequestID: rid})
			}()
			return next(c)
		}
	}
}
