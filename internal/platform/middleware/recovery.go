package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const maxStack = 8 << 10

// Recovery turns a handler panic into a 500 and logs it with the request and
// folio context.
func Recovery(logger zerolog.Logger, annotate ...Annotator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				stack := make([]byte, maxStack)
				stack = stack[:runtime.Stack(stack, false)]

				evt := logger.Error()
				if perr, ok := r.(error); ok {
					evt = evt.Err(perr)
				} else {
					evt = evt.Str("panic", fmt.Sprint(r))
				}
				evt = requestFields(c, evt)
				for _, a := range annotate {
					evt = a(c, evt)
				}
				evt.Bytes("stack", stack).Msg("panic recovered")

				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}()
			return next(c)
		}
	}
}
