package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Annotator adds application context, such as the open folio, to a request
// log line.
type Annotator func(c echo.Context, evt *zerolog.Event) *zerolog.Event

// Logger writes one line per request. Server errors log at error level,
// client errors at warn.
func Logger(logger zerolog.Logger, annotate ...Annotator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			err := next(c)
			status := responseStatus(c, err)

			var evt *zerolog.Event
			switch {
			case status >= http.StatusInternalServerError:
				evt = logger.Error().Err(err)
			case status >= http.StatusBadRequest:
				evt = logger.Warn().Err(err)
			default:
				evt = logger.Info()
			}
			evt = requestFields(c, evt)
			for _, a := range annotate {
				evt = a(c, evt)
			}
			evt.
				Str("method", req.Method).
				Int("status", status).
				Int64("bytes_in", req.ContentLength).
				Int64("bytes_out", c.Response().Size).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")

			return err
		}
	}
}

// responseStatus is the status the client will see. Echo writes handler
// errors after the middleware chain returns.
func responseStatus(c echo.Context, err error) int {
	if err != nil && !c.Response().Committed {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he.Code
		}
		return http.StatusInternalServerError
	}
	return c.Response().Status
}

func requestFields(c echo.Context, evt *zerolog.Event) *zerolog.Event {
	if rid, _ := c.Get("request_id").(string); rid != "" {
		evt = evt.Str("request_id", rid)
	}
	if op, _ := c.Get("operator").(string); op != "" {
		evt = evt.Str("operator", op)
	}
	if route := c.Path(); route != "" {
		evt = evt.Str("route", route)
	}
	return evt.Str("path", c.Request().URL.Path)
}
