package middleware

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medconsult/medconsult/internal/platform/auth"
)

func levelFor(logger zerolog.Logger, status int, path string, err error) *zerolog.Event {
	switch {
	case status >= 500:
		return logger.Error().Err(err)
	case status >= 400:
		return logger.Warn()
	case strings.HasPrefix(path, "/health"):
		return logger.Debug()
	}
	return logger.Info()
}

// Logger writes one structured line per request. Health probes log at debug.
// The user id is read after the handler ran, so it is set once auth has
// accepted the token.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				// Let echo write the error body so the logged status is final.
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			evt := levelFor(logger, res.Status, req.URL.Path, err)
			if uid := auth.UserIDFromContext(req.Context()); uid != "" {
				evt = evt.Str("user_id", uid)
			}
			evt.
				Str("request_id", RequestIDFromContext(req.Context())).
				Str("method", req.Method).
				Str("route", c.Path()).
				Int("status", res.Status).
				Int64("bytes_out", res.Size).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")

			return nil
		}
	}
}
