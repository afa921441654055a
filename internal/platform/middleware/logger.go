package middleware

import (
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fictotum/internal/platform/reqctx"
)

// Logger writes one access log line per request
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}
			elapsed := time.Since(start)

			ctx := req.Context()
			log := logger.WithContext(ctx).WithFields(map[string]any{
				"request_id":  reqctx.GetRequestID(ctx),
				"method":      req.Method,
				"route":       c.Path(),
				"status":      res.Status,
				"remote_ip":   c.RealIP(),
				"duration_ms": elapsed.Milliseconds(),
				"bytes":       strconv.FormatInt(res.Size, 10),
			})
			if curator := reqctx.GetCurator(ctx); curator != "" {
				log = log.WithField("curator", curator)
			}
			switch {
			case res.Status >= 500:
				log.Error("Request failed")
			case res.Status >= 400:
				log.Warn("Request rejected")
			default:
				log.Info("Request")
			}

			return nil
		}
	}
}
