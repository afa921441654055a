package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fictotum/internal/platform/reqctx"
)

// HeaderCurator names the curator responsible for a write request
const HeaderCurator = "X-Curator"

// Context copies request identifiers into the request context
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := req.Context()
			ctx = reqctx.SetRequestID(ctx, requestID)
			ctx = reqctx.SetMethod(ctx, req.Method)
			ctx = reqctx.SetRoute(ctx, req.URL.Path)
			ctx = reqctx.SetRemoteIP(ctx, c.RealIP())
			if curator := req.Header.Get(HeaderCurator); curator != "" {
				ctx = reqctx.SetCurator(ctx, curator)
			}

			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
