package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shinyyama/denifinder/internal/reqctx"
)

// RequestID reuses the caller's X-Request-ID or assigns a new one, and
// stores it in the request context for log lines.
func RequestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		rid := req.Header.Get(echo.HeaderXRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Response().Header().Set(echo.HeaderXRequestID, rid)
		c.SetRequest(req.WithContext(reqctx.WithRID(req.Context(), rid)))
		return next(c)
	}
}
