package api

import (
	"fmt"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// securityHeaders returns middleware that sets standard security response headers.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			return next(c)
		}
	}
}

// errorDetail returns middleware that renders handler errors as the
// {"detail": <message>} body API consumers parse. Errors that are not echo
// HTTPErrors are logged and become opaque 500s.
func errorDetail() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}
			he, ok := err.(*echo.HTTPError)
			if !ok {
				slog.Error("Handler error", "path", c.Request().URL.Path, "error", err)
				he = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}
			return c.JSON(he.Code, ErrorResponse{Detail: fmt.Sprintf("%v", he.Message)})
		}
	}
}
