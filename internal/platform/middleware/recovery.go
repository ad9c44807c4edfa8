package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Recovery converts a handler panic into a 500 response. The entitlement
// check sits on every EMR request, so a panic must never tear down the
// server; it is logged with enough request context to replay the call.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					if he, ok := r.(*echo.HTTPError); ok {
						err = he
						return
					}

					var stack [4096]byte
					n := runtime.Stack(stack[:], false)

					ev := logger.Error().
						Str("request_id", fmt.Sprintf("%v", c.Get("request_id"))).
						Str("method", c.Request().Method).
						Str("path", c.Path()).
						Str("panic", fmt.Sprintf("%v", r)).
						Str("stack", string(stack[:n]))
					if clinicID := c.Param("clinicId"); clinicID != "" {
						ev = ev.Str("clinic_id", clinicID)
					}
					ev.Msg("panic recovered")

					err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
				}
			}()
			return next(c)
		}
	}
}
