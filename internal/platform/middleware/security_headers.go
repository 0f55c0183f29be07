package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

type SecurityHeadersConfig struct {
	// HSTS enables Strict-Transport-Security. Leave off for plain-HTTP dev.
	HSTS bool
	// CacheablePrefixes may be cached by intermediaries for MaxAge seconds.
	// Everything else is sent with no-store.
	CacheablePrefixes []string
	MaxAge            string
}

// SecurityHeaders sets hardening headers suited to a JSON and NDJSON API.
func SecurityHeaders(cfg SecurityHeadersConfig) echo.MiddlewareFunc {
	if cfg.MaxAge == "" {
		cfg.MaxAge = "60"
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Referrer-Policy", "no-referrer")
			if cfg.HSTS {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			cache := "no-store"
			path := c.Request().URL.Path
			for _, p := range cfg.CacheablePrefixes {
				if strings.HasPrefix(path, p) {
					cache = "public, max-age=" + cfg.MaxAge
					break
				}
			}
			h.Set("Cache-Control", cache)

			return next(c)
		}
	}
}
