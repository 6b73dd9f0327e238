package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type MiddlewareConfig struct {
	Tokens  *TokenIssuer
	Revoked *RevocationStore
	// Skipper bypasses authentication; defaults to AuthSkipper.
	Skipper func(echo.Context) bool
	// Dev attaches an admin session to requests without credentials.
	Dev bool
}

// SessionMiddleware resolves the bearer token into a Session and stores it on
// the request context.
func SessionMiddleware(cfg MiddlewareConfig) echo.MiddlewareFunc {
	if cfg.Skipper == nil {
		cfg.Skipper = AuthSkipper
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper(c) {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				if cfg.Dev {
					setSession(c, devSession())
					return next(c)
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			s, err := cfg.Tokens.Parse(strings.TrimSpace(parts[1]))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if cfg.Revoked != nil && cfg.Revoked.IsRevoked(s.TokenID) {
				return echo.NewHTTPError(http.StatusUnauthorized, "token revoked")
			}

			setSession(c, s)
			return next(c)
		}
	}
}

func setSession(c echo.Context, s *Session) {
	c.SetRequest(c.Request().WithContext(WithSession(c.Request().Context(), s)))
}
