package gateway

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tasksched/tasksched/internal/domain"
)

const principalContextKey = "auth_principal"

// RequireAuth rejects the request before any task logic runs unless the
// identity service vouches for the bearer credential. On success the
// principal is stored in the echo context for handlers to read.
func RequireAuth(client *Client) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			parts := strings.SplitN(c.Request().Header.Get("Authorization"), " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
				return domain.ErrUnauthorized
			}

			principal, err := client.Authenticate(c.Request().Context(), parts[1])
			if err != nil {
				return domain.ErrUnauthorized
			}

			c.Set(principalContextKey, principal)
			return next(c)
		}
	}
}

// PrincipalFrom returns the authenticated principal stored by RequireAuth.
func PrincipalFrom(c echo.Context) (*domain.Principal, bool) {
	principal, ok := c.Get(principalContextKey).(*domain.Principal)
	return principal, ok
}
