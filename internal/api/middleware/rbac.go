package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/sealnote/transfer-service/internal/core/domain"
	"github.com/sealnote/transfer-service/internal/core/gateway"
)

// RBAC enforces role-based access control on the authenticated principal.
// It must be mounted after Auth.
func RBAC(allowed ...domain.Role) echo.MiddlewareFunc {
	step := gateway.RequireRole(allowed...)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, err := Gate(c, step); err != nil {
				return err
			}
			return next(c)
		}
	}
}
