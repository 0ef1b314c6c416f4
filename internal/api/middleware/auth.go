package middleware

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/sealnote/transfer-service/internal/core/domain"
	"github.com/sealnote/transfer-service/internal/core/gateway"
)

const requestContextKey = "auth.request_context"

// Authenticator resolves an Authorization header to a request context.
type Authenticator interface {
	Authenticate(ctx context.Context, header string) (gateway.RequestContext, error)
}

// Auth runs the gateway on the Authorization header and stores the resulting
// RequestContext for the handlers. Failures are returned to the error handler
// untouched so their kind decides the response.
func Auth(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rc, err := auth.Authenticate(c.Request().Context(), c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				return err
			}
			c.Set(requestContextKey, rc)
			return next(c)
		}
	}
}

// RequestContext returns the context stored by Auth. It fails with
// MissingCredential when Auth did not run for this route.
func RequestContext(c echo.Context) (gateway.RequestContext, error) {
	rc, ok := c.Get(requestContextKey).(gateway.RequestContext)
	if !ok || !rc.Authenticated() {
		return gateway.RequestContext{}, domain.NewAuthError(domain.MissingCredential)
	}
	return rc, nil
}

// Gate runs further steps on the stored context, for gates whose input
// (password, one-time code) only becomes available once the handler has
// bound the request body. The updated context replaces the stored one.
func Gate(c echo.Context, steps ...gateway.Step) (gateway.RequestContext, error) {
	rc, err := RequestContext(c)
	if err != nil {
		return rc, err
	}
	rc, err = gateway.Chain(steps...)(c.Request().Context(), rc)
	if err != nil {
		return rc, err
	}
	c.Set(requestContextKey, rc)
	return rc, nil
}
