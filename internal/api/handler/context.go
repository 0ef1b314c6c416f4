package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sealnote/transfer-service/internal/api/middleware"
	"github.com/sealnote/transfer-service/internal/core/gateway"
)

// Gates builds the verification steps whose inputs arrive in the request
// body, so handlers can only run them after binding.
type Gates interface {
	Reverify(password string) gateway.Step
	SecondFactor(code string) gateway.Step
}

// principalID returns the id of the principal resolved by the Auth middleware.
func principalID(c echo.Context) (string, error) {
	rc, err := middleware.RequestContext(c)
	if err != nil {
		return "", err
	}
	return rc.PrincipalID(), nil
}

// gate runs steps on the request context and returns the principal id
// once all of them pass.
func gate(c echo.Context, steps ...gateway.Step) (string, error) {
	rc, err := middleware.Gate(c, steps...)
	if err != nil {
		return "", err
	}
	return rc.PrincipalID(), nil
}

// bindAndValidate binds the body into req and runs the struct validator.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	return c.Validate(req)
}
