package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sealnote/transfer-service/internal/core/ports"
)

// AuthHandler serves registration, login and second-factor enrollment.
type AuthHandler struct {
	accounts ports.AccountService
	gates    Gates
}

func NewAuthHandler(accounts ports.AccountService, gates Gates) *AuthHandler {
	return &AuthHandler{accounts: accounts, gates: gates}
}

// Register creates a new user account with a fresh key pair.
//
// @Summary      Register a new user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "User registration details"
// @Success      201   {object}  registerResponse
// @Failure      400   {object}  map[string]any
// @Failure      409   {object}  map[string]any
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.accounts.Register(c.Request().Context(), ports.RegisterInput{
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, registerResponse{User: user})
}

// Login authenticates a user and returns a bearer token.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  loginResponse
// @Failure      400   {object}  map[string]any
// @Failure      401   {object}  map[string]any
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.accounts.Login(c.Request().Context(), ports.LoginInput{
		Name:     req.Name,
		Password: req.Password,
		Code:     req.Code,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, loginResponse{Token: res.Token, ExpiresAt: res.ExpiresAt.UTC(), User: res.User})
}

// GenerateSecondFactor starts (or restarts) authenticator enrollment.
//
// @Summary      Generate a second-factor secret
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      reverifyRequest  true  "Current password and code"
// @Success      200   {object}  secondFactorResponse
// @Failure      401   {object}  map[string]any
// @Router       /auth/2fa/generate [post]
func (h *AuthHandler) GenerateSecondFactor(c echo.Context) error {
	var req reverifyRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	userID, err := gate(c, h.gates.Reverify(req.Password), h.gates.SecondFactor(req.Code))
	if err != nil {
		return err
	}

	enrollment, err := h.accounts.BeginSecondFactor(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, secondFactorResponse{Secret: enrollment.Secret, URI: enrollment.URI})
}

// ConfirmSecondFactor enables the second factor once a code from the newly
// enrolled secret validates.
//
// @Summary      Confirm second-factor enrollment
// @Tags         auth
// @Accept       json
// @Security     BearerAuth
// @Param        body  body      confirmSecondFactorRequest  true  "Current password and new code"
// @Success      204
// @Failure      400   {object}  map[string]any
// @Failure      401   {object}  map[string]any
// @Router       /auth/2fa/confirm [post]
func (h *AuthHandler) ConfirmSecondFactor(c echo.Context) error {
	var req confirmSecondFactorRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	userID, err := gate(c, h.gates.Reverify(req.Password))
	if err != nil {
		return err
	}

	if err := h.accounts.ConfirmSecondFactor(c.Request().Context(), userID, req.Code); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
