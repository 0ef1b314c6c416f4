package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sealnote/transfer-service/internal/core/ports"
)

// UserHandler serves account removal, password rotation and the admin
// user listing.
type UserHandler struct {
	accounts  ports.AccountService
	rotations ports.RotationService
	gates     Gates
}

func NewUserHandler(accounts ports.AccountService, rotations ports.RotationService, gates Gates) *UserHandler {
	return &UserHandler{accounts: accounts, rotations: rotations, gates: gates}
}

// Unregister deletes the caller's account and API keys.
//
// @Summary      Delete own account
// @Tags         users
// @Accept       json
// @Security     BearerAuth
// @Param        body  body  reverifyRequest  true  "Current password and code"
// @Success      204
// @Failure      401   {object}  map[string]any
// @Failure      409   {object}  map[string]any
// @Router       /users/unregister [post]
func (h *UserHandler) Unregister(c echo.Context) error {
	var req reverifyRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	userID, err := gate(c, h.gates.Reverify(req.Password), h.gates.SecondFactor(req.Code))
	if err != nil {
		return err
	}

	if err := h.accounts.Unregister(c.Request().Context(), userID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ChangePassword rotates the caller's password and key pair. The old
// password is checked by the rotation itself.
//
// @Summary      Change password
// @Tags         users
// @Accept       json
// @Security     BearerAuth
// @Param        body  body  changePasswordRequest  true  "Old and new password"
// @Success      204
// @Failure      400   {object}  map[string]any
// @Failure      401   {object}  map[string]any
// @Failure      409   {object}  map[string]any
// @Failure      500   {object}  map[string]any
// @Router       /users/password [post]
func (h *UserHandler) ChangePassword(c echo.Context) error {
	var req changePasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	userID, err := gate(c, h.gates.SecondFactor(req.Code))
	if err != nil {
		return err
	}

	err = h.rotations.ChangePassword(c.Request().Context(), ports.ChangePasswordInput{
		UserID:      userID,
		OldPassword: req.OldPassword,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ListUsers returns every registered user.
//
// @Summary      List users
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   domain.User
// @Failure      403  {object}  map[string]any
// @Router       /admin/users [get]
func (h *UserHandler) ListUsers(c echo.Context) error {
	users, err := h.accounts.ListUsers(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, users)
}
