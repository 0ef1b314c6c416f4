package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sealnote/transfer-service/internal/core/ports"
)

// APIKeyHandler manages the caller's API keys.
type APIKeyHandler struct {
	keys  ports.APIKeyService
	gates Gates
}

func NewAPIKeyHandler(keys ports.APIKeyService, gates Gates) *APIKeyHandler {
	return &APIKeyHandler{keys: keys, gates: gates}
}

// List returns the caller's live API keys.
//
// @Summary      List API keys
// @Tags         api-keys
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   domain.APIKey
// @Failure      401  {object}  map[string]any
// @Router       /api-keys [get]
func (h *APIKeyHandler) List(c echo.Context) error {
	userID, err := principalID(c)
	if err != nil {
		return err
	}
	keys, err := h.keys.List(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, keys)
}

// Create issues a new API key. The secret is only returned here.
//
// @Summary      Create API key
// @Tags         api-keys
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      createAPIKeyRequest  true  "Label and expiration"
// @Success      201   {object}  createdAPIKeyResponse
// @Failure      400   {object}  map[string]any
// @Failure      401   {object}  map[string]any
// @Router       /api-keys [post]
func (h *APIKeyHandler) Create(c echo.Context) error {
	var req createAPIKeyRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	userID, err := gate(c, h.gates.Reverify(req.Password), h.gates.SecondFactor(req.Code))
	if err != nil {
		return err
	}

	created, err := h.keys.Create(c.Request().Context(), ports.CreateAPIKeyInput{
		UserID:    userID,
		Label:     req.Name,
		ExpiresAt: req.ExpirationDate,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, createdAPIKeyResponse{APIKey: created.Key, Key: created.Secret})
}

// Revoke deletes one of the caller's API keys.
//
// @Summary      Revoke API key
// @Tags         api-keys
// @Accept       json
// @Security     BearerAuth
// @Param        id    path  string           true  "Key id"
// @Param        body  body  reverifyRequest  true  "Current password and code"
// @Success      204
// @Failure      401   {object}  map[string]any
// @Failure      404   {object}  map[string]any
// @Router       /api-keys/{id} [delete]
func (h *APIKeyHandler) Revoke(c echo.Context) error {
	var req reverifyRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	userID, err := gate(c, h.gates.Reverify(req.Password), h.gates.SecondFactor(req.Code))
	if err != nil {
		return err
	}

	if err := h.keys.Revoke(c.Request().Context(), userID, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
