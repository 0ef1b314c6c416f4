package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sealnote/transfer-service/internal/core/ports"
)

// TransactionHandler sends transfers and lists the caller's history.
type TransactionHandler struct {
	transfers ports.TransferService
	gates     Gates
}

func NewTransactionHandler(transfers ports.TransferService, gates Gates) *TransactionHandler {
	return &TransactionHandler{transfers: transfers, gates: gates}
}

// Send creates a transfer with one note sealed for each party.
//
// @Summary      Send a transfer
// @Tags         transactions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      sendTransferRequest  true  "Transfer details"
// @Success      201   {object}  domain.Transaction
// @Failure      400   {object}  map[string]any
// @Failure      401   {object}  map[string]any
// @Failure      409   {object}  map[string]any
// @Router       /transactions [post]
func (h *TransactionHandler) Send(c echo.Context) error {
	var req sendTransferRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	userID, err := gate(c, h.gates.Reverify(req.Password), h.gates.SecondFactor(req.Code))
	if err != nil {
		return err
	}

	tx, err := h.transfers.Send(c.Request().Context(), ports.SendInput{
		SenderID:     userID,
		ReceiverName: req.Receiver,
		Amount:       req.Amount,
		Currency:     req.Currency,
		SenderNote:   req.SenderNote,
		ReceiverNote: req.ReceiverNote,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, tx)
}

// List returns sent and received transfers without notes.
//
// @Summary      List transfers
// @Tags         transactions
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   transferResponse
// @Failure      401  {object}  map[string]any
// @Router       /transactions [get]
func (h *TransactionHandler) List(c echo.Context) error {
	userID, err := principalID(c)
	if err != nil {
		return err
	}
	views, err := h.transfers.List(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toTransferResponses(views, false))
}

// Decrypt returns the same listing with the caller's own notes opened.
//
// @Summary      Decrypt transfer notes
// @Tags         transactions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      reverifyRequest  true  "Current password and code"
// @Success      200   {array}   transferResponse
// @Failure      401   {object}  map[string]any
// @Router       /transactions/decrypt [post]
func (h *TransactionHandler) Decrypt(c echo.Context) error {
	var req reverifyRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	userID, err := gate(c, h.gates.Reverify(req.Password), h.gates.SecondFactor(req.Code))
	if err != nil {
		return err
	}

	views, err := h.transfers.Decrypt(c.Request().Context(), userID, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toTransferResponses(views, true))
}
