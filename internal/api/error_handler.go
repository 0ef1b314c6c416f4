package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sealnote/transfer-service/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
// Details is only set for validation failures.
type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their appropriate HTTP status codes.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, body := resolveError(err, log, c)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, body)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, errorResponse) {
	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, errorResponse{Error: fmt.Sprintf("%v", he.Message)}
	}

	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, errorResponse{Error: domain.ErrValidation.Error(), Details: ve.Violations}
	}

	var ae *domain.AuthError
	if errors.As(err, &ae) {
		return authStatus(ae.Kind), errorResponse{Error: ae.Error()}
	}

	// Known domain errors → deterministic HTTP codes.
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorResponse{Error: "invalid credentials"}
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, errorResponse{Error: "access forbidden"}
	case errors.Is(err, domain.ErrUserExists):
		return http.StatusConflict, errorResponse{Error: "name already taken"}
	case errors.Is(err, domain.ErrUserBusy):
		return http.StatusConflict, errorResponse{Error: domain.ErrUserBusy.Error()}
	case errors.Is(err, domain.ErrAPIKeyNotFound):
		return http.StatusNotFound, errorResponse{Error: "invalid key id"}
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusGone, errorResponse{Error: "user no longer exists"}
	case errors.Is(err, domain.ErrTransactionNotFound):
		return http.StatusNotFound, errorResponse{Error: "transaction not found"}
	case errors.Is(err, domain.ErrRotationFailed):
		return http.StatusInternalServerError, errorResponse{Error: domain.ErrRotationFailed.Error()}
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, errorResponse{Error: "internal server error"}
}

func authStatus(kind domain.AuthErrorKind) int {
	switch kind {
	case domain.MalformedCredential:
		return http.StatusBadRequest
	case domain.PrincipalGone:
		return http.StatusGone
	default:
		return http.StatusUnauthorized
	}
}
