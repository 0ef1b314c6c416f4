package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sealnote/transfer-service/internal/core/domain"
	"github.com/sealnote/transfer-service/internal/core/gateway"
	"github.com/sealnote/transfer-service/internal/infrastructure/db/memory"
)

type stubPasswords struct{}

func (stubPasswords) CheckPassword(password, hash string) bool { return "hash:"+password == hash }

type stubCodes struct{}

func (stubCodes) Verify(context.Context, string, []byte, string) error { return nil }

func newGateway(t *testing.T) (*gateway.Gateway, *gateway.TokenIssuer) {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()
	_ = store.Users().Create(ctx, &domain.User{ID: "u1", Name: "alice", PasswordHash: "hash:Abcdefg1", Role: domain.RoleUser})
	_ = store.Users().Create(ctx, &domain.User{ID: "u2", Name: "root", PasswordHash: "hash:Rootpass1", Role: domain.RoleAdmin})

	tokens, err := gateway.NewTokenIssuer(gateway.TokenConfig{Secret: []byte("0123456789abcdef0123456789abcdef"), TTL: time.Hour})
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}
	return gateway.New(store.Users(), store.APIKeys(), tokens, stubPasswords{}, stubCodes{}, zerolog.Nop()), tokens
}

func bearer(t *testing.T, tokens *gateway.TokenIssuer, userID string) string {
	t.Helper()
	tok, _, err := tokens.Issue(userID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return "Bearer " + tok
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	gw, tokens := newGateway(t)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, bearer(t, tokens, "u1"))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	handler := Auth(gw)(func(c echo.Context) error {
		called = true
		rc, err := RequestContext(c)
		if err != nil {
			t.Fatalf("request context missing: %v", err)
		}
		if rc.PrincipalID() != "u1" {
			t.Fatalf("unexpected principal %q", rc.PrincipalID())
		}
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !called {
		t.Fatalf("next not called")
	}
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	gw, tokens := newGateway(t)

	tests := []struct {
		name   string
		header string
		kind   domain.AuthErrorKind
	}{
		{"missing header", "", domain.MissingCredential},
		{"unknown scheme", "Token abc", domain.MalformedCredential},
		{"bad token", "Bearer abc", domain.TokenInvalid},
		{"deleted user", bearer(t, tokens, "gone"), domain.PrincipalGone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			c := e.NewContext(req, httptest.NewRecorder())

			err := Auth(gw)(func(c echo.Context) error {
				t.Fatalf("should not reach next")
				return nil
			})(c)
			if !domain.IsAuthKind(err, tt.kind) {
				t.Fatalf("expected %s, got %v", tt.kind, err)
			}
		})
	}
}

func TestGate_StoresUpdatedContext(t *testing.T) {
	gw, tokens := newGateway(t)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, bearer(t, tokens, "u1"))
	c := e.NewContext(req, httptest.NewRecorder())

	err := Auth(gw)(func(c echo.Context) error {
		if _, err := Gate(c, gw.Reverify("nope")); !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
		if _, err := Gate(c, gw.Reverify("Abcdefg1")); err != nil {
			t.Fatalf("Gate returned error: %v", err)
		}
		rc, _ := RequestContext(c)
		if !rc.Reverified() {
			t.Fatal("expected reverified context to be stored")
		}
		return nil
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequestContext_WithoutAuth(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	if _, err := RequestContext(c); !domain.IsAuthKind(err, domain.MissingCredential) {
		t.Fatalf("expected MissingCredential, got %v", err)
	}
}
