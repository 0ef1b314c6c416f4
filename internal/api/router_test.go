package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/sealnote/transfer-service/internal/core/credential"
	"github.com/sealnote/transfer-service/internal/core/domain"
	"github.com/sealnote/transfer-service/internal/core/gateway"
	"github.com/sealnote/transfer-service/internal/core/secondfactor"
	"github.com/sealnote/transfer-service/internal/core/service"
	"github.com/sealnote/transfer-service/internal/infrastructure/db/memory"
	"github.com/sealnote/transfer-service/internal/infrastructure/queue"
)

// The prometheus middleware registers its collectors globally, so the
// router is built once for the whole package.
var (
	routerOnce  sync.Once
	testRouter  *echo.Echo
	testStore   *memory.Store
	testCreds   *credential.Store
	testRouterE error
)

func router(t *testing.T) *echo.Echo {
	t.Helper()
	routerOnce.Do(func() {
		testCreds, testRouterE = credential.NewStore(credential.Config{
			BcryptCost: bcrypt.MinCost,
			KeyBits:    credential.MinKeyBits,
			KDF:        credential.KDFParams{Time: 1, MemoryKB: 8 * 1024, Threads: 1},
		})
		if testRouterE != nil {
			return
		}
		var codes *secondfactor.Manager
		codes, testRouterE = secondfactor.New(secondfactor.Config{EncryptionKey: make([]byte, 32), Skew: 1}, memory.NewReplayGuard(time.Now))
		if testRouterE != nil {
			return
		}
		var tokens *gateway.TokenIssuer
		tokens, testRouterE = gateway.NewTokenIssuer(gateway.TokenConfig{Secret: []byte("0123456789abcdef0123456789abcdef"), TTL: time.Hour})
		if testRouterE != nil {
			return
		}

		log := zerolog.Nop()
		pool := queue.NewPool(2, log)
		pool.Start(context.Background())

		testStore = memory.NewStore()
		locker := memory.NewLocker()
		svc := Services{
			Accounts:  service.NewAccountService(testStore.Users(), locker, testCreds, pool, codes, tokens, log),
			APIKeys:   service.NewAPIKeyService(testStore.APIKeys(), 0, log),
			Transfers: service.NewTransferService(testStore.Users(), testStore.Transactions(), locker, pool, log),
			Rotations: service.NewRotationService(testStore.Users(), testStore.Transactions(), testStore, locker, testCreds, pool, service.RotationConfig{}, log),
		}
		gw := gateway.New(testStore.Users(), testStore.APIKeys(), tokens, testCreds, codes, log)
		testRouter = NewRouter(svc, gw, nil, log)
	})
	if testRouterE != nil {
		t.Fatalf("build router: %v", testRouterE)
	}
	return testRouter
}

func do(t *testing.T, method, path, auth, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	router(t).ServeHTTP(rec, req)

	var obj map[string]any
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		if err := json.Unmarshal(rec.Body.Bytes(), &obj); err != nil {
			t.Fatalf("invalid json: %v", err)
		}
	}
	return rec, obj
}

func login(t *testing.T, name, password string) string {
	t.Helper()
	rec, obj := do(t, http.MethodPost, "/auth/login", "", `{"name":"`+name+`","password":"`+password+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", name, rec.Code, rec.Body.String())
	}
	return "Bearer " + obj["token"].(string)
}

func TestRouter_TransferRoundTrip(t *testing.T) {
	for _, name := range []string{"rt-alice", "rt-bob"} {
		rec, _ := do(t, http.MethodPost, "/auth/register", "", `{"name":"`+name+`","password":"Abcdefg1"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("register %s: %d %s", name, rec.Code, rec.Body.String())
		}
	}
	alice := login(t, "rt-alice", "Abcdefg1")
	bob := login(t, "rt-bob", "Abcdefg1")

	rec, _ := do(t, http.MethodPost, "/transactions", alice,
		`{"password":"Abcdefg1","receiver":"rt-bob","amount":10,"currency":"EUR","sender_note":"mine","receiver_note":"yours"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("send: %d %s", rec.Code, rec.Body.String())
	}

	rec, _ = do(t, http.MethodPost, "/transactions/decrypt", bob, `{"password":"Abcdefg1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("decrypt: %d %s", rec.Code, rec.Body.String())
	}
	var views []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(views) != 1 || views[0]["note"] != "yours" || views[0]["counterpart"] != "rt-alice" {
		t.Fatalf("unexpected views: %+v", views)
	}

	rec, obj := do(t, http.MethodPost, "/transactions/decrypt", bob, `{"password":"wrong-one"}`)
	if rec.Code != http.StatusUnauthorized || obj["error"] != "invalid credentials" {
		t.Fatalf("expected 401, got %d %+v", rec.Code, obj)
	}
}

func TestRouter_ErrorMapping(t *testing.T) {
	rec, _ := do(t, http.MethodPost, "/auth/register", "", `{"name":"em-carol","password":"Abcdefg1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d", rec.Code)
	}
	carol := login(t, "em-carol", "Abcdefg1")

	tests := []struct {
		name, method, path, auth, body string
		status                         int
	}{
		{"duplicate name", http.MethodPost, "/auth/register", "", `{"name":"em-carol","password":"Abcdefg1"}`, http.StatusConflict},
		{"weak password", http.MethodPost, "/auth/register", "", `{"name":"em-dave","password":"short"}`, http.StatusBadRequest},
		{"no credential", http.MethodGet, "/transactions", "", "", http.StatusUnauthorized},
		{"unknown scheme", http.MethodGet, "/transactions", "Basic abc", "", http.StatusBadRequest},
		{"forged token", http.MethodGet, "/transactions", "Bearer not.a.token", "", http.StatusUnauthorized},
		{"unknown api key", http.MethodGet, "/transactions", "ApiKey nope", "", http.StatusUnauthorized},
		{"not admin", http.MethodGet, "/admin/users", carol, "", http.StatusForbidden},
		{"foreign key id", http.MethodDelete, "/api-keys/missing", carol, `{"password":"Abcdefg1"}`, http.StatusNotFound},
		{"bad transfer", http.MethodPost, "/transactions", carol, `{"password":"Abcdefg1","amount":-1,"currency":"XXX"}`, http.StatusBadRequest},
		{"liveness", http.MethodGet, "/health", "", "", http.StatusOK},
		{"readiness", http.MethodGet, "/health/ready", "", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := do(t, tt.method, tt.path, tt.auth, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRouter_RegisterListsEveryViolation(t *testing.T) {
	rec, obj := do(t, http.MethodPost, "/auth/register", "", `{"name":"","password":"abc"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	details, _ := obj["details"].([]any)
	var got []string
	for _, d := range details {
		got = append(got, d.(string))
	}
	want := []string{
		"name is required",
		"password must be at least 8 characters",
		"password must contain a number",
		"password must contain an uppercase letter",
	}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected details: %v", got)
	}
}

func TestRouter_ChangePasswordListsEveryViolation(t *testing.T) {
	rec, _ := do(t, http.MethodPost, "/auth/register", "", `{"name":"cp-frank","password":"Abcdefg1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d", rec.Code)
	}
	frank := login(t, "cp-frank", "Abcdefg1")

	rec, obj := do(t, http.MethodPost, "/users/password", frank, `{"old_password":"Abcdefg1","new_password":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	details, _ := obj["details"].([]any)
	if len(details) < 3 {
		t.Fatalf("expected every policy violation, got %v", details)
	}
}

func TestRouter_APIKeyAuthAndAdmin(t *testing.T) {
	rec, _ := do(t, http.MethodPost, "/auth/register", "", `{"name":"ak-erin","password":"Abcdefg1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d", rec.Code)
	}
	erin := login(t, "ak-erin", "Abcdefg1")

	exp := time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339)
	rec, obj := do(t, http.MethodPost, "/api-keys", erin, `{"password":"Abcdefg1","name":"ci","expiration_date":"`+exp+`"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create key: %d %s", rec.Code, rec.Body.String())
	}
	apiKey := "ApiKey " + obj["key"].(string)

	rec, _ = do(t, http.MethodGet, "/transactions", apiKey, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("api key auth: %d %s", rec.Code, rec.Body.String())
	}

	hash, err := testCreds.HashPassword("Rootpass1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	admin := &domain.User{ID: "admin-1", Name: "ak-root", PasswordHash: hash, Role: domain.RoleAdmin}
	if err := testStore.Users().Create(context.Background(), admin); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	root := login(t, "ak-root", "Rootpass1")

	rec, _ = do(t, http.MethodGet, "/admin/users", root, "")
	if rec.Code != http.StatusOK || strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("admin list: %d %s", rec.Code, rec.Body.String())
	}
	rec, _ = do(t, http.MethodGet, "/api-keys", root, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("admin must not use user routes, got %d", rec.Code)
	}
}
