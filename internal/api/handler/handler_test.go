package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sealnote/transfer-service/internal/api/middleware"
	"github.com/sealnote/transfer-service/internal/core/domain"
	"github.com/sealnote/transfer-service/internal/core/gateway"
	"github.com/sealnote/transfer-service/internal/core/ports"
	"github.com/sealnote/transfer-service/internal/infrastructure/db/memory"
)

// --- stubs ---

type stubPasswords struct{}

func (stubPasswords) CheckPassword(password, hash string) bool { return "hash:"+password == hash }

type stubCodes struct{}

func (stubCodes) Verify(_ context.Context, _ string, _ []byte, code string) error {
	if code != "123456" {
		return domain.ErrInvalidCredentials
	}
	return nil
}

type stubAccounts struct {
	registerFn func(ports.RegisterInput) (*domain.User, error)
	loginFn    func(ports.LoginInput) (*ports.LoginResult, error)
	beginFn    func(userID string) (*ports.SecondFactorEnrollment, error)
	confirmFn  func(userID, code string) error
	removed    string
}

func (s *stubAccounts) Register(_ context.Context, in ports.RegisterInput) (*domain.User, error) {
	return s.registerFn(in)
}

func (s *stubAccounts) Login(_ context.Context, in ports.LoginInput) (*ports.LoginResult, error) {
	return s.loginFn(in)
}

func (s *stubAccounts) Unregister(_ context.Context, userID string) error {
	s.removed = userID
	return nil
}

func (s *stubAccounts) BeginSecondFactor(_ context.Context, userID string) (*ports.SecondFactorEnrollment, error) {
	return s.beginFn(userID)
}

func (s *stubAccounts) ConfirmSecondFactor(_ context.Context, userID, code string) error {
	return s.confirmFn(userID, code)
}

func (s *stubAccounts) ListUsers(context.Context) ([]*domain.User, error) {
	return []*domain.User{{ID: "u1", Name: "alice", Role: domain.RoleUser}}, nil
}

type stubRotations struct{ got ports.ChangePasswordInput }

func (s *stubRotations) ChangePassword(_ context.Context, in ports.ChangePasswordInput) error {
	s.got = in
	return nil
}

type stubKeys struct{ revoked [2]string }

func (s *stubKeys) Create(_ context.Context, in ports.CreateAPIKeyInput) (*ports.CreatedAPIKey, error) {
	return &ports.CreatedAPIKey{
		Key:    &domain.APIKey{ID: "k1", UserID: in.UserID, Label: in.Label, ExpiresAt: in.ExpiresAt},
		Secret: "s3cret",
	}, nil
}

func (s *stubKeys) List(_ context.Context, userID string) ([]*domain.APIKey, error) {
	return []*domain.APIKey{{ID: "k1", UserID: userID, Label: "ci"}}, nil
}

func (s *stubKeys) Revoke(_ context.Context, userID, keyID string) error {
	s.revoked = [2]string{userID, keyID}
	return nil
}

type stubTransfers struct {
	sent  ports.SendInput
	views []ports.TransferView
}

func (s *stubTransfers) Send(_ context.Context, in ports.SendInput) (*domain.Transaction, error) {
	s.sent = in
	return &domain.Transaction{ID: "t1", SenderID: in.SenderID, Amount: in.Amount, Currency: domain.Currency(in.Currency),
		SenderNote: "sealed", ReceiverNote: "sealed", Status: domain.TransactionPending}, nil
}

func (s *stubTransfers) List(context.Context, string) ([]ports.TransferView, error) {
	return s.views, nil
}

func (s *stubTransfers) Decrypt(_ context.Context, _ string, password string) ([]ports.TransferView, error) {
	if password != "Abcdefg1" {
		return nil, domain.ErrDecryption
	}
	return s.views, nil
}

// --- harness ---

type testEnv struct {
	e      *echo.Echo
	gw     *gateway.Gateway
	bearer map[string]string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()
	seed := []*domain.User{
		{ID: "u1", Name: "alice", PasswordHash: "hash:Abcdefg1", Role: domain.RoleUser},
		{ID: "u2", Name: "bob", PasswordHash: "hash:Bobpass12", Role: domain.RoleUser, SecondFactorEnabled: true, SecondFactorSecret: []byte("sealed")},
	}
	for _, u := range seed {
		if err := store.Users().Create(ctx, u); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	tokens, err := gateway.NewTokenIssuer(gateway.TokenConfig{Secret: []byte("0123456789abcdef0123456789abcdef"), TTL: time.Hour})
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}
	env := &testEnv{
		e:      echo.New(),
		gw:     gateway.New(store.Users(), store.APIKeys(), tokens, stubPasswords{}, stubCodes{}, zerolog.Nop()),
		bearer: map[string]string{},
	}
	env.e.Validator = NewValidator()
	for _, u := range seed {
		tok, _, err := tokens.Issue(u.ID)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		env.bearer[u.ID] = "Bearer " + tok
	}
	return env
}

// call runs h behind the Auth middleware as userID ("" sends no header).
func (env *testEnv) call(userID, method, body string, h echo.HandlerFunc, params ...string) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if userID != "" {
		req.Header.Set(echo.HeaderAuthorization, env.bearer[userID])
	}
	rec := httptest.NewRecorder()
	c := env.e.NewContext(req, rec)
	if len(params) == 2 {
		c.SetParamNames(params[0])
		c.SetParamValues(params[1])
	}
	return rec, middleware.Auth(env.gw)(h)(c)
}

// public runs h without authentication.
func (env *testEnv) public(method, body string, h echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return rec, h(env.e.NewContext(req, rec))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("invalid json %q: %v", rec.Body.String(), err)
	}
}

// --- auth ---

func TestAuthHandler_Register_Success(t *testing.T) {
	env := newTestEnv(t)
	accounts := &stubAccounts{registerFn: func(in ports.RegisterInput) (*domain.User, error) {
		if in.Name != "carol" || in.Password != "Abcdefg1" {
			t.Fatalf("unexpected input: %+v", in)
		}
		return &domain.User{ID: "u3", Name: in.Name, PasswordHash: "secret-hash", Role: domain.RoleUser}, nil
	}}
	h := NewAuthHandler(accounts, env.gw)

	rec, err := env.public(http.MethodPost, `{"name":"carol","password":"Abcdefg1"}`, h.Register)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret-hash") {
		t.Fatalf("password hash leaked: %s", rec.Body.String())
	}

	var resp struct {
		User map[string]any `json:"user"`
	}
	decode(t, rec, &resp)
	if resp.User["name"] != "carol" || resp.User["role"] != "USER" {
		t.Fatalf("unexpected user payload: %+v", resp.User)
	}
}

func TestAuthHandler_Register_InvalidPayload(t *testing.T) {
	env := newTestEnv(t)
	h := NewAuthHandler(&stubAccounts{registerFn: func(ports.RegisterInput) (*domain.User, error) {
		t.Fatalf("should not be called")
		return nil, nil
	}}, env.gw)

	_, err := env.public(http.MethodPost, "not-json", h.Register)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 HTTPError, got %v", err)
	}
}

func TestAuthHandler_Register_EmptyFieldsReachService(t *testing.T) {
	env := newTestEnv(t)
	var got ports.RegisterInput
	h := NewAuthHandler(&stubAccounts{registerFn: func(in ports.RegisterInput) (*domain.User, error) {
		got = in
		return nil, domain.NewValidationError("name is required", "password must be at least 8 characters")
	}}, env.gw)

	_, err := env.public(http.MethodPost, `{"name":"","password":"abc"}`, h.Register)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if got.Password != "abc" || len(ve.Violations) != 2 {
		t.Fatalf("service not consulted: input=%+v violations=%v", got, ve.Violations)
	}
}

func TestAuthHandler_Login(t *testing.T) {
	env := newTestEnv(t)
	exp := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	h := NewAuthHandler(&stubAccounts{loginFn: func(in ports.LoginInput) (*ports.LoginResult, error) {
		if in.Code != "654321" {
			return nil, domain.ErrInvalidCredentials
		}
		return &ports.LoginResult{Token: "tok", ExpiresAt: exp, User: &domain.User{ID: "u1", Name: in.Name}}, nil
	}}, env.gw)

	rec, err := env.public(http.MethodPost, `{"name":"alice","password":"Abcdefg1","code":"654321"}`, h.Login)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var resp map[string]any
	decode(t, rec, &resp)
	if resp["token"] != "tok" || resp["expires_at"] != "2026-05-01T00:00:00Z" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	_, err = env.public(http.MethodPost, `{"name":"alice","password":"Abcdefg1"}`, h.Login)
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthHandler_GenerateSecondFactor_Gated(t *testing.T) {
	env := newTestEnv(t)
	calls := 0
	h := NewAuthHandler(&stubAccounts{beginFn: func(userID string) (*ports.SecondFactorEnrollment, error) {
		calls++
		return &ports.SecondFactorEnrollment{Secret: "ABC", URI: "otpauth://totp/x"}, nil
	}}, env.gw)

	_, err := env.call("u1", http.MethodPost, `{"password":"wrong"}`, h.GenerateSecondFactor)
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	// bob has a second factor enabled: the password alone is not enough.
	_, err = env.call("u2", http.MethodPost, `{"password":"Bobpass12"}`, h.GenerateSecondFactor)
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials without code, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("service called despite failed gate")
	}

	rec, err := env.call("u2", http.MethodPost, `{"password":"Bobpass12","code":"123456"}`, h.GenerateSecondFactor)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var resp map[string]string
	decode(t, rec, &resp)
	if resp["secret"] != "ABC" || resp["otpauth_uri"] != "otpauth://totp/x" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestAuthHandler_ConfirmSecondFactor(t *testing.T) {
	env := newTestEnv(t)
	var got [2]string
	h := NewAuthHandler(&stubAccounts{confirmFn: func(userID, code string) error {
		got = [2]string{userID, code}
		return nil
	}}, env.gw)

	rec, err := env.call("u1", http.MethodPost, `{"password":"Abcdefg1","code":"987654"}`, h.ConfirmSecondFactor)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNoContent || got != [2]string{"u1", "987654"} {
		t.Fatalf("unexpected result: %d %v", rec.Code, got)
	}

	_, err = env.call("u1", http.MethodPost, `{"password":"Abcdefg1","code":"12ab"}`, h.ConfirmSecondFactor)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for non-numeric code, got %v", err)
	}
}

// --- users ---

func TestUserHandler_Unregister(t *testing.T) {
	env := newTestEnv(t)
	accounts := &stubAccounts{}
	h := NewUserHandler(accounts, &stubRotations{}, env.gw)

	if _, err := env.call("", http.MethodPost, `{"password":"Abcdefg1"}`, h.Unregister); !domain.IsAuthKind(err, domain.MissingCredential) {
		t.Fatalf("expected MissingCredential, got %v", err)
	}

	rec, err := env.call("u1", http.MethodPost, `{"password":"Abcdefg1"}`, h.Unregister)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNoContent || accounts.removed != "u1" {
		t.Fatalf("unexpected result: %d %q", rec.Code, accounts.removed)
	}
}

func TestUserHandler_ChangePassword_DelegatesOldPasswordCheck(t *testing.T) {
	env := newTestEnv(t)
	rotations := &stubRotations{}
	h := NewUserHandler(&stubAccounts{}, rotations, env.gw)

	rec, err := env.call("u1", http.MethodPost, `{"old_password":"whatever","new_password":"Zyxwvut2"}`, h.ChangePassword)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	want := ports.ChangePasswordInput{UserID: "u1", OldPassword: "whatever", NewPassword: "Zyxwvut2"}
	if rec.Code != http.StatusNoContent || rotations.got != want {
		t.Fatalf("unexpected result: %d %+v", rec.Code, rotations.got)
	}
}

func TestUserHandler_ChangePassword_RequiresSecondFactor(t *testing.T) {
	env := newTestEnv(t)
	rotations := &stubRotations{}
	h := NewUserHandler(&stubAccounts{}, rotations, env.gw)

	_, err := env.call("u2", http.MethodPost, `{"old_password":"Bobpass12","new_password":"Zyxwvut2","code":"000000"}`, h.ChangePassword)
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if rotations.got.UserID != "" {
		t.Fatalf("rotation ran despite failed second factor")
	}
}

// --- api keys ---

func TestAPIKeyHandler_CreateAndRevoke(t *testing.T) {
	env := newTestEnv(t)
	keys := &stubKeys{}
	h := NewAPIKeyHandler(keys, env.gw)

	rec, err := env.call("u1", http.MethodPost,
		`{"password":"Abcdefg1","name":"ci","expiration_date":"2026-04-01T00:00:00Z"}`, h.Create)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	var created map[string]any
	decode(t, rec, &created)
	if rec.Code != http.StatusCreated || created["key"] != "s3cret" || created["id"] != "k1" || created["name"] != "ci" {
		t.Fatalf("unexpected create response: %d %+v", rec.Code, created)
	}

	rec, err = env.call("u1", http.MethodDelete, `{"password":"Abcdefg1"}`, h.Revoke, "id", "k1")
	if err != nil {
		t.Fatalf("revoke error: %v", err)
	}
	if rec.Code != http.StatusNoContent || keys.revoked != [2]string{"u1", "k1"} {
		t.Fatalf("unexpected revoke: %d %v", rec.Code, keys.revoked)
	}
}

func TestAPIKeyHandler_List(t *testing.T) {
	env := newTestEnv(t)
	h := NewAPIKeyHandler(&stubKeys{}, env.gw)

	rec, err := env.call("u1", http.MethodGet, "", h.List)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var keys []map[string]any
	decode(t, rec, &keys)
	if len(keys) != 1 || keys[0]["id"] != "k1" {
		t.Fatalf("unexpected keys: %+v", keys)
	}
	if _, leaked := keys[0]["key"]; leaked {
		t.Fatalf("listing must not carry secrets")
	}
}

// --- transactions ---

func TestTransactionHandler_Send(t *testing.T) {
	env := newTestEnv(t)
	transfers := &stubTransfers{}
	h := NewTransactionHandler(transfers, env.gw)

	body := `{"password":"Abcdefg1","receiver":"bob","amount":12.5,"currency":"EUR","sender_note":"rent","receiver_note":"for march"}`
	rec, err := env.call("u1", http.MethodPost, body, h.Send)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	want := ports.SendInput{SenderID: "u1", ReceiverName: "bob", Amount: 12.5, Currency: "EUR", SenderNote: "rent", ReceiverNote: "for march"}
	if transfers.sent != want {
		t.Fatalf("unexpected input: %+v", transfers.sent)
	}
	if rec.Code != http.StatusCreated || strings.Contains(rec.Body.String(), "sealed") {
		t.Fatalf("unexpected response: %d %s", rec.Code, rec.Body.String())
	}
}

func TestTransactionHandler_ListAndDecrypt(t *testing.T) {
	env := newTestEnv(t)
	transfers := &stubTransfers{views: []ports.TransferView{
		{ID: "t1", Direction: ports.DirectionSent, Counterpart: "bob", Amount: 5, Currency: domain.CurrencyEUR, Status: domain.TransactionPending, Note: "hello"},
		{ID: "t2", Direction: ports.DirectionReceived, Counterpart: "bob", Amount: 1, Currency: domain.CurrencyUSD, Status: domain.TransactionPending},
	}}
	h := NewTransactionHandler(transfers, env.gw)

	rec, err := env.call("u1", http.MethodGet, "", h.List)
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	var listed []map[string]any
	decode(t, rec, &listed)
	if len(listed) != 2 || listed[0]["counterpart"] != "bob" || listed[0]["direction"] != "sent" {
		t.Fatalf("unexpected listing: %+v", listed)
	}
	if _, ok := listed[0]["note"]; ok {
		t.Fatalf("listing must not carry notes")
	}

	rec, err = env.call("u1", http.MethodPost, `{"password":"Abcdefg1"}`, h.Decrypt)
	if err != nil {
		t.Fatalf("decrypt error: %v", err)
	}
	var opened []map[string]any
	decode(t, rec, &opened)
	if opened[0]["note"] != "hello" || opened[1]["note"] != "" {
		t.Fatalf("unexpected notes: %+v", opened)
	}

	rec, err = env.call("u1", http.MethodPost, `{"password":"nope"}`, h.Decrypt)
	if !errors.Is(err, domain.ErrInvalidCredentials) || rec.Body.Len() != 0 {
		t.Fatalf("expected ErrInvalidCredentials with no body, got %v %q", err, rec.Body.String())
	}
}
