package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"accounts/internal/cache"
	"accounts/internal/domain"
	"accounts/internal/dto"
	"accounts/internal/events"
	"accounts/internal/service/impl"
	"accounts/internal/store"
	"accounts/internal/store/storetest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type captureEmail struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (c *captureEmail) SendPasswordReset(_ context.Context, ev events.PasswordResetRequested) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[ev.Email] = ev.Token
	return nil
}

func (c *captureEmail) SendWelcome(context.Context, events.AccountRegistered) error   { return nil }
func (c *captureEmail) SendLockoutNotice(context.Context, events.AccountLocked) error { return nil }

func (c *captureEmail) token(email string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens[email]
}

type testServer struct {
	st      *store.Store
	email   *captureEmail
	handler http.Handler
}

func newTestServer(t *testing.T, tweak func(*Deps)) *testServer {
	t.Helper()
	st := storetest.New(t)
	email := &captureEmail{tokens: map[string]string{}}
	passwords := impl.NewPasswordServiceBcrypt(bcrypt.MinCost, 4)
	tokens, err := impl.NewTokenServiceHS256(impl.TokenConfig{
		Issuer:        "accounts-test",
		Audience:      "accounts-test-clients",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		AccessSecret:  []byte("http-access-secret"),
		RefreshSecret: []byte("http-refresh-secret"),
	}, st, nil)
	require.NoError(t, err)
	lockout := impl.NewLockoutTracker(st, impl.LockoutPolicy{MaxAttempts: 5, LockDuration: 2 * time.Hour}, email, nil)

	deps := Deps{
		Auth:     impl.NewAuthServiceImpl(st, passwords, tokens, lockout, email, nil),
		Tokens:   tokens,
		Resets:   impl.NewResetServiceImpl(st, passwords, email, impl.ResetConfig{TokenTTL: time.Hour, EnumerationDelay: time.Millisecond}, nil),
		Accounts: impl.NewAccountServiceImpl(st, passwords, cache.Noop{}, nil),
		Ready:    st.Ping,
		Metrics:  http.NotFoundHandler(),
	}
	if tweak != nil {
		tweak(&deps)
	}
	return &testServer{st: st, email: email, handler: NewRouter(deps)}
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:5555"
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) register(t *testing.T, email, username, password string) dto.AuthResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/auth/register", "", dto.RegisterRequest{Email: email, Username: username, Password: password})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res dto.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func (s *testServer) login(t *testing.T, email, password string) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, http.MethodPost, "/auth/login", "", dto.LoginRequest{Email: email, Password: password})
}

func (s *testServer) loginOK(t *testing.T, email, password string) dto.AuthResponse {
	t.Helper()
	rec := s.login(t, email, password)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res dto.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func (s *testServer) admin(t *testing.T, email string) string {
	t.Helper()
	reg := s.register(t, email, "admin"+uuid.NewString()[:8], "admin-pass")
	id := uuid.MustParse(reg.Account.ID)
	require.NoError(t, s.st.Accounts().SetRole(context.Background(), id, domain.RoleAdmin, time.Now().UTC()))
	return s.loginOK(t, email, "admin-pass").AccessToken
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error
}

func TestRegisterLoginRefreshMe(t *testing.T) {
	s := newTestServer(t, nil)
	reg := s.register(t, "Alice@Example.com", "alice", "Right1!")
	assert.Equal(t, "alice@example.com", reg.Account.Email)
	assert.Equal(t, "user", reg.Account.Role)
	assert.NotEmpty(t, reg.AccessToken)

	login := s.loginOK(t, "alice@example.com", "Right1!")
	assert.Equal(t, "Bearer", login.TokenType)
	assert.Equal(t, int64(900), login.ExpiresIn)

	rec := s.do(t, http.MethodGet, "/auth/me", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me dto.AccountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, reg.Account.ID, me.ID)
	assert.NotNil(t, me.LastLoginAt)

	rec = s.do(t, http.MethodPost, "/auth/refresh", "", dto.RefreshRequest{RefreshToken: login.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rotated dto.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rotated))
	assert.NotEmpty(t, rotated.RefreshToken)

	rec = s.do(t, http.MethodPost, "/auth/refresh", "", dto.RefreshRequest{RefreshToken: login.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_token", errorCode(t, rec))

	rec = s.do(t, http.MethodPost, "/auth/logout", login.AccessToken, dto.RefreshRequest{RefreshToken: login.RefreshToken})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodGet, "/auth/me", login.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "logout does not revoke tokens")
}

func TestRegisterErrors(t *testing.T) {
	s := newTestServer(t, nil)
	s.register(t, "bob@example.com", "bob", "secret1")

	rec := s.do(t, http.MethodPost, "/auth/register", "", dto.RegisterRequest{Email: "BOB@example.com", Username: "bobby", Password: "secret1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", errorCode(t, rec))

	rec = s.do(t, http.MethodPost, "/auth/register", "", dto.RegisterRequest{Email: "nope", Username: "carol", Password: "secret1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", errorCode(t, rec))

	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewBufferString("{not json"))
	raw := httptest.NewRecorder()
	s.handler.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestLoginLockout(t *testing.T) {
	s := newTestServer(t, nil)
	s.register(t, "a@x.com", "lockme", "Right1!")

	for i := 0; i < 5; i++ {
		rec := s.login(t, "a@x.com", "wrong-pass")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "invalid_credentials", errorCode(t, rec))
	}
	rec := s.login(t, "a@x.com", "Right1!")
	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.Equal(t, "account_locked", errorCode(t, rec))

	rec = s.login(t, "ghost@x.com", "whatever")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credentials", errorCode(t, rec))
}

func TestPasswordResetFlow(t *testing.T) {
	s := newTestServer(t, nil)
	s.register(t, "reset@x.com", "resetme", "old-pass")

	unknown := s.do(t, http.MethodPost, "/auth/forgot-password", "", dto.ForgotPasswordRequest{Email: "missing@x.com"})
	known := s.do(t, http.MethodPost, "/auth/forgot-password", "", dto.ForgotPasswordRequest{Email: "reset@x.com"})
	assert.Equal(t, http.StatusAccepted, unknown.Code)
	assert.Equal(t, http.StatusAccepted, known.Code)
	assert.JSONEq(t, unknown.Body.String(), known.Body.String())

	token := s.email.token("reset@x.com")
	require.NotEmpty(t, token)

	rec := s.do(t, http.MethodPost, "/auth/reset-password", "", dto.ResetPasswordRequest{Token: token, NewPassword: "new-pass"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/auth/reset-password", "", dto.ResetPasswordRequest{Token: token, NewPassword: "other-pass"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_or_expired_token", errorCode(t, rec))

	assert.Equal(t, http.StatusUnauthorized, s.login(t, "reset@x.com", "old-pass").Code)
	s.loginOK(t, "reset@x.com", "new-pass")
}

func TestBearerRequired(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/auth/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_token", errorCode(t, rec))
}

func TestUserRoutesAuthorization(t *testing.T) {
	s := newTestServer(t, nil)
	alice := s.register(t, "alice@x.com", "alice", "alice-pass")
	bob := s.register(t, "bob@x.com", "bob", "bob-pass")
	adminToken := s.admin(t, "root@x.com")

	rec := s.do(t, http.MethodGet, "/users", alice.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/users/"+bob.Account.ID, alice.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/users/"+alice.Account.ID, alice.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/users/not-a-uuid", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/users?limit=2&sortBy=email&sortOrder=asc", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page dto.AccountPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "alice@x.com", page.Items[0].Email)

	rec = s.do(t, http.MethodGet, "/users?page=abc", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, fmt.Sprintf("/users/%s/deactivate", bob.Account.ID), alice.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminAccountManagement(t *testing.T) {
	s := newTestServer(t, nil)
	bob := s.register(t, "bob@x.com", "bob", "bob-pass")
	adminToken := s.admin(t, "root@x.com")
	base := "/users/" + bob.Account.ID

	rec := s.do(t, http.MethodPost, base+"/deactivate", adminToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/auth/me", bob.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "inactive account tokens are rejected")
	rec = s.login(t, "bob@x.com", "bob-pass")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "account_inactive", errorCode(t, rec))

	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodPost, base+"/activate", adminToken, nil).Code)

	for i := 0; i < 5; i++ {
		s.login(t, "bob@x.com", "wrong-pass")
	}
	assert.Equal(t, http.StatusLocked, s.login(t, "bob@x.com", "bob-pass").Code)
	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodPost, base+"/unlock", adminToken, nil).Code)
	s.loginOK(t, "bob@x.com", "bob-pass")

	rec = s.do(t, http.MethodPut, base+"/role", adminToken, dto.SetRoleRequest{Role: "emperor"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodPut, base+"/role", adminToken, dto.SetRoleRequest{Role: "moderator"}).Code)
	assert.Equal(t, "moderator", s.loginOK(t, "bob@x.com", "bob-pass").Account.Role)

	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, base, adminToken, nil).Code)
	rec = s.do(t, http.MethodDelete, base, adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSelfServiceProfileAndPassword(t *testing.T) {
	s := newTestServer(t, nil)
	alice := s.register(t, "alice@x.com", "alice", "alice-pass")
	s.register(t, "bob@x.com", "bob", "bob-pass")
	base := "/users/" + alice.Account.ID

	taken := "bob"
	rec := s.do(t, http.MethodPatch, base, alice.AccessToken, dto.UpdateAccountRequest{Username: &taken})
	assert.Equal(t, http.StatusConflict, rec.Code)

	name := "alice2"
	rec = s.do(t, http.MethodPatch, base, alice.AccessToken, dto.UpdateAccountRequest{Username: &name})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated dto.AccountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "alice2", updated.Username)

	rec = s.do(t, http.MethodPost, base+"/password", alice.AccessToken, dto.ChangePasswordRequest{CurrentPassword: "bad-guess", NewPassword: "fresh-pass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = s.do(t, http.MethodPost, base+"/password", alice.AccessToken, dto.ChangePasswordRequest{CurrentPassword: "alice-pass", NewPassword: "fresh-pass"})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	s.loginOK(t, "alice@x.com", "fresh-pass")
}

func TestAuthRateLimit(t *testing.T) {
	s := newTestServer(t, func(d *Deps) { d.AuthRateLimit = 2 })
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusUnauthorized, s.login(t, "ghost@x.com", "whatever").Code)
	}
	rec := s.login(t, "ghost@x.com", "whatever")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", errorCode(t, rec))
}

func TestHealthAndReadiness(t *testing.T) {
	s := newTestServer(t, func(d *Deps) {
		d.Ready = func(context.Context) error { return errors.New("db down") }
	})
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", "", nil).Code)

	rec := s.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestWriteErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{domain.ErrAccountLocked, http.StatusLocked, "account_locked"},
		{domain.ErrAccountInactive, http.StatusForbidden, "account_inactive"},
		{domain.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
		{domain.ErrInvalidOrExpiredToken, http.StatusBadRequest, "invalid_or_expired_token"},
		{fmt.Errorf("%w: %w", domain.ErrConflict, errors.New("duplicate key detail")), http.StatusConflict, "conflict"},
		{fmt.Errorf("wrap: %w", domain.ErrStoreUnavailable), http.StatusServiceUnavailable, "unavailable"},
		{domain.ErrNotFound, http.StatusNotFound, "not_found"},
		{impl.ErrPasswordLength, http.StatusBadRequest, "invalid_input"},
		{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
			assert.Equal(t, tc.status, rec.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body.Error)
			assert.NotContains(t, body.Message, "detail")
		})
	}
}
