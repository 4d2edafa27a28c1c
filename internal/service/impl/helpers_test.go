package impl

import (
	"context"
	"sync"
	"testing"
	"time"

	"accounts/internal/dto"
	"accounts/internal/events"
	"accounts/internal/store"
	"accounts/internal/store/storetest"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Now().UTC().Truncate(time.Second)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingEmail struct {
	mu       sync.Mutex
	resets   []events.PasswordResetRequested
	welcomes []events.AccountRegistered
	lockouts []events.AccountLocked
}

func (r *recordingEmail) SendPasswordReset(_ context.Context, ev events.PasswordResetRequested) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets = append(r.resets, ev)
	return nil
}

func (r *recordingEmail) SendWelcome(_ context.Context, ev events.AccountRegistered) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.welcomes = append(r.welcomes, ev)
	return nil
}

func (r *recordingEmail) SendLockoutNotice(_ context.Context, ev events.AccountLocked) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lockouts = append(r.lockouts, ev)
	return nil
}

func (r *recordingEmail) lastResetToken(t *testing.T) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.resets) == 0 {
		t.Fatal("no reset email recorded")
	}
	return r.resets[len(r.resets)-1].Token
}

// mapCache is an in-process AccountCache that counts invalidations.
type mapCache struct {
	mu          sync.Mutex
	items       map[uuid.UUID]dto.AccountResponse
	invalidated int
}

func newMapCache() *mapCache { return &mapCache{items: map[uuid.UUID]dto.AccountResponse{}} }

func (m *mapCache) Get(_ context.Context, id uuid.UUID) (*dto.AccountResponse, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[id]
	if !ok {
		return nil, false
	}
	return &v, true
}

func (m *mapCache) Set(_ context.Context, a *dto.AccountResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[uuid.MustParse(a.ID)] = *a
}

func (m *mapCache) Invalidate(_ context.Context, id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	m.invalidated++
}

type harness struct {
	st        *store.Store
	clock     *fakeClock
	email     *recordingEmail
	cache     *mapCache
	passwords *PasswordServiceImpl
	tokens    *TokenServiceImpl
	lockout   *LockoutTracker
	auth      *AuthServiceImpl
	reset     *ResetServiceImpl
	accounts  *AccountServiceImpl
}

var testTokenConfig = TokenConfig{
	Issuer:        "accounts-test",
	Audience:      "accounts-test-clients",
	AccessTTL:     15 * time.Minute,
	RefreshTTL:    7 * 24 * time.Hour,
	AccessSecret:  []byte("access-secret-for-tests"),
	RefreshSecret: []byte("refresh-secret-for-tests"),
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		st:        storetest.New(t),
		clock:     newFakeClock(),
		email:     &recordingEmail{},
		cache:     newMapCache(),
		passwords: NewPasswordServiceBcrypt(bcrypt.MinCost, 4),
	}
	var err error
	h.tokens, err = NewTokenServiceHS256(testTokenConfig, h.st, h.clock.Now)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	h.lockout = NewLockoutTracker(h.st, LockoutPolicy{MaxAttempts: 5, LockDuration: 2 * time.Hour}, h.email, h.clock.Now)
	h.auth = NewAuthServiceImpl(h.st, h.passwords, h.tokens, h.lockout, h.email, h.clock.Now)
	h.reset = NewResetServiceImpl(h.st, h.passwords, h.email, ResetConfig{TokenTTL: time.Hour, EnumerationDelay: time.Millisecond}, h.clock.Now)
	h.accounts = NewAccountServiceImpl(h.st, h.passwords, h.cache, h.clock.Now)
	return h
}

func (h *harness) register(t *testing.T, email, username, password string) *dto.AuthResponse {
	t.Helper()
	res, err := h.auth.Register(context.Background(), dto.RegisterRequest{Email: email, Username: username, Password: password}, "127.0.0.1", "go-test")
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return res
}

func (h *harness) login(email, password string) (*dto.AuthResponse, error) {
	return h.auth.Login(context.Background(), dto.LoginRequest{Email: email, Password: password}, "127.0.0.1", "go-test")
}
