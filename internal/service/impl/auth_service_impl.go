package impl

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"accounts/internal/domain"
	"accounts/internal/dto"
	"accounts/internal/events"
	"accounts/internal/netutil"
	"accounts/internal/observability/metrics"
	"accounts/internal/observability/middleware"
	"accounts/internal/service"
	"accounts/internal/store"

	"github.com/google/uuid"
)

type dataStore interface {
	WithTx(ctx context.Context, fn func(tx accountStore) error) error
	Accounts() accountStore
}

type accountStore interface {
	Create(ctx context.Context, acct *domain.Account) error
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	EnsureUnique(ctx context.Context, email, username string, exclude uuid.UUID) error
}

type gormStoreAdapter struct {
	store *store.Store
}

func (g gormStoreAdapter) WithTx(ctx context.Context, fn func(tx accountStore) error) error {
	if g.store == nil {
		return errors.New("nil store")
	}
	return g.store.WithTx(ctx, func(tx *store.Store) error {
		return fn(tx.Accounts())
	})
}

func (g gormStoreAdapter) Accounts() accountStore { return g.store.Accounts() }

type loginTracker interface {
	IsLocked(ctx context.Context, email string) (bool, error)
	RecordOutcome(ctx context.Context, email string, success bool) error
}

type AuthServiceImpl struct {
	Store     dataStore
	Passwords service.PasswordService
	Tokens    service.TokenService
	Lockout   loginTracker
	Email     service.EmailService
	now       Clock

	dummyOnce   sync.Once
	dummyDigest string
}

func NewAuthServiceImpl(st *store.Store, passwords service.PasswordService, tokens service.TokenService, lockout *LockoutTracker, email service.EmailService, now Clock) *AuthServiceImpl {
	return &AuthServiceImpl{
		Store:     gormStoreAdapter{store: st},
		Passwords: passwords,
		Tokens:    tokens,
		Lockout:   lockout,
		Email:     email,
		now:       orSystem(now),
	}
}

func (a *AuthServiceImpl) Register(ctx context.Context, r dto.RegisterRequest, ip, ua string) (*dto.AuthResponse, error) {
	result := "success"
	defer func() {
		metrics.AuthRegistrationsTotal.WithLabelValues(result).Inc()
	}()

	email := normalizeEmail(r.Email)
	username := normalizeUsername(r.Username)
	if err := firstError(validateEmail(email), validateUsername(username), validatePassword(r.Password)); err != nil {
		result = "invalid"
		return nil, err
	}

	// Hash before opening the transaction so no connection is held across
	// bcrypt.
	hash, err := a.Passwords.Hash(ctx, r.Password)
	if err != nil {
		result = "failure"
		return nil, err
	}

	now := a.now()
	acct := &domain.Account{
		ID:           uuid.New(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = a.Store.WithTx(ctx, func(tx accountStore) error {
		if err := tx.EnsureUnique(ctx, email, username, uuid.Nil); err != nil {
			return err
		}
		// unique indexes still decide concurrent registrations
		return tx.Create(ctx, acct)
	})
	if err != nil {
		result = outcome(err)
		return nil, err
	}

	tokens, err := a.Tokens.Issue(ctx, acct)
	if err != nil {
		result = "failure"
		return nil, err
	}

	slog.Info("account registered", append([]any{
		"account_id", acct.ID, "ip", ip, "user_agent", netutil.TruncateUserAgent(ua),
	}, middleware.LogAttrs(ctx)...)...)
	if a.Email != nil {
		if err := a.Email.SendWelcome(ctx, events.AccountRegistered{AccountID: acct.ID.String(), Email: acct.Email, At: now}); err != nil {
			slog.Error("send welcome", "error", err, "account_id", acct.ID)
		}
	}

	return &dto.AuthResponse{Account: dto.FromAccount(acct), TokenResponse: *tokens}, nil
}

// Login authenticates by email and password. Unknown emails and wrong
// passwords are indistinguishable to the caller.
func (a *AuthServiceImpl) Login(ctx context.Context, r dto.LoginRequest, ip, ua string) (*dto.AuthResponse, error) {
	result := "success"
	defer func() {
		metrics.AuthLoginsTotal.WithLabelValues(result).Inc()
	}()

	email := normalizeEmail(r.Email)
	if email == "" || r.Password == "" {
		result = "invalid"
		return nil, ErrEmptyCredential
	}
	logAttrs := append([]any{"ip", ip, "user_agent", netutil.TruncateUserAgent(ua)}, middleware.LogAttrs(ctx)...)

	locked, err := a.Lockout.IsLocked(ctx, email)
	if err != nil {
		result = "error"
		return nil, err
	}
	if locked {
		result = "locked"
		slog.Info("login refused: account locked", logAttrs...)
		return nil, domain.ErrAccountLocked
	}

	acct, err := a.Store.Accounts().GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		a.equalizeTiming(ctx, r.Password)
		if err := a.Lockout.RecordOutcome(ctx, email, false); err != nil {
			result = "error"
			return nil, err
		}
		result = "invalid_credentials"
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		result = "error"
		return nil, err
	}

	ok, err := a.Passwords.Verify(ctx, r.Password, acct.PasswordHash)
	if err != nil {
		result = "error"
		return nil, err
	}
	if !ok {
		if err := a.Lockout.RecordOutcome(ctx, email, false); err != nil {
			result = "error"
			return nil, err
		}
		result = "invalid_credentials"
		slog.Info("login failed", append([]any{"account_id", acct.ID}, logAttrs...)...)
		return nil, domain.ErrInvalidCredentials
	}

	if !acct.IsActive {
		result = "inactive"
		return nil, domain.ErrAccountInactive
	}

	if err := a.Lockout.RecordOutcome(ctx, email, true); err != nil {
		result = "error"
		return nil, err
	}
	now := a.now()
	acct.LoginAttempts = 0
	acct.LockUntil = nil
	acct.LastLoginAt = &now

	tokens, err := a.Tokens.Issue(ctx, acct)
	if err != nil {
		result = "error"
		return nil, err
	}
	slog.Info("login succeeded", append([]any{"account_id", acct.ID}, logAttrs...)...)
	return &dto.AuthResponse{Account: dto.FromAccount(acct), TokenResponse: *tokens}, nil
}

// Logout is stateless: tokens are not tracked server-side, so the client
// discarding them is the whole operation.
func (a *AuthServiceImpl) Logout(ctx context.Context, _ string) error {
	slog.Debug("logout", middleware.LogAttrs(ctx)...)
	return nil
}

// equalizeTiming spends one bcrypt comparison so an unknown email costs
// about as much as a wrong password.
func (a *AuthServiceImpl) equalizeTiming(ctx context.Context, password string) {
	a.dummyOnce.Do(func() {
		a.dummyDigest, _ = a.Passwords.Hash(context.Background(), uuid.NewString())
	})
	_, _ = a.Passwords.Verify(ctx, password, a.dummyDigest)
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "unavailable"
	}
	return "failure"
}
