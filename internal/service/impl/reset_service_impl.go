package impl

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"accounts/internal/domain"
	"accounts/internal/events"
	"accounts/internal/observability/metrics"
	"accounts/internal/observability/middleware"
	"accounts/internal/service"
	"accounts/internal/store"

	"github.com/google/uuid"
)

const (
	DefaultResetTokenTTL         = time.Hour
	DefaultResetEnumerationDelay = 25 * time.Millisecond
	resetTokenBytes              = 32
)

type ResetConfig struct {
	TokenTTL time.Duration
	// EnumerationDelay stands in for the store write when the email is
	// unknown, so both paths take comparable time.
	EnumerationDelay time.Duration
}

type resetStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	SetResetToken(ctx context.Context, id uuid.UUID, tokenDigest string, expires, now time.Time) error
	ConsumeResetToken(ctx context.Context, tokenDigest, passwordHash string, now time.Time) (uuid.UUID, error)
}

type ResetServiceImpl struct {
	accounts  resetStore
	passwords service.PasswordService
	email     service.EmailService
	cfg       ResetConfig
	now       Clock
}

func NewResetServiceImpl(st *store.Store, passwords service.PasswordService, email service.EmailService, cfg ResetConfig, now Clock) *ResetServiceImpl {
	return newResetService(st.Accounts(), passwords, email, cfg, now)
}

func newResetService(accts resetStore, passwords service.PasswordService, email service.EmailService, cfg ResetConfig, now Clock) *ResetServiceImpl {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultResetTokenTTL
	}
	if cfg.EnumerationDelay < 0 {
		cfg.EnumerationDelay = 0
	}
	return &ResetServiceImpl{accounts: accts, passwords: passwords, email: email, cfg: cfg, now: orSystem(now)}
}

// RequestReset starts a reset for email. The outcome is the same whether or
// not the email is registered; only a store outage surfaces as an error.
func (s *ResetServiceImpl) RequestReset(ctx context.Context, email string) error {
	result := "accepted"
	defer func() {
		metrics.PasswordResetsTotal.WithLabelValues("request", result).Inc()
	}()

	email = normalizeEmail(email)
	if email == "" {
		result = "invalid"
		return ErrInvalidEmail
	}

	token, digest, err := newResetToken()
	if err != nil {
		result = "failure"
		return err
	}

	acct, err := s.accounts.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && !acct.IsActive) {
		sleepCtx(ctx, s.cfg.EnumerationDelay)
		return nil
	}
	if err != nil {
		result = "failure"
		return err
	}

	now := s.now()
	expires := now.Add(s.cfg.TokenTTL)
	if err := s.accounts.SetResetToken(ctx, acct.ID, digest, expires, now); err != nil {
		result = "failure"
		return err
	}

	ev := events.PasswordResetRequested{AccountID: acct.ID.String(), Email: acct.Email, Token: token, ExpiresAt: expires}
	if err := s.email.SendPasswordReset(ctx, ev); err != nil {
		slog.Error("deliver password reset", append([]any{"error", err, "account_id", acct.ID}, middleware.LogAttrs(ctx)...)...)
	}
	return nil
}

// CompleteReset sets newPassword for the owner of token. The token is
// consumed atomically with the password change.
func (s *ResetServiceImpl) CompleteReset(ctx context.Context, token, newPassword string) error {
	result := "success"
	defer func() {
		metrics.PasswordResetsTotal.WithLabelValues("complete", result).Inc()
	}()

	if token == "" {
		result = "invalid"
		return domain.ErrInvalidOrExpiredToken
	}
	if err := validatePassword(newPassword); err != nil {
		result = "invalid"
		return err
	}
	hash, err := s.passwords.Hash(ctx, newPassword)
	if err != nil {
		result = "failure"
		return err
	}

	id, err := s.accounts.ConsumeResetToken(ctx, digestResetToken(token), hash, s.now())
	if err != nil {
		result = "invalid"
		if !errors.Is(err, domain.ErrInvalidOrExpiredToken) {
			result = "failure"
		}
		return err
	}
	slog.Info("password reset completed", append([]any{"account_id", id}, middleware.LogAttrs(ctx)...)...)
	return nil
}

// newResetToken returns the raw token for delivery and the digest to persist.
func newResetToken() (token, digest string, err error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate reset token: %w", err)
	}
	token = hex.EncodeToString(buf)
	return token, digestResetToken(token), nil
}

func digestResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
