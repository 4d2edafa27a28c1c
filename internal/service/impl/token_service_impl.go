package impl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"accounts/internal/domain"
	"accounts/internal/dto"
	"accounts/internal/observability/metrics"
	"accounts/internal/observability/middleware"
	"accounts/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ====== Config ======

type TokenConfig struct {
	Issuer        string        // e.g. "accounts"
	Audience      string        // e.g. "accounts-clients"
	AccessTTL     time.Duration // e.g. 15 * time.Minute
	RefreshTTL    time.Duration // e.g. 7 * 24h
	AccessSecret  []byte        // HS256 secret for access tokens
	RefreshSecret []byte        // HS256 secret for refresh tokens; must differ
}

func (c TokenConfig) validate() error {
	switch {
	case len(c.AccessSecret) == 0 || len(c.RefreshSecret) == 0:
		return errors.New("token secrets must be set")
	case string(c.AccessSecret) == string(c.RefreshSecret):
		return errors.New("access and refresh secrets must differ")
	case c.AccessTTL <= 0 || c.RefreshTTL <= 0:
		return errors.New("token TTLs must be positive")
	}
	return nil
}

// refreshTokenVersion is stamped on every refresh token. Nothing bumps it:
// there is no server-side revocation, so a refresh token stays valid until
// it expires.
const refreshTokenVersion = 1

// ====== Claims ======

type AccessClaims struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	TokenVersion int `json:"tokenVersion"`
	jwt.RegisteredClaims
}

// ====== Service ======

type tokenStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
}

type TokenServiceImpl struct {
	cfg      TokenConfig
	accounts tokenStore
	now      Clock
}

func NewTokenServiceHS256(cfg TokenConfig, st *store.Store, now Clock) (*TokenServiceImpl, error) {
	return newTokenService(cfg, st.Accounts(), now)
}

func newTokenService(cfg TokenConfig, accts tokenStore, now Clock) (*TokenServiceImpl, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &TokenServiceImpl{cfg: cfg, accounts: accts, now: orSystem(now)}, nil
}

// Issue signs a fresh access/refresh pair for acct.
func (t *TokenServiceImpl) Issue(ctx context.Context, acct *domain.Account) (*dto.TokenResponse, error) {
	result := "success"
	defer func() {
		metrics.TokensIssuedTotal.WithLabelValues("issue", result).Inc()
	}()

	out, err := t.issue(acct)
	if err != nil {
		result = "failure"
		return nil, err
	}
	slog.Info("issued tokens", append([]any{"account_id", acct.ID}, middleware.LogAttrs(ctx)...)...)
	return out, nil
}

// Refresh exchanges a valid refresh token for a new pair. Every rejection
// other than a store outage is domain.ErrInvalidToken.
func (t *TokenServiceImpl) Refresh(ctx context.Context, refreshToken string) (*dto.TokenResponse, error) {
	result := "success"
	defer func() {
		metrics.TokensIssuedTotal.WithLabelValues("refresh", result).Inc()
	}()

	claims, err := t.parseRefresh(refreshToken)
	if err != nil {
		result = "invalid"
		slog.Debug("refresh token rejected", append([]any{"reason", err}, middleware.LogAttrs(ctx)...)...)
		return nil, domain.ErrInvalidToken
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		result = "invalid"
		return nil, domain.ErrInvalidToken
	}

	acct, err := t.accounts.GetByID(ctx, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		result = "invalid"
		return nil, domain.ErrInvalidToken
	case err != nil:
		result = "failure"
		return nil, err
	case !acct.IsActive:
		result = "invalid"
		return nil, domain.ErrInvalidToken
	}

	out, err := t.issue(acct)
	if err != nil {
		result = "failure"
		return nil, err
	}
	slog.Info("refreshed tokens", append([]any{"account_id", acct.ID}, middleware.LogAttrs(ctx)...)...)
	return out, nil
}

// VerifyAccess checks signature, algorithm, expiry, issuer and audience. It
// does not consult the store; callers that need a live account check it.
func (t *TokenServiceImpl) VerifyAccess(_ context.Context, accessToken string) (*dto.AccessPayload, error) {
	claims := &AccessClaims{}
	if err := t.parse(accessToken, claims, t.cfg.AccessSecret); err != nil {
		return nil, domain.ErrInvalidToken
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	return &dto.AccessPayload{
		AccountID: id,
		Email:     claims.Email,
		Username:  claims.Username,
		Role:      claims.Role,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// ====== Helpers ======

func (t *TokenServiceImpl) issue(acct *domain.Account) (*dto.TokenResponse, error) {
	now := t.now()
	access, err := t.signAccess(acct, now)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := t.signRefresh(acct.ID, now)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	return &dto.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(t.cfg.AccessTTL.Seconds()),
		TokenType:    "Bearer",
	}, nil
}

func (t *TokenServiceImpl) signAccess(acct *domain.Account, now time.Time) (string, error) {
	claims := AccessClaims{
		Email:            acct.Email,
		Username:         acct.Username,
		Role:             string(acct.Role),
		RegisteredClaims: t.registered(acct.ID, now, t.cfg.AccessTTL),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.cfg.AccessSecret)
}

func (t *TokenServiceImpl) signRefresh(id uuid.UUID, now time.Time) (string, error) {
	claims := RefreshClaims{
		TokenVersion:     refreshTokenVersion,
		RegisteredClaims: t.registered(id, now, t.cfg.RefreshTTL),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.cfg.RefreshSecret)
}

func (t *TokenServiceImpl) registered(id uuid.UUID, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    t.cfg.Issuer,
		Subject:   id.String(),
		Audience:  jwt.ClaimStrings{t.cfg.Audience},
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}
}

func (t *TokenServiceImpl) parseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := t.parse(tokenStr, claims, t.cfg.RefreshSecret); err != nil {
		return nil, err
	}
	if claims.TokenVersion != refreshTokenVersion {
		return nil, fmt.Errorf("unexpected token version %d", claims.TokenVersion)
	}
	return claims, nil
}

func (t *TokenServiceImpl) parse(tokenStr string, claims jwt.Claims, secret []byte) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.cfg.Issuer),
		jwt.WithAudience(t.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	_, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	return err
}
