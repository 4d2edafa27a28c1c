package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"accounts/internal/domain"
	"accounts/internal/dto"
	"accounts/internal/service"
)

type principalKey struct{}

func withPrincipal(ctx context.Context, p *dto.AccessPayload) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the verified access-token payload of the caller.
func PrincipalFrom(ctx context.Context) (*dto.AccessPayload, bool) {
	p, ok := ctx.Value(principalKey{}).(*dto.AccessPayload)
	return p, ok && p != nil
}

// Authenticate verifies the bearer access token and that its account still
// exists and is active.
func Authenticate(tokens service.TokenService, accounts service.AccountService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("Authorization")
			if len(raw) < 7 || !strings.EqualFold(raw[:7], "bearer ") {
				writeError(w, r, domain.ErrInvalidToken)
				return
			}
			payload, err := tokens.VerifyAccess(r.Context(), strings.TrimSpace(raw[7:]))
			if err != nil {
				writeError(w, r, err)
				return
			}
			if err := accounts.EnsureActive(r.Context(), payload.AccountID); err != nil {
				if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrAccountInactive) {
					err = domain.ErrInvalidToken
				}
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), payload)))
		})
	}
}

// RequireRole admits callers whose token carries one of roles.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				writeError(w, r, domain.ErrInvalidToken)
				return
			}
			if !domain.HasRole(roles, domain.Role(p.Role)) {
				writeError(w, r, domain.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
