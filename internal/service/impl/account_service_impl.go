package impl

import (
	"context"
	"log/slog"
	"strings"

	"accounts/internal/domain"
	"accounts/internal/dto"
	"accounts/internal/observability/middleware"
	"accounts/internal/service"
	"accounts/internal/store"

	"github.com/google/uuid"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

var sortColumns = map[string]store.SortColumn{
	"":          store.SortCreatedAt,
	"createdAt": store.SortCreatedAt,
	"email":     store.SortEmail,
	"username":  store.SortUsername,
}

type AccountServiceImpl struct {
	store     *store.Store
	passwords service.PasswordService
	cache     service.AccountCache
	now       Clock
}

func NewAccountServiceImpl(st *store.Store, passwords service.PasswordService, cache service.AccountCache, now Clock) *AccountServiceImpl {
	return &AccountServiceImpl{store: st, passwords: passwords, cache: cache, now: orSystem(now)}
}

func (s *AccountServiceImpl) Get(ctx context.Context, id uuid.UUID) (*dto.AccountResponse, error) {
	if cached, ok := s.cache.Get(ctx, id); ok {
		return cached, nil
	}
	acct, err := s.store.Accounts().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	out := dto.FromAccount(acct)
	s.cache.Set(ctx, &out)
	return &out, nil
}

// EnsureActive fails with domain.ErrAccountInactive for disabled accounts
// and domain.ErrNotFound for deleted ones.
func (s *AccountServiceImpl) EnsureActive(ctx context.Context, id uuid.UUID) error {
	acct, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !acct.IsActive {
		return domain.ErrAccountInactive
	}
	return nil
}

func (s *AccountServiceImpl) List(ctx context.Context, q dto.ListAccountsQuery) (*dto.AccountPage, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	switch {
	case limit < 1:
		limit = defaultPageLimit
	case limit > maxPageLimit:
		limit = maxPageLimit
	}

	sort, ok := sortColumns[q.SortBy]
	if !ok {
		return nil, domain.ErrInvalidInput
	}
	var desc bool
	switch strings.ToLower(q.SortOrder) {
	case "", "desc":
		desc = true
	case "asc":
	default:
		return nil, domain.ErrInvalidInput
	}

	f := store.AccountFilter{
		Search:   q.Search,
		IsActive: q.IsActive,
		Sort:     sort,
		Desc:     desc,
		Offset:   (page - 1) * limit,
		Limit:    limit,
	}
	if q.Role != "" {
		role, err := domain.ParseRole(q.Role)
		if err != nil {
			return nil, err
		}
		f.Role = role
	}

	items, total, err := s.store.Accounts().List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := &dto.AccountPage{
		Items:      make([]dto.AccountResponse, 0, len(items)),
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: int((total + int64(limit) - 1) / int64(limit)),
	}
	for i := range items {
		out.Items = append(out.Items, dto.FromAccount(&items[i]))
	}
	return out, nil
}

func (s *AccountServiceImpl) UpdateProfile(ctx context.Context, id uuid.UUID, r dto.UpdateAccountRequest) (*dto.AccountResponse, error) {
	var email, username *string
	if r.Email != nil {
		e := normalizeEmail(*r.Email)
		if err := validateEmail(e); err != nil {
			return nil, err
		}
		email = &e
	}
	if r.Username != nil {
		u := normalizeUsername(*r.Username)
		if err := validateUsername(u); err != nil {
			return nil, err
		}
		username = &u
	}
	if email == nil && username == nil {
		return nil, ErrNothingToUpdate
	}

	var updated *domain.Account
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		accts := tx.Accounts()
		if err := accts.EnsureUnique(ctx, deref(email), deref(username), id); err != nil {
			return err
		}
		if err := accts.UpdateProfile(ctx, id, email, username, s.now()); err != nil {
			return err
		}
		var err error
		updated, err = accts.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, id)

	out := dto.FromAccount(updated)
	return &out, nil
}

func (s *AccountServiceImpl) ChangePassword(ctx context.Context, id uuid.UUID, r dto.ChangePasswordRequest) error {
	if err := validatePassword(r.NewPassword); err != nil {
		return err
	}
	if r.NewPassword == r.CurrentPassword {
		return ErrSamePassword
	}
	acct, err := s.store.Accounts().GetByID(ctx, id)
	if err != nil {
		return err
	}
	ok, err := s.passwords.Verify(ctx, r.CurrentPassword, acct.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInvalidCredentials
	}
	hash, err := s.passwords.Hash(ctx, r.NewPassword)
	if err != nil {
		return err
	}
	if err := s.store.Accounts().UpdatePassword(ctx, id, hash, s.now()); err != nil {
		return err
	}
	slog.Info("password changed", append([]any{"account_id", id}, middleware.LogAttrs(ctx)...)...)
	return nil
}

func (s *AccountServiceImpl) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return s.mutate(ctx, id, "account activity changed", []any{"active", active}, func(a *store.AccountStore) error {
		return a.SetActive(ctx, id, active, s.now())
	})
}

func (s *AccountServiceImpl) SetRole(ctx context.Context, id uuid.UUID, role domain.Role) error {
	if !role.Valid() {
		return domain.ErrInvalidInput
	}
	return s.mutate(ctx, id, "account role changed", []any{"role", role}, func(a *store.AccountStore) error {
		return a.SetRole(ctx, id, role, s.now())
	})
}

func (s *AccountServiceImpl) Unlock(ctx context.Context, id uuid.UUID) error {
	return s.mutate(ctx, id, "account unlocked", nil, func(a *store.AccountStore) error {
		return a.Unlock(ctx, id, s.now())
	})
}

func (s *AccountServiceImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return s.mutate(ctx, id, "account deleted", nil, func(a *store.AccountStore) error {
		return a.Delete(ctx, id)
	})
}

func (s *AccountServiceImpl) mutate(ctx context.Context, id uuid.UUID, msg string, attrs []any, fn func(*store.AccountStore) error) error {
	if err := fn(s.store.Accounts()); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, id)
	slog.Info(msg, append(append([]any{"account_id", id}, attrs...), middleware.LogAttrs(ctx)...)...)
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
