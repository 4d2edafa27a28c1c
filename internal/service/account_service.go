package service

import (
	"context"

	"accounts/internal/domain"
	"accounts/internal/dto"

	"github.com/google/uuid"
)

type AccountService interface {
	Get(ctx context.Context, id uuid.UUID) (*dto.AccountResponse, error)
	EnsureActive(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, q dto.ListAccountsQuery) (*dto.AccountPage, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, r dto.UpdateAccountRequest) (*dto.AccountResponse, error)
	ChangePassword(ctx context.Context, id uuid.UUID, r dto.ChangePasswordRequest) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	SetRole(ctx context.Context, id uuid.UUID, role domain.Role) error
	Unlock(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// AccountCache is a best-effort read cache for account views.
type AccountCache interface {
	Get(ctx context.Context, id uuid.UUID) (*dto.AccountResponse, bool)
	Set(ctx context.Context, acct *dto.AccountResponse)
	Invalidate(ctx context.Context, id uuid.UUID)
}
