package service

import (
	"context"

	"accounts/internal/domain"
	"accounts/internal/dto"
)

type TokenService interface {
	Issue(ctx context.Context, acct *domain.Account) (*dto.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*dto.TokenResponse, error)
	VerifyAccess(ctx context.Context, accessToken string) (*dto.AccessPayload, error)
}
