package service

import (
	"context"

	"accounts/internal/dto"
)

type AuthService interface {
	Register(ctx context.Context, r dto.RegisterRequest, ip, ua string) (*dto.AuthResponse, error)
	Login(ctx context.Context, r dto.LoginRequest, ip, ua string) (*dto.AuthResponse, error)
	Logout(ctx context.Context, refreshToken string) error
}
