package service

import "context"

type ResetService interface {
	RequestReset(ctx context.Context, email string) error
	CompleteReset(ctx context.Context, token, newPassword string) error
}
