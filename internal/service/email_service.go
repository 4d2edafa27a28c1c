package service

import (
	"context"

	"accounts/internal/events"
)

// EmailService delivers account notifications. The transport (SMTP, queue)
// lives outside this service.
type EmailService interface {
	SendPasswordReset(ctx context.Context, ev events.PasswordResetRequested) error
	SendWelcome(ctx context.Context, ev events.AccountRegistered) error
	SendLockoutNotice(ctx context.Context, ev events.AccountLocked) error
}
