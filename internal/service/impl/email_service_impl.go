package impl

import (
	"context"
	"log/slog"

	"accounts/internal/events"
	"accounts/internal/observability/middleware"
)

// LogEmailService writes notifications to the structured log instead of
// sending mail. Reset tokens only appear at debug level.
type LogEmailService struct {
	Logger *slog.Logger
}

func NewLogEmailService(logger *slog.Logger) *LogEmailService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmailService{Logger: logger}
}

func (e *LogEmailService) SendPasswordReset(ctx context.Context, ev events.PasswordResetRequested) error {
	attrs := append([]any{"to", ev.Email, "account_id", ev.AccountID, "expires_at", ev.ExpiresAt}, middleware.LogAttrs(ctx)...)
	e.Logger.InfoContext(ctx, "password reset email queued", attrs...)
	e.Logger.DebugContext(ctx, "password reset token", "account_id", ev.AccountID, "reset_token", ev.Token)
	return nil
}

func (e *LogEmailService) SendWelcome(ctx context.Context, ev events.AccountRegistered) error {
	e.Logger.InfoContext(ctx, "welcome email queued", append([]any{"to", ev.Email, "account_id", ev.AccountID}, middleware.LogAttrs(ctx)...)...)
	return nil
}

func (e *LogEmailService) SendLockoutNotice(ctx context.Context, ev events.AccountLocked) error {
	e.Logger.InfoContext(ctx, "lockout notice queued", append([]any{"to", ev.Email, "locked_until", ev.LockedUntil}, middleware.LogAttrs(ctx)...)...)
	return nil
}
