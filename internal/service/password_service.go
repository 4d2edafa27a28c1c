package service

import "context"

type PasswordService interface {
	Hash(ctx context.Context, password string) (string, error)
	// Verify reports whether password matches digest. A malformed digest is a
	// mismatch; the error is reserved for the context ending while queued.
	Verify(ctx context.Context, password, digest string) (bool, error)
}
