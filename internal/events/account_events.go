package events

import "time"

type AccountRegistered struct {
	AccountID string    `json:"accountId"`
	Email     string    `json:"email"`
	At        time.Time `json:"at"`
}

type AccountLocked struct {
	Email       string    `json:"email"`
	LockedUntil time.Time `json:"lockedUntil"`
	At          time.Time `json:"at"`
}

// PasswordResetRequested carries the raw reset token; it must only reach the
// delivery channel, never a log line or the HTTP response.
type PasswordResetRequested struct {
	AccountID string    `json:"accountId"`
	Email     string    `json:"email"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type PasswordChanged struct {
	AccountID string    `json:"accountId"`
	At        time.Time `json:"at"`
}
