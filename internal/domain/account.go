package domain

import "time"

type Account struct {
	ID                   AccountID  `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	Email                string     `gorm:"type:citext;not null;uniqueIndex:ux_accounts_email" db:"email" json:"email"`
	Username             string     `gorm:"type:citext;not null;uniqueIndex:ux_accounts_username" db:"username" json:"username"`
	PasswordHash         string     `gorm:"type:text;not null" db:"password_hash" json:"-"`
	Role                 Role       `gorm:"type:text;not null" db:"role" json:"role"`
	IsActive             bool       `gorm:"not null" db:"is_active" json:"isActive"`
	IsEmailVerified      bool       `gorm:"not null" db:"is_email_verified" json:"isEmailVerified"`
	LoginAttempts        int        `gorm:"not null" db:"login_attempts" json:"-"`
	LockUntil            *time.Time `db:"lock_until" json:"lockUntil,omitempty"`
	LastLoginAt          *time.Time `db:"last_login_at" json:"lastLoginAt,omitempty"`
	PasswordResetToken   *string    `gorm:"type:text;index:ix_accounts_password_reset_token" db:"password_reset_token" json:"-"`
	PasswordResetExpires *time.Time `db:"password_reset_expires" json:"-"`
	CreatedAt            time.Time  `gorm:"not null" db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time  `gorm:"not null" db:"updated_at" json:"updatedAt"`
}

func (Account) TableName() string { return "accounts" }

// IsLocked reports whether the lockout window is still open at now.
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockUntil != nil && a.LockUntil.After(now)
}
