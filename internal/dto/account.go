package dto

import (
	"time"

	"accounts/internal/domain"
)

type AccountResponse struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	Username        string     `json:"username"`
	Role            string     `json:"role"`
	IsActive        bool       `json:"isActive"`
	IsEmailVerified bool       `json:"isEmailVerified"`
	LastLoginAt     *time.Time `json:"lastLoginAt,omitempty"`
	LockedUntil     *time.Time `json:"lockedUntil,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func FromAccount(a *domain.Account) AccountResponse {
	return AccountResponse{
		ID:              a.ID.String(),
		Email:           a.Email,
		Username:        a.Username,
		Role:            string(a.Role),
		IsActive:        a.IsActive,
		IsEmailVerified: a.IsEmailVerified,
		LastLoginAt:     a.LastLoginAt,
		LockedUntil:     a.LockUntil,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

type UpdateAccountRequest struct {
	Email    *string `json:"email,omitempty"`
	Username *string `json:"username,omitempty"`
}

type SetRoleRequest struct {
	Role string `json:"role"`
}

// ListAccountsQuery carries the raw listing parameters; zero values mean defaults.
type ListAccountsQuery struct {
	Page      int
	Limit     int
	Search    string
	Role      string
	IsActive  *bool
	SortBy    string
	SortOrder string
}

type AccountPage struct {
	Items      []AccountResponse `json:"items"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	Limit      int               `json:"limit"`
	TotalPages int               `json:"totalPages"`
}
