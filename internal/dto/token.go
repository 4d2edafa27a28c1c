package dto

import (
	"time"

	"github.com/google/uuid"
)

type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	TokenType    string `json:"tokenType"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// AccessPayload is what a verified access token asserts about its bearer.
type AccessPayload struct {
	AccountID uuid.UUID
	Email     string
	Username  string
	Role      string
	ExpiresAt time.Time
}
