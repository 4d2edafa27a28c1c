package dto

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is returned by register and login: the account plus a token pair.
type AuthResponse struct {
	Account AccountResponse `json:"account"`
	TokenResponse
}
