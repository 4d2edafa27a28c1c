package impl

import (
	"net/mail"
	"regexp"
	"strings"
)

const (
	minPasswordLen = 6
	// bcrypt ignores input past 72 bytes.
	maxPasswordLen = 72
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{3,32}$`)

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func normalizeUsername(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return ErrInvalidEmail
	}
	return nil
}

func validateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

func validatePassword(pw string) error {
	if len(pw) < minPasswordLen || len(pw) > maxPasswordLen {
		return ErrPasswordLength
	}
	return nil
}
