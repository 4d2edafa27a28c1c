package domain

import "strings"

type Role string

const (
	RoleUser      Role = "user"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleModerator:
		return true
	}
	return false
}

// ParseRole accepts a role name in any case; unknown names are rejected.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", ErrInvalidInput
	}
	return r, nil
}

// HasRole reports whether actual is one of required. An empty required set
// admits every authenticated caller.
func HasRole(required []Role, actual Role) bool {
	if len(required) == 0 {
		return true
	}
	for _, r := range required {
		if r == actual {
			return true
		}
	}
	return false
}
