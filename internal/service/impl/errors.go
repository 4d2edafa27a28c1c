package impl

import (
	"fmt"

	"accounts/internal/domain"
)

var (
	ErrEmptyCredential = fmt.Errorf("%w: email and password are required", domain.ErrInvalidInput)
	ErrEmptyToken      = fmt.Errorf("%w: token is required", domain.ErrInvalidInput)
	ErrInvalidEmail    = fmt.Errorf("%w: email is not valid", domain.ErrInvalidInput)
	ErrInvalidUsername = fmt.Errorf("%w: username must be 3-32 letters, digits, '.', '_' or '-'", domain.ErrInvalidInput)
	ErrPasswordLength  = fmt.Errorf("%w: password must be %d-%d bytes", domain.ErrInvalidInput, minPasswordLen, maxPasswordLen)
	ErrSamePassword    = fmt.Errorf("%w: new password must differ from the current one", domain.ErrInvalidInput)
	ErrNothingToUpdate = fmt.Errorf("%w: no fields to update", domain.ErrInvalidInput)
)
