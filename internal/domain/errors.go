package domain

import "errors"

var (
	ErrNotFound           = errors.New("resource not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidInput       = errors.New("invalid input")
	ErrConflict           = errors.New("resource conflict")

	// ErrProviderExchange covers a failed or empty authorization-code
	// exchange with an OAuth provider.
	ErrProviderExchange = errors.New("provider token exchange failed")

	// ErrMissingEmail means the provider returned no usable email even
	// after the fallback lookup. Email is the account linking key, so this
	// is terminal and surfaced to the user.
	ErrMissingEmail = errors.New("no email available from provider")
)

// ValidationError represents a field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
