package auth

import "errors"

// Authentication errors. All map to UNAUTHENTICATED so a caller cannot learn
// which secret IDs exist.
var (
	ErrMissingKey       = errors.New("API key required in x-api-key metadata")
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	ErrUnknownKey       = errors.New("unknown secret ID")
	ErrInvalidKey       = errors.New("invalid API key")
)
