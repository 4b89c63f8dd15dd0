package secret

import "errors"

// Sentinel errors for secret resolution.
var (
	ErrUnknownProvider = errors.New("secret: provider is not registered")
	ErrEmptySecret     = errors.New("secret: resolved value is empty")
	ErrInvalidRef      = errors.New("secret: reference is invalid")
	ErrMissingEnv      = errors.New("secret: missing required environment variables")
)
