package lifecycle

import "errors"

// Sentinel errors for lifecycle operations.
var (
	ErrMissingStore      = errors.New("lifecycle: cache store is required")
	ErrMissingOrigin     = errors.New("lifecycle: origin must be an absolute url")
	ErrMissingGeneration = errors.New("lifecycle: generation is required")
	ErrInstallAborted    = errors.New("lifecycle: installation aborted")
)
