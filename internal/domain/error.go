package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid executor context")

	// Settlement / gateway errors
	ErrUnsupportedProvider = errors.New("unsupported payment provider")
	ErrInvalidAmount       = errors.New("amount below provider minimum")
	ErrConfiguration       = errors.New("provider configuration error")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrMissingReference    = errors.New("missing provider reference")
)
