package apperr

import "errors"

// Sentinel errors for the transactional core. Services wrap them with
// fmt.Errorf("...: %w", ...) and callers match with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrGateway           = errors.New("payment gateway error")
	ErrRetryable         = errors.New("retryable infrastructure error")
	ErrPermanent         = errors.New("permanent failure")
)
