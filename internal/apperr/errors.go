package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input such as a non-positive amount or a
	// missing withdrawal destination. Callers fix the input; it is never retried.
	ErrValidation = errors.New("validation error")

	// ErrInsufficientFunds occurs when a debit would drive a wallet balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotAuthorized indicates the acting principal may not perform the operation.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrAlreadyResolved indicates a fund request has left the pending state.
	ErrAlreadyResolved = errors.New("already resolved")

	// ErrNotFound indicates an unknown wallet, entry or request identifier.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate indicates a ledger commit reused an idempotency key or a
	// wallet was provisioned twice.
	ErrDuplicate = errors.New("already exists")
)

// Validationf returns an ErrValidation wrapping a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf returns an ErrNotFound wrapping a formatted message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
