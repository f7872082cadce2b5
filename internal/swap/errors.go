package swap

import "errors"

// Common errors. Operations wrap these with context; callers match with
// errors.Is.
var (
	ErrInvalidParameters        = errors.New("invalid swap parameters")
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrChainSubmission          = errors.New("chain submission failed")
	ErrChainConfirmationTimeout = errors.New("chain confirmation timed out")
	ErrInvalidState             = errors.New("invalid swap state")
	ErrTooEarlyToClaim          = errors.New("too early to claim")
	ErrTooLateToClaim           = errors.New("too late to claim")
	ErrNotTimeToRefund          = errors.New("not time to refund")
	ErrSecretMismatch           = errors.New("secret does not match commitment")
	ErrSecretNotAvailable       = errors.New("counterparty secret not yet revealed")
	ErrSwapNotFound             = errors.New("swap not found")
)
