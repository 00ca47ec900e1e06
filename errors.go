package ledger

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("ledger: not found")
	ErrAlreadyExists = errors.New("ledger: already exists")
	ErrInvalidInput  = errors.New("ledger: invalid input")

	// Account errors
	ErrAccountNotFound = errors.New("ledger: account not found")
	ErrAccountExists   = errors.New("ledger: account already exists")
	ErrInvalidTier     = errors.New("ledger: invalid subscription tier")

	// Entitlement errors
	ErrLimitExceeded = errors.New("ledger: monthly conversion limit exceeded")

	// Payment errors
	ErrPaymentDeclined = errors.New("ledger: payment declined")
	ErrInvalidAmount   = errors.New("ledger: charge amount must be positive")
	ErrNoGateway       = errors.New("ledger: no payment gateway configured")
	ErrRefundFailed    = errors.New("ledger: refund failed")
	ErrNotRefundable   = errors.New("ledger: attempt has no payment to refund")

	// Usage log errors
	ErrLedgerWriteFailed = errors.New("ledger: usage log write failed")
	ErrAttemptNotFound   = errors.New("ledger: conversion attempt not found")

	// Pipeline errors
	ErrPipelineFailed = errors.New("ledger: conversion pipeline failed")

	// Store errors
	ErrStoreClosed       = errors.New("ledger: store is closed")
	ErrMigrationFailed   = errors.New("ledger: migration failed")
	ErrAnalyticsDeferred = errors.New("ledger: analytics buffer full, event dropped")

	// Cache errors
	ErrCacheMiss = errors.New("ledger: cache miss")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("ledger: validation failed for %s: %s", e.Field, e.Message)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrAttemptNotFound)
}

// IsDecisionOutcome returns true for errors that represent a normal,
// user-facing decision outcome rather than a system failure. Callers
// surface these as product messaging ("upgrade your plan", "payment
// failed, try again"), never as retry prompts.
func IsDecisionOutcome(err error) bool {
	return errors.Is(err, ErrLimitExceeded) ||
		errors.Is(err, ErrPaymentDeclined)
}

// IsRetryable returns true if the error is temporary and the whole attempt
// can be re-initiated by the user. A failed usage log write is retryable:
// nothing was recorded, so re-running the attempt is safe. A declined
// payment is NOT retryable here; re-initiating is an explicit user action.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLedgerWriteFailed) ||
		errors.Is(err, ErrStoreClosed) ||
		errors.Is(err, ErrAnalyticsDeferred)
}
