package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")

	ErrSigningRejected     = errors.New("signing request rejected")
	ErrNetworkUnavailable  = errors.New("network unavailable")
	ErrRemoteUnavailable   = errors.New("remote call unavailable")
	ErrConfirmationTimeout = errors.New("confirmation is taking longer than expected")
)

// ValidationError is returned before any remote call when input is missing or invalid.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// RevertError carries the reason the contract rejected a call.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + e.Reason
}

// DecodeError means chain data did not have the expected shape.
type DecodeError struct {
	What string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return "decode " + e.What
	}
	return fmt.Sprintf("decode %s: %v", e.What, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
