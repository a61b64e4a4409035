package domain

import "errors"

var (
	// ErrInvalidAmount rejects non-positive ledger amounts before any mutation.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInsufficientFunds is an expected business outcome, not a failure.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidSignature rejects webhook payloads that fail verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrForbidden marks an owner mismatch between requester and resource.
	ErrForbidden = errors.New("forbidden")
	ErrNotFound  = errors.New("not found")
	// ErrUnknownPlan rejects instance requests for plan codes without a rate.
	ErrUnknownPlan = errors.New("unknown plan code")
)
