package service

import (
	"errors"
	"fmt"

	"stock-ledger/internal/store"
)

// Ledger error kinds. Callers match them with errors.Is.
var (
	ErrInvalidQuantity   = store.ErrInvalidQuantity
	ErrInsufficientStock = store.ErrInsufficientStock
	ErrStateConflict     = store.ErrStateConflict
	ErrNotFound          = store.ErrNotFound
	ErrDuplicate         = store.ErrDuplicate

	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrInvalidDiscount   = errors.New("invalid discount")
	ErrInvalidPrice      = errors.New("invalid price")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrStoreScope        = errors.New("store outside actor scope")
	ErrAlreadyProcessed  = errors.New("event already processed")
	ErrPersistence       = errors.New("persistence failure")
)

var domainErrors = []error{
	ErrInvalidQuantity,
	ErrInsufficientStock,
	ErrStateConflict,
	ErrNotFound,
	ErrDuplicate,
	ErrDeviceUnavailable,
	ErrInvalidDiscount,
	ErrInvalidPrice,
	ErrInvalidRequest,
	ErrInvalidTransition,
	ErrStoreScope,
	ErrAlreadyProcessed,
}

// IsDomainError reports whether err is an expected business-rule outcome
func IsDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// classify passes domain errors through and tags everything else as a persistence failure
func classify(op string, err error) error {
	if err == nil || IsDomainError(err) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

// reason is the metric label for err
func reason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrDeviceUnavailable), errors.Is(err, ErrStateConflict):
		return "state_conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStoreScope):
		return "store_scope"
	case errors.Is(err, ErrAlreadyProcessed):
		return "already_processed"
	case IsDomainError(err):
		return "invalid_request"
	default:
		return "persistence"
	}
}
