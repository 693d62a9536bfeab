package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrSignatureMismatch = errors.New("payment signature mismatch")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrDuplicatePayment  = errors.New("payment already settled")
	ErrStorageConflict   = errors.New("storage conflict")
	ErrTimeout           = errors.New("settlement timed out")
)

var (
	ErrProductNotFound  = fmt.Errorf("product %w", ErrNotFound)
	ErrVendorNotFound   = fmt.Errorf("vendor %w", ErrNotFound)
	ErrOrderNotFound    = fmt.Errorf("order %w", ErrNotFound)
	ErrCartLineNotFound = fmt.Errorf("cart line %w", ErrNotFound)

	// ErrCartChanged means the cart no longer matches the snapshot the payment
	// was taken for.
	ErrCartChanged = fmt.Errorf("cart changed since snapshot: %w", ErrStorageConflict)
)

// IsRetryable reports whether the caller may retry the operation unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageConflict) || errors.Is(err, ErrTimeout)
}
