package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/domain"
)

const paymentTransactionConstraint = "payments_transaction_id_key"

var domainErrors = []error{
	domain.ErrValidation,
	domain.ErrNotFound,
	domain.ErrEmptyCart,
	domain.ErrDuplicatePayment,
	domain.ErrStorageConflict,
	domain.ErrTimeout,
}

// classify maps driver and context failures onto the settlement error
// taxonomy. Errors that already carry a domain sentinel pass through.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return err
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505" && pqErr.Constraint == paymentTransactionConstraint:
			return fmt.Errorf("%s: %w", pqErr.Message, domain.ErrDuplicatePayment)
		case pqErr.Code == "23503" && pqErr.Constraint == "order_items_vendor_id_fkey":
			return fmt.Errorf("%s: %w", pqErr.Message, domain.ErrVendorNotFound)
		case pqErr.Code.Class() == "23", pqErr.Code == "40001", pqErr.Code == "40P01":
			return fmt.Errorf("%s: %w", pqErr.Message, domain.ErrStorageConflict)
		case pqErr.Code == "55P03", pqErr.Code == "57014":
			return fmt.Errorf("%s: %w", pqErr.Message, domain.ErrTimeout)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%v: %w", err, domain.ErrTimeout)
	}

	return err
}
