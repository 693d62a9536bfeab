package commission

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/domain"
)

// Amounts are rounded half-up to this many fractional digits.
const Places = 2

var DefaultRate = decimal.RequireFromString("0.10")

// Allocation is the commission owed by one vendor for one order.
type Allocation struct {
	VendorID string          `json:"vendor_id"`
	Revenue  decimal.Decimal `json:"revenue"`
	Rate     decimal.Decimal `json:"rate"`
	Amount   decimal.Decimal `json:"amount"`
}

type Allocator struct {
	defaultRate decimal.Decimal
}

func NewAllocator(defaultRate decimal.Decimal) (*Allocator, error) {
	if err := validRate(defaultRate); err != nil {
		return nil, fmt.Errorf("default commission rate: %w", err)
	}
	return &Allocator{defaultRate: defaultRate}, nil
}

func (a *Allocator) DefaultRate() decimal.Decimal {
	return a.defaultRate
}

// Allocate groups vendor revenue and prices each group at the vendor's rate.
// First-party items carry no vendor and produce nothing. Every vendor that
// appears in items must be present in rates; a null rate means the default.
// The result is sorted by vendor id.
func (a *Allocator) Allocate(items []domain.OrderItem, rates map[string]decimal.NullDecimal) ([]Allocation, error) {
	revenue := make(map[string]decimal.Decimal)
	for _, item := range items {
		if item.VendorID == nil {
			continue
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("item %s has quantity %d: %w", item.ID, item.Quantity, domain.ErrValidation)
		}
		if item.Price.IsNegative() {
			return nil, fmt.Errorf("item %s has negative price: %w", item.ID, domain.ErrValidation)
		}
		vendorID := *item.VendorID
		revenue[vendorID] = revenue[vendorID].Add(item.Extended())
	}

	vendorIDs := make([]string, 0, len(revenue))
	for id := range revenue {
		vendorIDs = append(vendorIDs, id)
	}
	sort.Strings(vendorIDs)

	allocations := make([]Allocation, 0, len(vendorIDs))
	for _, vendorID := range vendorIDs {
		configured, ok := rates[vendorID]
		if !ok {
			return nil, fmt.Errorf("rate for vendor %s: %w", vendorID, domain.ErrVendorNotFound)
		}

		rate := a.defaultRate
		if configured.Valid {
			rate = configured.Decimal
		}
		if err := validRate(rate); err != nil {
			return nil, fmt.Errorf("vendor %s: %w", vendorID, err)
		}

		allocations = append(allocations, Allocation{
			VendorID: vendorID,
			Revenue:  revenue[vendorID],
			Rate:     rate,
			Amount:   Amount(rate, revenue[vendorID]),
		})
	}

	return allocations, nil
}

// Amount is rate x revenue rounded to Places. Inputs are non-negative so
// decimal's half-away-from-zero rounding is half-up.
func Amount(rate, revenue decimal.Decimal) decimal.Decimal {
	return rate.Mul(revenue).Round(Places)
}

// VendorIDs lists the distinct vendors referenced by items, sorted.
func VendorIDs(items []domain.OrderItem) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, item := range items {
		if item.VendorID == nil {
			continue
		}
		if _, ok := seen[*item.VendorID]; ok {
			continue
		}
		seen[*item.VendorID] = struct{}{}
		ids = append(ids, *item.VendorID)
	}
	sort.Strings(ids)
	return ids
}

func validRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("commission rate %s outside [0, 1]: %w", rate, domain.ErrValidation)
	}
	return nil
}
