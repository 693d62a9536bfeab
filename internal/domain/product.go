package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ProductOrigin tells which catalog owns a product.
type ProductOrigin string

const (
	OriginVendor ProductOrigin = "vendor"
	OriginStore  ProductOrigin = "store"
)

// ProductRef points at a product in exactly one catalog.
type ProductRef struct {
	Origin ProductOrigin `json:"origin"`
	ID     string        `json:"id"`
}

func VendorProduct(id string) ProductRef {
	return ProductRef{Origin: OriginVendor, ID: id}
}

func StoreProduct(id string) ProductRef {
	return ProductRef{Origin: OriginStore, ID: id}
}

func (r ProductRef) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("product id is required: %w", ErrValidation)
	}
	switch r.Origin {
	case OriginVendor, OriginStore:
		return nil
	default:
		return fmt.Errorf("unknown product origin %q: %w", r.Origin, ErrValidation)
	}
}

func (r ProductRef) String() string {
	return string(r.Origin) + ":" + r.ID
}

// Product is the read contract both catalogs expose. VendorID is nil for
// first-party products.
type Product struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	VendorID *string         `json:"vendor_id,omitempty"`
}
