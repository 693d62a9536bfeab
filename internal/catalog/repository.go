package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/domain"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// VendorCatalog resolves products listed by marketplace vendors.
type VendorCatalog struct {
	db Querier
}

func NewVendorCatalog(db Querier) *VendorCatalog {
	return &VendorCatalog{db: db}
}

func (c *VendorCatalog) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	product := &domain.Product{}
	var vendorID string

	err := c.db.QueryRowContext(ctx, `
		SELECT id, vendor_id, name, price
		FROM vendor_products
		WHERE id = $1
	`, id).Scan(&product.ID, &vendorID, &product.Name, &product.Price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("vendor product %s: %w", id, domain.ErrProductNotFound)
		}
		return nil, err
	}

	product.VendorID = &vendorID
	return product, nil
}

// StoreCatalog resolves first-party products. Soft-deleted products are not
// sellable and resolve as missing.
type StoreCatalog struct {
	db Querier
}

func NewStoreCatalog(db Querier) *StoreCatalog {
	return &StoreCatalog{db: db}
}

func (c *StoreCatalog) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	product := &domain.Product{}

	err := c.db.QueryRowContext(ctx, `
		SELECT id, name, price
		FROM store_products
		WHERE id = $1 AND NOT is_deleted
	`, id).Scan(&product.ID, &product.Name, &product.Price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("store product %s: %w", id, domain.ErrProductNotFound)
		}
		return nil, err
	}

	return product, nil
}
