package cart

import (
	"context"
	"fmt"

	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/domain"
)

type LineReader interface {
	ListLines(ctx context.Context, userID string) ([]domain.CartLine, error)
}

type ProductFinder interface {
	FindByID(ctx context.Context, id string) (*domain.Product, error)
}

// Snapshotter resolves a user's cart against the vendor and first-party
// catalogs. It never writes.
type Snapshotter struct {
	lines  LineReader
	vendor ProductFinder
	store  ProductFinder
}

func NewSnapshotter(lines LineReader, vendorCatalog, storeCatalog ProductFinder) *Snapshotter {
	return &Snapshotter{
		lines:  lines,
		vendor: vendorCatalog,
		store:  storeCatalog,
	}
}

func (s *Snapshotter) Snapshot(ctx context.Context, userID string) ([]domain.SnapshotLine, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required: %w", domain.ErrValidation)
	}

	lines, err := s.lines.ListLines(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart lines: %w", err)
	}
	if len(lines) == 0 {
		return nil, domain.ErrEmptyCart
	}

	snapshot := make([]domain.SnapshotLine, 0, len(lines))
	for _, line := range lines {
		resolved, err := s.resolve(ctx, line)
		if err != nil {
			return nil, err
		}
		snapshot = append(snapshot, resolved)
	}

	return snapshot, nil
}

func (s *Snapshotter) resolve(ctx context.Context, line domain.CartLine) (domain.SnapshotLine, error) {
	if line.Quantity <= 0 {
		return domain.SnapshotLine{}, fmt.Errorf("cart line %d has quantity %d: %w", line.ID, line.Quantity, domain.ErrValidation)
	}

	var finder ProductFinder
	switch line.Product.Origin {
	case domain.OriginVendor:
		finder = s.vendor
	case domain.OriginStore:
		finder = s.store
	default:
		return domain.SnapshotLine{}, fmt.Errorf("cart line %d: %w", line.ID, line.Product.Validate())
	}

	product, err := finder.FindByID(ctx, line.Product.ID)
	if err != nil {
		return domain.SnapshotLine{}, fmt.Errorf("resolve %s: %w", line.Product, err)
	}

	snap := domain.SnapshotLine{
		CartLineID: line.ID,
		Product:    line.Product,
		UnitPrice:  product.Price,
		Quantity:   line.Quantity,
	}
	if line.Product.Origin == domain.OriginVendor {
		if product.VendorID == nil || *product.VendorID == "" {
			return domain.SnapshotLine{}, fmt.Errorf("vendor product %s has no vendor: %w", product.ID, domain.ErrVendorNotFound)
		}
		vendorID := *product.VendorID
		snap.VendorID = &vendorID
	}

	return snap, nil
}
