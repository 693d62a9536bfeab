package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/domain"
)

type CartRepository struct {
	db *sql.DB
}

func NewCartRepository(db *sql.DB) *CartRepository {
	return &CartRepository{db: db}
}

// ListLines returns the user's cart in insertion order.
func (r *CartRepository) ListLines(ctx context.Context, userID string) ([]domain.CartLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, vendor_product_id, store_product_id, quantity
		FROM cart_lines
		WHERE user_id = $1
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var lines []domain.CartLine
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return lines, nil
}

// AddLine inserts a line or bumps the quantity of the existing line for the
// same product.
func (r *CartRepository) AddLine(ctx context.Context, userID string, ref domain.ProductRef, quantity int) (*domain.CartLine, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required: %w", domain.ErrValidation)
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive: %w", domain.ErrValidation)
	}

	var vendorProductID, storeProductID sql.NullString
	conflictTarget := "(user_id, store_product_id) WHERE store_product_id IS NOT NULL"
	if ref.Origin == domain.OriginVendor {
		vendorProductID = sql.NullString{String: ref.ID, Valid: true}
		conflictTarget = "(user_id, vendor_product_id) WHERE vendor_product_id IS NOT NULL"
	} else {
		storeProductID = sql.NullString{String: ref.ID, Valid: true}
	}

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO cart_lines (user_id, vendor_product_id, store_product_id, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT `+conflictTarget+`
		DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity
		RETURNING id, user_id, vendor_product_id, store_product_id, quantity
	`, userID, vendorProductID, storeProductID, quantity)

	line, err := scanLine(row)
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// UpdateQuantity sets the quantity of one of the user's lines. Lines of other
// users are reported as not found.
func (r *CartRepository) UpdateQuantity(ctx context.Context, userID string, lineID int64, quantity int) (*domain.CartLine, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive: %w", domain.ErrValidation)
	}

	row := r.db.QueryRowContext(ctx, `
		UPDATE cart_lines
		SET quantity = $3
		WHERE id = $1 AND user_id = $2
		RETURNING id, user_id, vendor_product_id, store_product_id, quantity
	`, lineID, userID, quantity)

	line, err := scanLine(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCartLineNotFound
	}
	if err != nil {
		return nil, err
	}
	return &line, nil
}

func (r *CartRepository) RemoveLine(ctx context.Context, userID string, lineID int64) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM cart_lines
		WHERE id = $1 AND user_id = $2
	`, lineID, userID)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrCartLineNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLine(s scanner) (domain.CartLine, error) {
	var (
		line            domain.CartLine
		vendorProductID sql.NullString
		storeProductID  sql.NullString
	)
	if err := s.Scan(&line.ID, &line.UserID, &vendorProductID, &storeProductID, &line.Quantity); err != nil {
		return domain.CartLine{}, err
	}

	switch {
	case vendorProductID.Valid:
		line.Product = domain.VendorProduct(vendorProductID.String)
	case storeProductID.Valid:
		line.Product = domain.StoreProduct(storeProductID.String)
	default:
		return domain.CartLine{}, fmt.Errorf("cart line %d references no product", line.ID)
	}

	return line, nil
}
