package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/domain"
)

const orderColumns = `
	o.id, o.user_id, o.total, o.payment_status, o.status, o.created_at,
	a.address, a.city, a.state, a.pincode`

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order                         domain.Order
		address, city, state, pincode sql.NullString
	)
	err := row.Scan(&order.ID, &order.UserID, &order.Total, &order.PaymentStatus, &order.Status, &order.CreatedAt,
		&address, &city, &state, &pincode)
	if err != nil {
		return nil, err
	}
	if address.Valid {
		order.ShippingAddress = &domain.Address{
			Address: address.String,
			City:    city.String,
			State:   state.String,
			Pincode: pincode.String,
		}
	}
	order.Items = []domain.OrderItem{}
	return &order, nil
}

func scanItem(row rowScanner) (domain.OrderItem, error) {
	var (
		item                            domain.OrderItem
		vendorProductID, storeProductID sql.NullString
		vendorID                        sql.NullString
	)
	if err := row.Scan(&item.ID, &item.OrderID, &vendorProductID, &storeProductID, &vendorID, &item.Price, &item.Quantity, &item.Status); err != nil {
		return item, err
	}
	if vendorProductID.Valid {
		item.Product = domain.VendorProduct(vendorProductID.String)
	} else {
		item.Product = domain.StoreProduct(storeProductID.String)
	}
	if vendorID.Valid {
		item.VendorID = &vendorID.String
	}
	return item, nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT`+orderColumns+`
		FROM orders o
		LEFT JOIN shipping_addresses a ON a.order_id = o.id
		WHERE o.id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", id, domain.ErrOrderNotFound)
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, vendor_product_id, store_product_id, vendor_id, price, quantity, status
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return order, nil
}

// ListByUser returns a user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required: %w", domain.ErrValidation)
	}
	return r.list(ctx, `
		SELECT`+orderColumns+`
		FROM orders o
		LEFT JOIN shipping_addresses a ON a.order_id = o.id
		WHERE o.user_id = $1
		ORDER BY o.created_at DESC
	`, "", userID)
}

// ListByVendor returns orders containing the vendor's products. Each order
// carries only that vendor's items.
func (r *OrderRepository) ListByVendor(ctx context.Context, vendorID string) ([]domain.Order, error) {
	if vendorID == "" {
		return nil, fmt.Errorf("vendor id is required: %w", domain.ErrValidation)
	}
	return r.list(ctx, `
		SELECT`+orderColumns+`
		FROM orders o
		LEFT JOIN shipping_addresses a ON a.order_id = o.id
		WHERE EXISTS (
			SELECT 1 FROM order_items i WHERE i.order_id = o.id AND i.vendor_id = $1
		)
		ORDER BY o.created_at DESC
	`, vendorID, vendorID)
}

// ListAll returns every order, newest first, for back-office review.
func (r *OrderRepository) ListAll(ctx context.Context) ([]domain.Order, error) {
	return r.list(ctx, `
		SELECT`+orderColumns+`
		FROM orders o
		LEFT JOIN shipping_addresses a ON a.order_id = o.id
		ORDER BY o.created_at DESC
	`, "")
}

// list loads the orders selected by query and batch-loads their items. A
// non-empty itemVendorID restricts the items to that vendor's.
func (r *OrderRepository) list(ctx context.Context, query, itemVendorID string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orderMap[order.ID] = order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	itemQuery := `
		SELECT id, order_id, vendor_product_id, store_product_id, vendor_id, price, quantity, status
		FROM order_items
		WHERE order_id = ANY($1)`
	itemArgs := []any{pq.Array(orderIDs)}
	if itemVendorID != "" {
		itemQuery += ` AND vendor_id = $2`
		itemArgs = append(itemArgs, itemVendorID)
	}
	itemQuery += `
		ORDER BY id`

	itemRows, err := r.db.QueryContext(ctx, itemQuery, itemArgs...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		item, err := scanItem(itemRows)
		if err != nil {
			return nil, err
		}
		if order, ok := orderMap[item.OrderID]; ok {
			order.Items = append(order.Items, item)
		}
	}

	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

// UpdateStatus moves an order through fulfilment. Totals and payment state
// are never touched here.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown order status %q: %w", status, domain.ErrValidation)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, id)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	if rowsAffected == 0 {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrOrderNotFound)
	}

	return r.GetByID(ctx, id)
}

func (r *OrderRepository) UpdateItemStatus(ctx context.Context, orderID, itemID string, status domain.OrderStatus) (*domain.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown item status %q: %w", status, domain.ErrValidation)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE order_items SET status = $1
		WHERE id = $2 AND order_id = $3
	`, status, itemID, orderID)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	if rowsAffected == 0 {
		return nil, fmt.Errorf("order %s item %s: %w", orderID, itemID, domain.ErrNotFound)
	}

	return r.GetByID(ctx, orderID)
}
