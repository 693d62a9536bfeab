package settlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/commission"
	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/domain"
)

const (
	DefaultTimeout     = 10 * time.Second
	DefaultLockTimeout = 5 * time.Second
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// CommitInput is everything needed to turn a verified payment and a cart
// snapshot into a paid order.
type CommitInput struct {
	UserID          string
	Lines           []domain.SnapshotLine
	TransactionID   string
	GatewayOrderID  string
	ShippingAddress *domain.Address
}

func (in CommitInput) validate() error {
	if in.UserID == "" {
		return fmt.Errorf("user id is required: %w", domain.ErrValidation)
	}
	if in.TransactionID == "" {
		return fmt.Errorf("payment transaction id is required: %w", domain.ErrValidation)
	}
	if len(in.Lines) == 0 {
		return domain.ErrEmptyCart
	}
	return nil
}

type CommitResult struct {
	Order       *domain.Order
	Payment     domain.Payment
	Commissions []domain.Commission
}

// Store writes settlements. Commit is the only path that turns a cart into a
// paid order.
type Store struct {
	db          *sql.DB
	allocator   *commission.Allocator
	timeout     time.Duration
	lockTimeout time.Duration
	now         func() time.Time
}

type StoreOption func(*Store)

func WithTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		s.timeout = d
	}
}

func WithLockTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		s.lockTimeout = d
	}
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(db *sql.DB, allocator *commission.Allocator, opts ...StoreOption) *Store {
	s := &Store{
		db:          db,
		allocator:   allocator,
		timeout:     DefaultTimeout,
		lockTimeout: DefaultLockTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Commit persists the order, its items, the payment, one commission per
// vendor, and clears the user's cart in one transaction. Nothing is written
// unless everything is.
func (s *Store) Commit(ctx context.Context, in CommitInput) (*CommitResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(ctx, fmt.Errorf("begin settlement: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	result, err := s.commit(ctx, tx, in)
	if err != nil {
		return nil, classify(ctx, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(ctx, fmt.Errorf("commit settlement: %w", err))
	}

	return result, nil
}

func (s *Store) commit(ctx context.Context, tx *sql.Tx, in CommitInput) (*CommitResult, error) {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", s.lockTimeout.Milliseconds())); err != nil {
		return nil, fmt.Errorf("set lock timeout: %w", err)
	}

	lineIDs, err := lockCart(ctx, tx, in.UserID, in.Lines)
	if err != nil {
		return nil, err
	}

	createdAt := s.now().UTC()
	order := &domain.Order{
		ID:              uuid.New().String(),
		UserID:          in.UserID,
		PaymentStatus:   domain.OrderPaymentPaid,
		Status:          domain.OrderStatusPending,
		ShippingAddress: in.ShippingAddress,
		CreatedAt:       createdAt,
	}
	order.Total = decimal.Zero
	for _, line := range in.Lines {
		item := domain.OrderItem{
			ID:       uuid.New().String(),
			OrderID:  order.ID,
			Product:  line.Product,
			VendorID: line.VendorID,
			Price:    line.UnitPrice,
			Quantity: line.Quantity,
			Status:   domain.OrderStatusPending,
		}
		order.Items = append(order.Items, item)
		order.Total = order.Total.Add(item.Extended())
	}

	if err := insertOrder(ctx, tx, order); err != nil {
		return nil, err
	}

	txID, gatewayOrderID := in.TransactionID, in.GatewayOrderID
	pay := domain.Payment{
		ID:            uuid.New().String(),
		OrderID:       &order.ID,
		Amount:        order.Total,
		Method:        domain.PaymentMethodGateway,
		Status:        domain.PaymentStatusSuccess,
		Type:          domain.PaymentTypeOrder,
		TransactionID: &txID,
		CreatedAt:     createdAt,
	}
	if gatewayOrderID != "" {
		pay.GatewayOrderID = &gatewayOrderID
	}
	if err := insertPayment(ctx, tx, pay); err != nil {
		return nil, err
	}

	rates, err := vendorRates(ctx, tx, commission.VendorIDs(order.Items), true)
	if err != nil {
		return nil, err
	}
	allocations, err := s.allocator.Allocate(order.Items, rates)
	if err != nil {
		return nil, fmt.Errorf("allocate commissions for order %s: %w", order.ID, err)
	}

	commissions := make([]domain.Commission, 0, len(allocations))
	for _, alloc := range allocations {
		c := domain.Commission{
			ID:       uuid.New().String(),
			VendorID: alloc.VendorID,
			OrderID:  order.ID,
			Amount:   alloc.Amount,
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO commissions (id, vendor_id, order_id, commission_amount, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, c.ID, c.VendorID, c.OrderID, c.Amount, createdAt); err != nil {
			return nil, fmt.Errorf("insert commission for vendor %s: %w", c.VendorID, err)
		}
		commissions = append(commissions, c)
	}

	result, err := tx.ExecContext(ctx, `
		DELETE FROM cart_lines
		WHERE id = ANY($1) AND user_id = $2
	`, pq.Array(lineIDs), in.UserID)
	if err != nil {
		return nil, fmt.Errorf("clear cart: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("clear cart: %w", err)
	}
	if deleted != int64(len(lineIDs)) {
		return nil, fmt.Errorf("cleared %d of %d cart lines: %w", deleted, len(lineIDs), domain.ErrCartChanged)
	}

	return &CommitResult{Order: order, Payment: pay, Commissions: commissions}, nil
}

// lockCart takes row locks on the user's cart and checks it still matches
// the snapshot. A concurrent checkout that committed first leaves nothing to
// lock.
func lockCart(ctx context.Context, tx *sql.Tx, userID string, lines []domain.SnapshotLine) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, vendor_product_id, store_product_id, quantity
		FROM cart_lines
		WHERE user_id = $1
		ORDER BY id
		FOR UPDATE
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("lock cart: %w", err)
	}
	defer func() { _ = rows.Close() }()

	type lockedLine struct {
		ref      domain.ProductRef
		quantity int
	}
	locked := make(map[int64]lockedLine)
	for rows.Next() {
		var (
			id                              int64
			vendorProductID, storeProductID sql.NullString
			quantity                        int
		)
		if err := rows.Scan(&id, &vendorProductID, &storeProductID, &quantity); err != nil {
			return nil, fmt.Errorf("lock cart: %w", err)
		}
		ref := domain.StoreProduct(storeProductID.String)
		if vendorProductID.Valid {
			ref = domain.VendorProduct(vendorProductID.String)
		}
		locked[id] = lockedLine{ref: ref, quantity: quantity}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lock cart: %w", err)
	}

	if len(locked) == 0 {
		return nil, domain.ErrEmptyCart
	}
	if len(locked) != len(lines) {
		return nil, fmt.Errorf("cart has %d lines, snapshot has %d: %w", len(locked), len(lines), domain.ErrCartChanged)
	}

	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		current, ok := locked[line.CartLineID]
		if !ok || current.ref != line.Product || current.quantity != line.Quantity {
			return nil, fmt.Errorf("cart line %d: %w", line.CartLineID, domain.ErrCartChanged)
		}
		ids = append(ids, line.CartLineID)
	}

	return ids, nil
}

func insertOrder(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, total, payment_status, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, order.ID, order.UserID, order.Total, order.PaymentStatus, order.Status, order.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		var vendorProductID, storeProductID sql.NullString
		if item.Product.Origin == domain.OriginVendor {
			vendorProductID = sql.NullString{String: item.Product.ID, Valid: true}
		} else {
			storeProductID = sql.NullString{String: item.Product.ID, Valid: true}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, vendor_product_id, store_product_id, vendor_id, price, quantity, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, item.ID, order.ID, vendorProductID, storeProductID, item.VendorID, item.Price, item.Quantity, item.Status)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if addr := order.ShippingAddress; addr != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO shipping_addresses (order_id, address, city, state, pincode)
			VALUES ($1, $2, $3, $4, $5)
		`, order.ID, addr.Address, addr.City, addr.State, addr.Pincode)
		if err != nil {
			return fmt.Errorf("insert shipping address: %w", err)
		}
	}

	return nil
}

func insertPayment(ctx context.Context, tx *sql.Tx, p domain.Payment) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, amount, method, status, payment_type, transaction_id, gateway_order_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.OrderID, p.Amount, p.Method, p.Status, p.Type, p.TransactionID, p.GatewayOrderID, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// vendorRates loads commission rates. Every requested vendor must exist.
// With share set, the vendor rows stay locked until the transaction ends.
func vendorRates(ctx context.Context, q querier, vendorIDs []string, share bool) (map[string]decimal.NullDecimal, error) {
	rates := make(map[string]decimal.NullDecimal, len(vendorIDs))
	if len(vendorIDs) == 0 {
		return rates, nil
	}

	query := `
		SELECT id, commission_rate
		FROM vendors
		WHERE id = ANY($1)`
	if share {
		query += `
		FOR SHARE`
	}

	rows, err := q.QueryContext(ctx, query, pq.Array(vendorIDs))
	if err != nil {
		return nil, fmt.Errorf("load vendor rates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			id   string
			rate decimal.NullDecimal
		)
		if err := rows.Scan(&id, &rate); err != nil {
			return nil, fmt.Errorf("load vendor rates: %w", err)
		}
		rates[id] = rate
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load vendor rates: %w", err)
	}

	for _, id := range vendorIDs {
		if _, ok := rates[id]; !ok {
			return nil, fmt.Errorf("vendor %s: %w", id, domain.ErrVendorNotFound)
		}
	}

	return rates, nil
}

// VendorRates reads rates outside a settlement, for previews.
func (s *Store) VendorRates(ctx context.Context, vendorIDs []string) (map[string]decimal.NullDecimal, error) {
	return vendorRates(ctx, s.db, vendorIDs, false)
}

// Settled is the payment recorded for an external transaction id.
type Settled struct {
	OrderID       string
	UserID        string
	TransactionID string
	Amount        decimal.Decimal
}

// FindSettled looks up an order payment by its gateway transaction id.
// It returns nil when the transaction has not been settled.
func (s *Store) FindSettled(ctx context.Context, transactionID string) (*Settled, error) {
	settled := &Settled{TransactionID: transactionID}
	err := s.db.QueryRowContext(ctx, `
		SELECT p.order_id, o.user_id, p.amount
		FROM payments p
		JOIN orders o ON o.id = p.order_id
		WHERE p.transaction_id = $1 AND p.payment_type = $2
	`, transactionID, domain.PaymentTypeOrder).Scan(&settled.OrderID, &settled.UserID, &settled.Amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return settled, nil
}
