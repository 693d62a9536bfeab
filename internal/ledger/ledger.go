package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/domain"
)

// balancesQuery aggregates every ledger figure in one statement so the four
// numbers of an entry come from the same snapshot.
const balancesQuery = `
	SELECT v.id, v.name, v.commission_rate, v.status, v.bank_account, v.bank_ifsc,
		COALESCE(s.gross, 0), COALESCE(c.total, 0), COALESCE(p.total, 0)
	FROM vendors v
	LEFT JOIN (
		SELECT i.vendor_id, SUM(i.price * i.quantity) AS gross
		FROM order_items i
		JOIN orders o ON o.id = i.order_id
		WHERE o.payment_status = ANY($1)
		GROUP BY i.vendor_id
	) s ON s.vendor_id = v.id
	LEFT JOIN (
		SELECT vendor_id, SUM(commission_amount) AS total
		FROM commissions
		GROUP BY vendor_id
	) c ON c.vendor_id = v.id
	LEFT JOIN (
		SELECT vendor_id, SUM(amount) AS total
		FROM payments
		WHERE payment_type = $2 AND status = $3
		GROUP BY vendor_id
	) p ON p.vendor_id = v.id`

type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Ledger struct {
	db        *sql.DB
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// New builds a ledger. publisher may be nil.
func New(db *sql.DB, publisher EventPublisher, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		db:        db,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (l *Ledger) ForVendor(ctx context.Context, vendorID string) (*domain.LedgerEntry, error) {
	if vendorID == "" {
		return nil, fmt.Errorf("vendor id is required: %w", domain.ErrValidation)
	}

	entries, err := l.query(ctx, `
	WHERE v.id = $4`, vendorID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("vendor %s: %w", vendorID, domain.ErrVendorNotFound)
	}
	return &entries[0], nil
}

// ForApprovedVendors returns one entry per approved vendor, including vendors
// with no sales yet.
func (l *Ledger) ForApprovedVendors(ctx context.Context) ([]domain.LedgerEntry, error) {
	return l.query(ctx, `
	WHERE v.status = $4
	ORDER BY v.name, v.id`, string(domain.VendorStatusApproved))
}

func (l *Ledger) query(ctx context.Context, filter string, arg string) ([]domain.LedgerEntry, error) {
	rows, err := l.db.QueryContext(ctx, balancesQuery+filter,
		pq.Array(domain.SettledPaymentStatuses), domain.PaymentTypePayout, domain.PaymentStatusSuccess, arg)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []domain.LedgerEntry{}
	for rows.Next() {
		var (
			v                         domain.Vendor
			account, ifsc             sql.NullString
			gross, commission, payout decimal.Decimal
		)
		if err := rows.Scan(&v.ID, &v.Name, &v.CommissionRate, &v.Status, &account, &ifsc, &gross, &commission, &payout); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		if account.Valid {
			v.PayoutAccount = &domain.BankAccount{AccountNumber: account.String, IFSC: ifsc.String}
		}
		entries = append(entries, domain.NewLedgerEntry(v, gross, commission, payout))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}

	return entries, nil
}

type PayoutInput struct {
	VendorID string          `json:"vendor_id"`
	Amount   decimal.Decimal `json:"amount"`
	Method   string          `json:"method"`
	// Reference is the bank or UPI transfer id, if any.
	Reference string `json:"reference"`
}

func (in *PayoutInput) normalize() error {
	if in.VendorID == "" {
		return fmt.Errorf("vendor id is required: %w", domain.ErrValidation)
	}
	if !in.Amount.IsPositive() {
		return fmt.Errorf("payout amount must be positive: %w", domain.ErrValidation)
	}
	if !in.Amount.Equal(in.Amount.Round(2)) {
		return fmt.Errorf("payout amount %s has more than two decimals: %w", in.Amount, domain.ErrValidation)
	}
	if in.Method == "" {
		in.Method = domain.PaymentMethodManual
	}
	return nil
}

// RecordPayout appends a successful vendor payout. It never goes through
// settlement and never touches orders.
func (l *Ledger) RecordPayout(ctx context.Context, in PayoutInput) (*domain.Payment, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	p := &domain.Payment{
		ID:        uuid.New().String(),
		VendorID:  &in.VendorID,
		Amount:    in.Amount,
		Method:    in.Method,
		Status:    domain.PaymentStatusSuccess,
		Type:      domain.PaymentTypePayout,
		CreatedAt: l.now().UTC(),
	}
	if in.Reference != "" {
		p.TransactionID = &in.Reference
	}

	err := l.db.QueryRowContext(ctx, `
		INSERT INTO payments (id, vendor_id, amount, method, status, payment_type, transaction_id, created_at)
		SELECT $1::text, v.id, $3::numeric, $4::text, $5::text, $6::text, $7::text, $8::timestamptz
		FROM vendors v
		WHERE v.id = $2
		RETURNING id
	`, p.ID, in.VendorID, p.Amount, p.Method, p.Status, p.Type, p.TransactionID, p.CreatedAt).Scan(&p.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("vendor %s: %w", in.VendorID, domain.ErrVendorNotFound)
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, fmt.Errorf("payout reference %s: %w", in.Reference, domain.ErrDuplicatePayment)
		}
		return nil, fmt.Errorf("record payout: %w", err)
	}

	l.logger.Info("vendor payout recorded",
		"payment_id", p.ID,
		"vendor_id", in.VendorID,
		"amount", p.Amount.StringFixed(2),
		"method", p.Method,
	)

	if l.publisher != nil {
		event := domain.PayoutRecordedEvent{
			PaymentID: p.ID,
			VendorID:  in.VendorID,
			Amount:    p.Amount,
			Method:    p.Method,
			Timestamp: p.CreatedAt,
		}
		if err := l.publisher.Publish(ctx, in.VendorID, event); err != nil {
			l.logger.Error("failed to publish payout recorded event", "error", err, "payment_id", p.ID)
		}
	}

	return p, nil
}
