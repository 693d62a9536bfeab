package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/commission"
	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/domain"
)

var tracer = otel.Tracer("settlement")

type SignatureVerifier interface {
	Verify(orderRef, paymentRef, signature string) error
}

type CartSnapshotter interface {
	Snapshot(ctx context.Context, userID string) ([]domain.SnapshotLine, error)
}

type Committer interface {
	Commit(ctx context.Context, in CommitInput) (*CommitResult, error)
	FindSettled(ctx context.Context, transactionID string) (*Settled, error)
	VendorRates(ctx context.Context, vendorIDs []string) (map[string]decimal.NullDecimal, error)
}

type PaymentGateway interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*domain.GatewayOrder, error)
	FetchOrder(ctx context.Context, orderID string) (*domain.GatewayOrder, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Service struct {
	verifier  SignatureVerifier
	snapshots CartSnapshotter
	store     Committer
	gateway   PaymentGateway
	allocator *commission.Allocator
	publisher EventPublisher
	currency  string
	logger    *slog.Logger
	metrics   *metrics
	now       func() time.Time
}

type Config struct {
	Verifier  SignatureVerifier
	Snapshots CartSnapshotter
	Store     Committer
	// Gateway may be nil; gateway orders then cannot be opened and settled
	// totals are not checked against the charged amount.
	Gateway   PaymentGateway
	Allocator *commission.Allocator
	// Publisher may be nil, in which case no settlement events are emitted.
	Publisher EventPublisher
	Currency  string
	Logger    *slog.Logger
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Verifier == nil {
		return nil, errors.New("settlement: signature verifier required")
	}
	if cfg.Snapshots == nil {
		return nil, errors.New("settlement: cart snapshotter required")
	}
	if cfg.Store == nil {
		return nil, errors.New("settlement: store required")
	}
	if cfg.Allocator == nil {
		return nil, errors.New("settlement: commission allocator required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}

	m, err := newMetrics()
	if err != nil {
		return nil, fmt.Errorf("settlement metrics: %w", err)
	}

	return &Service{
		verifier:  cfg.Verifier,
		snapshots: cfg.Snapshots,
		store:     cfg.Store,
		gateway:   cfg.Gateway,
		allocator: cfg.Allocator,
		publisher: cfg.Publisher,
		currency:  cfg.Currency,
		logger:    cfg.Logger,
		metrics:   m,
		now:       time.Now,
	}, nil
}

// SettleRequest is a payment confirmation as handed back by the gateway.
type SettleRequest struct {
	UserID           string          `json:"user_id"`
	GatewayOrderID   string          `json:"gateway_order_id"`
	GatewayPaymentID string          `json:"gateway_payment_id"`
	Signature        string          `json:"signature"`
	ShippingAddress  *domain.Address `json:"shipping_address,omitempty"`
}

func (r SettleRequest) validate() error {
	if r.UserID == "" {
		return fmt.Errorf("user id is required: %w", domain.ErrValidation)
	}
	if r.GatewayOrderID == "" || r.GatewayPaymentID == "" {
		return fmt.Errorf("gateway order and payment ids are required: %w", domain.ErrValidation)
	}
	if r.Signature == "" {
		return fmt.Errorf("signature is required: %w", domain.ErrValidation)
	}
	return nil
}

type SettleResult struct {
	OrderID       string              `json:"order_id"`
	TransactionID string              `json:"transaction_id"`
	Total         decimal.Decimal     `json:"total"`
	Commissions   []domain.Commission `json:"commissions,omitempty"`
	// Duplicate is set when the transaction had already been settled; the
	// result then describes the earlier order.
	Duplicate bool `json:"duplicate"`
	// AmountMismatch is set when the gateway order was opened for a different
	// amount than the settled total.
	AmountMismatch bool `json:"amount_mismatch,omitempty"`
}

// Settle verifies a payment confirmation and converts the user's cart into a
// paid order. Replays of an already settled transaction return the original
// order with Duplicate set.
func (s *Service) Settle(ctx context.Context, req SettleRequest) (result *SettleResult, err error) {
	started := s.now()
	ctx, span := tracer.Start(ctx, "settlement.settle")
	span.SetAttributes(
		attribute.String("user.id", req.UserID),
		attribute.String("payment.transaction_id", req.GatewayPaymentID),
	)
	defer func() {
		outcome := outcomeOf(result, err)
		s.metrics.record(ctx, outcome, started)
		span.SetAttributes(attribute.String("settlement.outcome", outcome))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := req.validate(); err != nil {
		return nil, err
	}

	if err := s.verifier.Verify(req.GatewayOrderID, req.GatewayPaymentID, req.Signature); err != nil {
		s.logger.Warn("payment signature rejected", "user_id", req.UserID, "gateway_order_id", req.GatewayOrderID, "error", err)
		return nil, err
	}

	if existing, err := s.existing(ctx, req.UserID, req.GatewayPaymentID); err != nil || existing != nil {
		return existing, err
	}

	lines, err := s.snapshots.Snapshot(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyCart) {
			return s.resolveReplay(ctx, req.UserID, req.GatewayPaymentID, err)
		}
		return nil, fmt.Errorf("snapshot cart: %w", err)
	}

	committed, err := s.store.Commit(ctx, CommitInput{
		UserID:          req.UserID,
		Lines:           lines,
		TransactionID:   req.GatewayPaymentID,
		GatewayOrderID:  req.GatewayOrderID,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicatePayment) || errors.Is(err, domain.ErrEmptyCart) {
			return s.resolveReplay(ctx, req.UserID, req.GatewayPaymentID, err)
		}
		s.logger.Error("settlement failed", "user_id", req.UserID, "transaction_id", req.GatewayPaymentID, "retryable", domain.IsRetryable(err), "error", err)
		return nil, err
	}

	order := committed.Order
	s.logger.Info("order settled",
		"order_id", order.ID,
		"user_id", order.UserID,
		"transaction_id", req.GatewayPaymentID,
		"total", order.Total.StringFixed(2),
		"commissions", len(committed.Commissions),
	)

	total, _ := order.Total.Float64()
	s.metrics.revenue.Add(ctx, total)
	for _, c := range committed.Commissions {
		amount, _ := c.Amount.Float64()
		s.metrics.commission.Add(ctx, amount, metricVendor(c.VendorID))
	}

	mismatch := s.chargedAmountDiffers(ctx, req.GatewayOrderID, order)
	span.SetAttributes(attribute.Bool("settlement.amount_mismatch", mismatch))

	s.publishSettled(ctx, req.GatewayPaymentID, committed)

	return &SettleResult{
		OrderID:        order.ID,
		TransactionID:  req.GatewayPaymentID,
		Total:          order.Total,
		Commissions:    committed.Commissions,
		AmountMismatch: mismatch,
	}, nil
}

// chargedAmountDiffers compares the settled total with the amount the gateway
// order was opened for. The cart may change between opening the gateway order
// and paying, so a difference is reported for reconciliation, not refused. A
// failed lookup is logged and reported as no difference.
func (s *Service) chargedAmountDiffers(ctx context.Context, gatewayOrderID string, order *domain.Order) bool {
	if s.gateway == nil {
		return false
	}

	settled, err := MinorUnits(order.Total)
	if err != nil {
		s.logger.Warn("settled total has no minor-unit form", "order_id", order.ID, "total", order.Total.String(), "error", err)
		return false
	}

	charged, err := s.gateway.FetchOrder(ctx, gatewayOrderID)
	if err != nil {
		s.logger.Warn("gateway order lookup failed", "order_id", order.ID, "gateway_order_id", gatewayOrderID, "error", err)
		return false
	}
	if charged.Amount == settled {
		return false
	}

	s.logger.Warn("settled total differs from gateway order amount",
		"order_id", order.ID,
		"gateway_order_id", gatewayOrderID,
		"settled_minor", settled,
		"charged_minor", charged.Amount,
		"currency", charged.Currency,
	)
	s.metrics.mismatches.Add(ctx, 1)
	return true
}

// existing returns the earlier settlement of transactionID. A transaction
// settled for a different user is reported as a duplicate payment without
// revealing that user's order.
func (s *Service) existing(ctx context.Context, userID, transactionID string) (*SettleResult, error) {
	settled, err := s.store.FindSettled(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("look up transaction %s: %w", transactionID, err)
	}
	if settled == nil {
		return nil, nil
	}
	if settled.UserID != userID {
		s.logger.Warn("transaction settled for another user", "user_id", userID, "transaction_id", transactionID)
		return nil, fmt.Errorf("transaction %s: %w", transactionID, domain.ErrDuplicatePayment)
	}
	s.logger.Info("payment already settled", "order_id", settled.OrderID, "transaction_id", transactionID)
	return &SettleResult{
		OrderID:       settled.OrderID,
		TransactionID: transactionID,
		Total:         settled.Amount,
		Duplicate:     true,
	}, nil
}

// resolveReplay turns a lost race against a settlement of the same
// transaction into the idempotent result. Any other cause keeps cause.
func (s *Service) resolveReplay(ctx context.Context, userID, transactionID string, cause error) (*SettleResult, error) {
	existing, err := s.existing(ctx, userID, transactionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return nil, cause
}

func (s *Service) publishSettled(ctx context.Context, transactionID string, committed *CommitResult) {
	if s.publisher == nil {
		return
	}
	order := committed.Order
	event := domain.OrderSettledEvent{
		OrderID:       order.ID,
		UserID:        order.UserID,
		TransactionID: transactionID,
		Total:         order.Total,
		Items:         order.Items,
		Commissions:   committed.Commissions,
		Timestamp:     order.CreatedAt,
	}
	if err := s.publisher.Publish(ctx, order.ID, event); err != nil {
		s.logger.Error("failed to publish order settled event", "error", err, "order_id", order.ID)
	}
}

// Preview is the checkout summary shown before the user pays.
type Preview struct {
	Lines       []domain.SnapshotLine   `json:"lines"`
	Total       decimal.Decimal         `json:"total"`
	Commissions []commission.Allocation `json:"commissions"`
}

func (s *Service) Preview(ctx context.Context, userID string) (*Preview, error) {
	lines, err := s.snapshots.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	items := make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, domain.OrderItem{Product: line.Product, VendorID: line.VendorID, Price: line.UnitPrice, Quantity: line.Quantity})
	}

	rates, err := s.store.VendorRates(ctx, commission.VendorIDs(items))
	if err != nil {
		return nil, err
	}
	allocations, err := s.allocator.Allocate(items, rates)
	if err != nil {
		return nil, err
	}

	return &Preview{Lines: lines, Total: domain.SnapshotTotal(lines), Commissions: allocations}, nil
}

// CreateGatewayOrder opens a gateway order for the current cart total.
func (s *Service) CreateGatewayOrder(ctx context.Context, userID string) (*domain.GatewayOrder, error) {
	if s.gateway == nil {
		return nil, errors.New("settlement: payment gateway not configured")
	}

	lines, err := s.snapshots.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	amount, err := MinorUnits(domain.SnapshotTotal(lines))
	if err != nil {
		return nil, err
	}

	receipt := fmt.Sprintf("receipt_%d_%s", s.now().UnixMilli(), truncate(userID, 5))
	order, err := s.gateway.CreateOrder(ctx, amount, s.currency, receipt)
	if err != nil {
		return nil, fmt.Errorf("create gateway order: %w", err)
	}

	s.logger.Info("gateway order created", "user_id", userID, "gateway_order_id", order.ID, "amount", amount, "currency", s.currency)
	return order, nil
}

// MinorUnits converts a two-decimal amount to the currency's smallest unit.
func MinorUnits(amount decimal.Decimal) (int64, error) {
	minor := amount.Shift(2)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("amount %s has sub-minor-unit precision: %w", amount, domain.ErrValidation)
	}
	if minor.IsNegative() {
		return 0, fmt.Errorf("amount %s is negative: %w", amount, domain.ErrValidation)
	}
	return minor.IntPart(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func outcomeOf(result *SettleResult, err error) string {
	switch {
	case err == nil && result != nil && result.Duplicate:
		return "duplicate"
	case err == nil:
		return "settled"
	case errors.Is(err, domain.ErrSignatureMismatch):
		return "signature_mismatch"
	case errors.Is(err, domain.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case domain.IsRetryable(err):
		return "retryable"
	default:
		return "error"
	}
}
