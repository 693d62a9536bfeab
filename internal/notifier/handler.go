package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/domain"
	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/messaging"
)

// Handler turns settlement events into email requests for customers and
// vendors.
//
// A message is redelivered when any of its emails fails. Recipients already
// reached for that message are skipped on redelivery, and every request carries
// an Idempotency-Key so the email service can drop repeats across restarts.
type Handler struct {
	emailServiceURL string
	httpClient      *http.Client
	logger          *slog.Logger

	mu sync.Mutex
	// delivered holds, per message, the recipients already emailed. A message
	// is forgotten once all of its emails went out.
	delivered map[string]map[string]struct{}
}

func NewHandler(emailServiceURL string, client *http.Client, logger *slog.Logger) *Handler {
	return &Handler{
		emailServiceURL: emailServiceURL,
		httpClient:      client,
		logger:          logger,
		delivered:       make(map[string]map[string]struct{}),
	}
}

type RecipientKind string

const (
	RecipientCustomer RecipientKind = "customer"
	RecipientVendor   RecipientKind = "vendor"
)

// Email is the email service request. Addresses are resolved by the email
// service from the account id.
type Email struct {
	RecipientKind RecipientKind `json:"recipient_kind"`
	RecipientID   string        `json:"recipient_id"`
	Subject       string        `json:"subject"`
	Body          string        `json:"body"`
}

type vendorSale struct {
	revenue    decimal.Decimal
	commission decimal.Decimal
	items      int
}

func (h *Handler) HandleOrderSettled(ctx context.Context, payload []byte) error {
	var event domain.OrderSettledEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order settled event: %w", errors.Join(messaging.ErrSkip, err))
	}

	h.logger.Info("processing order settled event", "order_id", event.OrderID, "user_id", event.UserID)

	emails := []Email{{
		RecipientKind: RecipientCustomer,
		RecipientID:   event.UserID,
		Subject:       "Order Confirmation: " + event.OrderID,
		Body: fmt.Sprintf("Your payment of %s was received. Order %s has %d items and is being prepared.",
			event.Total.StringFixed(2), event.OrderID, len(event.Items)),
	}}

	sales := vendorSales(event)
	vendorIDs := make([]string, 0, len(sales))
	for id := range sales {
		vendorIDs = append(vendorIDs, id)
	}
	sort.Strings(vendorIDs)

	for _, vendorID := range vendorIDs {
		sale := sales[vendorID]
		emails = append(emails, Email{
			RecipientKind: RecipientVendor,
			RecipientID:   vendorID,
			Subject:       "New Order: " + event.OrderID,
			Body: fmt.Sprintf("Order %s includes %d of your items worth %s. Marketplace commission: %s.",
				event.OrderID, sale.items, sale.revenue.StringFixed(2), sale.commission.StringFixed(2)),
		})
	}

	if err := h.deliver(ctx, "order-settled/"+event.OrderID, emails); err != nil {
		h.logger.Error("failed to send order settled emails", "error", err, "order_id", event.OrderID)
		return err
	}

	h.logger.Info("order settled notifications sent", "order_id", event.OrderID, "vendors", len(vendorIDs))
	return nil
}

func (h *Handler) HandlePayoutRecorded(ctx context.Context, payload []byte) error {
	var event domain.PayoutRecordedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal payout recorded event: %w", errors.Join(messaging.ErrSkip, err))
	}

	if err := h.deliver(ctx, "payout/"+event.PaymentID, []Email{{
		RecipientKind: RecipientVendor,
		RecipientID:   event.VendorID,
		Subject:       "Payout Sent",
		Body:          fmt.Sprintf("A payout of %s was sent via %s (payment %s).", event.Amount.StringFixed(2), event.Method, event.PaymentID),
	}}); err != nil {
		h.logger.Error("failed to send payout email", "error", err, "payment_id", event.PaymentID)
		return fmt.Errorf("send payout email: %w", err)
	}

	h.logger.Info("payout notification sent", "payment_id", event.PaymentID, "vendor_id", event.VendorID)
	return nil
}

func vendorSales(event domain.OrderSettledEvent) map[string]*vendorSale {
	sales := make(map[string]*vendorSale)
	for _, item := range event.Items {
		if item.VendorID == nil {
			continue
		}
		sale, ok := sales[*item.VendorID]
		if !ok {
			sale = &vendorSale{revenue: decimal.Zero, commission: decimal.Zero}
			sales[*item.VendorID] = sale
		}
		sale.revenue = sale.revenue.Add(item.Extended())
		sale.items += item.Quantity
	}
	for _, c := range event.Commissions {
		if sale, ok := sales[c.VendorID]; ok {
			sale.commission = sale.commission.Add(c.Amount)
		}
	}
	return sales
}

// deliver sends emails in order, skipping recipients that already received
// this message's email on an earlier attempt.
func (h *Handler) deliver(ctx context.Context, messageKey string, emails []Email) error {
	for _, email := range emails {
		recipient := string(email.RecipientKind) + "/" + email.RecipientID
		if h.wasDelivered(messageKey, recipient) {
			h.logger.Info("skipping email already sent", "message", messageKey, "recipient", recipient)
			continue
		}
		if err := h.sendEmail(ctx, messageKey+"/"+recipient, email); err != nil {
			return fmt.Errorf("send %s email to %s: %w", email.RecipientKind, email.RecipientID, err)
		}
		h.markDelivered(messageKey, recipient)
	}

	h.mu.Lock()
	delete(h.delivered, messageKey)
	h.mu.Unlock()
	return nil
}

func (h *Handler) wasDelivered(messageKey, recipient string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.delivered[messageKey][recipient]
	return ok
}

func (h *Handler) markDelivered(messageKey, recipient string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.delivered[messageKey] == nil {
		h.delivered[messageKey] = make(map[string]struct{})
	}
	h.delivered[messageKey][recipient] = struct{}{}
}

func (h *Handler) sendEmail(ctx context.Context, idempotencyKey string, email Email) error {
	data, err := json.Marshal(email)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
