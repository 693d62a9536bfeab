package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderSettledEvent struct {
	OrderID       string          `json:"order_id"`
	UserID        string          `json:"user_id"`
	TransactionID string          `json:"transaction_id"`
	Total         decimal.Decimal `json:"total"`
	Items         []OrderItem     `json:"items"`
	Commissions   []Commission    `json:"commissions"`
	Timestamp     time.Time       `json:"timestamp"`
}

type PayoutRecordedEvent struct {
	PaymentID string          `json:"payment_id"`
	VendorID  string          `json:"vendor_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Timestamp time.Time       `json:"timestamp"`
}
