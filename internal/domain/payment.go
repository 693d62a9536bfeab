package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

type PaymentType string

const (
	PaymentTypeOrder  PaymentType = "order_payment"
	PaymentTypePayout PaymentType = "vendor_payout"
)

const (
	PaymentMethodGateway = "razorpay"
	PaymentMethodManual  = "manual"
)

type Payment struct {
	ID             string          `json:"id"`
	OrderID        *string         `json:"order_id,omitempty"`
	VendorID       *string         `json:"vendor_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Method         string          `json:"method"`
	Status         PaymentStatus   `json:"status"`
	Type           PaymentType     `json:"type"`
	TransactionID  *string         `json:"transaction_id,omitempty"`
	GatewayOrderID *string         `json:"gateway_order_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// GatewayOrder is what the payment gateway hands back when a checkout starts.
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}
