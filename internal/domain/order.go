package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

type OrderPaymentStatus string

const (
	OrderPaymentPending OrderPaymentStatus = "pending"
	OrderPaymentPaid    OrderPaymentStatus = "paid"
	OrderPaymentFailed  OrderPaymentStatus = "failed"
)

// SettledPaymentStatuses are the order payment states that count as revenue.
// "success" is accepted for rows written by older checkouts.
var SettledPaymentStatuses = []string{string(OrderPaymentPaid), "success"}

type Address struct {
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
}

type OrderItem struct {
	ID       string          `json:"id"`
	OrderID  string          `json:"order_id"`
	Product  ProductRef      `json:"product"`
	VendorID *string         `json:"vendor_id,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Status   OrderStatus     `json:"status"`
}

func (i OrderItem) Extended() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID              string             `json:"id"`
	UserID          string             `json:"user_id"`
	Items           []OrderItem        `json:"items"`
	Total           decimal.Decimal    `json:"total"`
	PaymentStatus   OrderPaymentStatus `json:"payment_status"`
	Status          OrderStatus        `json:"status"`
	ShippingAddress *Address           `json:"shipping_address,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}
