package domain

import "github.com/shopspring/decimal"

type VendorStatus string

const (
	VendorStatusPending  VendorStatus = "pending"
	VendorStatusApproved VendorStatus = "approved"
	VendorStatusRejected VendorStatus = "rejected"
)

type Vendor struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	CommissionRate decimal.NullDecimal `json:"commission_rate"`
	Status         VendorStatus        `json:"status"`
	PayoutAccount  *BankAccount        `json:"payout_account,omitempty"`
}

// BankAccount is where a vendor's payouts are sent.
type BankAccount struct {
	AccountNumber string `json:"account_number"`
	IFSC          string `json:"ifsc"`
}

type Commission struct {
	ID       string          `json:"id"`
	VendorID string          `json:"vendor_id"`
	OrderID  string          `json:"order_id"`
	Amount   decimal.Decimal `json:"amount"`
}

// LedgerEntry is a vendor's running account as seen by payout reporting.
type LedgerEntry struct {
	Vendor          Vendor          `json:"vendor"`
	GrossSales      decimal.Decimal `json:"gross_sales"`
	TotalCommission decimal.Decimal `json:"total_commission"`
	TotalPaidOut    decimal.Decimal `json:"total_paid_out"`
	Balance         decimal.Decimal `json:"balance"`
}

// NewLedgerEntry derives the balance. Negative balances mean the vendor was
// paid out more than earned and are kept as is.
func NewLedgerEntry(v Vendor, gross, commission, paidOut decimal.Decimal) LedgerEntry {
	return LedgerEntry{
		Vendor:          v,
		GrossSales:      gross,
		TotalCommission: commission,
		TotalPaidOut:    paidOut,
		Balance:         gross.Sub(commission).Sub(paidOut),
	}
}
