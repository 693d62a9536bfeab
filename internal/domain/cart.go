package domain

import "github.com/shopspring/decimal"

type CartLine struct {
	ID       int64      `json:"id"`
	UserID   string     `json:"user_id"`
	Product  ProductRef `json:"product"`
	Quantity int        `json:"quantity"`
}

// SnapshotLine is a cart line resolved against its catalog at checkout time.
type SnapshotLine struct {
	CartLineID int64           `json:"cart_line_id"`
	Product    ProductRef      `json:"product"`
	VendorID   *string         `json:"vendor_id,omitempty"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int             `json:"quantity"`
}

func (l SnapshotLine) Extended() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// SnapshotTotal sums price x quantity over the lines.
func SnapshotTotal(lines []SnapshotLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Extended())
	}
	return total
}
