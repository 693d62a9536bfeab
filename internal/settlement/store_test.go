package settlement

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/commission"
	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/domain"
)

const (
	lockCartQuery     = "SELECT id, vendor_product_id, store_product_id, quantity FROM cart_lines WHERE user_id = \\$1 ORDER BY id FOR UPDATE"
	vendorRatesQuery  = "SELECT id, commission_rate FROM vendors WHERE id = ANY\\(\\$1\\) FOR SHARE"
	lockTimeoutStmt   = "SET LOCAL lock_timeout = 5000"
	clearCartStmt     = "DELETE FROM cart_lines WHERE id = ANY\\(\\$1\\) AND user_id = \\$2"
	insertPaymentStmt = "INSERT INTO payments"
)

func strPtr(s string) *string { return &s }

func mixedCartLines() []domain.SnapshotLine {
	return []domain.SnapshotLine{
		{CartLineID: 1, Product: domain.StoreProduct("SP-1"), UnitPrice: decimal.RequireFromString("30.00"), Quantity: 2},
		{CartLineID: 2, Product: domain.VendorProduct("VP-1"), VendorID: strPtr("v1"), UnitPrice: decimal.RequireFromString("40.00"), Quantity: 1},
	}
}

func lockedRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "vendor_product_id", "store_product_id", "quantity"}).
		AddRow(int64(1), nil, "SP-1", 2).
		AddRow(int64(2), "VP-1", nil, 1)
}

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	allocator, err := commission.NewAllocator(commission.DefaultRate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fixed := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	return NewStore(db, allocator, WithClock(func() time.Time { return fixed })), mock
}

func commitInput() CommitInput {
	return CommitInput{
		UserID:         "u1",
		Lines:          mixedCartLines(),
		TransactionID:  "pay_1",
		GatewayOrderID: "order_1",
		ShippingAddress: &domain.Address{
			Address: "12 Fern Street",
			City:    "Pune",
			State:   "MH",
			Pincode: "411001",
		},
	}
}

func TestStore_Commit(t *testing.T) {
	t.Run("writes order, items, payment, commission and clears cart", func(t *testing.T) {
		store, mock := newTestStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(lockTimeoutStmt).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(lockCartQuery).WithArgs("u1").WillReturnRows(lockedRows())
		mock.ExpectExec("INSERT INTO orders").
			WithArgs(sqlmock.AnyArg(), "u1", sqlmock.AnyArg(), "paid", "pending", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO order_items").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), nil, "SP-1", nil, sqlmock.AnyArg(), 2, "pending").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO order_items").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "VP-1", nil, "v1", sqlmock.AnyArg(), 1, "pending").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO shipping_addresses").
			WithArgs(sqlmock.AnyArg(), "12 Fern Street", "Pune", "MH", "411001").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(insertPaymentStmt).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "razorpay", "success", "order_payment", "pay_1", "order_1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(vendorRatesQuery).
			WillReturnRows(sqlmock.NewRows([]string{"id", "commission_rate"}).AddRow("v1", "0.2000"))
		mock.ExpectExec("INSERT INTO commissions").
			WithArgs(sqlmock.AnyArg(), "v1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(clearCartStmt).
			WithArgs(sqlmock.AnyArg(), "u1").
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		result, err := store.Commit(context.Background(), commitInput())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if result.Order.Total.StringFixed(2) != "100.00" {
			t.Errorf("expected total 100.00, got %s", result.Order.Total.StringFixed(2))
		}
		if result.Order.PaymentStatus != domain.OrderPaymentPaid {
			t.Errorf("expected payment status paid, got %s", result.Order.PaymentStatus)
		}
		if len(result.Commissions) != 1 {
			t.Fatalf("expected 1 commission, got %d", len(result.Commissions))
		}
		if c := result.Commissions[0]; c.VendorID != "v1" || c.Amount.StringFixed(2) != "8.00" || c.OrderID != result.Order.ID {
			t.Errorf("unexpected commission: %+v", c)
		}
		if !result.Payment.Amount.Equal(result.Order.Total) {
			t.Errorf("expected payment amount %s, got %s", result.Order.Total, result.Payment.Amount)
		}

		sum := decimal.Zero
		for _, item := range result.Order.Items {
			sum = sum.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
		if !sum.Equal(result.Order.Total) {
			t.Errorf("expected items to sum to total %s, got %s", result.Order.Total, sum)
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("database expectations were not met: %v", err)
		}
	})

	t.Run("empty cart at commit time writes nothing", func(t *testing.T) {
		store, mock := newTestStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(lockTimeoutStmt).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(lockCartQuery).WithArgs("u1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "vendor_product_id", "store_product_id", "quantity"}))
		mock.ExpectRollback()

		_, err := store.Commit(context.Background(), commitInput())
		if !errors.Is(err, domain.ErrEmptyCart) {
			t.Fatalf("expected ErrEmptyCart, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("database expectations were not met: %v", err)
		}
	})

	t.Run("cart edited after snapshot is a retryable conflict", func(t *testing.T) {
		store, mock := newTestStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(lockTimeoutStmt).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(lockCartQuery).WithArgs("u1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "vendor_product_id", "store_product_id", "quantity"}).
				AddRow(int64(1), nil, "SP-1", 3).
				AddRow(int64(2), "VP-1", nil, 1))
		mock.ExpectRollback()

		_, err := store.Commit(context.Background(), commitInput())
		if !errors.Is(err, domain.ErrCartChanged) {
			t.Fatalf("expected ErrCartChanged, got %v", err)
		}
		if !domain.IsRetryable(err) {
			t.Error("expected cart change to be retryable")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("database expectations were not met: %v", err)
		}
	})

	t.Run("duplicate transaction id rolls back", func(t *testing.T) {
		store, mock := newTestStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(lockTimeoutStmt).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(lockCartQuery).WithArgs("u1").WillReturnRows(lockedRows())
		mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO order_items").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO order_items").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO shipping_addresses").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(insertPaymentStmt).WillReturnError(&pq.Error{
			Code:       "23505",
			Message:    "duplicate key value violates unique constraint",
			Constraint: "payments_transaction_id_key",
		})
		mock.ExpectRollback()

		_, err := store.Commit(context.Background(), commitInput())
		if !errors.Is(err, domain.ErrDuplicatePayment) {
			t.Fatalf("expected ErrDuplicatePayment, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("database expectations were not met: %v", err)
		}
	})

	t.Run("vanished vendor aborts instead of skipping the commission", func(t *testing.T) {
		store, mock := newTestStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(lockTimeoutStmt).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(lockCartQuery).WithArgs("u1").WillReturnRows(lockedRows())
		mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO order_items").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO order_items").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO shipping_addresses").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(insertPaymentStmt).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(vendorRatesQuery).
			WillReturnRows(sqlmock.NewRows([]string{"id", "commission_rate"}))
		mock.ExpectRollback()

		_, err := store.Commit(context.Background(), commitInput())
		if !errors.Is(err, domain.ErrVendorNotFound) {
			t.Fatalf("expected ErrVendorNotFound, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("database expectations were not met: %v", err)
		}
	})

	t.Run("lock wait timeout is retryable", func(t *testing.T) {
		store, mock := newTestStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(lockTimeoutStmt).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(lockCartQuery).WithArgs("u1").
			WillReturnError(&pq.Error{Code: "55P03", Message: "canceling statement due to lock timeout"})
		mock.ExpectRollback()

		_, err := store.Commit(context.Background(), commitInput())
		if !errors.Is(err, domain.ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got %v", err)
		}
		if !domain.IsRetryable(err) {
			t.Error("expected timeout to be retryable")
		}
	})

	t.Run("partial cart clear is rejected", func(t *testing.T) {
		store, mock := newTestStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(lockTimeoutStmt).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(lockCartQuery).WithArgs("u1").WillReturnRows(lockedRows())
		mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO order_items").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO order_items").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO shipping_addresses").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(insertPaymentStmt).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(vendorRatesQuery).
			WillReturnRows(sqlmock.NewRows([]string{"id", "commission_rate"}).AddRow("v1", nil))
		mock.ExpectExec("INSERT INTO commissions").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(clearCartStmt).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectRollback()

		_, err := store.Commit(context.Background(), commitInput())
		if !errors.Is(err, domain.ErrCartChanged) {
			t.Fatalf("expected ErrCartChanged, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("database expectations were not met: %v", err)
		}
	})

	t.Run("empty snapshot never opens a transaction", func(t *testing.T) {
		store, mock := newTestStore(t)

		in := commitInput()
		in.Lines = nil
		_, err := store.Commit(context.Background(), in)
		if !errors.Is(err, domain.ErrEmptyCart) {
			t.Fatalf("expected ErrEmptyCart, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("database expectations were not met: %v", err)
		}
	})
}

func TestStore_FindSettled(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		store, mock := newTestStore(t)
		mock.ExpectQuery("SELECT p.order_id, o.user_id, p.amount FROM payments p JOIN orders o ON o.id = p.order_id").
			WithArgs("pay_1", "order_payment").
			WillReturnRows(sqlmock.NewRows([]string{"order_id", "user_id", "amount"}).AddRow("order-9", "u1", "100.00"))

		settled, err := store.FindSettled(context.Background(), "pay_1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if settled == nil || settled.OrderID != "order-9" || settled.UserID != "u1" {
			t.Fatalf("expected order-9 of u1, got %+v", settled)
		}
	})

	t.Run("not settled", func(t *testing.T) {
		store, mock := newTestStore(t)
		mock.ExpectQuery("SELECT p.order_id, o.user_id, p.amount FROM payments p").
			WithArgs("pay_2", "order_payment").
			WillReturnRows(sqlmock.NewRows([]string{"order_id", "user_id", "amount"}))

		settled, err := store.FindSettled(context.Background(), "pay_2")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if settled != nil {
			t.Fatalf("expected nil, got %+v", settled)
		}
	})
}

// decimalArg matches a decimal bound as a statement argument by value, so
// 40.0 and 40.00 compare equal.
type decimalArg struct {
	want decimal.Decimal
}

func (a decimalArg) Match(v driver.Value) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	got, err := decimal.NewFromString(s)
	return err == nil && got.Equal(a.want)
}

func TestStore_CommitRandomCarts(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	vendors := []string{"v1", "v2", "v3"}
	rates := map[string]decimal.NullDecimal{
		"v1": {Decimal: decimal.RequireFromString("0.1000"), Valid: true},
		"v2": {Decimal: decimal.RequireFromString("0.1750"), Valid: true},
		"v3": {},
	}

	for run := 0; run < 100; run++ {
		store, mock := newTestStore(t)

		var lines []domain.SnapshotLine
		locked := sqlmock.NewRows([]string{"id", "vendor_product_id", "store_product_id", "quantity"})
		total := decimal.Zero
		revenue := map[string]decimal.Decimal{}
		n := 1 + rng.Intn(8)
		for i := 0; i < n; i++ {
			id := int64(i + 1)
			line := domain.SnapshotLine{
				CartLineID: id,
				UnitPrice:  decimal.New(int64(rng.Intn(100000)), -2),
				Quantity:   1 + rng.Intn(5),
			}
			if rng.Intn(3) == 0 {
				line.Product = domain.StoreProduct(fmt.Sprintf("SP-%d", id))
				locked.AddRow(id, nil, line.Product.ID, line.Quantity)
			} else {
				v := vendors[rng.Intn(len(vendors))]
				line.Product = domain.VendorProduct(fmt.Sprintf("VP-%d", id))
				line.VendorID = strPtr(v)
				locked.AddRow(id, line.Product.ID, nil, line.Quantity)
				revenue[v] = revenue[v].Add(line.Extended())
			}
			total = total.Add(line.Extended())
			lines = append(lines, line)
		}

		vendorIDs := make([]string, 0, len(revenue))
		for v := range revenue {
			vendorIDs = append(vendorIDs, v)
		}
		sort.Strings(vendorIDs)

		mock.ExpectBegin()
		mock.ExpectExec(lockTimeoutStmt).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(lockCartQuery).WithArgs("u1").WillReturnRows(locked)
		mock.ExpectExec("INSERT INTO orders").
			WithArgs(sqlmock.AnyArg(), "u1", decimalArg{total}, "paid", "pending", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		for _, line := range lines {
			mock.ExpectExec("INSERT INTO order_items").
				WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
					decimalArg{line.UnitPrice}, line.Quantity, "pending").
				WillReturnResult(sqlmock.NewResult(0, 1))
		}
		mock.ExpectExec(insertPaymentStmt).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), decimalArg{total}, "razorpay", "success", "order_payment", "pay_1", "order_1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		wantCommission := map[string]decimal.Decimal{}
		if len(vendorIDs) > 0 {
			rateRows := sqlmock.NewRows([]string{"id", "commission_rate"})
			for _, v := range vendorIDs {
				if rates[v].Valid {
					rateRows.AddRow(v, rates[v].Decimal.String())
				} else {
					rateRows.AddRow(v, nil)
				}
			}
			mock.ExpectQuery(vendorRatesQuery).WillReturnRows(rateRows)

			for _, v := range vendorIDs {
				r := commission.DefaultRate
				if rates[v].Valid {
					r = rates[v].Decimal
				}
				wantCommission[v] = r.Mul(revenue[v]).Round(2)
				mock.ExpectExec("INSERT INTO commissions").
					WithArgs(sqlmock.AnyArg(), v, sqlmock.AnyArg(), decimalArg{wantCommission[v]}, sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(0, 1))
			}
		}
		mock.ExpectExec(clearCartStmt).
			WithArgs(sqlmock.AnyArg(), "u1").
			WillReturnResult(sqlmock.NewResult(0, int64(len(lines))))
		mock.ExpectCommit()

		in := commitInput()
		in.Lines = lines
		in.ShippingAddress = nil

		result, err := store.Commit(context.Background(), in)
		if err != nil {
			t.Fatalf("run %d: unexpected error: %v", run, err)
		}

		sum := decimal.Zero
		for _, item := range result.Order.Items {
			sum = sum.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
		if !sum.Equal(result.Order.Total) || !result.Order.Total.Equal(total) {
			t.Fatalf("run %d: expected total %s, got %s (items sum %s)", run, total, result.Order.Total, sum)
		}
		if !result.Payment.Amount.Equal(result.Order.Total) {
			t.Fatalf("run %d: expected payment amount %s, got %s", run, result.Order.Total, result.Payment.Amount)
		}
		if len(result.Commissions) != len(vendorIDs) {
			t.Fatalf("run %d: expected %d commissions, got %d", run, len(vendorIDs), len(result.Commissions))
		}
		for i, c := range result.Commissions {
			if c.VendorID != vendorIDs[i] || !c.Amount.Equal(wantCommission[c.VendorID]) || c.OrderID != result.Order.ID {
				t.Fatalf("run %d: unexpected commission %+v", run, c)
			}
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("run %d: database expectations were not met: %v", run, err)
		}
	}
}
