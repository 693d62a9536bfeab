package ledger

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/domain"
)

type fakeLedger struct {
	payouts []PayoutInput
}

func (f *fakeLedger) ForVendor(_ context.Context, vendorID string) (*domain.LedgerEntry, error) {
	if vendorID != "v1" {
		return nil, domain.ErrVendorNotFound
	}
	entry := domain.NewLedgerEntry(domain.Vendor{ID: "v1"}, decimal.NewFromInt(150), decimal.NewFromInt(15), decimal.NewFromInt(20))
	return &entry, nil
}

func (f *fakeLedger) ForApprovedVendors(ctx context.Context) ([]domain.LedgerEntry, error) {
	entry, _ := f.ForVendor(ctx, "v1")
	return []domain.LedgerEntry{*entry}, nil
}

func (f *fakeLedger) RecordPayout(_ context.Context, in PayoutInput) (*domain.Payment, error) {
	if !in.Amount.IsPositive() {
		return nil, domain.ErrValidation
	}
	f.payouts = append(f.payouts, in)
	return &domain.Payment{ID: "pay-1", VendorID: &in.VendorID, Amount: in.Amount, Type: domain.PaymentTypePayout}, nil
}

func newLedgerMux(f *fakeLedger) *http.ServeMux {
	h := NewHandler(f, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ledger/vendors", h.HandleApprovedVendors)
	mux.HandleFunc("GET /ledger/vendors/{vendorId}", h.HandleVendor)
	mux.HandleFunc("POST /payouts", h.HandleRecordPayout)
	return mux
}

func TestHandler_HandleVendor(t *testing.T) {
	mux := newLedgerMux(&fakeLedger{})

	t.Run("returns balance", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ledger/vendors/v1", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		var entry domain.LedgerEntry
		if err := json.NewDecoder(rec.Body).Decode(&entry); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if !entry.Balance.Equal(decimal.NewFromInt(115)) {
			t.Errorf("expected balance 115, got %s", entry.Balance)
		}
	})

	t.Run("unknown vendor", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ledger/vendors/ghost", nil))

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})
}

func TestHandler_HandleRecordPayout(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		f := &fakeLedger{}
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/payouts", strings.NewReader(`{"vendor_id":"v1","amount":"20.00"}`))
		newLedgerMux(f).ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d", rec.Code)
		}
		if len(f.payouts) != 1 || !f.payouts[0].Amount.Equal(decimal.NewFromInt(20)) {
			t.Errorf("unexpected payouts: %+v", f.payouts)
		}
	})

	t.Run("non-positive amount", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/payouts", strings.NewReader(`{"vendor_id":"v1","amount":0}`))
		newLedgerMux(&fakeLedger{}).ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})
}
