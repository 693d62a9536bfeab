package ledger

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/domain"
	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/httpapi"
)

type Service interface {
	ForVendor(ctx context.Context, vendorID string) (*domain.LedgerEntry, error)
	ForApprovedVendors(ctx context.Context) ([]domain.LedgerEntry, error)
	RecordPayout(ctx context.Context, in PayoutInput) (*domain.Payment, error)
}

type Handler struct {
	ledger Service
	logger *slog.Logger
}

func NewHandler(ledger Service, logger *slog.Logger) *Handler {
	return &Handler{
		ledger: ledger,
		logger: logger,
	}
}

func (h *Handler) HandleVendor(w http.ResponseWriter, r *http.Request) {
	entry, err := h.ledger.ForVendor(r.Context(), r.PathValue("vendorId"))
	if err != nil {
		httpapi.WriteDomainError(h.logger, w, err)
		return
	}
	httpapi.WriteJSON(h.logger, w, http.StatusOK, entry)
}

func (h *Handler) HandleApprovedVendors(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.ForApprovedVendors(r.Context())
	if err != nil {
		httpapi.WriteDomainError(h.logger, w, err)
		return
	}

	h.logger.Info("vendor ledger listed", "count", len(entries))
	httpapi.WriteJSON(h.logger, w, http.StatusOK, entries)
}

func (h *Handler) HandleRecordPayout(w http.ResponseWriter, r *http.Request) {
	var in PayoutInput
	if err := httpapi.DecodeJSON(r, &in); err != nil {
		httpapi.WriteError(h.logger, w, http.StatusBadRequest, "invalid request body")
		return
	}

	payment, err := h.ledger.RecordPayout(r.Context(), in)
	if err != nil {
		httpapi.WriteDomainError(h.logger, w, err)
		return
	}
	httpapi.WriteJSON(h.logger, w, http.StatusCreated, payment)
}
