package settlement

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/domain"
	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/httpapi"
)

type Checkout interface {
	Settle(ctx context.Context, req SettleRequest) (*SettleResult, error)
	Preview(ctx context.Context, userID string) (*Preview, error)
	CreateGatewayOrder(ctx context.Context, userID string) (*domain.GatewayOrder, error)
}

type Handler struct {
	checkout Checkout
	logger   *slog.Logger
}

func NewHandler(checkout Checkout, logger *slog.Logger) *Handler {
	return &Handler{
		checkout: checkout,
		logger:   logger,
	}
}

func (h *Handler) HandleCreateGatewayOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.checkout.CreateGatewayOrder(r.Context(), r.PathValue("userId"))
	if err != nil {
		httpapi.WriteDomainError(h.logger, w, err)
		return
	}
	httpapi.WriteJSON(h.logger, w, http.StatusCreated, order)
}

func (h *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	preview, err := h.checkout.Preview(r.Context(), r.PathValue("userId"))
	if err != nil {
		httpapi.WriteDomainError(h.logger, w, err)
		return
	}
	httpapi.WriteJSON(h.logger, w, http.StatusOK, preview)
}

// HandleVerify settles a gateway payment confirmation. A replayed
// confirmation answers 200 with the original order instead of 201.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req SettleRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(h.logger, w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.checkout.Settle(r.Context(), req)
	if err != nil {
		httpapi.WriteDomainError(h.logger, w, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	httpapi.WriteJSON(h.logger, w, status, result)
}
