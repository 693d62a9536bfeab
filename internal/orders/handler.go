package orders

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/domain"
	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/httpapi"
)

type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
	ListByVendor(ctx context.Context, vendorID string) ([]domain.Order, error)
	ListAll(ctx context.Context) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error)
	UpdateItemStatus(ctx context.Context, orderID, itemID string, status domain.OrderStatus) (*domain.Order, error)
}

type Handler struct {
	repo   Repository
	logger *slog.Logger
}

func NewHandler(repo Repository, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httpapi.WriteError(h.logger, w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		httpapi.WriteDomainError(h.logger, w, err)
		return
	}

	h.logger.Info("order retrieved", "order_id", order.ID)
	httpapi.WriteJSON(h.logger, w, http.StatusOK, order)
}

func (h *Handler) HandleListByUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	orders, err := h.repo.ListByUser(r.Context(), userID)
	if err != nil {
		httpapi.WriteDomainError(h.logger, w, err)
		return
	}

	h.logger.Info("user orders listed", "user_id", userID, "count", len(orders))
	httpapi.WriteJSON(h.logger, w, http.StatusOK, orders)
}

func (h *Handler) HandleListByVendor(w http.ResponseWriter, r *http.Request) {
	vendorID := r.PathValue("vendorId")
	orders, err := h.repo.ListByVendor(r.Context(), vendorID)
	if err != nil {
		httpapi.WriteDomainError(h.logger, w, err)
		return
	}

	h.logger.Info("vendor orders listed", "vendor_id", vendorID, "count", len(orders))
	httpapi.WriteJSON(h.logger, w, http.StatusOK, orders)
}

func (h *Handler) HandleListAll(w http.ResponseWriter, r *http.Request) {
	orders, err := h.repo.ListAll(r.Context())
	if err != nil {
		httpapi.WriteDomainError(h.logger, w, err)
		return
	}

	h.logger.Info("all orders listed", "count", len(orders))
	httpapi.WriteJSON(h.logger, w, http.StatusOK, orders)
}

type updateStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httpapi.WriteError(h.logger, w, http.StatusBadRequest, "missing order id")
		return
	}

	var req updateStatusRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(h.logger, w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.repo.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		httpapi.WriteDomainError(h.logger, w, err)
		return
	}

	h.logger.Info("order status updated", "order_id", order.ID, "status", order.Status)
	httpapi.WriteJSON(h.logger, w, http.StatusOK, order)
}

func (h *Handler) HandleUpdateItemStatus(w http.ResponseWriter, r *http.Request) {
	id, itemID := r.PathValue("id"), r.PathValue("itemId")
	if id == "" || itemID == "" {
		httpapi.WriteError(h.logger, w, http.StatusBadRequest, "missing order or item id")
		return
	}

	var req updateStatusRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(h.logger, w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.repo.UpdateItemStatus(r.Context(), id, itemID, req.Status)
	if err != nil {
		httpapi.WriteDomainError(h.logger, w, err)
		return
	}

	h.logger.Info("order item status updated", "order_id", order.ID, "item_id", itemID, "status", req.Status)
	httpapi.WriteJSON(h.logger, w, http.StatusOK, order)
}
