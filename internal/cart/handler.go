package cart

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/domain"
	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/httpapi"
)

type LineWriter interface {
	AddLine(ctx context.Context, userID string, ref domain.ProductRef, quantity int) (*domain.CartLine, error)
	UpdateQuantity(ctx context.Context, userID string, lineID int64, quantity int) (*domain.CartLine, error)
	RemoveLine(ctx context.Context, userID string, lineID int64) error
}

type Handler struct {
	lines  LineWriter
	vendor ProductFinder
	store  ProductFinder
	logger *slog.Logger
}

func NewHandler(lines LineWriter, vendorCatalog, storeCatalog ProductFinder, logger *slog.Logger) *Handler {
	return &Handler{
		lines:  lines,
		vendor: vendorCatalog,
		store:  storeCatalog,
		logger: logger,
	}
}

type addLineRequest struct {
	Product  domain.ProductRef `json:"product"`
	Quantity int               `json:"quantity"`
}

func (h *Handler) HandleAddLine(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")

	var req addLineRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(h.logger, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Product.Validate(); err != nil {
		httpapi.WriteDomainError(h.logger, w, err)
		return
	}

	catalog := h.store
	if req.Product.Origin == domain.OriginVendor {
		catalog = h.vendor
	}
	if _, err := catalog.FindByID(r.Context(), req.Product.ID); err != nil {
		httpapi.WriteDomainError(h.logger, w, err)
		return
	}

	line, err := h.lines.AddLine(r.Context(), userID, req.Product, req.Quantity)
	if err != nil {
		httpapi.WriteDomainError(h.logger, w, err)
		return
	}

	h.logger.Info("cart line added", "user_id", userID, "product", req.Product.String(), "quantity", line.Quantity)
	httpapi.WriteJSON(h.logger, w, http.StatusCreated, line)
}

type updateLineRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) HandleUpdateLine(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	lineID, err := strconv.ParseInt(r.PathValue("lineId"), 10, 64)
	if err != nil {
		httpapi.WriteError(h.logger, w, http.StatusBadRequest, "invalid cart line id")
		return
	}

	var req updateLineRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(h.logger, w, http.StatusBadRequest, "invalid request body")
		return
	}

	line, err := h.lines.UpdateQuantity(r.Context(), userID, lineID, req.Quantity)
	if err != nil {
		httpapi.WriteDomainError(h.logger, w, err)
		return
	}

	h.logger.Info("cart line updated", "user_id", userID, "line_id", lineID, "quantity", line.Quantity)
	httpapi.WriteJSON(h.logger, w, http.StatusOK, line)
}

func (h *Handler) HandleRemoveLine(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	lineID, err := strconv.ParseInt(r.PathValue("lineId"), 10, 64)
	if err != nil {
		httpapi.WriteError(h.logger, w, http.StatusBadRequest, "invalid cart line id")
		return
	}

	if err := h.lines.RemoveLine(r.Context(), userID, lineID); err != nil {
		httpapi.WriteDomainError(h.logger, w, err)
		return
	}

	h.logger.Info("cart line removed", "user_id", userID, "line_id", lineID)
	w.WriteHeader(http.StatusNoContent)
}
