package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/atelier-commerce/checkout/internal/domain/receipt"
	"github.com/atelier-commerce/checkout/internal/storage/postgres"
)

// postReceipt normalizes a raw order payload and upserts it against its
// order. A payload that resolves to no known order is refused: receipts
// never exist detached.
func (h *Handler) postReceipt(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "reading body failed")
		return
	}

	rec, err := receipt.Normalize(raw, h.policy)
	if err != nil {
		respondError(w, http.StatusBadRequest, "payload is not an order object")
		return
	}

	ctx := r.Context()
	if err := h.receipts.Save(ctx, rec); err != nil {
		if errors.Is(err, postgres.ErrOrderNotFound) {
			respondError(w, http.StatusNotFound, "no order matches this receipt")
			return
		}
		zctx.From(ctx).Error("save receipt",
			zap.String("order_id", rec.OrderID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "saving receipt failed")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// getReceipt returns the stored receipt for an order, falling back to
// normalizing the persisted order itself when no receipt was ever posted.
func (h *Handler) getReceipt(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	ctx := r.Context()

	rec, err := h.receipts.Get(ctx, orderID)
	if err == nil {
		respondJSON(w, http.StatusOK, rec)
		return
	}
	if !errors.Is(err, postgres.ErrOrderNotFound) {
		respondError(w, http.StatusInternalServerError, "loading receipt failed")
		return
	}

	p, err := h.orders.GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, postgres.ErrOrderNotFound) {
			respondError(w, http.StatusNotFound, "order "+orderID+" not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "loading order failed")
		return
	}

	raw, err := json.Marshal(p.Draft)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "encoding order failed")
		return
	}
	rec, err = receipt.Normalize(raw, h.policy)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "normalizing order failed")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}
