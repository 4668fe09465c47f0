package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/atelier-commerce/checkout/internal/domain/checkout"
)

// stageErrorBody is the rendered form of a checkout validation rejection.
type stageErrorBody struct {
	Stage       checkout.Stage `json:"stage"`
	Reason      string         `json:"reason"`
	LineIndex   int            `json:"line_index,omitempty"`
	ProductName string         `json:"product_name,omitempty"`
	Redirect    string         `json:"redirect,omitempty"`
}

// checkoutResult is the success response for POST /api/checkout.
type checkoutResult struct {
	OrderID  string          `json:"order_id"`
	Source   checkout.Source `json:"source"`
	Endpoint string          `json:"endpoint,omitempty"`
}

// postCheckout runs the staged pipeline for the caller's cart.
func (h *Handler) postCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkout.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		req.UserID = userID(r)
	}

	ctx := r.Context()
	result, err := h.checkout.Submit(ctx, req)
	if err != nil {
		var stage *checkout.StageError
		if errors.As(err, &stage) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(envelope{
				Success: false,
				Error:   stage.Reason,
				Data: stageErrorBody{
					Stage:       stage.Stage,
					Reason:      stage.Reason,
					LineIndex:   stage.LineIndex,
					ProductName: stage.ProductName,
					Redirect:    stage.Redirect,
				},
			})
			return
		}
		zctx.From(ctx).Error("checkout failed",
			zap.String("user_id", req.UserID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "checkout failed")
		return
	}

	respondJSON(w, http.StatusOK, checkoutResult{
		OrderID:  result.OrderID,
		Source:   result.Source,
		Endpoint: result.Endpoint,
	})
}
