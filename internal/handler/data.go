package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/atelier-commerce/checkout/internal/domain/notification"
	"github.com/atelier-commerce/checkout/internal/domain/order"
	"github.com/atelier-commerce/checkout/internal/storage/postgres"
)

// ReadAction enumerates the read API's action values.
type ReadAction string

const (
	ReadShippingAddresses ReadAction = "shipping-addresses"
	ReadUserPreferences   ReadAction = "user-preferences"
	ReadOrders            ReadAction = "orders"
	ReadNotifications     ReadAction = "notifications"
)

// WriteAction enumerates the write API's action values.
type WriteAction string

const (
	WriteSaveOrder            WriteAction = "save-order"
	WriteCancelOrder          WriteAction = "cancel-order"
	WriteUpdateOrderStatus    WriteAction = "update-order-status"
	WriteCreateNotification   WriteAction = "create-notification"
	WriteSetUserPreferences   WriteAction = "set-user-preferences"
	WriteMarkNotificationRead WriteAction = "mark-notification-read"
)

// readData serves GET /api/data?action=...&userId=... — one query endpoint
// multiplexing the per-user read models.
func (h *Handler) readData(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing user id")
		return
	}

	ctx := r.Context()
	switch ReadAction(r.URL.Query().Get("action")) {
	case ReadShippingAddresses:
		addrs, err := h.addresses.ListByUser(ctx, uid)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "loading addresses failed")
			return
		}
		respondJSON(w, http.StatusOK, addrs)

	case ReadUserPreferences:
		prefs, err := h.preferences.Get(ctx, uid)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "loading preferences failed")
			return
		}
		respondJSON(w, http.StatusOK, prefs)

	case ReadOrders:
		orders, err := h.orders.ListByUser(ctx, uid)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "loading orders failed")
			return
		}
		respondJSON(w, http.StatusOK, orders)

	case ReadNotifications:
		ns, err := h.notifications.ListByUser(ctx, uid)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "loading notifications failed")
			return
		}
		respondJSON(w, http.StatusOK, ns)

	default:
		respondError(w, http.StatusBadRequest, "unknown action")
	}
}

// writeData serves POST /api/data — a tagged union on the action field. The
// save-order case is also a submission candidate target, so its response
// carries order_id at the top level.
func (h *Handler) writeData(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "reading body failed")
		return
	}

	var tag struct {
		Action WriteAction `json:"action"`
	}
	if err := json.Unmarshal(body, &tag); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx := r.Context()
	switch tag.Action {
	case WriteSaveOrder:
		h.saveOrder(w, r, body)

	case WriteCancelOrder:
		var req struct {
			OrderID string `json:"order_id"`
		}
		if err := json.Unmarshal(body, &req); err != nil || req.OrderID == "" {
			respondError(w, http.StatusBadRequest, "order_id is required")
			return
		}
		if err := h.orders.Cancel(ctx, req.OrderID); err != nil {
			h.respondOrderError(w, req.OrderID, err)
			return
		}
		h.emitNotification(ctx, &notification.Notification{
			UserID:  userID(r),
			OrderID: req.OrderID,
			Type:    notification.TypeOrderStatus,
			Title:   "Order cancelled",
			Message: "Order " + req.OrderID + " was cancelled.",
		})
		respondJSON(w, http.StatusOK, nil)

	case WriteUpdateOrderStatus:
		var req struct {
			OrderID string `json:"order_id"`
			Status  string `json:"status"`
		}
		if err := json.Unmarshal(body, &req); err != nil || req.OrderID == "" || req.Status == "" {
			respondError(w, http.StatusBadRequest, "order_id and status are required")
			return
		}
		if err := h.orders.UpdateStatus(ctx, req.OrderID, order.Status(req.Status)); err != nil {
			h.respondOrderError(w, req.OrderID, err)
			return
		}
		h.emitNotification(ctx, &notification.Notification{
			UserID:  userID(r),
			OrderID: req.OrderID,
			Type:    notification.TypeOrderStatus,
			Title:   "Order update",
			Message: "Order " + req.OrderID + " is now " + req.Status + ".",
		})
		respondJSON(w, http.StatusOK, nil)

	case WriteCreateNotification:
		var n notification.Notification
		if err := json.Unmarshal(body, &n); err != nil || n.UserID == "" || n.Title == "" {
			respondError(w, http.StatusBadRequest, "user_id and title are required")
			return
		}
		if err := h.notifications.Create(ctx, &n); err != nil {
			respondError(w, http.StatusInternalServerError, "creating notification failed")
			return
		}
		respondJSON(w, http.StatusOK, n)

	case WriteSetUserPreferences:
		var req struct {
			UserID      string          `json:"user_id"`
			Preferences json.RawMessage `json:"preferences"`
		}
		if err := json.Unmarshal(body, &req); err != nil || req.UserID == "" {
			respondError(w, http.StatusBadRequest, "user_id is required")
			return
		}
		if err := h.preferences.Set(ctx, req.UserID, req.Preferences); err != nil {
			respondError(w, http.StatusInternalServerError, "saving preferences failed")
			return
		}
		respondJSON(w, http.StatusOK, nil)

	case WriteMarkNotificationRead:
		var req struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(body, &req); err != nil || req.ID == "" {
			respondError(w, http.StatusBadRequest, "id is required")
			return
		}
		if err := h.notifications.MarkRead(ctx, req.ID); err != nil {
			respondError(w, http.StatusInternalServerError, "marking notification read failed")
			return
		}
		respondJSON(w, http.StatusOK, nil)

	default:
		respondError(w, http.StatusBadRequest, "unknown action")
	}
}

// saveOrder persists a draft and emits the order-placed notification. The
// response mirrors what the submission loop expects from any candidate
// endpoint: top-level success and order_id.
func (h *Handler) saveOrder(w http.ResponseWriter, r *http.Request, body []byte) {
	var d order.Draft
	if err := json.Unmarshal(body, &d); err != nil {
		respondError(w, http.StatusBadRequest, "invalid order payload")
		return
	}
	if d.OrderID == "" || len(d.Items) == 0 {
		respondError(w, http.StatusBadRequest, "order_id and items are required")
		return
	}

	ctx := r.Context()
	if _, err := h.orders.Create(ctx, &d); err != nil {
		zctx.From(ctx).Error("persist order",
			zap.String("order_id", d.OrderID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "saving order failed")
		return
	}

	h.emitNotification(ctx, &notification.Notification{
		UserID:  d.UserID,
		OrderID: d.OrderID,
		Type:    notification.TypeOrderPlaced,
		Title:   "Order placed",
		Message: "Order " + d.OrderID + " was placed successfully.",
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":  true,
		"order_id": d.OrderID,
	})
}

// emitNotification is fire and forget: a notification failure never fails
// the operation that triggered it.
func (h *Handler) emitNotification(ctx context.Context, n *notification.Notification) {
	if n.UserID == "" {
		return
	}
	if err := h.notifications.Create(ctx, n); err != nil {
		zctx.From(ctx).Warn("emit notification",
			zap.String("order_id", n.OrderID), zap.Error(err))
	}
}

func (h *Handler) respondOrderError(w http.ResponseWriter, orderID string, err error) {
	if errors.Is(err, postgres.ErrOrderNotFound) {
		respondError(w, http.StatusNotFound, "order "+orderID+" not found")
		return
	}
	respondError(w, http.StatusInternalServerError, "updating order failed")
}
