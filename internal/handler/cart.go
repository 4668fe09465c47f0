package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/atelier-commerce/checkout/internal/domain/cart"
	"github.com/atelier-commerce/checkout/internal/domain/product"
)

// getCart returns the caller's full cart line list.
func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing user id")
		return
	}

	lines, err := h.cart.Lines(r.Context(), uid)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "loading cart failed")
		return
	}
	if lines == nil {
		lines = []cart.Line{}
	}
	respondJSON(w, http.StatusOK, lines)
}

// getCartCount returns the badge count: the sum of line quantities.
func (h *Handler) getCartCount(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing user id")
		return
	}

	count, err := h.cart.Count(r.Context(), uid)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "counting cart failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"count": count})
}

// addCartRequest adds one product to the cart. Either a catalog SKU or an
// inline product description is accepted; the SKU wins when both are given.
type addCartRequest struct {
	SKU     string        `json:"sku,omitempty"`
	Product *cart.Product `json:"product,omitempty"`
	Variant cart.Variant  `json:"variant"`
}

func (h *Handler) addCartLine(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing user id")
		return
	}

	var req addCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx := r.Context()
	var p cart.Product
	switch {
	case req.SKU != "":
		cp, err := h.products.GetBySKU(ctx, req.SKU)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				respondError(w, http.StatusNotFound, "unknown product "+req.SKU)
				return
			}
			respondError(w, http.StatusInternalServerError, "loading product failed")
			return
		}
		p = cart.Product{Name: cp.Name, Family: cp.Family, BasePrice: cp.BasePrice}
		if req.Product != nil {
			p.AvailableColors = req.Product.AvailableColors
			p.AvailableSizes = req.Product.AvailableSizes
			p.Image = req.Product.Image
		}
	case req.Product != nil:
		p = *req.Product
	default:
		respondError(w, http.StatusBadRequest, "sku or product is required")
		return
	}
	if p.Name == "" {
		respondError(w, http.StatusBadRequest, "product name is required")
		return
	}

	if err := h.cart.AddLine(ctx, uid, p, req.Variant); err != nil {
		respondError(w, http.StatusInternalServerError, "adding to cart failed")
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

// patchCartRequest mutates one cart line, selected by its index.
type patchCartRequest struct {
	Op       string `json:"op"` // quantity, variant, selected
	Quantity int    `json:"quantity,omitempty"`
	Key      string `json:"key,omitempty"`
	Value    string `json:"value,omitempty"`
	Selected bool   `json:"selected,omitempty"`
}

func (h *Handler) patchCartLine(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing user id")
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid line index")
		return
	}

	var req patchCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx := r.Context()
	switch req.Op {
	case "quantity":
		err = h.cart.SetQuantity(ctx, uid, index, req.Quantity)
	case "variant":
		err = h.cart.SetVariant(ctx, uid, index, req.Key, req.Value)
	case "selected":
		err = h.cart.ToggleSelected(ctx, uid, index, req.Selected)
	default:
		respondError(w, http.StatusBadRequest, "unknown op")
		return
	}
	if err != nil {
		h.respondCartError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

func (h *Handler) removeCartLine(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing user id")
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid line index")
		return
	}

	if err := h.cart.RemoveLine(r.Context(), uid, index); err != nil {
		h.respondCartError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

// clearCart empties the cart; with ?selectedOnly=true only selected lines go.
func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing user id")
		return
	}

	selectedOnly := r.URL.Query().Get("selectedOnly") == "true"
	if err := h.cart.Clear(r.Context(), uid, selectedOnly); err != nil {
		respondError(w, http.StatusInternalServerError, "clearing cart failed")
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

func (h *Handler) respondCartError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cart.ErrLineNotFound):
		respondError(w, http.StatusNotFound, "cart line not found")
	case errors.Is(err, cart.ErrUnknownVariantKey):
		respondError(w, http.StatusBadRequest, "unknown variant key")
	default:
		respondError(w, http.StatusInternalServerError, "updating cart failed")
	}
}
