package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/tableside/internal/domain/cart"
	"github.com/xenking/tableside/internal/domain/pricing"
	"github.com/xenking/tableside/internal/domain/tip"
)

func cartKey(r *http.Request) cart.Key {
	return cart.Key{
		TableID:    chi.URLParam(r, "tableID"),
		CustomerID: chi.URLParam(r, "customerID"),
	}
}

// respondCart writes the cart priced with the tip from the query string.
func (h *Handler) respondCart(w http.ResponseWriter, r *http.Request, status int) {
	spec, err := tip.Parse(r.URL.Query().Get("tip"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, totals, err := h.Carts.Totals(r.Context(), cartKey(r), spec)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, toCart(c, totals, spec))
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	h.respondCart(w, r, http.StatusOK)
}

type addLineRequest struct {
	MenuItemID string            `json:"menuItemId" validate:"required"`
	Selection  pricing.Selection `json:"selection"`
}

func (h *Handler) addCartLine(w http.ResponseWriter, r *http.Request) {
	var req addLineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if _, _, err := h.Carts.AddLine(r.Context(), cartKey(r), req.MenuItemID, req.Selection); err != nil {
		writeError(w, r, err)
		return
	}
	h.respondCart(w, r, http.StatusCreated)
}

type updateLineRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

func (h *Handler) updateCartLine(w http.ResponseWriter, r *http.Request) {
	var req updateLineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.Carts.UpdateQuantity(r.Context(), cartKey(r), chi.URLParam(r, "lineID"), *req.Quantity); err != nil {
		writeError(w, r, err)
		return
	}
	h.respondCart(w, r, http.StatusOK)
}

func (h *Handler) removeCartLine(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Carts.RemoveLine(r.Context(), cartKey(r), chi.URLParam(r, "lineID")); err != nil {
		writeError(w, r, err)
		return
	}
	h.respondCart(w, r, http.StatusOK)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.Carts.Clear(r.Context(), cartKey(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type submitCartRequest struct {
	CustomerName string `json:"customerName" validate:"required,max=100"`
}

// submitCart records the cart as a personal order on the table order.
func (h *Handler) submitCart(w http.ResponseWriter, r *http.Request) {
	var req submitCartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	po, err := h.Carts.Submit(r.Context(), cartKey(r), req.CustomerName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPersonalOrder(*po))
}

type checkoutCartRequest struct {
	tipRequest
	PaymentReference string `json:"paymentReference,omitempty" validate:"max=255"`
}

// checkoutCart turns the cart into a single order with a tip.
func (h *Handler) checkoutCart(w http.ResponseWriter, r *http.Request) {
	var req checkoutCartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	spec, err := req.spec()
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Carts.Checkout(r.Context(), cartKey(r), spec, req.PaymentReference)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrder(o))
}
