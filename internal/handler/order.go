package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/tableside/internal/domain/order"
	"github.com/xenking/tableside/internal/domain/pricing"
)

const idempotencyKeyHeader = "Idempotency-Key"

type orderItemRequest struct {
	MenuItemID string            `json:"menuItemId" validate:"required"`
	Quantity   int               `json:"quantity" validate:"gte=0,lte=99"`
	UnitPrice  *decimal.Decimal  `json:"unitPrice,omitempty"`
	Selection  pricing.Selection `json:"selection"`
}

type placeOrderRequest struct {
	TableID string             `json:"tableId" validate:"required"`
	Items   []orderItemRequest `json:"items" validate:"required,min=1,dive"`
	tipRequest
	PaymentReference string `json:"paymentReference,omitempty" validate:"max=255"`
}

// placeOrder accepts a whole order in one request. Unit prices are resolved
// on the server; a differing client price is rejected. A UUID Idempotency-Key
// header becomes the order id, so retries return the stored order.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	spec, err := req.spec()
	if err != nil {
		writeError(w, r, err)
		return
	}

	var id string
	if key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader)); key != "" {
		parsed, err := uuid.Parse(key)
		if err != nil {
			writeError(w, r, badRequest("%s must be a UUID", idempotencyKeyHeader))
			return
		}
		id = parsed.String()
	}

	items := make([]order.ItemRequest, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.ItemRequest{
			MenuItemID: it.MenuItemID,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
			Selection:  it.Selection,
		}
	}

	o, err := h.Orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		ID:               id,
		TableID:          req.TableID,
		Items:            items,
		Tip:              spec,
		PaymentReference: req.PaymentReference,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrder(o))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}

func (h *Handler) advanceOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Advance(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) setOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	status, err := order.ParseStatus(req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Orders.SetStatus(r.Context(), chi.URLParam(r, "orderID"), status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}
