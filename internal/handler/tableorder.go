package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/xenking/tableside/internal/domain/tableorder"
)

func (h *Handler) getTableOrder(w http.ResponseWriter, r *http.Request) {
	tableID := chi.URLParam(r, "tableID")

	to, err := h.TableOrders.Get(r.Context(), tableID)
	if err != nil && !errors.Is(err, tableorder.ErrNotFound) {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTableOrder(tableID, to))
}

type quoteRequest struct {
	PersonalOrderIDs []string `json:"personalOrderIds" validate:"required,min=1,dive,required"`
	tipRequest
}

type quoteResponse struct {
	PersonalOrders []personalOrderResponse `json:"personalOrders"`
	AmountDue      float64                 `json:"amountDue"`
	Tip            float64                 `json:"tip"`
	Total          float64                 `json:"total"`
}

// quoteTableOrder prices paying off the selected personal orders without
// settling anything.
func (h *Handler) quoteTableOrder(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	spec, err := req.spec()
	if err != nil {
		writeError(w, r, err)
		return
	}

	q, err := h.TableOrders.Quote(r.Context(), chi.URLParam(r, "tableID"), req.PersonalOrderIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tipAmount, err := spec.Amount(q.AmountDue)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{
		PersonalOrders: toPersonalOrders(q.PersonalOrders),
		AmountDue:      money(q.AmountDue),
		Tip:            money(tipAmount),
		Total:          money(q.AmountDue.Add(tipAmount)),
	})
}
