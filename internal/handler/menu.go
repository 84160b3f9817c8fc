package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/tableside/internal/domain/pricing"
	"github.com/xenking/tableside/internal/domain/table"
	"github.com/xenking/tableside/internal/domain/tip"
)

func (h *Handler) listMenu(w http.ResponseWriter, r *http.Request) {
	items, err := h.Menu.List(r.Context(), strings.TrimSpace(r.URL.Query().Get("category")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := make([]menuItemResponse, len(items))
	for i, it := range items {
		resp[i] = toMenuItem(it)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getMenuItem(w http.ResponseWriter, r *http.Request) {
	it, err := h.Menu.GetByID(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMenuItem(*it))
}

// previewPrice prices a selection without touching any cart.
func (h *Handler) previewPrice(w http.ResponseWriter, r *http.Request) {
	var sel pricing.Selection
	if err := decodeJSON(r, &sel); err != nil {
		writeError(w, r, err)
		return
	}
	if sel.Quantity == 0 {
		sel.Quantity = 1
	}

	it, err := h.Menu.GetByID(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := pricing.Validate(*it, sel); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLine(pricing.Resolve(*it, sel)))
}

type tipPresetsResponse struct {
	Percentages []int64 `json:"percentages"`
	Custom      bool    `json:"custom"`
}

func (h *Handler) getTipPresets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, tipPresetsResponse{Percentages: tip.Presets, Custom: true})
}

type tableKey struct{}

// requireTable answers 404 for unknown table ids and stores the table in
// the request context.
func (h *Handler) requireTable(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t, err := h.Tables.Get(r.Context(), chi.URLParam(r, "tableID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tableKey{}, t)))
	})
}

type tableResponse struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
	Label  string `json:"label"`
}

func (h *Handler) getTable(w http.ResponseWriter, r *http.Request) {
	t, _ := r.Context().Value(tableKey{}).(*table.Table)
	if t == nil {
		writeError(w, r, table.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, tableResponse{ID: t.ID, Number: t.Number, Label: t.Label})
}
