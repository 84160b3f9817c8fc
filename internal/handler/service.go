package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type feedbackRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

type feedbackResponse struct {
	ID      string `json:"id"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

// submitFeedback records a rating. Range and length checks are the feedback
// service's, so every caller gets the same errors.
func (h *Handler) submitFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	f, err := h.Feedback.Submit(r.Context(), chi.URLParam(r, "tableID"), req.Rating, req.Comment)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, feedbackResponse{ID: f.ID, Rating: f.Rating, Comment: f.Comment})
}

type waiterCallRequest struct {
	Note string `json:"note,omitempty"`
}

// callWaiter answers 201 for a new call and 200 with the open call when the
// table already has one.
func (h *Handler) callWaiter(w http.ResponseWriter, r *http.Request) {
	var req waiterCallRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	c, created, err := h.Waiter.Call(r.Context(), chi.URLParam(r, "tableID"), req.Note)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, toWaiterCall(c))
}

func (h *Handler) listWaiterCalls(w http.ResponseWriter, r *http.Request) {
	calls, err := h.Waiter.ListOpen(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := make([]waiterCallResponse, len(calls))
	for i := range calls {
		resp[i] = toWaiterCall(&calls[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) acknowledgeWaiterCall(w http.ResponseWriter, r *http.Request) {
	c, err := h.Waiter.Acknowledge(r.Context(), chi.URLParam(r, "callID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWaiterCall(c))
}
