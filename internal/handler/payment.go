package handler

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/tableside/internal/domain/payment"
)

const stripeSignatureHeader = "Stripe-Signature"

type createPaymentRequest struct {
	PersonalOrderIDs []string `json:"personalOrderIds" validate:"required,min=1,dive,required"`
	tipRequest
}

// createPayment opens a gateway payment for the selected personal orders.
// Nothing is settled until the gateway confirms it.
func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	spec, err := req.spec()
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.Payments.Create(r.Context(), payment.CreateRequest{
		TableID:          chi.URLParam(r, "tableID"),
		PersonalOrderIDs: req.PersonalOrderIDs,
		Tip:              spec,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPayment(p))
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.Payments.Get(r.Context(), chi.URLParam(r, "paymentID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayment(p))
}

func (h *Handler) syncPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.Payments.Sync(r.Context(), chi.URLParam(r, "paymentID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayment(p))
}

// stripeWebhook applies signed payment intent outcomes. Each event id is
// processed once; a failed attempt forgets the id so the redelivery is
// processed again.
func (h *Handler) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.Webhooks == nil || h.Events == nil {
		writeError(w, r, payment.ErrPaymentsDisabled)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, errors.Wrap(err, "read webhook body"))
		return
	}
	sig := r.Header.Get(stripeSignatureHeader)
	if sig == "" {
		writeError(w, r, badRequest("stripe signature missing"))
		return
	}

	eventID, confirmation, err := h.Webhooks.ParseWebhook(payload, sig)
	if err != nil {
		zctx.From(ctx).Warn("Rejected webhook", zap.Error(err))
		writeError(w, r, badRequest("invalid webhook"))
		return
	}
	lg := zctx.From(ctx).With(zap.String("event_id", eventID))
	if confirmation == nil {
		lg.Debug("Ignoring webhook event")
		w.WriteHeader(http.StatusOK)
		return
	}

	seen, err := h.Events.CheckAndMark(ctx, eventID)
	if err != nil {
		writeError(w, r, errors.Wrap(err, "check webhook event"))
		return
	}
	if seen {
		lg.Debug("Duplicate webhook event")
		w.WriteHeader(http.StatusOK)
		return
	}

	p, err := h.Payments.Confirm(ctx, *confirmation)
	switch {
	case errors.Is(err, payment.ErrNotFound):
		// Intents created outside this service are acknowledged so the
		// gateway stops redelivering them.
		lg.Warn("Webhook for unknown payment", zap.String("provider_ref", confirmation.ProviderRef))
		w.WriteHeader(http.StatusOK)
		return
	case err != nil:
		if delErr := h.Events.Delete(ctx, eventID); delErr != nil {
			lg.Error("Forget webhook event", zap.Error(delErr))
		}
		writeError(w, r, err)
		return
	}

	lg.Info("Webhook processed",
		zap.String("payment_id", p.ID),
		zap.String("status", string(p.Status)),
	)
	w.WriteHeader(http.StatusOK)
}
