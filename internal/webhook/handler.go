package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/copacabanabeauty/salon-booking/internal/booking"
	"github.com/copacabanabeauty/salon-booking/internal/payments"
	"github.com/copacabanabeauty/salon-booking/pkg/logging"
)

const maxPayloadBytes = 65536

// Handler serves POST /api/stripe-webhook.
type Handler struct {
	reconciler *Reconciler
	logger     *logging.Logger
}

// NewHandler creates a webhook handler.
func NewHandler(reconciler *Reconciler, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{reconciler: reconciler, logger: logger}
}

// ServeHTTP acknowledges processed and ignorable events with 200. Bad
// signatures get 400; configuration and provider failures get 500 so the
// sender retries.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	out, err := h.reconciler.Reconcile(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrInvalidSignature):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Webhook Error: " + err.Error()})
		case booking.IsConfigError(err):
			h.logger.Error("webhook misconfigured", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		default:
			h.logger.Error("webhook processing failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Webhook failed"})
		}
		return
	}

	resp := map[string]any{"received": true}
	switch out.Status {
	case StatusCreated:
		resp["created"] = true
		resp["eventId"] = out.EventID
	case StatusDuplicate:
		resp["skipped"] = "duplicate"
		resp["eventId"] = out.EventID
	case StatusIgnored:
		resp["ignored"] = out.Reason
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
