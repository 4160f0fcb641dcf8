package session

import (
	"encoding/json"
	"net/http"

	"github.com/copacabanabeauty/salon-booking/internal/booking"
	"github.com/copacabanabeauty/salon-booking/pkg/logging"
)

// Handler serves the session lookup endpoints.
type Handler struct {
	lookup *Lookup
	logger *logging.Logger
}

// NewHandler creates a session handler.
func NewHandler(lookup *Lookup, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{lookup: lookup, logger: logger}
}

type getSessionResponse struct {
	OK bool `json:"ok"`
	*View
	Error string `json:"error,omitempty"`
}

// GetSession handles GET /api/get-session?session_id=.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	view, err := h.lookup.GetSession(r.Context(), id)
	if err != nil {
		if booking.IsValidationError(err) {
			writeJSON(w, http.StatusBadRequest, getSessionResponse{OK: false, Error: err.Error()})
			return
		}
		h.logger.Error("get-session failed", "session_id", id, "error", err)
		msg := "Failed to retrieve session"
		if booking.IsConfigError(err) {
			msg = err.Error()
		}
		writeJSON(w, http.StatusInternalServerError, getSessionResponse{OK: false, Error: msg})
		return
	}
	writeJSON(w, http.StatusOK, getSessionResponse{OK: true, View: view})
}

// DebugSession handles GET /api/debug-session?session_id= and exposes the raw
// metadata for operators.
func (h *Handler) DebugSession(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	view, err := h.lookup.GetSession(r.Context(), id)
	if err != nil {
		if booking.IsValidationError(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing session_id"})
			return
		}
		h.logger.Warn("debug-session failed", "session_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": view.ID, "metadata": view.Metadata})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
