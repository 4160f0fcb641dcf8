package checkout

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/copacabanabeauty/salon-booking/internal/booking"
	"github.com/copacabanabeauty/salon-booking/pkg/logging"
)

const maxBodyBytes = 64 << 10

// Handler serves POST /api/create-checkout.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates a checkout handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// CreateCheckoutRequest is the checkout form payload.
type CreateCheckoutRequest struct {
	Booking       BookingPayload `json:"booking"`
	CustomerName  string         `json:"customerName"`
	CustomerEmail string         `json:"customerEmail"`
}

// BookingPayload is the selected slot. durationMin is accepted as an alias of
// durationMinutes.
type BookingPayload struct {
	StaffKey        string  `json:"staffKey"`
	StaffName       string  `json:"staffName"`
	Date            string  `json:"date"`
	StartISO        string  `json:"startISO"`
	EndISO          string  `json:"endISO"`
	Label           string  `json:"label"`
	DurationMinutes flexInt `json:"durationMinutes"`
	DurationMin     flexInt `json:"durationMin"`
}

// ToRequest converts the payload into a booking request.
func (p CreateCheckoutRequest) ToRequest() booking.Request {
	duration := int(p.Booking.DurationMinutes)
	if duration == 0 {
		duration = int(p.Booking.DurationMin)
	}
	return booking.Request{
		StaffKey:        p.Booking.StaffKey,
		StaffName:       p.Booking.StaffName,
		Date:            strings.TrimSpace(p.Booking.Date),
		StartISO:        strings.TrimSpace(p.Booking.StartISO),
		EndISO:          strings.TrimSpace(p.Booking.EndISO),
		Label:           strings.TrimSpace(p.Booking.Label),
		DurationMinutes: duration,
		CustomerName:    p.CustomerName,
		CustomerEmail:   p.CustomerEmail,
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ServeHTTP creates a checkout session and returns {url}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req CreateCheckoutRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.logger.Warn("failed to decode checkout request", "error", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	url, err := h.service.CreateIntent(r.Context(), Intent{
		Booking: req.ToRequest(),
		BaseURL: RequestBaseURL(r),
	})
	if err != nil {
		var provErr *ProviderError
		switch {
		case booking.IsValidationError(err):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		case errors.Is(err, ErrTooManyAttempts):
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "Too many checkout attempts. Please try again later."})
		case booking.IsConfigError(err):
			h.logger.Error("checkout misconfigured", "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		case errors.As(err, &provErr):
			writeJSON(w, http.StatusInternalServerError, errorResponse{
				Error:   "Failed to create checkout session",
				Details: provErr.Err.Error(),
			})
		default:
			h.logger.Error("checkout failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to create checkout session"})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// RequestBaseURL derives the redirect base from the Origin header, falling
// back to https://<Host>.
func RequestBaseURL(r *http.Request) string {
	if origin := strings.TrimSpace(r.Header.Get("Origin")); origin != "" && origin != "null" {
		return origin
	}
	if r.Host == "" {
		return ""
	}
	return "https://" + r.Host
}

// flexInt accepts a JSON number, a numeric string, an empty string or null.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		data = []byte(s)
	}
	v, err := strconv.Atoi(string(data))
	if err != nil {
		return booking.Invalid("durationMinutes must be an integer")
	}
	*f = flexInt(v)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
