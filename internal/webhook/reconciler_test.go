package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copacabanabeauty/salon-booking/internal/booking"
	"github.com/copacabanabeauty/salon-booking/internal/calendar"
	"github.com/copacabanabeauty/salon-booking/internal/payments"
	"github.com/copacabanabeauty/salon-booking/internal/slots"
	"github.com/copacabanabeauty/salon-booking/pkg/logging"
)

const testSecret = "whsec_test_secret"

// memoryCalendar enforces event id uniqueness per calendar like the provider.
type memoryCalendar struct {
	mu      sync.Mutex
	events  map[string]map[string]calendar.Event
	failFor map[string]error
	inserts int
}

func newMemoryCalendar() *memoryCalendar {
	return &memoryCalendar{events: map[string]map[string]calendar.Event{}, failFor: map[string]error{}}
}

func (m *memoryCalendar) QueryFreeBusy(context.Context, []string, time.Time, time.Time) (map[string][]slots.BusyInterval, error) {
	return nil, errors.New("not implemented")
}

func (m *memoryCalendar) ListEvents(context.Context, string, time.Time, time.Time) ([]calendar.Event, error) {
	return nil, errors.New("not implemented")
}

func (m *memoryCalendar) CreateEvent(_ context.Context, calID string, ev calendar.Event) (*calendar.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFor[calID]; err != nil {
		return nil, err
	}
	if m.events[calID] == nil {
		m.events[calID] = map[string]calendar.Event{}
	}
	if _, ok := m.events[calID][ev.ID]; ok {
		return nil, calendar.ErrEventExists
	}
	m.inserts++
	m.events[calID][ev.ID] = ev
	return &ev, nil
}

func (m *memoryCalendar) count(calID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events[calID])
}

func (m *memoryCalendar) only(t *testing.T, calID string) calendar.Event {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.events[calID], 1)
	for _, ev := range m.events[calID] {
		return ev
	}
	return calendar.Event{}
}

func testRoster() *booking.Roster {
	return booking.NewRoster(
		booking.StaffMember{Key: "ana", DisplayName: "Ana Paula", CalendarID: "cal-ana"},
		booking.StaffMember{Key: "glenda", DisplayName: "Glenda Garcia", CalendarID: "cal-glenda"},
	)
}

func sign(payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func completedEvent(t *testing.T, sessionID, paymentStatus string, metadata map[string]string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":     "evt_" + sessionID,
		"object": "event",
		"type":   payments.EventCheckoutCompleted,
		"data": map[string]any{"object": map[string]any{
			"id":               sessionID,
			"object":           "checkout.session",
			"payment_status":   paymentStatus,
			"customer_details": map[string]any{"email": "details@example.com"},
			"metadata":         metadata,
		}},
	})
	require.NoError(t, err)
	return body
}

func bookingMetadata(staffKey string) map[string]string {
	return booking.Request{
		StaffKey:        staffKey,
		StaffName:       "",
		Date:            "2026-03-10",
		StartISO:        "2026-03-10T10:00:00Z",
		EndISO:          "2026-03-10T11:00:00Z",
		Label:           "10:00",
		DurationMinutes: 60,
		CustomerName:    "Maria Silva",
		CustomerEmail:   "maria@example.com",
	}.Metadata()
}

type harness struct {
	cal     *memoryCalendar
	handler *Handler
}

func newHarness() *harness {
	cal := newMemoryCalendar()
	verifier := payments.NewStripeClient(payments.StripeConfig{SecretKey: "sk_test", WebhookSecret: testSecret}, logging.Discard())
	rec := NewReconciler(verifier, cal, testRoster(), logging.Discard())
	return &harness{cal: cal, handler: NewHandler(rec, logging.Discard())}
}

func (h *harness) deliver(t *testing.T, payload []byte, signature string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/stripe-webhook", strings.NewReader(string(payload)))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestWebhook_ReplayCreatesExactlyOneEvent(t *testing.T) {
	h := newHarness()
	payload := completedEvent(t, "cs_test_a1B2", payments.StatusPaid, bookingMetadata("ana"))

	code, body := h.deliver(t, payload, sign(payload))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["received"])
	assert.Equal(t, true, body["created"])
	assert.Equal(t, "bk-cs-test-a1b2", body["eventId"])

	code, body = h.deliver(t, payload, sign(payload))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "duplicate", body["skipped"])
	assert.Nil(t, body["created"])

	assert.Equal(t, 1, h.cal.count("cal-ana"))
	assert.Equal(t, 1, h.cal.inserts)

	ev := h.cal.only(t, "cal-ana")
	assert.Equal(t, "bk-cs-test-a1b2", ev.ID)
	assert.Equal(t, "Booking - Maria Silva", ev.Summary)
	assert.Contains(t, ev.Description, "Staff: Ana Paula")
	assert.Contains(t, ev.Description, "Email: maria@example.com")
	assert.Contains(t, ev.Description, "Stripe session: cs_test_a1B2")
	assert.Contains(t, ev.Description, "Event id: bk-cs-test-a1b2")
	assert.True(t, ev.Start.Equal(time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)))
	assert.True(t, ev.End.Equal(time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)))
}

func TestWebhook_IgnoredEvents(t *testing.T) {
	noStart := bookingMetadata("ana")
	delete(noStart, booking.MetaStartISO)

	tests := []struct {
		name    string
		payload func(t *testing.T) []byte
		reason  string
	}{
		{
			name:    "unpaid",
			payload: func(t *testing.T) []byte { return completedEvent(t, "cs_unpaid", payments.StatusUnpaid, bookingMetadata("ana")) },
			reason:  ReasonNotPaid,
		},
		{
			name: "other event type",
			payload: func(t *testing.T) []byte {
				return []byte(`{"id":"evt_pi","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","object":"payment_intent"}}}`)
			},
			reason: ReasonEventType,
		},
		{
			name:    "missing metadata",
			payload: func(t *testing.T) []byte { return completedEvent(t, "cs_nometa", payments.StatusPaid, noStart) },
			reason:  ReasonMissingMetadata,
		},
		{
			name:    "unknown staff",
			payload: func(t *testing.T) []byte { return completedEvent(t, "cs_carla", payments.StatusPaid, bookingMetadata("carla")) },
			reason:  ReasonInvalidStaff,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			payload := tt.payload(t)
			code, body := h.deliver(t, payload, sign(payload))
			assert.Equal(t, http.StatusOK, code)
			assert.Equal(t, true, body["received"])
			assert.Equal(t, tt.reason, body["ignored"])
			assert.Zero(t, h.cal.inserts)
		})
	}
}

func TestWebhook_BadSignature(t *testing.T) {
	h := newHarness()
	payload := completedEvent(t, "cs_forged", payments.StatusPaid, bookingMetadata("ana"))

	code, body := h.deliver(t, payload, "t=1,v1=deadbeef")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "Webhook Error")
	assert.Zero(t, h.cal.inserts)
}

func TestWebhook_MissingSecretIsConfigError(t *testing.T) {
	cal := newMemoryCalendar()
	h := &harness{cal: cal, handler: NewHandler(NewReconciler(nil, cal, testRoster(), logging.Discard()), logging.Discard())}
	payload := completedEvent(t, "cs_1", payments.StatusPaid, bookingMetadata("ana"))

	code, body := h.deliver(t, payload, sign(payload))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "missing configuration: STRIPE_WEBHOOK_SECRET", body["error"])
	assert.Zero(t, cal.inserts)
}

func TestWebhook_ProviderErrorRequestsRetry(t *testing.T) {
	h := newHarness()
	h.cal.failFor["cal-ana"] = errors.New("calendar: insert event cal-ana: googleapi: Error 503")
	payload := completedEvent(t, "cs_retry", payments.StatusPaid, bookingMetadata("ana"))

	code, body := h.deliver(t, payload, sign(payload))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Webhook failed", body["error"])

	delete(h.cal.failFor, "cal-ana")
	code, body = h.deliver(t, payload, sign(payload))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["created"])
}

func TestWebhook_DuoBooksEveryCalendarAndConverges(t *testing.T) {
	h := newHarness()
	h.cal.failFor["cal-glenda"] = errors.New("backend error")
	payload := completedEvent(t, "cs_duo", payments.StatusPaid, bookingMetadata("duo"))

	code, _ := h.deliver(t, payload, sign(payload))
	require.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, 1, h.cal.count("cal-ana"))

	delete(h.cal.failFor, "cal-glenda")
	code, body := h.deliver(t, payload, sign(payload))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["created"])
	assert.Equal(t, 1, h.cal.count("cal-ana"))
	assert.Equal(t, 1, h.cal.count("cal-glenda"))
	assert.Contains(t, h.cal.only(t, "cal-glenda").Description, "Staff: DUO Service")

	code, body = h.deliver(t, payload, sign(payload))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "duplicate", body["skipped"])
}

func TestReconciler_EmailFallsBackToCustomerDetails(t *testing.T) {
	cal := newMemoryCalendar()
	r := NewReconciler(nil, cal, testRoster(), logging.Discard())
	md := bookingMetadata("glenda")
	md[booking.MetaCustomerName] = ""
	md[booking.MetaCustomerEmail] = ""

	out, err := r.Process(context.Background(), &payments.WebhookEvent{
		ID:   "evt_1",
		Type: payments.EventCheckoutCompleted,
		Session: &payments.Session{
			ID:            "cs_details",
			PaymentStatus: payments.StatusPaid,
			CustomerEmail: "details@example.com",
			Metadata:      md,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, out.Status)
	assert.Equal(t, []string{"cal-glenda"}, out.Calendars)

	ev := cal.only(t, "cal-glenda")
	assert.Equal(t, "Booking - details@example.com", ev.Summary)
	assert.Contains(t, ev.Description, "Staff: Glenda Garcia")
}

func TestReconciler_NoCalendarClient(t *testing.T) {
	r := NewReconciler(nil, nil, testRoster(), logging.Discard())
	_, err := r.Process(context.Background(), &payments.WebhookEvent{
		Type:    payments.EventCheckoutCompleted,
		Session: &payments.Session{ID: "cs_1", PaymentStatus: payments.StatusPaid, Metadata: bookingMetadata("ana")},
	})
	assert.True(t, booking.IsConfigError(err))
}

func TestReconciler_ConcurrentDeliveriesCreateOnce(t *testing.T) {
	cal := newMemoryCalendar()
	r := NewReconciler(nil, cal, testRoster(), logging.Discard())
	evt := &payments.WebhookEvent{
		Type:    payments.EventCheckoutCompleted,
		Session: &payments.Session{ID: "cs_race", PaymentStatus: payments.StatusPaid, Metadata: bookingMetadata("ana")},
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	statuses := map[string]int{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := r.Process(context.Background(), evt)
			assert.NoError(t, err)
			mu.Lock()
			statuses[out.Status]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, statuses[StatusCreated])
	assert.Equal(t, 7, statuses[StatusDuplicate])
	assert.Equal(t, 1, cal.count("cal-ana"))
}
