package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/salonbook/salonbook/services/booking-service/internal/booking"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
)

const testTenant = "6f1d3c1a-52a4-4a6e-9d0e-0c7f6f2a9b11"

type stubBooker struct {
	day      booking.DaySlots
	appt     model.Appointment
	list     []model.Appointment
	err      error
	lastReq  booking.CreateRequest
	lastTok  string
	lastFrom string
}

func (s *stubBooker) DaySlots(context.Context, string, string, string, string) (booking.DaySlots, error) {
	return s.day, s.err
}

func (s *stubBooker) Create(_ context.Context, req booking.CreateRequest) (model.Appointment, error) {
	s.lastReq = req
	return s.appt, s.err
}

func (s *stubBooker) Cancel(_ context.Context, token string) (model.Appointment, error) {
	s.lastTok = token
	return s.appt, s.err
}

func (s *stubBooker) ListAppointments(_ context.Context, _ string, from, _ string) ([]model.Appointment, error) {
	s.lastFrom = from
	return s.list, s.err
}

type stubCatalog struct{}

func (stubCatalog) ListServices(context.Context, string) ([]model.Service, error) {
	return []model.Service{{ID: "svc-1", Name: "Cut", Category: model.CategoryCut, DurationMinutes: 45, Price: decimal.RequireFromString("45")}}, nil
}

func (stubCatalog) ListStaff(context.Context, string) ([]model.Staff, error) {
	return []model.Staff{{ID: "staff-1", Name: "Sam", Role: "stylist"}}, nil
}

type stubSettings struct {
	saved model.Settings
}

func (s *stubSettings) GetSettings(_ context.Context, tenantID string) (model.Settings, error) {
	if s.saved.TenantID == tenantID {
		return s.saved, nil
	}
	return model.DefaultSettings(tenantID), nil
}

func (s *stubSettings) UpsertSettings(_ context.Context, v model.Settings) error {
	s.saved = v
	return nil
}

func newTestMux(b *stubBooker, settings *stubSettings) *http.ServeMux {
	h := NewBookingHandler(b, stubCatalog{}, settings, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	h.Register(mux, nil)
	return mux
}

func sampleAppointment() model.Appointment {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	return model.Appointment{
		ID:                "appt-1",
		TenantID:          testTenant,
		ServiceID:         "svc-1",
		StaffID:           "staff-1",
		ClientName:        "Jane Doe",
		Date:              day,
		StartTime:         day.Add(14 * time.Hour),
		DurationMinutes:   45,
		Status:            model.StatusPending,
		DepositAmount:     decimal.RequireFromString("20"),
		TotalPrice:        decimal.RequireFromString("45"),
		CancellationToken: "tok-abc",
	}
}

func TestSlots(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	b := &stubBooker{day: booking.DaySlots{Date: day, DurationMinutes: 45, Starts: []time.Time{day.Add(8 * time.Hour), day.Add(11 * time.Hour)}}}
	mux := newTestMux(b, &stubSettings{})

	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?tenant_id=t&staff_id=s&service_id=x&date=2024-06-10", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body)
	}
	var items []slotItem
	if err := json.Unmarshal(rw.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 2 || items[0].Time != "08:00" || items[1].EndTime != "2024-06-10T11:45:00Z" {
		t.Fatalf("unexpected slots: %+v", items)
	}

	b.day = booking.DaySlots{}
	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/api/v1/public/slots", nil))
	if strings.TrimSpace(rw.Body.String()) != "[]" {
		t.Fatalf("empty availability should encode as [], got %s", rw.Body)
	}
}

func TestCreateReturnsTokenAnd201(t *testing.T) {
	b := &stubBooker{appt: sampleAppointment()}
	mux := newTestMux(b, &stubSettings{})

	body := `{"tenant_id":"` + testTenant + `","service_id":"svc","staff_id":"stf","date":"2024-06-10","time":"14:00","customer_name":"Jane Doe","customer_email":"jane@example.com"}`
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(body)))
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body)
	}
	var resp appointmentResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.CancellationToken != "tok-abc" || resp.Status != "pending" || resp.DepositAmount != "20.00" || resp.TotalPrice != "45.00" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Time != "14:00" || resp.EndTime != "2024-06-10T14:45:00Z" {
		t.Fatalf("unexpected times: %+v", resp)
	}
	if b.lastReq.Customer.Email != "jane@example.com" || b.lastReq.Time != "14:00" {
		t.Fatalf("request not forwarded: %+v", b.lastReq)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{&booking.ValidationError{Field: "time", Message: "must be HH:MM"}, http.StatusBadRequest},
		{booking.ErrNotFound, http.StatusNotFound},
		{booking.ErrSlotUnavailable, http.StatusConflict},
		{booking.Persistence("insert", errors.New("conn reset")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		mux := newTestMux(&stubBooker{err: tc.err}, &stubSettings{})
		rw := httptest.NewRecorder()
		mux.ServeHTTP(rw, httptest.NewRequest(http.MethodPost, "/api/v1/public/cancel", strings.NewReader(`{"token":"x"}`)))
		if rw.Code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, rw.Code)
		}
	}

	mux := newTestMux(&stubBooker{err: &booking.ValidationError{Field: "time", Message: "must be HH:MM"}}, &stubSettings{})
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(`{}`)))
	if !strings.Contains(rw.Body.String(), "time: must be HH:MM") {
		t.Fatalf("validation message should be passed through, got %s", rw.Body)
	}
}

func TestCancelForwardsToken(t *testing.T) {
	appt := sampleAppointment()
	appt.Status = model.StatusCancelled
	b := &stubBooker{appt: appt}
	mux := newTestMux(b, &stubSettings{})

	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodPost, "/api/v1/public/cancel", strings.NewReader(`{"token":"tok-abc"}`)))
	if rw.Code != http.StatusOK || b.lastTok != "tok-abc" {
		t.Fatalf("expected 200 with token forwarded, got %d %q", rw.Code, b.lastTok)
	}
	if strings.Contains(rw.Body.String(), "cancellation_token") {
		t.Fatal("cancel response must not echo the token")
	}

	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/api/v1/public/cancel", nil))
	if rw.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rw.Code)
	}
	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodPost, "/api/v1/public/cancel", strings.NewReader(`{`)))
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", rw.Code)
	}
}

func TestCatalogAndSettingsRoutes(t *testing.T) {
	settings := &stubSettings{}
	mux := newTestMux(&stubBooker{}, settings)

	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/api/v1/public/services?tenant_id="+testTenant, nil))
	if rw.Code != http.StatusOK || !strings.Contains(rw.Body.String(), `"price":"45.00"`) {
		t.Fatalf("services: %d %s", rw.Code, rw.Body)
	}
	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/api/v1/public/staff?tenant_id=bad", nil))
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("staff with bad tenant: expected 400, got %d", rw.Code)
	}

	req := httptest.NewRequest(http.MethodPut, "/api/v1/settings", strings.NewReader(`{"manual_approval_enabled":true,"online_deposits_enabled":true,"deposit_amount":"20","paypal_link":"https://paypal.me/salon"}`))
	req.Header.Set(tenantHeader, testTenant)
	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("update settings: %d %s", rw.Code, rw.Body)
	}
	if !settings.saved.DepositAmount.Equal(decimal.RequireFromString("20")) || !settings.saved.ManualApprovalEnabled {
		t.Fatalf("settings not saved: %+v", settings.saved)
	}

	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/api/v1/public/settings?tenant_id="+testTenant, nil))
	var body settingsBody
	if err := json.Unmarshal(rw.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.DepositAmount != "20.00" || !body.OnlineDepositsEnabled || body.PayPalLink != "https://paypal.me/salon" {
		t.Fatalf("unexpected public settings: %+v", body)
	}

	req = httptest.NewRequest(http.MethodPut, "/api/v1/settings", strings.NewReader(`{"deposit_amount":"-5"}`))
	req.Header.Set(tenantHeader, testTenant)
	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("negative deposit: expected 400, got %d", rw.Code)
	}
}

func TestCalendarRequiresTenantHeader(t *testing.T) {
	b := &stubBooker{list: []model.Appointment{sampleAppointment()}}
	mux := newTestMux(b, &stubSettings{})

	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/api/v1/appointments?from=2024-06-01&to=2024-06-30", nil))
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without tenant header, got %d", rw.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments?from=2024-06-01&to=2024-06-30", nil)
	req.Header.Set(tenantHeader, testTenant)
	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK || b.lastFrom != "2024-06-01" {
		t.Fatalf("expected 200, got %d (from=%q)", rw.Code, b.lastFrom)
	}
	if strings.Contains(rw.Body.String(), "tok-abc") {
		t.Fatal("calendar must not leak cancellation tokens")
	}
}
