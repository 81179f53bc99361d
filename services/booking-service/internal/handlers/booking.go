package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/salonbook/salonbook/libs/httpx"
	"github.com/salonbook/salonbook/services/booking-service/internal/booking"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
)

const tenantHeader = "X-Tenant-Id"

type Booker interface {
	DaySlots(ctx context.Context, tenantID, staffID, serviceID, date string) (booking.DaySlots, error)
	Create(ctx context.Context, req booking.CreateRequest) (model.Appointment, error)
	Cancel(ctx context.Context, token string) (model.Appointment, error)
	ListAppointments(ctx context.Context, tenantID, from, to string) ([]model.Appointment, error)
}

type Catalog interface {
	ListServices(ctx context.Context, tenantID string) ([]model.Service, error)
	ListStaff(ctx context.Context, tenantID string) ([]model.Staff, error)
}

type Settings interface {
	GetSettings(ctx context.Context, tenantID string) (model.Settings, error)
	UpsertSettings(ctx context.Context, s model.Settings) error
}

type BookingHandler struct {
	booker   Booker
	catalog  Catalog
	settings Settings
	logger   *slog.Logger
}

func NewBookingHandler(booker Booker, catalog Catalog, settings Settings, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		booker:   booker,
		catalog:  catalog,
		settings: settings,
		logger:   logger,
	}
}

// Register mounts the booking routes. public wraps the unauthenticated widget routes.
func (h *BookingHandler) Register(mux *http.ServeMux, public httpx.Middleware) {
	if public == nil {
		public = func(next http.Handler) http.Handler { return next }
	}
	mux.Handle("/api/v1/public/slots", public(http.HandlerFunc(h.Slots)))
	mux.Handle("/api/v1/public/book", public(http.HandlerFunc(h.Create)))
	mux.Handle("/api/v1/public/cancel", public(http.HandlerFunc(h.Cancel)))
	mux.Handle("/api/v1/public/services", public(http.HandlerFunc(h.Services)))
	mux.Handle("/api/v1/public/staff", public(http.HandlerFunc(h.Staff)))
	mux.Handle("/api/v1/public/settings", public(http.HandlerFunc(h.PublicSettings)))
	mux.HandleFunc("/api/v1/appointments", h.Calendar)
	mux.HandleFunc("/api/v1/settings", h.UpdateSettings)
}

type createBookingRequest struct {
	TenantID      string `json:"tenant_id"`
	ServiceID     string `json:"service_id"`
	StaffID       string `json:"staff_id"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
	Notes         string `json:"notes"`
}

type cancelBookingRequest struct {
	Token string `json:"token"`
}

type appointmentResponse struct {
	ID                string `json:"id"`
	TenantID          string `json:"tenant_id"`
	ServiceID         string `json:"service_id"`
	StaffID           string `json:"staff_id"`
	CustomerName      string `json:"customer_name"`
	CustomerEmail     string `json:"customer_email,omitempty"`
	CustomerPhone     string `json:"customer_phone,omitempty"`
	Date              string `json:"date"`
	Time              string `json:"time"`
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
	DurationMinutes   int    `json:"duration_minutes"`
	Status            string `json:"status"`
	DepositPaid       bool   `json:"deposit_paid"`
	DepositAmount     string `json:"deposit_amount"`
	TotalPrice        string `json:"total_price"`
	Notes             string `json:"notes,omitempty"`
	CancellationToken string `json:"cancellation_token,omitempty"`
	CreatedAt         string `json:"created_at,omitempty"`
}

type slotItem struct {
	Time      string `json:"time"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type serviceItem struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Category        string `json:"category"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           string `json:"price"`
	Description     string `json:"description,omitempty"`
}

type staffItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

type settingsBody struct {
	TenantID              string `json:"tenant_id,omitempty"`
	ManualApprovalEnabled bool   `json:"manual_approval_enabled"`
	OnlineDepositsEnabled bool   `json:"online_deposits_enabled"`
	DepositAmount         string `json:"deposit_amount"`
	PayPalLink            string `json:"paypal_link,omitempty"`
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	day, err := h.booker.DaySlots(r.Context(),
		strings.TrimSpace(q.Get("tenant_id")),
		strings.TrimSpace(q.Get("staff_id")),
		strings.TrimSpace(q.Get("service_id")),
		strings.TrimSpace(q.Get("date")),
	)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	duration := time.Duration(day.DurationMinutes) * time.Minute
	items := make([]slotItem, 0, len(day.Starts))
	for _, start := range day.Starts {
		items = append(items, slotItem{
			Time:      start.Format(booking.TimeLayout),
			StartTime: start.UTC().Format(time.RFC3339),
			EndTime:   start.Add(duration).UTC().Format(time.RFC3339),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	appt, err := h.booker.Create(r.Context(), booking.CreateRequest{
		TenantID:  req.TenantID,
		ServiceID: req.ServiceID,
		StaffID:   req.StaffID,
		Date:      req.Date,
		Time:      req.Time,
		Customer: model.Customer{
			Name:  req.CustomerName,
			Email: req.CustomerEmail,
			Phone: req.CustomerPhone,
		},
		Notes: req.Notes,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := toAppointmentResponse(appt)
	resp.CancellationToken = appt.CancellationToken
	httpx.WriteJSON(w, http.StatusCreated, resp)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req cancelBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	appt, err := h.booker.Cancel(r.Context(), req.Token)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *BookingHandler) Services(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.publicTenant(w, r)
	if !ok {
		return
	}
	services, err := h.catalog.ListServices(r.Context(), tenantID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	items := make([]serviceItem, 0, len(services))
	for _, s := range services {
		items = append(items, serviceItem{
			ID:              s.ID,
			Name:            s.Name,
			Category:        string(s.Category),
			DurationMinutes: s.DurationMinutes,
			Price:           s.Price.StringFixed(2),
			Description:     s.Description,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) Staff(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.publicTenant(w, r)
	if !ok {
		return
	}
	staff, err := h.catalog.ListStaff(r.Context(), tenantID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	items := make([]staffItem, 0, len(staff))
	for _, s := range staff {
		items = append(items, staffItem{ID: s.ID, Name: s.Name, Role: s.Role})
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

// PublicSettings exposes the deposit policy the checkout page needs.
func (h *BookingHandler) PublicSettings(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.publicTenant(w, r)
	if !ok {
		return
	}
	s, err := h.settings.GetSettings(r.Context(), tenantID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toSettingsBody(s))
}

func (h *BookingHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	tenantID := strings.TrimSpace(r.Header.Get(tenantHeader))
	if tenantID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "X-Tenant-Id header required")
		return
	}

	q := r.URL.Query()
	appts, err := h.booker.ListAppointments(r.Context(), tenantID, q.Get("from"), q.Get("to"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	items := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		items = append(items, toAppointmentResponse(a))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodPut:
	default:
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	tenantID := strings.TrimSpace(r.Header.Get(tenantHeader))
	if _, err := uuid.Parse(tenantID); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "X-Tenant-Id header must be a UUID")
		return
	}

	if r.Method == http.MethodPut {
		var body settingsBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		s, err := parseSettings(tenantID, body)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		if err := h.settings.UpsertSettings(r.Context(), s); err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		h.logger.InfoContext(r.Context(), "booking settings updated", "tenant_id", tenantID)
	}

	s, err := h.settings.GetSettings(r.Context(), tenantID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toSettingsBody(s))
}

func (h *BookingHandler) publicTenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return "", false
	}
	tenantID := strings.TrimSpace(r.URL.Query().Get("tenant_id"))
	if _, err := uuid.Parse(tenantID); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "tenant_id: must be a UUID")
		return "", false
	}
	return tenantID, true
}

func (h *BookingHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *booking.ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.WriteError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, booking.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not found")
	case errors.Is(err, booking.ErrSlotUnavailable):
		httpx.WriteError(w, http.StatusConflict, booking.ErrSlotUnavailable.Error())
	case errors.Is(err, booking.ErrPersistence):
		w.Header().Set("Retry-After", "1")
		httpx.WriteError(w, http.StatusServiceUnavailable, "temporarily unavailable, please retry")
	default:
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "request_id", httpx.RequestIDFromContext(r.Context()), "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

func toAppointmentResponse(a model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		ID:              a.ID,
		TenantID:        a.TenantID,
		ServiceID:       a.ServiceID,
		StaffID:         a.StaffID,
		CustomerName:    a.ClientName,
		CustomerEmail:   a.ClientEmail,
		CustomerPhone:   a.ClientPhone,
		Date:            a.Date.Format(booking.DateLayout),
		Time:            a.StartTime.Format(booking.TimeLayout),
		StartTime:       a.StartTime.UTC().Format(time.RFC3339),
		EndTime:         a.EndTime().UTC().Format(time.RFC3339),
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		DepositPaid:     a.DepositPaid,
		DepositAmount:   a.DepositAmount.StringFixed(2),
		TotalPrice:      a.TotalPrice.StringFixed(2),
		Notes:           a.Notes,
	}
	if !a.CreatedAt.IsZero() {
		resp.CreatedAt = a.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func toSettingsBody(s model.Settings) settingsBody {
	return settingsBody{
		TenantID:              s.TenantID,
		ManualApprovalEnabled: s.ManualApprovalEnabled,
		OnlineDepositsEnabled: s.OnlineDepositsEnabled,
		DepositAmount:         s.DepositAmount.StringFixed(2),
		PayPalLink:            s.PayPalLink,
	}
}

func parseSettings(tenantID string, body settingsBody) (model.Settings, error) {
	s := model.Settings{
		TenantID:              tenantID,
		ManualApprovalEnabled: body.ManualApprovalEnabled,
		OnlineDepositsEnabled: body.OnlineDepositsEnabled,
		DepositAmount:         decimal.Zero,
		PayPalLink:            strings.TrimSpace(body.PayPalLink),
	}
	if raw := strings.TrimSpace(body.DepositAmount); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil || amount.IsNegative() {
			return model.Settings{}, &booking.ValidationError{Field: "deposit_amount", Message: "must be a non-negative amount"}
		}
		s.DepositAmount = amount.Round(2)
	}
	if s.PayPalLink != "" {
		u, err := url.Parse(s.PayPalLink)
		if err != nil || u.Scheme != "https" || u.Host == "" {
			return model.Settings{}, &booking.ValidationError{Field: "paypal_link", Message: "must be an https URL"}
		}
	}
	return s, nil
}
