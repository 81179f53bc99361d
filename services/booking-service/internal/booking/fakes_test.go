package booking

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/salonbook/salonbook/services/booking-service/internal/availability"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
)

type fakeCatalog struct {
	services map[string]model.Service
	staff    map[string]model.Staff
}

// pgUUID matches ids the way a uuid column does: any accepted spelling, compared by value.
func pgUUID(v string) string {
	id, err := uuid.Parse(v)
	if err != nil {
		return v
	}
	return id.String()
}

func (c *fakeCatalog) GetService(_ context.Context, tenantID, id string) (model.Service, error) {
	s, ok := c.services[pgUUID(id)]
	if !ok || s.TenantID != pgUUID(tenantID) {
		return model.Service{}, ErrNotFound
	}
	return s, nil
}

func (c *fakeCatalog) GetStaff(_ context.Context, tenantID, id string) (model.Staff, error) {
	s, ok := c.staff[pgUUID(id)]
	if !ok || s.TenantID != pgUUID(tenantID) {
		return model.Staff{}, ErrNotFound
	}
	return s, nil
}

type fakeSettings struct {
	mu       sync.Mutex
	byTenant map[string]model.Settings
}

func (f *fakeSettings) GetSettings(_ context.Context, tenantID string) (model.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.byTenant[tenantID]; ok {
		return s, nil
	}
	return model.DefaultSettings(tenantID), nil
}

func (f *fakeSettings) set(s model.Settings) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byTenant == nil {
		f.byTenant = map[string]model.Settings{}
	}
	f.byTenant[s.TenantID] = s
}

// memStore is an AppointmentStore whose check-then-insert runs under one mutex.
type memStore struct {
	mu    sync.Mutex
	appts []model.Appointment
	now   time.Time

	failInserts int // next N inserts fail with ErrPersistence
	inserts     int
	// beforeInsert runs after the caller's availability check and before the atomic insert.
	beforeInsert func()
}

func (m *memStore) ListActive(_ context.Context, tenantID, staffID string, date time.Time) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Appointment
	for _, a := range m.appts {
		if a.TenantID == tenantID && a.StaffID == staffID && a.Date.Equal(date) && a.Status.Active() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) InsertIfAvailable(_ context.Context, draft model.Appointment) (model.Appointment, error) {
	if m.beforeInsert != nil {
		m.beforeInsert()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if m.failInserts > 0 {
		m.failInserts--
		return model.Appointment{}, Persistence("insert appointment", context.DeadlineExceeded)
	}
	var same []model.Appointment
	for _, a := range m.appts {
		if a.TenantID == draft.TenantID && a.StaffID == draft.StaffID && a.Date.Equal(draft.Date) {
			same = append(same, a)
		}
	}
	if !availability.IsFree(draft.Date, draft.StartTime, draft.DurationMinutes, same) {
		return model.Appointment{}, ErrSlotUnavailable
	}
	for _, a := range m.appts {
		if a.CancellationToken == draft.CancellationToken {
			return model.Appointment{}, Persistence("insert appointment", context.Canceled)
		}
	}
	draft.ID = uuid.NewString()
	draft.CreatedAt = m.now
	draft.UpdatedAt = m.now
	m.appts = append(m.appts, draft)
	return draft, nil
}

func (m *memStore) FindByToken(_ context.Context, token string) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appts {
		if a.CancellationToken == token {
			return a, nil
		}
	}
	return model.Appointment{}, ErrNotFound
}

func (m *memStore) UpdateStatus(_ context.Context, id string, status model.Status) (model.Appointment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range m.appts {
		if a.ID != id {
			continue
		}
		if a.Status == status {
			return a, false, nil
		}
		m.appts[i].Status = status
		m.appts[i].UpdatedAt = m.now
		return m.appts[i], true, nil
	}
	return model.Appointment{}, false, ErrNotFound
}

func (m *memStore) ListActiveInRange(_ context.Context, tenantID string, from, to time.Time) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Appointment
	for _, a := range m.appts {
		if a.TenantID == tenantID && a.Status.Active() && !a.Date.Before(from) && !a.Date.After(to) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b model.Appointment) int { return a.StartTime.Compare(b.StartTime) })
	return out, nil
}

func (m *memStore) snapshot() []model.Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.appts)
}
