package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/salonbook/salonbook/libs/db"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
)

// CatalogRepository serves services and staff, always scoped to one tenant.
type CatalogRepository struct {
	pool *db.Pool
}

func NewCatalogRepository(pool *db.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) GetService(ctx context.Context, tenantID, serviceID string) (model.Service, error) {
	svc, err := scanService(r.pool.QueryRow(ctx, `
		SELECT id::text, tenant_id::text, name, category, duration_minutes, price::text, description, active
		FROM services
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, serviceID))
	if err != nil {
		return model.Service{}, mapError("get service", err)
	}
	return svc, nil
}

// ListServices returns the tenant's active services ordered by category and name.
func (r *CatalogRepository) ListServices(ctx context.Context, tenantID string) ([]model.Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, tenant_id::text, name, category, duration_minutes, price::text, description, active
		FROM services
		WHERE tenant_id = $1 AND active
		ORDER BY category ASC, name ASC
	`, tenantID)
	if err != nil {
		return nil, mapError("list services", err)
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, mapError("list services", err)
		}
		out = append(out, svc)
	}
	if rows.Err() != nil {
		return nil, mapError("list services", rows.Err())
	}
	return out, nil
}

func (r *CatalogRepository) GetStaff(ctx context.Context, tenantID, staffID string) (model.Staff, error) {
	var s model.Staff
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, tenant_id::text, name, role, email, phone, active
		FROM staff
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, staffID).Scan(&s.ID, &s.TenantID, &s.Name, &s.Role, &s.Email, &s.Phone, &s.Active)
	if err != nil {
		return model.Staff{}, mapError("get staff", err)
	}
	return s, nil
}

// ListStaff returns the tenant's active staff ordered by name.
func (r *CatalogRepository) ListStaff(ctx context.Context, tenantID string) ([]model.Staff, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, tenant_id::text, name, role, email, phone, active
		FROM staff
		WHERE tenant_id = $1 AND active
		ORDER BY name ASC
	`, tenantID)
	if err != nil {
		return nil, mapError("list staff", err)
	}
	defer rows.Close()

	var out []model.Staff
	for rows.Next() {
		var s model.Staff
		if err := rows.Scan(&s.ID, &s.TenantID, &s.Name, &s.Role, &s.Email, &s.Phone, &s.Active); err != nil {
			return nil, mapError("list staff", err)
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, mapError("list staff", rows.Err())
	}
	return out, nil
}

func scanService(row pgx.Row) (model.Service, error) {
	var (
		svc      model.Service
		category string
		price    string
	)
	if err := row.Scan(&svc.ID, &svc.TenantID, &svc.Name, &category, &svc.DurationMinutes, &price, &svc.Description, &svc.Active); err != nil {
		return model.Service{}, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return model.Service{}, err
	}
	svc.Category = model.Category(category)
	svc.Price = p
	return svc, nil
}
