package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CatalogRepo lists tenant offerings: services for the booking flow and
// products for the commerce flow.
type CatalogRepo struct {
	db DB
}

func NewCatalogRepo(db DB) *CatalogRepo {
	if db == nil {
		panic("store: db required")
	}
	return &CatalogRepo{db: db}
}

// ActiveServices returns the tenant's active services in creation order.
func (r *CatalogRepo) ActiveServices(ctx context.Context, trainerID uuid.UUID) ([]Service, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, trainer_id, name, duration_minutes, price_cents, is_active
		FROM services
		WHERE trainer_id = $1 AND is_active
		ORDER BY created_at
	`, trainerID)
	if err != nil {
		return nil, fmt.Errorf("store: list services: %w", err)
	}
	defer rows.Close()

	var services []Service
	for rows.Next() {
		var s Service
		if err := rows.Scan(&s.ID, &s.TrainerID, &s.Name, &s.DurationMinutes, &s.PriceCents, &s.Active); err != nil {
			return nil, fmt.Errorf("store: scan service: %w", err)
		}
		services = append(services, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list services: %w", err)
	}
	return services, nil
}

// ActiveProducts returns the tenant's active products in creation order.
func (r *CatalogRepo) ActiveProducts(ctx context.Context, trainerID uuid.UUID) ([]Product, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, trainer_id, name, price_cents, is_active
		FROM products
		WHERE trainer_id = $1 AND is_active
		ORDER BY created_at
	`, trainerID)
	if err != nil {
		return nil, fmt.Errorf("store: list products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.TrainerID, &p.Name, &p.PriceCents, &p.Active); err != nil {
			return nil, fmt.Errorf("store: scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list products: %w", err)
	}
	return products, nil
}
