package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OrderRepo writes product orders for commerce-mode tenants.
type OrderRepo struct {
	db DB
}

func NewOrderRepo(db DB) *OrderRepo {
	if db == nil {
		panic("store: db required")
	}
	return &OrderRepo{db: db}
}

// CreateConfirmed inserts the order and its items in one transaction.
func (r *OrderRepo) CreateConfirmed(ctx context.Context, order Order, items []OrderItem) (Order, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.Status = OrderConfirmed

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("store: begin order tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, trainer_id, client_id, status, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, order.ID, order.TrainerID, order.ClientID, order.Status, order.Source, order.CreatedAt)
	if err != nil {
		return Order{}, fmt.Errorf("store: insert order: %w", err)
	}

	for _, item := range items {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		if item.Quantity <= 0 {
			item.Quantity = 1
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity, price_cents)
			VALUES ($1, $2, $3, $4, $5)
		`, item.ID, order.ID, item.ProductID, item.Quantity, item.PriceCents)
		if err != nil {
			return Order{}, fmt.Errorf("store: insert order item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, fmt.Errorf("store: commit order: %w", err)
	}
	return order, nil
}
