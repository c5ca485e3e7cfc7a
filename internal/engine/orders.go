package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/entrenia/booking-engine/internal/store"
)

// The commerce flow mirrors the appointment flow through the shared
// numbered-list protocol: offer products, await a pick, confirm.

func (e *Engine) startProductFlow(ctx context.Context, trainer store.Trainer) (turnResult, error) {
	products, err := e.activeProductRefs(ctx, trainer.ID)
	if err != nil {
		return turnResult{}, err
	}
	if len(products) == 0 {
		return turnResult{state: StateIdle, replies: []string{replyNoProducts}}, nil
	}
	return turnResult{
		state:   StateChoosingProduct,
		ctx:     Context{Products: products},
		replies: []string{renderNumberedList(headerProducts, products, formatProductLabel)},
	}, nil
}

func (e *Engine) handleChoosingProduct(cctx Context, text string) (turnResult, error) {
	stay := turnResult{state: StateChoosingProduct, ctx: cctx}
	return handleSelection(text, cctx.Products, stay, func(p ProductRef) (turnResult, error) {
		return turnResult{
			state:   StateConfirmingOrder,
			ctx:     Context{Product: &p},
			replies: []string{formatOrderPrompt(p)},
		}, nil
	})
}

func (e *Engine) handleConfirmingOrder(ctx context.Context, trainer store.Trainer, client store.Client, cctx Context, text string) (turnResult, error) {
	if cctx.Product == nil {
		return turnResult{state: StateIdle, replies: []string{replyCancelled}}, nil
	}

	switch {
	case isAffirmative(text):
		return e.placeOrder(ctx, trainer, client, *cctx.Product)
	case isNegative(text):
		return turnResult{state: StateIdle, replies: []string{replyCancelled}}, nil
	default:
		stay := turnResult{state: StateConfirmingOrder, ctx: cctx}
		stay.replies = []string{formatOrderPrompt(*cctx.Product)}
		return stay, nil
	}
}

func (e *Engine) placeOrder(ctx context.Context, trainer store.Trainer, client store.Client, product ProductRef) (turnResult, error) {
	if e.deps.Orders == nil {
		return turnResult{state: StateIdle, replies: []string{replyOrderFailed}}, nil
	}

	if client.ID == uuid.Nil {
		var err error
		client, err = e.deps.Clients.Upsert(ctx, trainer.ID, client.Phone, client.Name)
		if err != nil {
			return turnResult{}, fmt.Errorf("engine: resolve client: %w", err)
		}
	}

	order := store.Order{
		TrainerID: trainer.ID,
		ClientID:  client.ID,
		Source:    store.SourceWhatsApp,
	}
	item := store.OrderItem{ProductID: product.ID, Quantity: 1, PriceCents: product.PriceCents}

	if _, err := e.deps.Orders.CreateConfirmed(ctx, order, []store.OrderItem{item}); err != nil {
		e.logger.Error("order insert failed", "error", err, "phone", client.Phone)
		e.metrics.ObserveOrder("error")
		return turnResult{state: StateIdle, replies: []string{replyOrderFailed}}, nil
	}

	e.metrics.ObserveOrder("confirmed")
	return turnResult{state: StateIdle, replies: []string{formatOrderConfirmation(product)}}, nil
}
