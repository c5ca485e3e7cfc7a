package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/entrenia/booking-engine/internal/availability"
	"github.com/entrenia/booking-engine/internal/store"
)

// defaultService is offered when a tenant has no services configured: the
// booking flow proceeds with a generic hour at no charge instead of dead
// ending.
func defaultService() ServiceRef {
	return ServiceRef{Name: "Sesión", DurationMinutes: 60, PriceCents: 0}
}

func (e *Engine) startBookingFlow(ctx context.Context, trainer store.Trainer) (turnResult, error) {
	services, err := e.activeServiceRefs(ctx, trainer.ID)
	if err != nil {
		return turnResult{}, err
	}

	switch len(services) {
	case 0:
		svc := defaultService()
		return e.offerSlots(ctx, trainer, svc)
	case 1:
		return e.offerSlots(ctx, trainer, services[0])
	default:
		return turnResult{
			state:   StateChoosingService,
			ctx:     Context{Services: services},
			replies: []string{renderNumberedList(headerServices, services, formatServiceLabel)},
		}, nil
	}
}

func (e *Engine) handleChoosingService(ctx context.Context, trainer store.Trainer, cctx Context, text string) (turnResult, error) {
	stay := turnResult{state: StateChoosingService, ctx: cctx}
	return handleSelection(text, cctx.Services, stay, func(svc ServiceRef) (turnResult, error) {
		return e.offerSlots(ctx, trainer, svc)
	})
}

// offerSlots runs the availability calculator over the lookahead horizon and
// offers the first open start times as a numbered list. The progress message
// plus the list are the two sends allowed on this path.
func (e *Engine) offerSlots(ctx context.Context, trainer store.Trainer, svc ServiceRef) (turnResult, error) {
	ctx, span := tracer.Start(ctx, "engine.offer_slots")
	defer span.End()

	now := e.now().In(e.loc)
	windowEnd := now.AddDate(0, 0, e.horizonDays)
	started := time.Now()

	rules, err := e.deps.Schedule.ActiveRules(ctx, trainer.ID)
	if err != nil {
		return turnResult{}, fmt.Errorf("engine: load rules: %w", err)
	}
	blocks, err := e.deps.Schedule.BlocksBetween(ctx, trainer.ID, now, windowEnd.AddDate(0, 0, 1))
	if err != nil {
		return turnResult{}, fmt.Errorf("engine: load blocks: %w", err)
	}
	busy, err := e.deps.Schedule.ConfirmedBetween(ctx, trainer.ID, now, windowEnd.AddDate(0, 0, 1))
	if err != nil {
		return turnResult{}, fmt.Errorf("engine: load confirmed appointments: %w", err)
	}

	duration := time.Duration(svc.DurationMinutes) * time.Minute
	slots := availability.Slots(now, now, windowEnd, rules, blocks, busy, duration)
	e.metrics.ObserveSlotSearch(time.Since(started).Seconds(), len(slots))

	if len(slots) == 0 {
		return turnResult{state: StateIdle, replies: []string{replySearching, replyNoSlots}}, nil
	}
	if len(slots) > e.maxOffers {
		slots = slots[:e.maxOffers]
	}

	options := make([]SlotOption, 0, len(slots))
	for _, s := range slots {
		options = append(options, SlotOption{
			Date: s.Start.Format("2006-01-02"),
			Time: s.Start.Format("15:04"),
		})
	}

	list := renderNumberedList(headerSlots, options, func(o SlotOption) string {
		return formatSlotLabel(o, e.loc)
	})
	return turnResult{
		state:   StateChoosingOption,
		ctx:     Context{Slots: options, Service: &svc},
		replies: []string{replySearching, list},
	}, nil
}

func (e *Engine) handleChoosingOption(ctx context.Context, trainer store.Trainer, client store.Client, cctx Context, text string) (turnResult, error) {
	stay := turnResult{state: StateChoosingOption, ctx: cctx}
	return handleSelection(text, cctx.Slots, stay, func(slot SlotOption) (turnResult, error) {
		svc := defaultService()
		if cctx.Service != nil {
			svc = *cctx.Service
		}
		return e.confirmBooking(ctx, trainer, client, svc, slot)
	})
}

// confirmBooking materializes a previously offered slot. The offer may be
// stale, so start/end are recomputed from the literal date and time strings
// and the interval is re-validated against confirmed appointments before the
// conditional insert.
func (e *Engine) confirmBooking(ctx context.Context, trainer store.Trainer, client store.Client, svc ServiceRef, slot SlotOption) (turnResult, error) {
	ctx, span := tracer.Start(ctx, "engine.confirm_booking")
	defer span.End()

	start, err := time.ParseInLocation("2006-01-02 15:04", slot.Date+" "+slot.Time, e.loc)
	if err != nil {
		return turnResult{}, fmt.Errorf("engine: parse offered slot: %w", err)
	}
	end := start.Add(time.Duration(svc.DurationMinutes) * time.Minute)

	taken, err := e.deps.Bookings.HasOverlap(ctx, trainer.ID, start, end)
	if err != nil {
		return turnResult{}, fmt.Errorf("engine: revalidate slot: %w", err)
	}
	if taken {
		e.metrics.ObserveBooking("taken")
		return turnResult{state: StateIdle, replies: []string{replySlotTaken}}, nil
	}

	if client.ID == uuid.Nil {
		client, err = e.deps.Clients.Upsert(ctx, trainer.ID, client.Phone, client.Name)
		if err != nil {
			return turnResult{}, fmt.Errorf("engine: resolve client: %w", err)
		}
	}

	appt := store.Appointment{
		TrainerID: trainer.ID,
		ClientID:  client.ID,
		ServiceID: svc.ID,
		StartAt:   start,
		EndAt:     end,
		Source:    store.SourceWhatsApp,
	}
	if err := e.deps.Bookings.InsertConfirmed(ctx, appt); err != nil {
		if errors.Is(err, store.ErrSlotTaken) {
			e.metrics.ObserveBooking("taken")
			return turnResult{state: StateIdle, replies: []string{replySlotTaken}}, nil
		}
		e.logger.Error("appointment insert failed", "error", err, "phone", client.Phone)
		e.metrics.ObserveBooking("error")
		return turnResult{state: StateIdle, replies: []string{replyBookingFailed}}, nil
	}

	e.metrics.ObserveBooking("confirmed")
	return turnResult{state: StateIdle, replies: []string{formatBookingConfirmation(svc, slot)}}, nil
}
