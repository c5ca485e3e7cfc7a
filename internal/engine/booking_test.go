package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrenia/booking-engine/internal/store"
)

func choosingOptionContext() Context {
	svcID := uuid.New()
	return Context{
		Slots: []SlotOption{
			{Date: "2026-09-07", Time: "09:00"},
			{Date: "2026-09-07", Time: "10:00"},
		},
		Service: &ServiceRef{ID: &svcID, Name: "Funcional", DurationMinutes: 60, PriceCents: 30000},
	}
}

func TestConfirmBookingHappyPath(t *testing.T) {
	cctx := choosingOptionContext()
	h := newHarness(t, StateChoosingOption, cctx)

	h.inbound(t, "2")

	require.Len(t, h.bookings.inserted, 1)
	appt := h.bookings.inserted[0]
	assert.Equal(t, h.trainer.ID, appt.TrainerID)
	assert.Equal(t, *cctx.Service.ID, *appt.ServiceID)
	assert.Equal(t, time.Date(2026, time.September, 7, 10, 0, 0, 0, time.UTC), appt.StartAt)
	assert.Equal(t, time.Date(2026, time.September, 7, 11, 0, 0, 0, time.UTC), appt.EndAt)
	assert.Equal(t, store.SourceWhatsApp, appt.Source)

	require.Len(t, h.messenger.sent, 1)
	assert.Contains(t, h.messenger.sent[0], "¡Cita confirmada!")
	assert.Contains(t, h.messenger.sent[0], "Funcional")
	assert.Contains(t, h.messenger.sent[0], "2026-09-07")
	assert.Contains(t, h.messenger.sent[0], "10:00")
	assert.Equal(t, StateIdle, h.savedState())
}

func TestConfirmBookingReUpsertsClientWhenMissing(t *testing.T) {
	h := newHarness(t, StateChoosingOption, choosingOptionContext())
	// The per-message upsert fails, so the booking step has no client ID and
	// must resolve one itself.
	h.clients.failures = 1

	h.inbound(t, "1")

	assert.Equal(t, 2, h.clients.upserts)
	require.Len(t, h.bookings.inserted, 1)
	assert.NotEqual(t, uuid.Nil, h.bookings.inserted[0].ClientID)
}

func TestConfirmBookingReValidatesOverlap(t *testing.T) {
	h := newHarness(t, StateChoosingOption, choosingOptionContext())
	h.bookings.overlap = true

	h.inbound(t, "1")

	assert.Empty(t, h.bookings.inserted)
	require.Len(t, h.messenger.sent, 1)
	assert.Equal(t, replySlotTaken, h.messenger.sent[0])
	assert.Equal(t, StateIdle, h.savedState())
}

func TestConfirmBookingLosesInsertRace(t *testing.T) {
	h := newHarness(t, StateChoosingOption, choosingOptionContext())
	h.bookings.insertErr = store.ErrSlotTaken

	h.inbound(t, "1")

	require.Len(t, h.messenger.sent, 1)
	assert.Equal(t, replySlotTaken, h.messenger.sent[0])
	assert.Equal(t, StateIdle, h.savedState())
}

func TestConfirmBookingInsertFailure(t *testing.T) {
	h := newHarness(t, StateChoosingOption, choosingOptionContext())
	h.bookings.insertErr = errors.New("connection refused")

	h.inbound(t, "1")

	require.Len(t, h.messenger.sent, 1)
	assert.Equal(t, replyBookingFailed, h.messenger.sent[0])
	assert.Equal(t, StateIdle, h.savedState())
}

func TestConfirmBookingOverlapCheckErrorApologizes(t *testing.T) {
	h := newHarness(t, StateChoosingOption, choosingOptionContext())
	h.bookings.overlapErr = errors.New("timeout")

	h.inbound(t, "1")

	require.Len(t, h.messenger.sent, 1)
	assert.Equal(t, replyApology, h.messenger.sent[0])
	assert.Equal(t, StateIdle, h.savedState())
}

func TestChoosingServiceSelectionOffersSlots(t *testing.T) {
	svcID := uuid.New()
	cctx := Context{Services: []ServiceRef{
		{ID: &svcID, Name: "Funcional", DurationMinutes: 60, PriceCents: 30000},
		{Name: "Yoga", DurationMinutes: 30, PriceCents: 20000},
	}}
	h := newHarness(t, StateChoosingService, cctx)

	h.inbound(t, "2")

	require.Len(t, h.messenger.sent, 2)
	assert.Equal(t, replySearching, h.messenger.sent[0])
	assert.Equal(t, StateChoosingOption, h.savedState())

	saved, err := decodeContext(h.conversations.conv.Context)
	require.NoError(t, err)
	require.NotNil(t, saved.Service)
	assert.Equal(t, "Yoga", saved.Service.Name)
}

func TestFormatSlotLabel(t *testing.T) {
	label := formatSlotLabel(SlotOption{Date: "2026-09-08", Time: "17:30"}, time.UTC)
	assert.Equal(t, "martes 08/09 a las 17:30", label)

	// Unparseable input falls back to the raw strings.
	label = formatSlotLabel(SlotOption{Date: "mañana", Time: "17:30"}, time.UTC)
	assert.Equal(t, "mañana a las 17:30", label)
}
