package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrenia/booking-engine/internal/availability"
	"github.com/entrenia/booking-engine/internal/store"
	"github.com/entrenia/booking-engine/pkg/logging"
)

type stubDirectory struct {
	trainer store.Trainer
	err     error
}

func (s *stubDirectory) ResolveByWANumber(context.Context, string) (store.Trainer, error) {
	return s.trainer, s.err
}

type stubClients struct {
	client   store.Client
	err      error
	failures int
	upserts  int
}

func (s *stubClients) Upsert(_ context.Context, _ uuid.UUID, phone, name string) (store.Client, error) {
	s.upserts++
	if s.failures > 0 {
		s.failures--
		return store.Client{}, errors.New("transient upsert failure")
	}
	if s.err != nil {
		return store.Client{}, s.err
	}
	c := s.client
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Phone = phone
	if name != "" {
		c.Name = name
	}
	return c, nil
}

type stubConversations struct {
	conv    *store.Conversation
	saveErr error
	saved   bool
}

func (s *stubConversations) LoadOrCreate(context.Context, string, uuid.UUID) (*store.Conversation, error) {
	return s.conv, nil
}

func (s *stubConversations) Save(_ context.Context, conv *store.Conversation) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = true
	conv.Version++
	return nil
}

type stubCatalog struct {
	services []store.Service
	products []store.Product
	err      error
}

func (s *stubCatalog) ActiveServices(context.Context, uuid.UUID) ([]store.Service, error) {
	return s.services, s.err
}

func (s *stubCatalog) ActiveProducts(context.Context, uuid.UUID) ([]store.Product, error) {
	return s.products, s.err
}

type stubSchedule struct {
	rules  []availability.Rule
	blocks []availability.Window
	busy   []availability.Window
	err    error
}

func (s *stubSchedule) ActiveRules(context.Context, uuid.UUID) ([]availability.Rule, error) {
	return s.rules, s.err
}

func (s *stubSchedule) BlocksBetween(context.Context, uuid.UUID, time.Time, time.Time) ([]availability.Window, error) {
	return s.blocks, nil
}

func (s *stubSchedule) ConfirmedBetween(context.Context, uuid.UUID, time.Time, time.Time) ([]availability.Window, error) {
	return s.busy, nil
}

type stubBookings struct {
	overlap    bool
	overlapErr error
	insertErr  error
	inserted   []store.Appointment
}

func (s *stubBookings) HasOverlap(context.Context, uuid.UUID, time.Time, time.Time) (bool, error) {
	return s.overlap, s.overlapErr
}

func (s *stubBookings) InsertConfirmed(_ context.Context, appt store.Appointment) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, appt)
	return nil
}

type stubOrders struct {
	err     error
	created []store.Order
	items   [][]store.OrderItem
}

func (s *stubOrders) CreateConfirmed(_ context.Context, order store.Order, items []store.OrderItem) (store.Order, error) {
	if s.err != nil {
		return store.Order{}, s.err
	}
	order.ID = uuid.New()
	s.created = append(s.created, order)
	s.items = append(s.items, items)
	return order, nil
}

type stubAISettings struct {
	settings store.AISettings
	err      error
}

func (s *stubAISettings) ForTrainer(context.Context, uuid.UUID) (store.AISettings, error) {
	return s.settings, s.err
}

type stubMessenger struct {
	sent []string
	err  error
}

func (s *stubMessenger) SendText(_ context.Context, _, body string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, body)
	return nil
}

type stubFallback struct {
	reply    string
	err      error
	messages []string
}

func (s *stubFallback) Respond(_ context.Context, _ string, _ store.AISettings, _, userMessage string) (string, error) {
	s.messages = append(s.messages, userMessage)
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

type harness struct {
	engine        *Engine
	trainer       store.Trainer
	conversations *stubConversations
	catalog       *stubCatalog
	schedule      *stubSchedule
	bookings      *stubBookings
	orders        *stubOrders
	messenger     *stubMessenger
	fallback      *stubFallback
	clients       *stubClients
}

// testNow is a Monday at 08:00 UTC.
var testNow = time.Date(2026, time.September, 7, 8, 0, 0, 0, time.UTC)

func mondayRule() availability.Rule {
	return availability.Rule{Weekday: 1, Start: "09:00", End: "12:00", Active: true}
}

func newHarness(t *testing.T, state State, cctx Context) *harness {
	t.Helper()

	trainer := store.Trainer{
		ID:       uuid.New(),
		Name:     "Laura",
		WANumber: "5215500000001",
		Mode:     store.ModeAppointments,
	}
	h := &harness{
		trainer: trainer,
		conversations: &stubConversations{conv: &store.Conversation{
			Phone:     "5215512345678",
			TrainerID: trainer.ID,
			State:     string(state),
			Context:   encodeContext(cctx),
			Version:   1,
		}},
		catalog:   &stubCatalog{},
		schedule:  &stubSchedule{rules: []availability.Rule{mondayRule()}},
		bookings:  &stubBookings{},
		orders:    &stubOrders{},
		messenger: &stubMessenger{},
		fallback:  &stubFallback{reply: "respuesta del asistente"},
		clients:   &stubClients{},
	}

	h.engine = New(Deps{
		Trainers:      &stubDirectory{trainer: trainer},
		Clients:       h.clients,
		Conversations: h.conversations,
		Catalog:       h.catalog,
		Schedule:      h.schedule,
		Bookings:      h.bookings,
		Orders:        h.orders,
		AISettings:    &stubAISettings{},
		Messenger:     h.messenger,
		Fallback:      h.fallback,
	}, logging.Default(),
		WithLocation(time.UTC),
		WithClock(func() time.Time { return testNow }),
	)
	return h
}

func (h *harness) inbound(t *testing.T, body string) {
	t.Helper()
	err := h.engine.HandleInbound(context.Background(), InboundMessage{
		MessageID:   "wamid.t",
		From:        "5215512345678",
		To:          h.trainer.WANumber,
		Body:        body,
		ProfileName: "Ana",
	})
	require.NoError(t, err)
}

func (h *harness) savedState() State {
	return State(h.conversations.conv.State)
}

func TestResetFromAnyState(t *testing.T) {
	h := newHarness(t, StateChoosingOption, Context{Slots: []SlotOption{{Date: "2026-09-07", Time: "09:00"}}})

	h.inbound(t, "hola")

	require.Len(t, h.messenger.sent, 1)
	assert.Contains(t, h.messenger.sent[0], "Laura")
	assert.Equal(t, StateIdle, h.savedState())
	assert.True(t, h.conversations.saved)
}

func TestBookingKeywordOffersSlots(t *testing.T) {
	h := newHarness(t, StateIdle, Context{})
	h.catalog.services = []store.Service{
		{ID: uuid.New(), Name: "Funcional", DurationMinutes: 60, PriceCents: 30000, Active: true},
	}

	h.inbound(t, "quiero agendar una sesión")

	require.Len(t, h.messenger.sent, 2)
	assert.Equal(t, replySearching, h.messenger.sent[0])
	assert.Contains(t, h.messenger.sent[1], "1. lunes 07/09 a las 09:00")
	assert.Contains(t, h.messenger.sent[1], "10. lunes 14/09 a las 11:00")
	assert.Equal(t, StateChoosingOption, h.savedState())

	cctx, err := decodeContext(h.conversations.conv.Context)
	require.NoError(t, err)
	assert.Len(t, cctx.Slots, 10)
	require.NotNil(t, cctx.Service)
	assert.Equal(t, "Funcional", cctx.Service.Name)
}

func TestBookingWithMultipleServicesAsksFirst(t *testing.T) {
	h := newHarness(t, StateIdle, Context{})
	h.catalog.services = []store.Service{
		{ID: uuid.New(), Name: "Funcional", DurationMinutes: 60, PriceCents: 30000, Active: true},
		{ID: uuid.New(), Name: "Yoga", DurationMinutes: 30, PriceCents: 20000, Active: true},
	}

	h.inbound(t, "agendar")

	require.Len(t, h.messenger.sent, 1)
	assert.Contains(t, h.messenger.sent[0], "1. Funcional")
	assert.Contains(t, h.messenger.sent[0], "2. Yoga")
	assert.Equal(t, StateChoosingService, h.savedState())
}

func TestBookingWithoutServicesOffersDefaultSession(t *testing.T) {
	h := newHarness(t, StateIdle, Context{})

	h.inbound(t, "agendar")

	assert.Equal(t, StateChoosingOption, h.savedState())
	cctx, err := decodeContext(h.conversations.conv.Context)
	require.NoError(t, err)
	require.NotNil(t, cctx.Service)
	assert.Equal(t, "Sesión", cctx.Service.Name)
	assert.Equal(t, 60, cctx.Service.DurationMinutes)
	assert.Nil(t, cctx.Service.ID)
}

func TestNoSlotsFallsBackToIdle(t *testing.T) {
	h := newHarness(t, StateIdle, Context{})
	h.schedule.rules = nil

	h.inbound(t, "agendar")

	require.Len(t, h.messenger.sent, 2)
	assert.Equal(t, replyNoSlots, h.messenger.sent[1])
	assert.Equal(t, StateIdle, h.savedState())
}

func TestInvalidPickReprompts(t *testing.T) {
	cctx := Context{Slots: []SlotOption{{Date: "2026-09-07", Time: "09:00"}}}
	h := newHarness(t, StateChoosingOption, cctx)

	h.inbound(t, "99")

	require.Len(t, h.messenger.sent, 1)
	assert.Equal(t, replyInvalidPick, h.messenger.sent[0])
	assert.Equal(t, StateChoosingOption, h.savedState())
}

func TestCancelFromListState(t *testing.T) {
	cctx := Context{Slots: []SlotOption{{Date: "2026-09-07", Time: "09:00"}}}
	h := newHarness(t, StateChoosingOption, cctx)

	h.inbound(t, "cancelar")

	require.Len(t, h.messenger.sent, 1)
	assert.Equal(t, replyCancelled, h.messenger.sent[0])
	assert.Equal(t, StateIdle, h.savedState())
}

func TestPriceKeywordListsServices(t *testing.T) {
	h := newHarness(t, StateIdle, Context{})
	h.catalog.services = []store.Service{
		{ID: uuid.New(), Name: "Funcional", DurationMinutes: 60, PriceCents: 30000, Active: true},
	}

	h.inbound(t, "¿cuánto cuesta?")

	require.Len(t, h.messenger.sent, 1)
	assert.Contains(t, h.messenger.sent[0], "Funcional")
	assert.Contains(t, h.messenger.sent[0], "$300.00")
	assert.Equal(t, StateIdle, h.savedState())
}

func TestUnmatchedTextGoesToFallback(t *testing.T) {
	h := newHarness(t, StateIdle, Context{})

	h.inbound(t, "¿dónde están ubicados?")

	require.Len(t, h.fallback.messages, 1)
	assert.Equal(t, "¿dónde están ubicados?", h.fallback.messages[0])
	require.Len(t, h.messenger.sent, 1)
	assert.Equal(t, "respuesta del asistente", h.messenger.sent[0])
	assert.Equal(t, StateIdle, h.savedState())
}

func TestFallbackErrorSendsApology(t *testing.T) {
	h := newHarness(t, StateIdle, Context{})
	h.fallback.err = errors.New("provider down")

	h.inbound(t, "pregunta rara")

	require.Len(t, h.messenger.sent, 1)
	assert.Equal(t, replyApology, h.messenger.sent[0])
	assert.Equal(t, StateIdle, h.savedState())
}

func TestVersionConflictIsTolerated(t *testing.T) {
	h := newHarness(t, StateIdle, Context{})
	h.conversations.saveErr = store.ErrVersionConflict

	err := h.engine.HandleInbound(context.Background(), InboundMessage{
		From: "5215512345678",
		To:   h.trainer.WANumber,
		Body: "hola",
	})
	assert.NoError(t, err)
}

func TestClientUpsertFailureDoesNotLoseTurn(t *testing.T) {
	h := newHarness(t, StateIdle, Context{})
	h.clients.err = errors.New("db down")

	h.inbound(t, "hola")

	require.Len(t, h.messenger.sent, 1)
	assert.True(t, h.conversations.saved)
}

func TestUndecodableContextIsDiscarded(t *testing.T) {
	h := newHarness(t, StateChoosingOption, Context{})
	h.conversations.conv.Context = []byte("{broken")

	h.inbound(t, "1")

	// With an empty slot list every pick is invalid; the turn re-prompts
	// instead of crashing.
	require.Len(t, h.messenger.sent, 1)
	assert.Equal(t, replyInvalidPick, h.messenger.sent[0])
}

func TestPhoneLocksEvictedAfterTurn(t *testing.T) {
	h := newHarness(t, StateIdle, Context{})

	h.inbound(t, "hola")

	h.engine.mu.Lock()
	remaining := len(h.engine.locks)
	h.engine.mu.Unlock()
	assert.Zero(t, remaining)
}

func TestPhoneLocksEvictedUnderConcurrency(t *testing.T) {
	h := newHarness(t, StateIdle, Context{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := h.engine.HandleInbound(context.Background(), InboundMessage{
				From: "5215512345678",
				To:   h.trainer.WANumber,
				Body: "hola",
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	h.engine.mu.Lock()
	remaining := len(h.engine.locks)
	h.engine.mu.Unlock()
	assert.Zero(t, remaining)
}

func TestServicesSummary(t *testing.T) {
	refs := []ServiceRef{
		{Name: "Funcional", DurationMinutes: 60, PriceCents: 30000},
		{Name: "Yoga", DurationMinutes: 30, PriceCents: 20000},
	}
	summary := servicesSummary(refs)
	assert.Contains(t, summary, "- Funcional: 60 min, $300.00")
	assert.Contains(t, summary, "- Yoga: 30 min, $200.00")
	assert.Empty(t, servicesSummary(nil))
}
