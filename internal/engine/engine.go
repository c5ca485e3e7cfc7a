package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/entrenia/booking-engine/internal/availability"
	"github.com/entrenia/booking-engine/internal/observability/metrics"
	"github.com/entrenia/booking-engine/internal/store"
	"github.com/entrenia/booking-engine/pkg/logging"
)

var tracer = otel.Tracer("bookingengine.internal.engine")

// InboundMessage is one chat message after the channel adapter has translated
// the provider payload. Audio has already been transcribed to Body by the
// external capability before it reaches the engine.
type InboundMessage struct {
	MessageID   string `json:"message_id"`
	From        string `json:"from"`
	To          string `json:"to"`
	Body        string `json:"body"`
	ProfileName string `json:"profile_name"`
}

// Directory resolves tenant identities.
type Directory interface {
	ResolveByWANumber(ctx context.Context, waNumber string) (store.Trainer, error)
}

// Clients upserts end customers by phone.
type Clients interface {
	Upsert(ctx context.Context, trainerID uuid.UUID, phone, name string) (store.Client, error)
}

// Conversations persists the per-phone dialogue state.
type Conversations interface {
	LoadOrCreate(ctx context.Context, phone string, trainerID uuid.UUID) (*store.Conversation, error)
	Save(ctx context.Context, conv *store.Conversation) error
}

// Catalog lists tenant offerings.
type Catalog interface {
	ActiveServices(ctx context.Context, trainerID uuid.UUID) ([]store.Service, error)
	ActiveProducts(ctx context.Context, trainerID uuid.UUID) ([]store.Product, error)
}

// Schedule reads the availability calculator's inputs.
type Schedule interface {
	ActiveRules(ctx context.Context, trainerID uuid.UUID) ([]availability.Rule, error)
	BlocksBetween(ctx context.Context, trainerID uuid.UUID, from, to time.Time) ([]availability.Window, error)
	ConfirmedBetween(ctx context.Context, trainerID uuid.UUID, from, to time.Time) ([]availability.Window, error)
}

// Bookings writes appointments.
type Bookings interface {
	HasOverlap(ctx context.Context, trainerID uuid.UUID, start, end time.Time) (bool, error)
	InsertConfirmed(ctx context.Context, appt store.Appointment) error
}

// Orders writes product orders.
type Orders interface {
	CreateConfirmed(ctx context.Context, order store.Order, items []store.OrderItem) (store.Order, error)
}

// AISettingsSource reads the tenant's fallback-assistant configuration.
type AISettingsSource interface {
	ForTrainer(ctx context.Context, trainerID uuid.UUID) (store.AISettings, error)
}

// Messenger sends outbound text on the channel.
type Messenger interface {
	SendText(ctx context.Context, to, body string) error
}

// Fallback produces a free-text reply when no deterministic branch consumed
// the message. It never sends messages itself; errors propagate to the
// engine's top-level guard.
type Fallback interface {
	Respond(ctx context.Context, convKey string, settings store.AISettings, servicesSummary, userMessage string) (string, error)
}

// Deps wires the engine's collaborators.
type Deps struct {
	Trainers      Directory
	Clients       Clients
	Conversations Conversations
	Catalog       Catalog
	Schedule      Schedule
	Bookings      Bookings
	Orders        Orders
	AISettings    AISettingsSource
	Messenger     Messenger
	Fallback      Fallback
}

// Engine is the conversation state machine: it receives one inbound message,
// dispatches on the conversation's current state, sends the replies, and
// persists the next state.
type Engine struct {
	deps        Deps
	logger      *logging.Logger
	metrics     *metrics.EngineMetrics
	horizonDays int
	maxOffers   int
	loc         *time.Location
	now         func() time.Time

	mu    sync.Mutex
	locks map[string]*phoneLock
}

// phoneLock carries a waiter count so entries can be evicted from the lock
// map once the last handler for that phone finishes.
type phoneLock struct {
	sync.Mutex
	refs int
}

// Option customizes engine behavior.
type Option func(*Engine)

// WithHorizonDays sets the slot lookahead in days.
func WithHorizonDays(days int) Option {
	return func(e *Engine) {
		if days > 0 {
			e.horizonDays = days
		}
	}
}

// WithMaxOffers caps how many candidate slots one response offers.
func WithMaxOffers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxOffers = n
		}
	}
}

// WithLocation sets the tenant-local wall-clock location used to interpret
// rule times and offered slots.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithClock overrides the engine's clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithMetrics wires Prometheus counters.
func WithMetrics(m *metrics.EngineMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New constructs the engine.
func New(deps Deps, logger *logging.Logger, opts ...Option) *Engine {
	if deps.Trainers == nil || deps.Clients == nil || deps.Conversations == nil ||
		deps.Catalog == nil || deps.Schedule == nil || deps.Bookings == nil ||
		deps.Messenger == nil {
		panic("engine: missing required dependency")
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		deps:        deps,
		logger:      logger,
		horizonDays: 14,
		maxOffers:   10,
		loc:         time.Local,
		now:         time.Now,
		locks:       make(map[string]*phoneLock),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// turnResult is what one dispatch produces: the replies to send and the state
// to persist.
type turnResult struct {
	state   State
	ctx     Context
	replies []string
}

// HandleInbound processes one message end to end: load conversation, upsert
// client, dispatch, reply, persist. Messages from the same phone are
// serialized in-process; the conversation save is additionally guarded by a
// version check in the store.
func (e *Engine) HandleInbound(ctx context.Context, msg InboundMessage) error {
	ctx, span := tracer.Start(ctx, "engine.handle_inbound")
	defer span.End()
	span.SetAttributes(attribute.String("engine.from", msg.From))

	lock := e.lockFor(msg.From)
	lock.Lock()
	defer func() {
		lock.Unlock()
		e.releaseLock(msg.From, lock)
	}()

	trainer, err := e.deps.Trainers.ResolveByWANumber(ctx, msg.To)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("engine: resolve trainer: %w", err)
	}

	conv, err := e.deps.Conversations.LoadOrCreate(ctx, msg.From, trainer.ID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("engine: load conversation: %w", err)
	}

	// The client upsert happens on every inbound message regardless of what
	// the dispatch does with it. A failure here must not lose the turn.
	client, err := e.deps.Clients.Upsert(ctx, trainer.ID, msg.From, msg.ProfileName)
	if err != nil {
		e.logger.Error("client upsert failed", "error", err, "phone", msg.From)
	}

	turn := e.safeDispatch(ctx, trainer, client, conv, msg.Body)
	e.metrics.ObserveInbound(string(State(conv.State)), string(turn.state))

	for _, reply := range turn.replies {
		if sendErr := e.deps.Messenger.SendText(ctx, msg.From, reply); sendErr != nil {
			e.logger.Error("outbound send failed", "error", sendErr, "phone", msg.From)
			e.metrics.ObserveSend("error")
			break
		}
		e.metrics.ObserveSend("ok")
	}

	conv.State = string(turn.state)
	conv.Context = encodeContext(turn.ctx)
	conv.LastMessageAt = e.now().UTC()
	if err := e.deps.Conversations.Save(ctx, conv); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			e.logger.Warn("conversation save lost a concurrent update", "phone", msg.From)
			return nil
		}
		span.RecordError(err)
		return fmt.Errorf("engine: save conversation: %w", err)
	}
	return nil
}

func (e *Engine) lockFor(phone string) *phoneLock {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[phone]
	if !ok {
		lock = &phoneLock{}
		e.locks[phone] = lock
	}
	lock.refs++
	return lock
}

func (e *Engine) releaseLock(phone string, lock *phoneLock) {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(e.locks, phone)
	}
}

// safeDispatch contains every dispatch failure: panics and errors both
// collapse to the generic apology with the conversation forced back to idle,
// so no conversation is ever left wedged after an internal error.
func (e *Engine) safeDispatch(ctx context.Context, trainer store.Trainer, client store.Client, conv *store.Conversation, body string) (out turnResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic while dispatching", "panic", r, "phone", conv.Phone)
			out = apologyTurn()
		}
	}()

	out, err := e.dispatch(ctx, trainer, client, conv, body)
	if err != nil {
		e.logger.Error("dispatch failed", "error", err, "phone", conv.Phone, "state", conv.State)
		return apologyTurn()
	}
	return out
}

func apologyTurn() turnResult {
	return turnResult{state: StateIdle, replies: []string{replyApology}}
}

func (e *Engine) dispatch(ctx context.Context, trainer store.Trainer, client store.Client, conv *store.Conversation, body string) (turnResult, error) {
	text := normalize(body)

	// The reset set is an unconditional escape hatch from any state.
	if isReset(text) {
		return turnResult{state: StateIdle, replies: []string{greeting(trainer.Name)}}, nil
	}

	cctx, err := decodeContext(conv.Context)
	if err != nil {
		e.logger.Warn("discarding undecodable conversation context", "error", err, "phone", conv.Phone)
		cctx = Context{}
	}

	switch State(conv.State) {
	case StateChoosingService:
		return e.handleChoosingService(ctx, trainer, cctx, text)
	case StateChoosingOption:
		return e.handleChoosingOption(ctx, trainer, client, cctx, text)
	case StateChoosingProduct:
		return e.handleChoosingProduct(cctx, text)
	case StateConfirmingOrder:
		return e.handleConfirmingOrder(ctx, trainer, client, cctx, text)
	default:
		return e.handleIdle(ctx, trainer, text, body)
	}
}

func (e *Engine) handleIdle(ctx context.Context, trainer store.Trainer, text, original string) (turnResult, error) {
	switch {
	case trainer.Mode == store.ModeProducts && containsAny(text, append(orderKeywords, bookingKeywords...)):
		return e.startProductFlow(ctx, trainer)
	case containsAny(text, bookingKeywords):
		return e.startBookingFlow(ctx, trainer)
	case containsAny(text, priceKeywords):
		return e.priceList(ctx, trainer)
	case containsAny(text, listKeywords):
		return e.catalogList(ctx, trainer)
	default:
		return e.aiFallback(ctx, trainer, original)
	}
}

func (e *Engine) priceList(ctx context.Context, trainer store.Trainer) (turnResult, error) {
	if trainer.Mode == store.ModeProducts {
		products, err := e.activeProductRefs(ctx, trainer.ID)
		if err != nil {
			return turnResult{}, err
		}
		if len(products) == 0 {
			return turnResult{state: StateIdle, replies: []string{replyNoProducts}}, nil
		}
		return turnResult{state: StateIdle, replies: []string{renderNumberedList(headerPrices, products, formatProductLabel)}}, nil
	}

	services, err := e.activeServiceRefs(ctx, trainer.ID)
	if err != nil {
		return turnResult{}, err
	}
	return turnResult{state: StateIdle, replies: []string{renderNumberedList(headerPrices, services, formatServiceLabel)}}, nil
}

func (e *Engine) catalogList(ctx context.Context, trainer store.Trainer) (turnResult, error) {
	if trainer.Mode == store.ModeProducts {
		products, err := e.activeProductRefs(ctx, trainer.ID)
		if err != nil {
			return turnResult{}, err
		}
		if len(products) == 0 {
			return turnResult{state: StateIdle, replies: []string{replyNoProducts}}, nil
		}
		return turnResult{state: StateIdle, replies: []string{renderNumberedList(headerCatalog, products, formatProductLabel)}}, nil
	}

	services, err := e.activeServiceRefs(ctx, trainer.ID)
	if err != nil {
		return turnResult{}, err
	}
	return turnResult{state: StateIdle, replies: []string{renderNumberedList(headerCatalog, services, formatServiceLabel)}}, nil
}

func (e *Engine) aiFallback(ctx context.Context, trainer store.Trainer, message string) (turnResult, error) {
	if e.deps.Fallback == nil || e.deps.AISettings == nil {
		return turnResult{state: StateIdle, replies: []string{greeting(trainer.Name)}}, nil
	}

	ctx, span := tracer.Start(ctx, "engine.ai_fallback")
	defer span.End()

	settings, err := e.deps.AISettings.ForTrainer(ctx, trainer.ID)
	if err != nil {
		return turnResult{}, err
	}
	services, err := e.activeServiceRefs(ctx, trainer.ID)
	if err != nil {
		return turnResult{}, err
	}

	reply, err := e.deps.Fallback.Respond(ctx, trainer.ID.String()+":"+trainer.WANumber, settings, servicesSummary(services), message)
	if err != nil {
		e.metrics.ObserveFallback("error")
		span.RecordError(err)
		return turnResult{}, fmt.Errorf("engine: ai fallback: %w", err)
	}
	e.metrics.ObserveFallback("ok")
	return turnResult{state: StateIdle, replies: []string{reply}}, nil
}

// servicesSummary renders a machine-readable price sheet for the fallback
// system prompt.
func servicesSummary(services []ServiceRef) string {
	if len(services) == 0 {
		return ""
	}
	lines := make([]string, 0, len(services))
	for _, s := range services {
		lines = append(lines, fmt.Sprintf("- %s: %d min, %s", s.Name, s.DurationMinutes, formatPrice(s.PriceCents)))
	}
	return "Servicios y precios:\n" + joinLines(lines)
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

func (e *Engine) activeServiceRefs(ctx context.Context, trainerID uuid.UUID) ([]ServiceRef, error) {
	services, err := e.deps.Catalog.ActiveServices(ctx, trainerID)
	if err != nil {
		return nil, fmt.Errorf("engine: list services: %w", err)
	}
	refs := make([]ServiceRef, 0, len(services))
	for _, s := range services {
		id := s.ID
		refs = append(refs, ServiceRef{
			ID:              &id,
			Name:            s.Name,
			DurationMinutes: s.DurationMinutes,
			PriceCents:      s.PriceCents,
		})
	}
	return refs, nil
}

func (e *Engine) activeProductRefs(ctx context.Context, trainerID uuid.UUID) ([]ProductRef, error) {
	products, err := e.deps.Catalog.ActiveProducts(ctx, trainerID)
	if err != nil {
		return nil, fmt.Errorf("engine: list products: %w", err)
	}
	refs := make([]ProductRef, 0, len(products))
	for _, p := range products {
		refs = append(refs, ProductRef{ID: p.ID, Name: p.Name, PriceCents: p.PriceCents})
	}
	return refs, nil
}
