package engine

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// State tags the phase a conversation is in. The tag is persisted on the
// conversation row; the phase-specific payload travels in Context.
type State string

const (
	StateIdle            State = "idle"
	StateChoosingService State = "choosing_service"
	StateChoosingOption  State = "choosing_option"
	StateChoosingProduct State = "choosing_product"
	StateConfirmingOrder State = "confirming_order"
)

// ServiceRef is the slice of a service a conversation needs to carry forward.
// ID is nil for the synthetic default service offered when a tenant has no
// services configured.
type ServiceRef struct {
	ID              *uuid.UUID `json:"id,omitempty"`
	Name            string     `json:"name"`
	DurationMinutes int        `json:"duration_minutes"`
	PriceCents      int64      `json:"price_cents"`
}

// SlotOption is one offered start time, stored as the literal date and time
// strings the confirmation step recomputes from. Offers are ephemeral: they
// are re-validated against the appointment table before booking.
type SlotOption struct {
	Date string `json:"date"` // 2006-01-02
	Time string `json:"time"` // 15:04
}

// ProductRef is the slice of a product carried through the commerce flow.
type ProductRef struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"price_cents"`
}

// Context is the phase-specific payload persisted with the state tag. Which
// fields are populated depends on the state: Services in choosing_service,
// Slots+Service in choosing_option, Products in choosing_product, Product in
// confirming_order. Idle carries an empty context.
type Context struct {
	Services []ServiceRef `json:"services,omitempty"`
	Service  *ServiceRef  `json:"service,omitempty"`
	Slots    []SlotOption `json:"slots,omitempty"`
	Products []ProductRef `json:"products,omitempty"`
	Product  *ProductRef  `json:"product,omitempty"`
}

func encodeContext(c Context) []byte {
	data, err := json.Marshal(c)
	if err != nil {
		return []byte("{}")
	}
	return data
}

func decodeContext(data []byte) (Context, error) {
	if len(data) == 0 {
		return Context{}, nil
	}
	var c Context
	if err := json.Unmarshal(data, &c); err != nil {
		return Context{}, fmt.Errorf("engine: decode context: %w", err)
	}
	return c, nil
}
