package store

import (
	"time"

	"github.com/google/uuid"
)

// TrainerMode selects which conversational flow a tenant runs.
type TrainerMode string

const (
	ModeAppointments TrainerMode = "appointments"
	ModeProducts     TrainerMode = "products"
)

// Trainer is the tenant's service-providing identity. Observed usage is one
// trainer per tenant; the engine resolves it by the WhatsApp number that
// received the message.
type Trainer struct {
	ID        uuid.UUID
	Name      string
	WANumber  string
	Mode      TrainerMode
	CreatedAt time.Time
}

// Client is an end customer identified by phone within a tenant.
type Client struct {
	ID        uuid.UUID
	TrainerID uuid.UUID
	Phone     string
	Name      string
	CreatedAt time.Time
}

// Service is a tenant-defined bookable offering.
type Service struct {
	ID              uuid.UUID
	TrainerID       uuid.UUID
	Name            string
	DurationMinutes int
	PriceCents      int64
	Active          bool
}

// AppointmentStatus values counted by the collision checks. Only confirmed
// appointments occupy time.
const (
	AppointmentConfirmed = "confirmed"
	AppointmentCancelled = "cancelled"
)

// Appointment sources.
const (
	SourceManual   = "manual"
	SourceWhatsApp = "whatsapp"
)

// Appointment is a confirmed or cancelled booking row.
type Appointment struct {
	ID        uuid.UUID
	TrainerID uuid.UUID
	ClientID  uuid.UUID
	ServiceID *uuid.UUID
	StartAt   time.Time
	EndAt     time.Time
	Status    string
	Source    string
	CreatedAt time.Time
}

// Block is an explicit unavailability window [StartAt, EndAt) that overrides
// recurring rules unconditionally.
type Block struct {
	ID        uuid.UUID
	TrainerID uuid.UUID
	StartAt   time.Time
	EndAt     time.Time
	Reason    string
}

// Product is a tenant-defined sellable item for the commerce flow.
type Product struct {
	ID         uuid.UUID
	TrainerID  uuid.UUID
	Name       string
	PriceCents int64
	Active     bool
}

// Order statuses for the commerce flow.
const (
	OrderConfirmed = "confirmed"
)

// Order is a confirmed product order placed through the conversation.
type Order struct {
	ID        uuid.UUID
	TrainerID uuid.UUID
	ClientID  uuid.UUID
	Status    string
	Source    string
	CreatedAt time.Time
}

// OrderItem is one line of an order.
type OrderItem struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	ProductID  uuid.UUID
	Quantity   int
	PriceCents int64
}

// AISettings is the tenant's fallback-assistant configuration. ScrapedContent
// is populated by an external collaborator; the engine only reads it.
type AISettings struct {
	TrainerID      uuid.UUID
	SystemPrompt   string
	Knowledge      string
	Temperature    float32
	ScrapedContent string
}

// Conversation is the one persisted dialogue state record per phone number.
// Version backs the compare-and-swap save; Context is the jsonb payload the
// engine round-trips its typed state through.
type Conversation struct {
	Phone         string
	TrainerID     uuid.UUID
	State         string
	Context       []byte
	Version       int64
	LastMessageAt time.Time
}
