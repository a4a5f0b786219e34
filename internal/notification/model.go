package notification

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Notification represents a notification in the system
type Notification struct {
	ID                int64     `json:"id"`
	RecipientID       int64     `json:"recipient_id"`
	EventType         EventType `json:"event_type"`
	Title             string    `json:"title"`
	Message           string    `json:"message"`
	MessageSw         string    `json:"message_sw"`
	ActionURL         string    `json:"action_url"`
	IsRead            bool      `json:"is_read"`
	EmailSent         bool      `json:"email_sent"`
	RelatedEntityType *string   `json:"related_entity_type,omitempty"` // "lease" or "payment"
	RelatedEntityID   *int64    `json:"related_entity_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// EventType represents the type of notification
type EventType string

const (
	EventLeaseCreated     EventType = "lease_created"
	EventLeaseActivated   EventType = "lease_activated"
	EventLeaseTerminated  EventType = "lease_terminated"
	EventLeaseRenewed     EventType = "lease_renewed"
	EventLeaseExpired     EventType = "lease_expired"
	EventLeaseExpiring    EventType = "lease_expiring"
	EventPaymentSubmitted EventType = "payment_submitted"
	EventPaymentReceived  EventType = "payment_received"
	EventPaymentRejected  EventType = "payment_rejected"
	EventRentReminder     EventType = "rent_reminder"
	EventRentDue          EventType = "rent_due"
	EventRentOverdue      EventType = "rent_overdue"
)

// Entity types referenced by notifications
const (
	EntityLease   = "lease"
	EntityPayment = "payment"
)

// Payload carries the facts a notification template needs
type Payload struct {
	EntityType    string          `json:"entity_type"`
	EntityID      int64           `json:"entity_id"`
	LeaseID       int64           `json:"lease_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Date          time.Time       `json:"date"`
	Period        string          `json:"period,omitempty"`
	Days          int             `json:"days,omitempty"`
	ReceiptNumber string          `json:"receipt_number,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

// Dispatcher delivers notification events. Delivery is best effort: callers
// log failures and never roll back the state change that triggered the event.
type Dispatcher interface {
	Send(ctx context.Context, eventType EventType, recipientID int64, payload Payload) error
}
