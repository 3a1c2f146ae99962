package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/expertrait/expertrait-backend/pkg/enums"
)

// BookingCreatedEvent is the catalog service's announcement of a new
// booking awaiting a handler. Ingest consumes it from the catalog and
// rebroadcasts it on the domain stream once per booking.
type BookingCreatedEvent struct {
	BookingID      uuid.UUID       `json:"booking_id"`
	CustomerID     uuid.UUID       `json:"customer_id"`
	ServiceName    string          `json:"service_name"`
	PriceAmount    decimal.Decimal `json:"price_amount"`
	Currency       enums.Currency  `json:"currency"`
	ServiceAddress string          `json:"service_address"`
	Lat            *float64        `json:"lat,omitempty"`
	Lng            *float64        `json:"lng,omitempty"`
	ScheduledAt    time.Time       `json:"scheduled_at"`
}

// BookingAssignedEvent is emitted when a handler accepts a booking.
type BookingAssignedEvent struct {
	BookingID  uuid.UUID `json:"booking_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	HandlerID  uuid.UUID `json:"handler_id"`
}

// BookingCancelledEvent is emitted whenever a booking is cancelled pre-work.
type BookingCancelledEvent struct {
	BookingID   uuid.UUID  `json:"booking_id"`
	CustomerID  uuid.UUID  `json:"customer_id"`
	HandlerID   *uuid.UUID `json:"handler_id,omitempty"`
	CancelledAt time.Time  `json:"cancelled_at"`
	Reason      string     `json:"reason,omitempty"`
}

// BookingCheckedInEvent marks the handler arriving on site.
type BookingCheckedInEvent struct {
	BookingID uuid.UUID `json:"booking_id"`
	HandlerID uuid.UUID `json:"handler_id"`
	CheckInAt time.Time `json:"check_in_at"`
}

// BookingCompletedEvent carries the settlement result alongside completion.
type BookingCompletedEvent struct {
	BookingID     uuid.UUID       `json:"booking_id"`
	CustomerID    uuid.UUID       `json:"customer_id"`
	HandlerID     uuid.UUID       `json:"handler_id"`
	CheckOutAt    time.Time       `json:"check_out_at"`
	SettlementRef uuid.UUID       `json:"settlement_ref"`
	CreditAmount  decimal.Decimal `json:"credit_amount"`
	Currency      enums.Currency  `json:"currency"`
}

// PayoutStatusChangedEvent reports every payout request transition.
type PayoutStatusChangedEvent struct {
	PayoutRequestID   uuid.UUID          `json:"payout_request_id"`
	HandlerID         uuid.UUID          `json:"handler_id"`
	Status            enums.PayoutStatus `json:"status"`
	Amount            decimal.Decimal    `json:"amount"`
	Currency          enums.Currency     `json:"currency"`
	ProcessorPayoutID *string            `json:"processor_payout_id,omitempty"`
	FailureReason     *string            `json:"failure_reason,omitempty"`
}

// NotificationRequestedEvent tells the worker to persist an in-app notification.
type NotificationRequestedEvent struct {
	RecipientID uuid.UUID              `json:"recipient_id"`
	Type        enums.NotificationType `json:"type"`
	Title       string                 `json:"title"`
	Message     string                 `json:"message"`
	Link        *string                `json:"link,omitempty"`
}
