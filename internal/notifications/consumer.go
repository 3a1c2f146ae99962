package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/expertrait/expertrait-backend/pkg/db/models"
	"github.com/expertrait/expertrait-backend/pkg/enums"
	"github.com/expertrait/expertrait-backend/pkg/logger"
	"github.com/expertrait/expertrait-backend/pkg/outbox"
	"github.com/expertrait/expertrait-backend/pkg/outbox/idempotency"
	"github.com/expertrait/expertrait-backend/pkg/outbox/payloads"
)

const domainNotificationConsumer = "domain-notifications"

type repository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// Consumer watches the domain event stream and persists in-app
// notifications for customers and handlers.
type Consumer struct {
	repo         repository
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds a domain notification consumer.
func NewConsumer(repo repository, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

var notifiableEvents = map[enums.OutboxEventType]struct{}{
	enums.EventBookingAssigned:       {},
	enums.EventBookingCancelled:      {},
	enums.EventBookingCheckedIn:      {},
	enums.EventBookingCompleted:      {},
	enums.EventPayoutStatusChanged:   {},
	enums.EventNotificationRequested: {},
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if _, ok := notifiableEvents[eventType]; !ok {
		c.logg.Info(logCtx, "event not handled by notifications consumer")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, domainNotificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	if err := c.handleEvent(ctx, eventType, envelope); err != nil {
		c.logg.Error(logCtx, "notification handling failed", err)
		_ = c.idempotency.Delete(ctx, domainNotificationConsumer, eventID)
		return processResult{nack: true}
	}

	return processResult{ack: true}
}

func (c *Consumer) handleEvent(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error {
	switch eventType {
	case enums.EventBookingAssigned:
		var payload payloads.BookingAssignedEvent
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return fmt.Errorf("parse booking assigned payload: %w", err)
		}
		return c.notify(ctx, payload.CustomerID, enums.NotificationTypeBookingUpdate,
			"Booking accepted",
			"A handler accepted your booking and will arrive as scheduled.",
			bookingLink(payload.BookingID))

	case enums.EventBookingCancelled:
		var payload payloads.BookingCancelledEvent
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return fmt.Errorf("parse booking cancelled payload: %w", err)
		}
		message := "Your booking was cancelled."
		if payload.Reason != "" {
			message = fmt.Sprintf("Your booking was cancelled. Reason: %s", payload.Reason)
		}
		if err := c.notify(ctx, payload.CustomerID, enums.NotificationTypeBookingUpdate,
			"Booking cancelled", message, bookingLink(payload.BookingID)); err != nil {
			return err
		}
		if payload.HandlerID != nil {
			return c.notify(ctx, *payload.HandlerID, enums.NotificationTypeBookingUpdate,
				"Booking cancelled",
				"A booking assigned to you was cancelled.",
				bookingLink(payload.BookingID))
		}
		return nil

	case enums.EventBookingCheckedIn:
		var payload payloads.BookingCheckedInEvent
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return fmt.Errorf("parse check-in payload: %w", err)
		}
		// The customer record is not on this payload; check-in only
		// matters for the handler's own activity feed.
		return c.notify(ctx, payload.HandlerID, enums.NotificationTypeBookingUpdate,
			"Check-in recorded",
			"Your on-site check-in was recorded.",
			bookingLink(payload.BookingID))

	case enums.EventBookingCompleted:
		var payload payloads.BookingCompletedEvent
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return fmt.Errorf("parse completion payload: %w", err)
		}
		if err := c.notify(ctx, payload.CustomerID, enums.NotificationTypeBookingUpdate,
			"Booking completed",
			"Your booking is complete. Thanks for using ExperTrait.",
			bookingLink(payload.BookingID)); err != nil {
			return err
		}
		return c.notify(ctx, payload.HandlerID, enums.NotificationTypeWalletCredit,
			"Earnings credited",
			fmt.Sprintf("%s %s was credited to your wallet.", payload.CreditAmount.StringFixed(2), payload.Currency),
			stringPtr("/wallet"))

	case enums.EventPayoutStatusChanged:
		var payload payloads.PayoutStatusChangedEvent
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return fmt.Errorf("parse payout payload: %w", err)
		}
		return c.notifyPayout(ctx, payload)

	case enums.EventNotificationRequested:
		var payload payloads.NotificationRequestedEvent
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return fmt.Errorf("parse notification request payload: %w", err)
		}
		return c.notify(ctx, payload.RecipientID, payload.Type, payload.Title, payload.Message, payload.Link)

	default:
		return nil
	}
}

func (c *Consumer) notifyPayout(ctx context.Context, payload payloads.PayoutStatusChangedEvent) error {
	var title, message string
	switch payload.Status {
	case enums.PayoutStatusRequested:
		title = "Payout requested"
		message = fmt.Sprintf("Your payout of %s %s was requested.", payload.Amount.StringFixed(2), payload.Currency)
	case enums.PayoutStatusSubmitted:
		title = "Payout on the way"
		message = fmt.Sprintf("Your payout of %s %s was submitted to your bank.", payload.Amount.StringFixed(2), payload.Currency)
	case enums.PayoutStatusPaid:
		title = "Payout arrived"
		message = fmt.Sprintf("Your payout of %s %s was paid out.", payload.Amount.StringFixed(2), payload.Currency)
	case enums.PayoutStatusFailed:
		title = "Payout failed"
		message = "Your payout could not be completed. Your wallet balance is unchanged."
		if payload.FailureReason != nil && *payload.FailureReason != "" {
			message = fmt.Sprintf("Your payout could not be completed: %s", *payload.FailureReason)
		}
	default:
		return nil
	}
	return c.notify(ctx, payload.HandlerID, enums.NotificationTypePayoutUpdate, title, message, stringPtr("/wallet/payouts"))
}

func (c *Consumer) notify(ctx context.Context, recipientID uuid.UUID, kind enums.NotificationType, title, message string, link *string) error {
	if recipientID == uuid.Nil {
		return fmt.Errorf("recipient id missing")
	}
	return c.repo.Create(ctx, &models.Notification{
		RecipientID: recipientID,
		Type:        kind,
		Title:       title,
		Message:     message,
		Link:        link,
	})
}

func bookingLink(bookingID uuid.UUID) *string {
	return stringPtr(fmt.Sprintf("/bookings/%s", bookingID))
}

func stringPtr(value string) *string {
	return &value
}
