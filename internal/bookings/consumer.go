package bookings

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/expertrait/expertrait-backend/pkg/enums"
	"github.com/expertrait/expertrait-backend/pkg/logger"
	"github.com/expertrait/expertrait-backend/pkg/outbox"
	"github.com/expertrait/expertrait-backend/pkg/outbox/idempotency"
	"github.com/expertrait/expertrait-backend/pkg/outbox/payloads"
)

const catalogConsumerName = "bookings-catalog"

type ingester interface {
	Ingest(ctx context.Context, event payloads.BookingCreatedEvent) error
}

// Consumer watches the catalog stream and ingests new bookings as
// pending rows awaiting a handler.
type Consumer struct {
	service      ingester
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds a catalog booking consumer.
func NewConsumer(service ingester, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if service == nil {
		return nil, fmt.Errorf("bookings service required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("catalog subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		service:      service,
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

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := msg.Attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if eventType != string(enums.EventBookingCreated) {
		c.logg.Info(logCtx, "skipping non-booking catalog event")
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

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, catalogConsumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	var payload payloads.BookingCreatedEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		c.logg.Error(logCtx, "failed to parse booking payload", err)
		_ = c.idempotency.Delete(ctx, catalogConsumerName, eventID)
		return processResult{nack: true}
	}

	logCtx = c.logg.WithField(logCtx, "booking_id", payload.BookingID.String())
	if err := c.service.Ingest(ctx, payload); err != nil {
		c.logg.Error(logCtx, "booking ingestion failed", err)
		_ = c.idempotency.Delete(ctx, catalogConsumerName, eventID)
		return processResult{nack: true}
	}

	c.logg.Info(logCtx, "booking ingested")
	return processResult{ack: true}
}
