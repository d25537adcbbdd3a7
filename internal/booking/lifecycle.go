package booking

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bookgrid/availability-engine/internal/observability"
	"github.com/bookgrid/availability-engine/internal/scheduling"
)

// Lifecycle statuses consumed from the booking collaborator. Any of
// these voids the maintenance-buffer rule by cancelling the booking's
// footprint on the grid and timeline.
const (
	StatusCancelled = "cancelled"
	StatusRejected  = "rejected"
	StatusExpired   = "expired"
)

type lifecycleMessage struct {
	ResourceID uuid.UUID `json:"resource_id"`
	BookingRef uuid.UUID `json:"booking_ref"`
	Status     string    `json:"status"`
}

type deliverySource interface {
	Consume(ctx context.Context) (<-chan amqp.Delivery, error)
}

// LifecycleApplier drains booking lifecycle events and reverts the
// corresponding availability state.
type LifecycleApplier struct {
	consumer deliverySource
	holds    *scheduling.HoldManager
	logger   observability.Logger
}

func NewLifecycleApplier(consumer deliverySource, holds *scheduling.HoldManager, logger observability.Logger) *LifecycleApplier {
	return &LifecycleApplier{consumer: consumer, holds: holds, logger: logger}
}

func (a *LifecycleApplier) Run(ctx context.Context) error {
	deliveries, err := a.consumer.Consume(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			a.handle(ctx, d)
		}
	}
}

func (a *LifecycleApplier) handle(ctx context.Context, d amqp.Delivery) {
	var msg lifecycleMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		a.logger.Error("bad lifecycle message", err)
		d.Nack(false, false)
		return
	}

	switch msg.Status {
	case StatusCancelled, StatusRejected, StatusExpired:
	default:
		// Confirmation and other transitions flow through the API, not
		// this queue.
		d.Ack(false)
		return
	}

	if err := a.applyWithRetry(ctx, msg); err != nil {
		a.logger.WithField("booking_ref", msg.BookingRef.String()).
			Error("failed to apply lifecycle transition", err)
		d.Nack(false, true)
		return
	}
	d.Ack(false)
}

func (a *LifecycleApplier) applyWithRetry(ctx context.Context, msg lifecycleMessage) error {
	var err error
	for i := 0; i < 3; i++ {
		_, err = a.holds.CancelBooking(ctx, msg.ResourceID, msg.BookingRef)
		if err == nil {
			return nil
		}
		backoff := time.Duration(1<<i) * time.Second
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}
