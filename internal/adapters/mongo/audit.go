package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bookgrid/availability-engine/internal/observability"
)

func mongoUpsert() *options.UpdateOptions {
	return options.Update().SetUpsert(true)
}

// AuditLogger records every mutating scheduling operation. Audit writes
// are best effort: a failed insert is logged, never surfaced to the
// caller.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("scheduling_audit"),
		logger: logger,
	}
}

type auditDoc struct {
	ID         uuid.UUID `bson:"_id"`
	Action     string    `bson:"action"`
	ResourceID uuid.UUID `bson:"resource_id"`
	ActorRef   uuid.UUID `bson:"actor_ref"`
	Timestamp  time.Time `bson:"timestamp"`
	Data       bson.M    `bson:"data"`
}

func (a *AuditLogger) Log(ctx context.Context, action string, resourceID, actorRef uuid.UUID, data map[string]interface{}) {
	doc := auditDoc{
		ID:         uuid.New(),
		Action:     action,
		ResourceID: resourceID,
		ActorRef:   actorRef,
		Timestamp:  time.Now(),
		Data:       bson.M(data),
	}
	if _, err := a.coll.InsertOne(ctx, doc); err != nil {
		a.logger.Error("failed to insert audit record", err)
	}
}

func (a *AuditLogger) LogHoldAcquired(ctx context.Context, resourceID, holder uuid.UUID, dates []time.Time) {
	a.Log(ctx, "hold.acquired", resourceID, holder, map[string]interface{}{"dates": dates})
}

func (a *AuditLogger) LogHoldConfirmed(ctx context.Context, resourceID, holder, bookingRef uuid.UUID, dates []time.Time) {
	a.Log(ctx, "hold.confirmed", resourceID, holder, map[string]interface{}{
		"booking_ref": bookingRef,
		"dates":       dates,
	})
}

func (a *AuditLogger) LogBookingCancelled(ctx context.Context, resourceID, bookingRef uuid.UUID, days int64) {
	a.Log(ctx, "booking.cancelled", resourceID, bookingRef, map[string]interface{}{"days": days})
}
