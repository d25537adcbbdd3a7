package mongo

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/bookgrid/availability-engine/internal/domain"
	"github.com/bookgrid/availability-engine/internal/observability"
)

// PropertyCatalog reads the property collaborator's settings out of the
// listing store. Only the scheduling-relevant slice is decoded.
type PropertyCatalog struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewPropertyCatalog(db *mongo.Database, logger observability.Logger) *PropertyCatalog {
	return &PropertyCatalog{
		coll:   db.Collection("properties"),
		logger: logger,
	}
}

type propertyDoc struct {
	ID           uuid.UUID `bson:"_id"`
	Timezone     string    `bson:"timezone"`
	CheckInTime  string    `bson:"check_in_time"`
	CheckOutTime string    `bson:"check_out_time"`
	BufferHours  int       `bson:"buffer_hours"`
}

func (c *PropertyCatalog) GetProperty(ctx context.Context, id uuid.UUID) (*domain.Property, error) {
	var doc propertyDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrapf(domain.ErrNotFound, "property %s", id)
	}
	if err != nil {
		c.logger.Error("failed to get property", err)
		return nil, err
	}
	p := &domain.Property{
		ID:           doc.ID,
		Timezone:     doc.Timezone,
		CheckInTime:  doc.CheckInTime,
		CheckOutTime: doc.CheckOutTime,
		BufferHours:  doc.BufferHours,
	}
	p.Normalize()
	return p, nil
}

func (c *PropertyCatalog) UpsertProperty(ctx context.Context, p domain.Property) error {
	p.Normalize()
	_, err := c.coll.UpdateOne(ctx,
		bson.M{"_id": p.ID},
		bson.M{"$set": bson.M{
			"timezone":       p.Timezone,
			"check_in_time":  p.CheckInTime,
			"check_out_time": p.CheckOutTime,
			"buffer_hours":   p.BufferHours,
		}},
		mongoUpsert(),
	)
	if err != nil {
		c.logger.Error("failed to upsert property", err)
	}
	return err
}
