package pg

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bookgrid/availability-engine/internal/domain"
)

const eventColumns = `id, resource_id, event_time, event_type, booking_ref, actor_ref, metadata`

func insertEvent(ctx context.Context, tx pgx.Tx, ev domain.AvailabilityEvent) error {
	if ev.Metadata == nil {
		ev.Metadata = map[string]string{}
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO availability_events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ev.ID, ev.ResourceID, ev.Time, ev.Type, ev.BookingRef, ev.ActorRef, ev.Metadata)
	return err
}

// InsertBlock writes a block_start/block_end pair outside any booking,
// the administrative way to occupy part of the timeline.
func (r *Repository) InsertBlock(ctx context.Context, resourceID uuid.UUID, start, end time.Time, actorRef uuid.UUID, note string) (uuid.UUID, error) {
	blockRef := uuid.New()
	meta := map[string]string{}
	if note != "" {
		meta["note"] = note
	}
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		for _, ev := range []domain.AvailabilityEvent{
			{ID: uuid.New(), ResourceID: resourceID, Time: start, Type: domain.EventBlockStart, BookingRef: blockRef, ActorRef: actorRef, Metadata: meta},
			{ID: uuid.New(), ResourceID: resourceID, Time: end, Type: domain.EventBlockEnd, BookingRef: blockRef, ActorRef: actorRef, Metadata: meta},
		} {
			if err := insertEvent(ctx, tx, ev); err != nil {
				return err
			}
		}
		return nil
	})
	return blockRef, err
}

func (r *Repository) GetEvents(ctx context.Context, resourceID uuid.UUID, from, to time.Time) ([]domain.AvailabilityEvent, error) {
	// A zero from scans from the start of the timeline; the zero value
	// predates every stored event.
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+` FROM availability_events
		WHERE resource_id = $1 AND event_time >= $2 AND event_time < $3
		ORDER BY event_time
	`, resourceID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.AvailabilityEvent
	for rows.Next() {
		var ev domain.AvailabilityEvent
		if err := rows.Scan(&ev.ID, &ev.ResourceID, &ev.Time, &ev.Type, &ev.BookingRef, &ev.ActorRef, &ev.Metadata); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
