package pg

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookgrid/availability-engine/internal/domain"
	"github.com/bookgrid/availability-engine/internal/scheduling"
)

const serializationFailureCode = "40001"

// Repository implements scheduling.Store on PostgreSQL. Every state
// transition is a conditional UPDATE whose WHERE clause carries the full
// expected-state predicate, with RowsAffected deciding the outcome. No
// transition is ever a read followed by a write.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	err = fn(tx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == serializationFailureCode {
			return errors.Wrap(domain.ErrStateConflict, "serialization failure, retry")
		}
		return err
	}

	return tx.Commit(ctx)
}

const dayColumns = `resource_id, date, status, reason, available_hours, unavailable_hours, on_hold_hours, held_by, held_at, booking_ref, booked_at`

func scanDay(row pgx.Row) (*domain.AvailabilityDay, error) {
	var d domain.AvailabilityDay
	err := row.Scan(&d.ResourceID, &d.Date, &d.Status, &d.Reason,
		&d.AvailableHours, &d.UnavailableHours, &d.OnHoldHours,
		&d.HeldBy, &d.HeldAt, &d.BookingRef, &d.BookedAt)
	if err != nil {
		return nil, err
	}
	d.Date = d.Date.UTC()
	return &d, nil
}

func (r *Repository) GetDay(ctx context.Context, resourceID uuid.UUID, date time.Time) (*domain.AvailabilityDay, error) {
	d, err := scanDay(r.pool.QueryRow(ctx, `
		SELECT `+dayColumns+` FROM availability_days
		WHERE resource_id = $1 AND date = $2
	`, resourceID, date))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(domain.ErrNotFound, "day %s", date.Format("2006-01-02"))
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *Repository) GetDays(ctx context.Context, resourceID uuid.UUID, from, to time.Time) ([]domain.AvailabilityDay, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+dayColumns+` FROM availability_days
		WHERE resource_id = $1 AND date >= $2 AND date < $3
		ORDER BY date
	`, resourceID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []domain.AvailabilityDay
	for rows.Next() {
		d, err := scanDay(rows)
		if err != nil {
			return nil, err
		}
		days = append(days, *d)
	}
	return days, rows.Err()
}

// UpsertDay creates or overwrites a day record. This is the
// administrative path for opening and blocking days; the hold lifecycle
// never goes through it.
func (r *Repository) UpsertDay(ctx context.Context, d domain.AvailabilityDay) error {
	if d.AvailableHours == nil {
		d.AvailableHours = []domain.HourRange{}
	}
	if d.UnavailableHours == nil {
		d.UnavailableHours = []domain.HourRange{}
	}
	if d.OnHoldHours == nil {
		d.OnHoldHours = []domain.HourRange{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO availability_days (`+dayColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (resource_id, date) DO UPDATE SET
			status = EXCLUDED.status,
			reason = EXCLUDED.reason,
			available_hours = EXCLUDED.available_hours,
			unavailable_hours = EXCLUDED.unavailable_hours,
			on_hold_hours = EXCLUDED.on_hold_hours
	`, d.ResourceID, d.Date, d.Status, d.Reason,
		d.AvailableHours, d.UnavailableHours, d.OnHoldHours,
		d.HeldBy, d.HeldAt, d.BookingRef, d.BookedAt)
	return err
}

func (r *Repository) AcquireDay(ctx context.Context, resourceID uuid.UUID, date time.Time, holder uuid.UUID, heldAt time.Time) error {
	// Re-acquire by the same holder keeps the original held_at: a hold
	// can never be extended past its TTL by asking again.
	result, err := r.pool.Exec(ctx, `
		UPDATE availability_days
		SET status = 'on_hold',
			held_by = $3,
			held_at = CASE WHEN status = 'on_hold' THEN held_at ELSE $4 END
		WHERE resource_id = $1 AND date = $2
			AND (status = 'available' OR (status = 'on_hold' AND held_by = $3))
	`, resourceID, date, holder, heldAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() > 0 {
		return nil
	}
	return r.classifyDayFailure(ctx, resourceID, date, holder, time.Time{})
}

func (r *Repository) ConfirmBooking(ctx context.Context, upd scheduling.ConfirmUpdate) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		for _, date := range upd.Dates {
			result, err := tx.Exec(ctx, `
				UPDATE availability_days
				SET status = 'booked', booking_ref = $5, booked_at = $6,
					held_by = NULL, held_at = NULL
				WHERE resource_id = $1 AND date = $2
					AND status = 'on_hold' AND held_by = $3 AND held_at > $4
			`, upd.ResourceID, date, upd.Holder, upd.FreshAfter, upd.BookingRef, upd.BookedAt)
			if err != nil {
				return err
			}
			if result.RowsAffected() == 0 {
				return r.classifyDayFailure(ctx, upd.ResourceID, date, upd.Holder, upd.FreshAfter)
			}
		}

		for _, ev := range upd.Events {
			if err := insertEvent(ctx, tx, ev); err != nil {
				return err
			}
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"resource_id": upd.ResourceID,
			"booking_ref": upd.BookingRef,
			"dates":       upd.Dates,
		})
		return insertOutboxTx(ctx, tx, OutboxRecord{
			ID:            uuid.New(),
			AggregateType: "availability",
			AggregateID:   upd.ResourceID,
			EventType:     "availability.booked",
			Payload:       payload,
			DedupeKey:     upd.BookingRef.String() + ":booked",
		})
	})
}

// classifyDayFailure turns a zero-row conditional update into the right
// sentinel by observing the row the predicate rejected.
func (r *Repository) classifyDayFailure(ctx context.Context, resourceID uuid.UUID, date time.Time, holder uuid.UUID, freshAfter time.Time) error {
	day, err := r.GetDay(ctx, resourceID, date)
	if errors.Is(err, domain.ErrNotFound) {
		return errors.Wrapf(domain.ErrNotFound, "day %s not explicitly available", date.Format("2006-01-02"))
	}
	if err != nil {
		return err
	}
	if day.Status == domain.StatusOnHold && day.HeldBy != nil && *day.HeldBy == holder &&
		!freshAfter.IsZero() && day.HeldAt != nil && !day.HeldAt.After(freshAfter) {
		return errors.Wrapf(domain.ErrExpiredHold, "hold on %s expired", date.Format("2006-01-02"))
	}
	return errors.Wrapf(domain.ErrStateConflict, "day %s is %s", date.Format("2006-01-02"), day.Status)
}

func (r *Repository) ReleaseDay(ctx context.Context, resourceID uuid.UUID, date time.Time, holder uuid.UUID) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE availability_days
		SET status = 'available', held_by = NULL, held_at = NULL
		WHERE resource_id = $1 AND date = $2 AND status = 'on_hold' AND held_by = $3
	`, resourceID, date, holder)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *Repository) CancelBooking(ctx context.Context, resourceID, bookingRef uuid.UUID) (int64, error) {
	var days int64
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE availability_days
			SET status = 'available', booking_ref = NULL, booked_at = NULL
			WHERE resource_id = $1 AND booking_ref = $2 AND status = 'booked'
		`, resourceID, bookingRef)
		if err != nil {
			return err
		}
		days = result.RowsAffected()

		if _, err := tx.Exec(ctx, `
			DELETE FROM availability_events
			WHERE resource_id = $1 AND booking_ref = $2
		`, resourceID, bookingRef); err != nil {
			return err
		}

		if days == 0 {
			return nil
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"resource_id": resourceID,
			"booking_ref": bookingRef,
			"days":        days,
		})
		return insertOutboxTx(ctx, tx, OutboxRecord{
			ID:            uuid.New(),
			AggregateType: "availability",
			AggregateID:   resourceID,
			EventType:     "availability.released",
			Payload:       payload,
			DedupeKey:     bookingRef.String() + ":released",
		})
	})
	return days, err
}

func (r *Repository) ExpireHolds(ctx context.Context, cutoff time.Time) (int64, error) {
	// Single batch conditional update. Anything ConfirmBooking flipped to
	// booked in the meantime no longer matches the predicate, so the two
	// can never both claim a record.
	result, err := r.pool.Exec(ctx, `
		UPDATE availability_days
		SET status = 'available', held_by = NULL, held_at = NULL
		WHERE status = 'on_hold' AND held_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
