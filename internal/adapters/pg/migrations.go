package pg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS availability_days (
	resource_id UUID NOT NULL,
	date DATE NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('available', 'on_hold', 'booked', 'blocked', 'unavailable', 'partially_available')),
	reason TEXT NOT NULL DEFAULT '',
	available_hours JSONB NOT NULL DEFAULT '[]',
	unavailable_hours JSONB NOT NULL DEFAULT '[]',
	on_hold_hours JSONB NOT NULL DEFAULT '[]',
	held_by UUID,
	held_at TIMESTAMPTZ,
	booking_ref UUID,
	booked_at TIMESTAMPTZ,
	PRIMARY KEY (resource_id, date)
);

CREATE INDEX IF NOT EXISTS idx_days_hold_expiry ON availability_days (held_at) WHERE status = 'on_hold';
CREATE INDEX IF NOT EXISTS idx_days_booking_ref ON availability_days (resource_id, booking_ref) WHERE booking_ref IS NOT NULL;

CREATE TABLE IF NOT EXISTS availability_events (
	id UUID PRIMARY KEY,
	resource_id UUID NOT NULL,
	event_time TIMESTAMPTZ NOT NULL,
	event_type TEXT NOT NULL CHECK (event_type IN ('reservation_start', 'reservation_end', 'maintenance_start', 'maintenance_end', 'block_start', 'block_end')),
	booking_ref UUID NOT NULL,
	actor_ref UUID NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_events_resource_time ON availability_events (resource_id, event_time);
CREATE INDEX IF NOT EXISTS idx_events_booking_ref ON availability_events (resource_id, booking_ref);

CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id UUID NOT NULL,
	event_type TEXT NOT NULL,
	payload_json JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ,
	status TEXT NOT NULL DEFAULT 'NEW' CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
	dedupe_key TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outbox_new ON outbox (created_at) WHERE status = 'NEW';
`

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schemaSQL)
	return err
}
