package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bookgrid/availability-engine/internal/adapters/pg"
	"github.com/bookgrid/availability-engine/internal/adapters/rabbit"
	"github.com/bookgrid/availability-engine/internal/observability"
)

// Publisher drains NEW outbox rows into the topic exchange, so event
// publication stays transactional with the grid and timeline writes
// that produced them.
type Publisher struct {
	repo      *pg.Repository
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
}

func NewPublisher(repo *pg.Repository, rabbitPub *rabbit.Publisher, logger observability.Logger) *Publisher {
	return &Publisher{repo: repo, rabbitPub: rabbitPub, logger: logger}
}

func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

func (p *Publisher) drain(ctx context.Context) {
	records, err := p.repo.GetUnpublishedOutbox(ctx, 50)
	if err != nil {
		p.logger.Error("outbox query failed", err)
		return
	}
	now := time.Now()
	for _, rec := range records {
		observability.OutboxLag.Set(now.Sub(rec.CreatedAt).Seconds())
		msg := amqp.Publishing{
			MessageId:   rec.DedupeKey,
			ContentType: "application/json",
			Body:        rec.Payload,
		}
		if err := p.rabbitPub.Publish(ctx, rec.EventType, msg); err != nil {
			p.logger.Error("outbox publish failed", err)
			continue
		}
		if err := p.repo.MarkPublished(ctx, rec.ID, time.Now()); err != nil {
			p.logger.Error("outbox mark published failed", err)
		}
	}
}
