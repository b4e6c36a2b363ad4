package outbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/alumnet-hq/alumnet/pkg/composables"
)

// Publisher appends messages to the outbox table inside the caller's
// transaction, so the state change and its event commit or roll back as one.
type Publisher interface {
	Enqueue(ctx context.Context, msg Message) (sequence int64, err error)
}

type publisher struct {
	m *metrics
}

func NewPublisher() Publisher {
	return &publisher{m: getMetrics()}
}

func (p *publisher) Enqueue(ctx context.Context, msg Message) (int64, error) {
	if msg.EventID == uuid.Nil {
		return 0, invalidConfig("event_id is required")
	}
	if msg.Topic == "" {
		return 0, invalidConfig("topic is required")
	}

	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}

	const q = `
		INSERT INTO enrollment_outbox (topic, payload, event_id, available_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (event_id) DO UPDATE SET event_id = EXCLUDED.event_id
		RETURNING sequence`

	var sequence int64
	if err := tx.QueryRow(ctx, q, msg.Topic, msg.Payload, msg.EventID).Scan(&sequence); err != nil {
		return 0, fmt.Errorf("outbox enqueue: %w", err)
	}

	p.m.enqueueTotal.WithLabelValues(msg.Topic).Inc()

	return sequence, nil
}
