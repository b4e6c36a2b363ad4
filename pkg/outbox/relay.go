package outbox

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Relay polls the outbox table and hands due messages to the Dispatcher.
// Delivery is at-least-once: a message is deleted only after the dispatcher
// returns nil, and failed attempts are rescheduled with exponential backoff.
type Relay struct {
	pool       *pgxpool.Pool
	dispatcher Dispatcher
	opts       RelayOptions

	rnd *rand.Rand
	m   *metrics
}

func NewRelay(pool *pgxpool.Pool, dispatcher Dispatcher, opts RelayOptions) (*Relay, error) {
	if pool == nil {
		return nil, invalidConfig("pool is required")
	}
	if dispatcher == nil {
		return nil, invalidConfig("dispatcher is required")
	}

	opts.setDefaults()
	if opts.Logger == nil {
		logger := logrus.New()
		logger.SetLevel(logrus.PanicLevel)
		opts.Logger = logger
	}

	return &Relay{
		pool:       pool,
		dispatcher: dispatcher,
		opts:       opts,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec
		m:          getMetrics(),
	}, nil
}

func (r *Relay) Run(ctx context.Context) error {
	for {
		n, err := r.drainBatch(ctx)
		if err != nil {
			r.opts.Logger.WithError(err).Warn("outbox: relay batch failed")
		}

		if n > 0 {
			// More work may be pending; poll again immediately.
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.opts.PollInterval):
		}
	}
}

func (r *Relay) drainBatch(ctx context.Context) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const q = `
		SELECT sequence, topic, event_id, payload, attempts
		FROM enrollment_outbox
		WHERE available_at <= now() AND attempts < $1
		ORDER BY sequence
		LIMIT $2
		FOR UPDATE SKIP LOCKED`

	rows, err := tx.Query(ctx, q, r.opts.MaxAttempts, r.opts.BatchSize)
	if err != nil {
		return 0, err
	}

	var batch []DispatchedMessage
	for rows.Next() {
		var (
			msg     DispatchedMessage
			eventID uuid.UUID
		)
		if err := rows.Scan(&msg.Meta.Sequence, &msg.Meta.Topic, &eventID, &msg.Payload, &msg.Meta.Attempts); err != nil {
			rows.Close()
			return 0, err
		}
		msg.Meta.EventID = eventID
		batch = append(batch, msg)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	dispatched := 0
	for _, msg := range batch {
		if err := r.dispatchOne(ctx, tx, msg); err != nil {
			return dispatched, err
		}
		dispatched++
	}

	return dispatched, tx.Commit(ctx)
}

func (r *Relay) dispatchOne(ctx context.Context, tx pgx.Tx, msg DispatchedMessage) error {
	if err := r.dispatcher.Dispatch(ctx, msg); err != nil {
		r.m.dispatchFailure.WithLabelValues(msg.Meta.Topic).Inc()
		r.opts.Logger.WithError(err).
			WithField("topic", msg.Meta.Topic).
			WithField("event_id", msg.Meta.EventID).
			Warn("outbox: dispatch failed, scheduling retry")

		delay := r.backoff(msg.Meta.Attempts + 1)
		_, uErr := tx.Exec(ctx,
			`UPDATE enrollment_outbox
			 SET attempts = attempts + 1, available_at = now() + $2
			 WHERE sequence = $1`,
			msg.Meta.Sequence, delay,
		)
		return uErr
	}

	if _, err := tx.Exec(ctx, `DELETE FROM enrollment_outbox WHERE sequence = $1`, msg.Meta.Sequence); err != nil {
		return err
	}
	r.m.dispatchTotal.WithLabelValues(msg.Meta.Topic).Inc()
	return nil
}

// backoff returns 1s * 2^(attempts-1) capped at MaxBackoff, plus jitter.
func (r *Relay) backoff(attempts int) time.Duration {
	if attempts <= 0 {
		return 0
	}
	d := time.Duration(math.Pow(2, float64(attempts-1)) * float64(time.Second))
	if d > r.opts.MaxBackoff {
		d = r.opts.MaxBackoff
	}
	if r.opts.MaxJitter > 0 {
		d += time.Duration(r.rnd.Int63n(int64(r.opts.MaxJitter) + 1))
	}
	return d
}
