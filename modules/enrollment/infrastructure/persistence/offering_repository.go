package persistence

import (
	"context"
	"errors"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/aggregates/offering"
	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/workflow"
	"github.com/alumnet-hq/alumnet/pkg/composables"
)

type PgOfferingRepository struct{}

func NewOfferingRepository() offering.Repository {
	return &PgOfferingRepository{}
}

func (r *PgOfferingRepository) GetByID(ctx context.Context, id uuid.UUID) (offering.Offering, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return offering.Offering{}, err
	}

	var (
		oid           pgtype.UUID
		name, domain  string
		published     bool
		deadline      pgtype.Timestamptz
		capacityBound bool
		feeText       string
		channel       string
		createdAt     pgtype.Timestamptz
	)
	err = tx.QueryRow(ctx,
		`SELECT id, name, domain, published, deadline, capacity_bound, fee::text, payment_channel, created_at
		 FROM offerings WHERE id = $1`,
		pgUUID(id),
	).Scan(&oid, &name, &domain, &published, &deadline, &capacityBound, &feeText, &channel, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return offering.Offering{}, offering.ErrNotFound
		}
		return offering.Offering{}, gerrors.Wrap(err, "get offering")
	}

	fee, err := decimal.NewFromString(feeText)
	if err != nil {
		return offering.Offering{}, gerrors.Wrap(err, "parse fee")
	}

	var deadlineAt time.Time
	if deadline.Valid {
		deadlineAt = deadline.Time
	}

	return offering.Hydrate(
		fromPgUUID(oid), name, workflow.Domain(domain), published, deadlineAt,
		capacityBound, fee, offering.PaymentChannel(channel), createdAt.Time,
	), nil
}

func (r *PgOfferingRepository) Create(ctx context.Context, o offering.Offering) (offering.Offering, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return offering.Offering{}, err
	}

	var deadline pgtype.Timestamptz
	if !o.Deadline().IsZero() {
		deadline = pgtype.Timestamptz{Time: o.Deadline(), Valid: true}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO offerings (id, name, domain, published, deadline, capacity_bound, fee, payment_channel, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		pgUUID(o.ID()), o.Name(), string(o.Domain()), o.Published(), deadline,
		o.CapacityBound(), o.Fee().String(), string(o.Channel()), o.CreatedAt(),
	)
	if err != nil {
		return offering.Offering{}, gerrors.Wrap(err, "insert offering")
	}
	return o, nil
}
