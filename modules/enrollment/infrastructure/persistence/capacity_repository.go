package persistence

import (
	"context"
	"errors"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/aggregates/capacity"
	"github.com/alumnet-hq/alumnet/pkg/composables"
)

type PgCapacityRepository struct{}

func NewCapacityRepository() capacity.Repository {
	return &PgCapacityRepository{}
}

// TryReserve takes a seat with a single conditional UPDATE. The guard
// `reserved < total_capacity` and the increment execute atomically inside
// the statement, so concurrent admissions can never oversell the slot.
func (r *PgCapacityRepository) TryReserve(ctx context.Context, slotID uuid.UUID) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx,
		`UPDATE capacity_pools
		 SET reserved = reserved + 1, version = version + 1
		 WHERE slot_id = $1 AND reserved < total_capacity`,
		pgUUID(slotID),
	)
	if err != nil {
		return false, gerrors.Wrap(err, "reserve seat")
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM capacity_pools WHERE slot_id = $1)`,
		pgUUID(slotID),
	).Scan(&exists); err != nil {
		return false, gerrors.Wrap(err, "check pool")
	}
	if !exists {
		return false, capacity.ErrPoolNotFound
	}
	return false, nil
}

func (r *PgCapacityRepository) Release(ctx context.Context, slotID uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx,
		`UPDATE capacity_pools
		 SET reserved = GREATEST(reserved - 1, 0), version = version + 1
		 WHERE slot_id = $1`,
		pgUUID(slotID),
	)
	if err != nil {
		return gerrors.Wrap(err, "release seat")
	}
	if tag.RowsAffected() == 0 {
		return capacity.ErrPoolNotFound
	}
	return nil
}

func (r *PgCapacityRepository) GetBySlotID(ctx context.Context, slotID uuid.UUID) (capacity.Pool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return capacity.Pool{}, err
	}

	var (
		id, offeringID  pgtype.UUID
		total, reserved int
		version         int64
		createdAt       pgtype.Timestamptz
	)
	err = tx.QueryRow(ctx,
		`SELECT slot_id, offering_id, total_capacity, reserved, version, created_at
		 FROM capacity_pools WHERE slot_id = $1`,
		pgUUID(slotID),
	).Scan(&id, &offeringID, &total, &reserved, &version, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return capacity.Pool{}, capacity.ErrPoolNotFound
		}
		return capacity.Pool{}, gerrors.Wrap(err, "get pool")
	}

	return capacity.Hydrate(fromPgUUID(id), fromPgUUID(offeringID), total, reserved, version, createdAt.Time), nil
}

func (r *PgCapacityRepository) Create(ctx context.Context, p capacity.Pool) (capacity.Pool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return capacity.Pool{}, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO capacity_pools (slot_id, offering_id, total_capacity, reserved, version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		pgUUID(p.SlotID()), pgUUID(p.OfferingID()), p.TotalCapacity(), p.Reserved(), p.Version(), p.CreatedAt(),
	)
	if err != nil {
		return capacity.Pool{}, gerrors.Wrap(err, "insert pool")
	}
	return p, nil
}
