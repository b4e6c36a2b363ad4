package capacity

import (
	"context"

	"github.com/google/uuid"
)

// Gate is the narrow admission surface. Both the Postgres repository and the
// Redis adapter implement it; the admission service only depends on this.
type Gate interface {
	// TryReserve takes one seat iff the pool is below capacity. The check
	// and the increment are a single atomic operation.
	TryReserve(ctx context.Context, slotID uuid.UUID) (bool, error)
	// Release frees one seat, floored at zero. Releasing an already-released
	// reservation is a no-op, not an error.
	Release(ctx context.Context, slotID uuid.UUID) error
}

type Repository interface {
	Gate
	GetBySlotID(ctx context.Context, slotID uuid.UUID) (Pool, error)
	Create(ctx context.Context, p Pool) (Pool, error)
}
