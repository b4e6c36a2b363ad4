package capacity

import (
	"time"

	"github.com/google/uuid"

	"github.com/alumnet-hq/alumnet/pkg/serrors"
)

var ErrPoolNotFound = serrors.NewError("CAPACITY_POOL_NOT_FOUND", "capacity pool not found", "Enrollment.Errors.PoolNotFound")

// Pool is the shared seat counter for one offering slot. The reserved count
// never exceeds capacity; adapters enforce that with a single atomic
// increment-if-below operation, never a read-then-write.
type Pool struct {
	slotID     uuid.UUID
	offeringID uuid.UUID
	capacity   int
	reserved   int
	version    int64
	createdAt  time.Time
}

func New(offeringID uuid.UUID, totalCapacity int, now time.Time) Pool {
	return Pool{
		slotID:     uuid.New(),
		offeringID: offeringID,
		capacity:   totalCapacity,
		version:    1,
		createdAt:  now,
	}
}

func Hydrate(slotID, offeringID uuid.UUID, totalCapacity, reserved int, version int64, createdAt time.Time) Pool {
	return Pool{
		slotID:     slotID,
		offeringID: offeringID,
		capacity:   totalCapacity,
		reserved:   reserved,
		version:    version,
		createdAt:  createdAt,
	}
}

func (p Pool) SlotID() uuid.UUID     { return p.slotID }
func (p Pool) OfferingID() uuid.UUID { return p.offeringID }
func (p Pool) TotalCapacity() int    { return p.capacity }
func (p Pool) Reserved() int         { return p.reserved }
func (p Pool) Remaining() int        { return p.capacity - p.reserved }
func (p Pool) Version() int64        { return p.version }
func (p Pool) CreatedAt() time.Time  { return p.createdAt }
func (p Pool) IsZero() bool          { return p.slotID == uuid.Nil }
