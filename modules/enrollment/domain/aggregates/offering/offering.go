package offering

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/workflow"
	"github.com/alumnet-hq/alumnet/pkg/serrors"
)

var ErrNotFound = serrors.NewError("OFFERING_NOT_FOUND", "offering not found", "Enrollment.Errors.OfferingNotFound")

// PaymentChannel determines whether a refund can be reversed automatically.
type PaymentChannel string

const (
	ChannelWallet   PaymentChannel = "wallet"
	ChannelExternal PaymentChannel = "external"
)

// Offering is an event, service, fee schedule or syndicate batch that
// subjects enroll against.
type Offering struct {
	id            uuid.UUID
	name          string
	domain        workflow.Domain
	published     bool
	deadline      time.Time
	capacityBound bool
	fee           decimal.Decimal
	channel       PaymentChannel
	createdAt     time.Time
}

func New(name string, domain workflow.Domain, fee decimal.Decimal, channel PaymentChannel, now time.Time) Offering {
	return Offering{
		id:        uuid.New(),
		name:      name,
		domain:    domain,
		fee:       fee,
		channel:   channel,
		createdAt: now,
	}
}

func Hydrate(
	id uuid.UUID,
	name string,
	domain workflow.Domain,
	published bool,
	deadline time.Time,
	capacityBound bool,
	fee decimal.Decimal,
	channel PaymentChannel,
	createdAt time.Time,
) Offering {
	return Offering{
		id:            id,
		name:          name,
		domain:        domain,
		published:     published,
		deadline:      deadline,
		capacityBound: capacityBound,
		fee:           fee,
		channel:       channel,
		createdAt:     createdAt,
	}
}

func (o Offering) ID() uuid.UUID            { return o.id }
func (o Offering) Name() string             { return o.name }
func (o Offering) Domain() workflow.Domain  { return o.domain }
func (o Offering) Published() bool          { return o.published }
func (o Offering) Deadline() time.Time      { return o.deadline }
func (o Offering) CapacityBound() bool      { return o.capacityBound }
func (o Offering) Fee() decimal.Decimal     { return o.fee }
func (o Offering) Channel() PaymentChannel  { return o.channel }
func (o Offering) CreatedAt() time.Time     { return o.createdAt }
func (o Offering) IsZero() bool             { return o.id == uuid.Nil }

// IsOpen reports whether new requests are accepted: the offering must be
// published and its submission deadline, when set, not yet passed.
func (o Offering) IsOpen(now time.Time) bool {
	if !o.published {
		return false
	}
	if !o.deadline.IsZero() && now.After(o.deadline) {
		return false
	}
	return true
}
