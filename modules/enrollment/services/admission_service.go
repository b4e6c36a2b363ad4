package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/aggregates/capacity"
	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/aggregates/offering"
	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/aggregates/request"
	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/workflow"
	"github.com/alumnet-hq/alumnet/pkg/composables"
	"github.com/alumnet-hq/alumnet/pkg/eventbus"
)

type AdmitDTO struct {
	SubjectID  uuid.UUID
	OfferingID uuid.UUID
	// SlotID is required when the offering is capacity-bound, ignored otherwise.
	SlotID   uuid.UUID
	Delivery workflow.DeliveryMethod
}

// AdmissionService turns a registration attempt into a WorkflowRequest,
// enforcing the one-active-request-per-subject rule and seat capacity.
type AdmissionService struct {
	requests  request.Repository
	offerings offering.Repository
	gate      capacity.Gate
	publisher eventbus.EventBus
	clock     clockwork.Clock
	log       *logrus.Logger
}

func NewAdmissionService(
	requests request.Repository,
	offerings offering.Repository,
	gate capacity.Gate,
	publisher eventbus.EventBus,
	clock clockwork.Clock,
	log *logrus.Logger,
) *AdmissionService {
	return &AdmissionService{
		requests:  requests,
		offerings: offerings,
		gate:      gate,
		publisher: publisher,
		clock:     clock,
		log:       log,
	}
}

// Admit creates the request in its domain's initial state. The seat
// reservation and the insert are coupled: when the gate joins the
// transaction both commit or roll back together, and when it cannot (the
// Redis gate) a failed insert releases the seat before returning.
func (s *AdmissionService) Admit(ctx context.Context, dto AdmitDTO) (request.WorkflowRequest, error) {
	created, err := composables.InTxResult(ctx, func(txCtx context.Context) (request.WorkflowRequest, error) {
		off, err := s.offerings.GetByID(txCtx, dto.OfferingID)
		if err != nil {
			return request.WorkflowRequest{}, err
		}

		now := s.clock.Now()
		if !off.IsOpen(now) {
			return request.WorkflowRequest{}, ErrOfferingNotOpen
		}

		exists, err := s.requests.ExistsActive(txCtx, dto.SubjectID, dto.OfferingID)
		if err != nil {
			return request.WorkflowRequest{}, err
		}
		if exists {
			return request.WorkflowRequest{}, ErrDuplicateRegistration
		}

		table, err := workflow.TableFor(off.Domain())
		if err != nil {
			return request.WorkflowRequest{}, err
		}

		slotID := uuid.Nil
		if off.CapacityBound() {
			if dto.SlotID == uuid.Nil {
				return request.WorkflowRequest{}, ErrSlotRequired
			}
			reserved, err := s.gate.TryReserve(txCtx, dto.SlotID)
			if err != nil {
				return request.WorkflowRequest{}, err
			}
			if !reserved {
				return request.WorkflowRequest{}, ErrCapacityExceeded
			}
			slotID = dto.SlotID
		}

		entity := request.New(dto.SubjectID, dto.OfferingID, slotID, off.Domain(), table.Initial(), dto.Delivery, off.Fee(), now)
		createdEntity, err := s.requests.Create(txCtx, entity)
		if err != nil {
			if slotID != uuid.Nil {
				if rErr := s.gate.Release(txCtx, slotID); rErr != nil {
					s.log.WithError(rErr).WithField("slot_id", slotID).Error("admission: failed to release seat after insert failure")
				}
			}
			// The ExistsActive read keeps the common path cheap; a racing
			// admission that slipped past it is refused by the insert.
			if errors.Is(err, request.ErrDuplicateActive) {
				return request.WorkflowRequest{}, ErrDuplicateRegistration
			}
			return request.WorkflowRequest{}, err
		}
		return createdEntity, nil
	})
	if err != nil {
		return request.WorkflowRequest{}, err
	}

	s.publisher.Publish(request.NewCreatedEvent(created, s.clock.Now()))

	return created, nil
}
