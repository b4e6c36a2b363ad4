package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/aggregates/request"
	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/workflow"
	"github.com/alumnet-hq/alumnet/pkg/composables"
	"github.com/alumnet-hq/alumnet/pkg/outbox"
)

type TransitionPayload struct {
	Reason string
	Notes  string
	// TicketVerified is set by the ticket scanner flow and unlocks the
	// attendance transition.
	TicketVerified bool
}

// RequestService advances requests through their domain's transition table.
type RequestService struct {
	requests request.Repository
	outbox   outbox.Publisher
	clock    clockwork.Clock
}

func NewRequestService(requests request.Repository, publisher outbox.Publisher, clock clockwork.Clock) *RequestService {
	return &RequestService{
		requests: requests,
		outbox:   publisher,
		clock:    clock,
	}
}

func (s *RequestService) GetByID(ctx context.Context, id uuid.UUID) (request.WorkflowRequest, error) {
	return s.requests.GetByID(ctx, id)
}

func (s *RequestService) GetPaginated(ctx context.Context, params *request.FindParams) ([]request.WorkflowRequest, int64, error) {
	return s.requests.GetPaginated(ctx, params)
}

// Transition applies one named action. Losers of a concurrent race get
// ErrConcurrencyConflict from the version check and may re-read and retry.
// The StatusChanged event is enqueued in the same transaction as the update,
// so the notification dispatcher sees exactly the committed changes.
func (s *RequestService) Transition(ctx context.Context, id uuid.UUID, action workflow.Action, payload TransitionPayload, actor Actor) (request.WorkflowRequest, error) {
	if err := authorizeFn(actor, string(action)); err != nil {
		return request.WorkflowRequest{}, err
	}

	return composables.InTxResult(ctx, func(txCtx context.Context) (request.WorkflowRequest, error) {
		entity, err := s.requests.GetByID(txCtx, id)
		if err != nil {
			return request.WorkflowRequest{}, err
		}

		table, err := workflow.TableFor(entity.Domain())
		if err != nil {
			return request.WorkflowRequest{}, err
		}

		gc := entity.GuardContext()
		gc.TicketVerified = payload.TicketVerified

		from := entity.Status()
		next, err := table.Next(from, action, gc, payload.Reason)
		if err != nil {
			return request.WorkflowRequest{}, err
		}

		entity = entity.WithTransition(next, payload.Reason, payload.Notes, s.clock.Now())
		if action == workflow.ActionMarkAsPaid {
			entity = entity.WithPaymentState(request.PaymentPaid)
		}
		updated, err := s.requests.Update(txCtx, entity)
		if err != nil {
			return request.WorkflowRequest{}, err
		}

		ev := request.NewStatusChangedEvent(updated, action, from, s.clock.Now())
		body, err := json.Marshal(ev)
		if err != nil {
			return request.WorkflowRequest{}, err
		}
		if _, err := s.outbox.Enqueue(txCtx, outbox.Message{
			Topic:   request.TopicStatusChanged,
			EventID: ev.EventID,
			Payload: body,
		}); err != nil {
			return request.WorkflowRequest{}, err
		}
		return updated, nil
	})
}

// MarkPaymentReceived flips the payment state without advancing the
// workflow; domains like the syndicate subscription collect payment while
// the request stays Pending.
func (s *RequestService) MarkPaymentReceived(ctx context.Context, id uuid.UUID, actor Actor) (request.WorkflowRequest, error) {
	if err := authorizeFn(actor, "mark_payment_received"); err != nil {
		return request.WorkflowRequest{}, err
	}

	return composables.InTxResult(ctx, func(txCtx context.Context) (request.WorkflowRequest, error) {
		entity, err := s.requests.GetByID(txCtx, id)
		if err != nil {
			return request.WorkflowRequest{}, err
		}

		table, err := workflow.TableFor(entity.Domain())
		if err != nil {
			return request.WorkflowRequest{}, err
		}
		if table.Terminal(entity.Status()) {
			return request.WorkflowRequest{}, workflow.ErrAlreadyFinalized
		}
		if entity.PaymentState() == request.PaymentPaid {
			return entity, nil
		}
		return s.requests.Update(txCtx, entity.WithPaymentState(request.PaymentPaid))
	})
}

func (s *RequestService) Approve(ctx context.Context, id uuid.UUID, actor Actor) (request.WorkflowRequest, error) {
	return s.Transition(ctx, id, workflow.ActionApprove, TransitionPayload{}, actor)
}

func (s *RequestService) Reject(ctx context.Context, id uuid.UUID, reason string, actor Actor) (request.WorkflowRequest, error) {
	return s.Transition(ctx, id, workflow.ActionReject, TransitionPayload{Reason: reason}, actor)
}

func (s *RequestService) MarkAsPaid(ctx context.Context, id uuid.UUID, actor Actor) (request.WorkflowRequest, error) {
	return s.Transition(ctx, id, workflow.ActionMarkAsPaid, TransitionPayload{}, actor)
}

func (s *RequestService) MarkAsInProgress(ctx context.Context, id uuid.UUID, actor Actor) (request.WorkflowRequest, error) {
	return s.Transition(ctx, id, workflow.ActionMarkAsInProgress, TransitionPayload{}, actor)
}

func (s *RequestService) Deliver(ctx context.Context, id uuid.UUID, actor Actor) (request.WorkflowRequest, error) {
	return s.Transition(ctx, id, workflow.ActionDeliver, TransitionPayload{}, actor)
}

func (s *RequestService) MarkCompleted(ctx context.Context, id uuid.UUID, actor Actor) (request.WorkflowRequest, error) {
	return s.Transition(ctx, id, workflow.ActionMarkCompleted, TransitionPayload{}, actor)
}

func (s *RequestService) MarkAttended(ctx context.Context, id uuid.UUID, ticketVerified bool, actor Actor) (request.WorkflowRequest, error) {
	return s.Transition(ctx, id, workflow.ActionMarkAttended, TransitionPayload{TicketVerified: ticketVerified}, actor)
}
