package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/aggregates/capacity"
	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/aggregates/offering"
	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/aggregates/request"
	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/workflow"
	"github.com/alumnet-hq/alumnet/pkg/composables"
	"github.com/alumnet-hq/alumnet/pkg/outbox"
)

// CancellationService removes an already-admitted, possibly paid subject
// from an offering: cancel the request, free its seat, settle the refund and
// hand a CancellationOccurred event to the notification dispatcher.
type CancellationService struct {
	requests  request.Repository
	offerings offering.Repository
	gate      capacity.Gate
	wallet    WalletService
	outbox    outbox.Publisher
	clock     clockwork.Clock
	log       *logrus.Logger

	walletTimeout time.Duration
}

func NewCancellationService(
	requests request.Repository,
	offerings offering.Repository,
	gate capacity.Gate,
	wallet WalletService,
	publisher outbox.Publisher,
	clock clockwork.Clock,
	log *logrus.Logger,
	walletTimeout time.Duration,
) *CancellationService {
	if walletTimeout <= 0 {
		walletTimeout = 5 * time.Second
	}
	return &CancellationService{
		requests:      requests,
		offerings:     offerings,
		gate:          gate,
		wallet:        wallet,
		outbox:        publisher,
		clock:         clock,
		log:           log,
		walletTimeout: walletTimeout,
	}
}

// ForceCancel runs in three phases. The cancel transition and the seat
// release commit atomically first; the wallet call happens afterwards with
// a bounded timeout so a payment outage can only downgrade the refund to
// manual, never undo the cancellation; finally the event is enqueued with
// the refund outcome.
func (s *CancellationService) ForceCancel(ctx context.Context, requestID uuid.UUID, reason string, actor Actor) (request.CancellationRecord, error) {
	if err := authorizeFn(actor, "force_cancel"); err != nil {
		return request.CancellationRecord{}, err
	}

	var wasPaid bool
	cancelled, err := composables.InTxResult(ctx, func(txCtx context.Context) (request.WorkflowRequest, error) {
		entity, err := s.requests.GetByID(txCtx, requestID)
		if err != nil {
			return request.WorkflowRequest{}, err
		}

		table, err := workflow.TableFor(entity.Domain())
		if err != nil {
			return request.WorkflowRequest{}, err
		}

		next, err := table.Cancel(entity.Status(), reason)
		if err != nil {
			return request.WorkflowRequest{}, err
		}

		wasPaid = entity.PaymentState() == request.PaymentPaid
		entity = entity.WithTransition(next, reason, "", s.clock.Now())
		if wasPaid {
			entity = entity.WithPaymentState(request.PaymentRefundPending)
		}

		updated, err := s.requests.Update(txCtx, entity)
		if err != nil {
			return request.WorkflowRequest{}, err
		}

		if updated.SlotBound() {
			if err := s.gate.Release(txCtx, updated.SlotID()); err != nil {
				return request.WorkflowRequest{}, err
			}
		}
		return updated, nil
	})
	if err != nil {
		return request.CancellationRecord{}, err
	}

	rec := request.CancellationRecord{
		RequestID:    cancelled.ID(),
		Reason:       reason,
		RefundAmount: decimal.Zero,
		OccurredAt:   s.clock.Now(),
	}
	if wasPaid {
		rec.RefundAmount = cancelled.Amount()
		rec.WasAutoRefunded = s.tryAutoRefund(ctx, cancelled)
	}

	final := cancelled
	if err := composables.InTx(ctx, func(txCtx context.Context) error {
		if rec.WasAutoRefunded {
			updated, uErr := s.requests.Update(txCtx, cancelled.WithPaymentState(request.PaymentRefunded))
			if uErr != nil {
				return uErr
			}
			final = updated
		}

		ev := request.NewCancellationOccurredEvent(final, rec)
		payload, mErr := json.Marshal(ev)
		if mErr != nil {
			return mErr
		}
		_, eErr := s.outbox.Enqueue(txCtx, outbox.Message{
			Topic:   request.TopicCancellationOccurred,
			EventID: ev.EventID,
			Payload: payload,
		})
		return eErr
	}); err != nil {
		return request.CancellationRecord{}, err
	}

	return rec, nil
}

// tryAutoRefund credits the subject's wallet when the offering was paid
// through it. Any failure is logged and reported as a manual refund.
func (s *CancellationService) tryAutoRefund(ctx context.Context, cancelled request.WorkflowRequest) bool {
	off, err := s.offerings.GetByID(ctx, cancelled.OfferingID())
	if err != nil {
		s.log.WithError(err).WithField("request_id", cancelled.ID()).Warn("cancellation: offering lookup failed, refund left for manual processing")
		return false
	}
	if off.Channel() != offering.ChannelWallet {
		return false
	}

	wCtx, cancel := context.WithTimeout(ctx, s.walletTimeout)
	defer cancel()

	if err := s.wallet.Credit(wCtx, cancelled.SubjectID(), cancelled.Amount()); err != nil {
		s.log.WithError(err).
			WithField("request_id", cancelled.ID()).
			WithField("amount", cancelled.Amount().String()).
			Warnf("cancellation: %s", ErrRefundChannelUnavailable.Message)
		return false
	}
	return true
}
