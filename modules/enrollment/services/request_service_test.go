package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/aggregates/request"
	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/workflow"
)

func (f *fixture) admit(t *testing.T, domain workflow.Domain) request.WorkflowRequest {
	t.Helper()
	off := f.addOffering(offeringOpts{domain: domain, published: true})
	created, err := f.admission.Admit(context.Background(), AdmitDTO{
		SubjectID: uuid.New(), OfferingID: off.ID(),
	})
	require.NoError(t, err)
	return created
}

func TestTransition_ApproveSetsTimestampAndEnqueuesStatusChange(t *testing.T) {
	f := newFixture()
	created := f.admit(t, workflow.DomainMembership)

	f.clock.Advance(90 * time.Minute)

	updated, err := f.transitions.Approve(context.Background(), created.ID(), f.admin)
	require.NoError(t, err)
	require.Equal(t, workflow.StateApproved, updated.Status())
	require.Equal(t, f.clock.Now(), updated.LastTransitionAt())
	require.Greater(t, updated.Version(), created.Version())

	msgs := f.outbox.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, request.TopicStatusChanged, msgs[0].Topic)

	var changed request.StatusChangedEvent
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &changed))
	require.Equal(t, created.ID(), changed.RequestID)
	require.Equal(t, workflow.StatePending, changed.From)
	require.Equal(t, workflow.StateApproved, changed.To)
}

func TestTransition_RejectWithoutReasonLeavesRecordUntouched(t *testing.T) {
	f := newFixture()
	created := f.admit(t, workflow.DomainMembership)

	_, err := f.transitions.Reject(context.Background(), created.ID(), "  ", f.admin)
	require.ErrorIs(t, err, workflow.ErrMissingReason)

	reloaded, err := f.requests.GetByID(context.Background(), created.ID())
	require.NoError(t, err)
	require.Equal(t, workflow.StatePending, reloaded.Status())
	require.Equal(t, created.Version(), reloaded.Version())
	require.Empty(t, reloaded.RejectionReason())
}

func TestTransition_RejectRecordsReason(t *testing.T) {
	f := newFixture()
	created := f.admit(t, workflow.DomainMembership)

	updated, err := f.transitions.Reject(context.Background(), created.ID(), "payment bounced", f.admin)
	require.NoError(t, err)
	require.Equal(t, workflow.StateRejected, updated.Status())
	require.Equal(t, "payment bounced", updated.RejectionReason())
}

func TestTransition_TerminalRequestAlwaysFails(t *testing.T) {
	f := newFixture()
	created := f.admit(t, workflow.DomainMembership)

	_, err := f.transitions.Reject(context.Background(), created.ID(), "duplicate account", f.admin)
	require.NoError(t, err)

	_, err = f.transitions.Approve(context.Background(), created.ID(), f.admin)
	require.ErrorIs(t, err, workflow.ErrAlreadyFinalized)

	_, err = f.transitions.Reject(context.Background(), created.ID(), "again", f.admin)
	require.ErrorIs(t, err, workflow.ErrAlreadyFinalized)
}

func TestTransition_NonAdminActorForbidden(t *testing.T) {
	f := newFixture()
	created := f.admit(t, workflow.DomainMembership)

	_, err := f.transitions.Approve(context.Background(), created.ID(), Actor{ID: uuid.New(), Role: "member"})
	require.ErrorIs(t, err, ErrForbidden)

	reloaded, err := f.requests.GetByID(context.Background(), created.ID())
	require.NoError(t, err)
	require.Equal(t, workflow.StatePending, reloaded.Status())
}

func TestTransition_NotFound(t *testing.T) {
	f := newFixture()

	_, err := f.transitions.Approve(context.Background(), uuid.New(), f.admin)
	require.ErrorIs(t, err, request.ErrNotFound)
}

func TestSyndicate_PaymentGateThenReview(t *testing.T) {
	f := newFixture()
	created := f.admit(t, workflow.DomainSyndicate)
	ctx := context.Background()

	submitted, err := f.transitions.Transition(ctx, created.ID(), workflow.ActionSubmit, TransitionPayload{}, f.admin)
	require.NoError(t, err)
	require.Equal(t, workflow.StatePending, submitted.Status())

	// Unpaid: the payment guard blocks review.
	_, err = f.transitions.MarkAsInProgress(ctx, created.ID(), f.admin)
	require.ErrorIs(t, err, workflow.ErrInvalidTransition)

	paid, err := f.transitions.MarkPaymentReceived(ctx, created.ID(), f.admin)
	require.NoError(t, err)
	require.Equal(t, request.PaymentPaid, paid.PaymentState())
	require.Equal(t, workflow.StatePending, paid.Status())

	reviewing, err := f.transitions.MarkAsInProgress(ctx, created.ID(), f.admin)
	require.NoError(t, err)
	require.Equal(t, workflow.StateReviewing, reviewing.Status())
}

func TestMarkPaymentReceived_IsIdempotent(t *testing.T) {
	f := newFixture()
	created := f.admit(t, workflow.DomainSyndicate)
	ctx := context.Background()

	first, err := f.transitions.MarkPaymentReceived(ctx, created.ID(), f.admin)
	require.NoError(t, err)

	second, err := f.transitions.MarkPaymentReceived(ctx, created.ID(), f.admin)
	require.NoError(t, err)
	require.Equal(t, first.Version(), second.Version())
}

func TestTransition_RacingAdminsHaveExactlyOneWinner(t *testing.T) {
	f := newFixture()
	created := f.admit(t, workflow.DomainAdvising)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	ops := []func() error{
		func() error {
			_, err := f.transitions.Approve(context.Background(), created.ID(), f.admin)
			return err
		},
		func() error {
			_, err := f.transitions.Reject(context.Background(), created.ID(), "slot conflict", f.admin)
			return err
		},
	}
	for _, op := range ops {
		wg.Add(1)
		go func(run func() error) {
			defer wg.Done()
			if run() == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(op)
	}
	wg.Wait()

	require.Equal(t, 1, winners)
}

func TestRegistration_AttendanceNeedsVerifiedTicket(t *testing.T) {
	f := newFixture()
	created := f.admit(t, workflow.DomainRegistration)
	ctx := context.Background()

	_, err := f.transitions.MarkAttended(ctx, created.ID(), false, f.admin)
	require.ErrorIs(t, err, workflow.ErrInvalidTransition)

	attended, err := f.transitions.MarkAttended(ctx, created.ID(), true, f.admin)
	require.NoError(t, err)
	require.Equal(t, workflow.StateAttended, attended.Status())
}
