package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/aggregates/request"
	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/workflow"
)

// A freed seat becomes available again: with one seat, the second subject is
// turned away until the first registration is force-cancelled.
func TestLifecycle_CancelledSeatCanBeReadmitted(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	off := f.addOffering(offeringOpts{domain: workflow.DomainRegistration, published: true, capacityBound: true})
	pool := f.addPool(off.ID(), 1)

	subjectA := uuid.New()
	subjectB := uuid.New()

	admittedA, err := f.admission.Admit(ctx, AdmitDTO{SubjectID: subjectA, OfferingID: off.ID(), SlotID: pool.SlotID()})
	require.NoError(t, err)

	_, err = f.admission.Admit(ctx, AdmitDTO{SubjectID: subjectB, OfferingID: off.ID(), SlotID: pool.SlotID()})
	require.ErrorIs(t, err, ErrCapacityExceeded)

	_, err = f.cancellation.ForceCancel(ctx, admittedA.ID(), "payment never arrived", f.admin)
	require.NoError(t, err)

	got, err := f.pools.GetBySlotID(ctx, pool.SlotID())
	require.NoError(t, err)
	require.Equal(t, 0, got.Reserved())

	_, err = f.admission.Admit(ctx, AdmitDTO{SubjectID: subjectB, OfferingID: off.ID(), SlotID: pool.SlotID()})
	require.NoError(t, err)
}

// Whatever valid path a paid request takes, force-cancelling it never
// leaves the payment state at Paid.
func TestLifecycle_ForceCancelAlwaysSettlesPayment(t *testing.T) {
	paths := []struct {
		name    string
		domain  workflow.Domain
		actions []workflow.Action
	}{
		{"membership pending", workflow.DomainMembership, nil},
		{"membership approved", workflow.DomainMembership, []workflow.Action{workflow.ActionApprove}},
		{"syndicate reviewing", workflow.DomainSyndicate, []workflow.Action{workflow.ActionSubmit, workflow.ActionMarkAsInProgress}},
		{"advising approved", workflow.DomainAdvising, []workflow.Action{workflow.ActionApprove}},
		{"certificate processing", workflow.DomainCertificate, []workflow.Action{workflow.ActionStartProcessing}},
	}

	for _, tc := range paths {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			ctx := context.Background()
			off := f.addOffering(offeringOpts{domain: tc.domain, published: true, fee: feeOf(t, "75.50")})

			dto := AdmitDTO{SubjectID: uuid.New(), OfferingID: off.ID()}
			if tc.domain == workflow.DomainCertificate {
				dto.Delivery = workflow.DeliveryPickup
			}
			created, err := f.admission.Admit(ctx, dto)
			require.NoError(t, err)

			_, err = f.transitions.MarkPaymentReceived(ctx, created.ID(), f.admin)
			require.NoError(t, err)

			for _, action := range tc.actions {
				_, err = f.transitions.Transition(ctx, created.ID(), action, TransitionPayload{}, f.admin)
				require.NoError(t, err)
			}

			_, err = f.cancellation.ForceCancel(ctx, created.ID(), "administrative removal", f.admin)
			require.NoError(t, err)

			reloaded, err := f.requests.GetByID(ctx, created.ID())
			require.NoError(t, err)
			require.Contains(t,
				[]request.PaymentState{request.PaymentRefunded, request.PaymentRefundPending},
				reloaded.PaymentState(),
			)
			require.NotEqual(t, request.PaymentPaid, reloaded.PaymentState())
		})
	}
}
