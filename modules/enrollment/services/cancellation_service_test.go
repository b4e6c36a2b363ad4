package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/aggregates/offering"
	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/aggregates/request"
	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/workflow"
)

// admitPaid registers a subject on a capacity-bound offering and marks the
// fee as collected.
func (f *fixture) admitPaid(t *testing.T, channel offering.PaymentChannel) (request.WorkflowRequest, uuid.UUID) {
	t.Helper()
	off := f.addOffering(offeringOpts{
		domain: workflow.DomainRegistration, published: true, capacityBound: true,
		fee: feeOf(t, "150.00"), channel: channel,
	})
	pool := f.addPool(off.ID(), 3)

	created, err := f.admission.Admit(context.Background(), AdmitDTO{
		SubjectID: uuid.New(), OfferingID: off.ID(), SlotID: pool.SlotID(),
	})
	require.NoError(t, err)

	paid, err := f.transitions.MarkPaymentReceived(context.Background(), created.ID(), f.admin)
	require.NoError(t, err)
	return paid, pool.SlotID()
}

func TestForceCancel_PaidWalletRequestIsAutoRefunded(t *testing.T) {
	f := newFixture()
	paid, slotID := f.admitPaid(t, offering.ChannelWallet)
	ctx := context.Background()

	rec, err := f.cancellation.ForceCancel(ctx, paid.ID(), "event rescheduled", f.admin)
	require.NoError(t, err)
	require.True(t, rec.WasAutoRefunded)
	require.True(t, rec.RefundAmount.Equal(paid.Amount()))

	reloaded, err := f.requests.GetByID(ctx, paid.ID())
	require.NoError(t, err)
	require.Equal(t, workflow.StateCancelled, reloaded.Status())
	require.Equal(t, request.PaymentRefunded, reloaded.PaymentState())

	pool, err := f.pools.GetBySlotID(ctx, slotID)
	require.NoError(t, err)
	require.Equal(t, 0, pool.Reserved())

	credits := f.wallet.Credits()
	require.Len(t, credits, 1)
	require.True(t, credits[0].Equal(paid.Amount()))

	msgs := f.outbox.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, request.TopicCancellationOccurred, msgs[0].Topic)

	var ev request.CancellationOccurredEvent
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &ev))
	require.Equal(t, paid.ID(), ev.RequestID)
	require.True(t, ev.WasAutoRefunded)
}

func TestForceCancel_WalletOutageFallsBackToManualRefund(t *testing.T) {
	f := newFixture()
	f.wallet.Err = errors.New("wallet service unavailable")
	paid, slotID := f.admitPaid(t, offering.ChannelWallet)
	ctx := context.Background()

	rec, err := f.cancellation.ForceCancel(ctx, paid.ID(), "duplicate booking", f.admin)
	require.NoError(t, err)
	require.False(t, rec.WasAutoRefunded)
	require.True(t, rec.RefundAmount.Equal(paid.Amount()))

	// A payment outage downgrades the refund, never the cancellation.
	reloaded, err := f.requests.GetByID(ctx, paid.ID())
	require.NoError(t, err)
	require.Equal(t, workflow.StateCancelled, reloaded.Status())
	require.Equal(t, request.PaymentRefundPending, reloaded.PaymentState())

	pool, err := f.pools.GetBySlotID(ctx, slotID)
	require.NoError(t, err)
	require.Equal(t, 0, pool.Reserved())

	require.Len(t, f.outbox.Messages(), 1)
}

func TestForceCancel_ExternalChannelIsAlwaysManual(t *testing.T) {
	f := newFixture()
	paid, _ := f.admitPaid(t, offering.ChannelExternal)

	rec, err := f.cancellation.ForceCancel(context.Background(), paid.ID(), "venue closed", f.admin)
	require.NoError(t, err)
	require.False(t, rec.WasAutoRefunded)
	require.Empty(t, f.wallet.Credits())

	reloaded, err := f.requests.GetByID(context.Background(), paid.ID())
	require.NoError(t, err)
	require.Equal(t, request.PaymentRefundPending, reloaded.PaymentState())
}

func TestForceCancel_UnpaidRequestHasNoRefund(t *testing.T) {
	f := newFixture()
	off := f.addOffering(offeringOpts{domain: workflow.DomainAdvising, published: true})
	created, err := f.admission.Admit(context.Background(), AdmitDTO{SubjectID: uuid.New(), OfferingID: off.ID()})
	require.NoError(t, err)

	rec, err := f.cancellation.ForceCancel(context.Background(), created.ID(), "advisor left", f.admin)
	require.NoError(t, err)
	require.False(t, rec.WasAutoRefunded)
	require.True(t, rec.RefundAmount.IsZero())

	reloaded, err := f.requests.GetByID(context.Background(), created.ID())
	require.NoError(t, err)
	require.Equal(t, request.PaymentUnpaid, reloaded.PaymentState())
	require.Len(t, f.outbox.Messages(), 1)
}

func TestForceCancel_FailureModes(t *testing.T) {
	f := newFixture()
	paid, _ := f.admitPaid(t, offering.ChannelWallet)
	ctx := context.Background()

	_, err := f.cancellation.ForceCancel(ctx, uuid.New(), "whatever", f.admin)
	require.ErrorIs(t, err, request.ErrNotFound)

	_, err = f.cancellation.ForceCancel(ctx, paid.ID(), "", f.admin)
	require.ErrorIs(t, err, workflow.ErrMissingReason)

	_, err = f.cancellation.ForceCancel(ctx, paid.ID(), "first", f.admin)
	require.NoError(t, err)

	_, err = f.cancellation.ForceCancel(ctx, paid.ID(), "second", f.admin)
	require.ErrorIs(t, err, workflow.ErrAlreadyFinalized)

	require.Len(t, f.outbox.Messages(), 1)
}

func TestForceCancel_NonAdminForbidden(t *testing.T) {
	f := newFixture()
	paid, _ := f.admitPaid(t, offering.ChannelWallet)

	_, err := f.cancellation.ForceCancel(context.Background(), paid.ID(), "nope", Actor{ID: uuid.New(), Role: "member"})
	require.ErrorIs(t, err, ErrForbidden)
}
