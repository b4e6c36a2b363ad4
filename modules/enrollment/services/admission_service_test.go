package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/aggregates/request"
	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/workflow"
	"github.com/alumnet-hq/alumnet/modules/enrollment/testhelpers"
)

func TestAdmit_CreatesRequestAndReservesSeat(t *testing.T) {
	f := newFixture()
	off := f.addOffering(offeringOpts{domain: workflow.DomainRegistration, published: true, capacityBound: true})
	pool := f.addPool(off.ID(), 5)

	created, err := f.admission.Admit(context.Background(), AdmitDTO{
		SubjectID:  uuid.New(),
		OfferingID: off.ID(),
		SlotID:     pool.SlotID(),
	})
	require.NoError(t, err)
	require.Equal(t, workflow.StateRegistered, created.Status())
	require.Equal(t, request.PaymentUnpaid, created.PaymentState())
	require.Equal(t, pool.SlotID(), created.SlotID())

	got, err := f.pools.GetBySlotID(context.Background(), pool.SlotID())
	require.NoError(t, err)
	require.Equal(t, 1, got.Reserved())

	events := f.bus.Events()
	require.Len(t, events, 1)
	ev, ok := events[0].(request.CreatedEvent)
	require.True(t, ok)
	require.Equal(t, created.ID(), ev.RequestID)
}

func TestAdmit_DuplicateRegistration(t *testing.T) {
	f := newFixture()
	off := f.addOffering(offeringOpts{domain: workflow.DomainMembership, published: true})
	subject := uuid.New()

	_, err := f.admission.Admit(context.Background(), AdmitDTO{SubjectID: subject, OfferingID: off.ID()})
	require.NoError(t, err)

	_, err = f.admission.Admit(context.Background(), AdmitDTO{SubjectID: subject, OfferingID: off.ID()})
	require.ErrorIs(t, err, ErrDuplicateRegistration)
}

func TestAdmit_RejectedRequestDoesNotBlockResubmission(t *testing.T) {
	f := newFixture()
	off := f.addOffering(offeringOpts{domain: workflow.DomainMembership, published: true})
	subject := uuid.New()

	created, err := f.admission.Admit(context.Background(), AdmitDTO{SubjectID: subject, OfferingID: off.ID()})
	require.NoError(t, err)

	_, err = f.transitions.Reject(context.Background(), created.ID(), "incomplete documents", f.admin)
	require.NoError(t, err)

	_, err = f.admission.Admit(context.Background(), AdmitDTO{SubjectID: subject, OfferingID: off.ID()})
	require.NoError(t, err)
}

func TestAdmit_OfferingNotOpen(t *testing.T) {
	f := newFixture()

	unpublished := f.addOffering(offeringOpts{domain: workflow.DomainAdvising, published: false})
	_, err := f.admission.Admit(context.Background(), AdmitDTO{SubjectID: uuid.New(), OfferingID: unpublished.ID()})
	require.ErrorIs(t, err, ErrOfferingNotOpen)

	expired := f.addOffering(offeringOpts{
		domain:    workflow.DomainAdvising,
		published: true,
		deadline:  f.clock.Now().Add(-time.Hour),
	})
	_, err = f.admission.Admit(context.Background(), AdmitDTO{SubjectID: uuid.New(), OfferingID: expired.ID()})
	require.ErrorIs(t, err, ErrOfferingNotOpen)
}

func TestAdmit_CapacityExceeded(t *testing.T) {
	f := newFixture()
	off := f.addOffering(offeringOpts{domain: workflow.DomainRegistration, published: true, capacityBound: true})
	pool := f.addPool(off.ID(), 1)

	_, err := f.admission.Admit(context.Background(), AdmitDTO{
		SubjectID: uuid.New(), OfferingID: off.ID(), SlotID: pool.SlotID(),
	})
	require.NoError(t, err)

	_, err = f.admission.Admit(context.Background(), AdmitDTO{
		SubjectID: uuid.New(), OfferingID: off.ID(), SlotID: pool.SlotID(),
	})
	require.ErrorIs(t, err, ErrCapacityExceeded)

	// The failed admission leaves no request behind.
	_, total, err := f.requests.GetPaginated(context.Background(), &request.FindParams{OfferingID: off.ID()})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
}

func TestAdmit_SlotRequiredForCapacityBoundOffering(t *testing.T) {
	f := newFixture()
	off := f.addOffering(offeringOpts{domain: workflow.DomainRegistration, published: true, capacityBound: true})

	_, err := f.admission.Admit(context.Background(), AdmitDTO{SubjectID: uuid.New(), OfferingID: off.ID()})
	require.ErrorIs(t, err, ErrSlotRequired)
}

func TestAdmit_ConcurrentAdmissionsNeverOversell(t *testing.T) {
	f := newFixture()
	off := f.addOffering(offeringOpts{domain: workflow.DomainRegistration, published: true, capacityBound: true})
	pool := f.addPool(off.ID(), 1)

	const attempts = 64

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.admission.Admit(context.Background(), AdmitDTO{
				SubjectID: uuid.New(), OfferingID: off.ID(), SlotID: pool.SlotID(),
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, succeeded)

	got, err := f.pools.GetBySlotID(context.Background(), pool.SlotID())
	require.NoError(t, err)
	require.Equal(t, 1, got.Reserved())
	require.LessOrEqual(t, got.Reserved(), got.TotalCapacity())
}

func TestAdmit_ConcurrentDuplicatesHaveOneWinner(t *testing.T) {
	f := newFixture()
	off := f.addOffering(offeringOpts{domain: workflow.DomainMembership, published: true})
	subject := uuid.New()

	const attempts = 32

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		succeeded  int
		duplicates int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.admission.Admit(context.Background(), AdmitDTO{
				SubjectID: subject, OfferingID: off.ID(),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrDuplicateRegistration):
				duplicates++
			default:
				t.Errorf("unexpected admission error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, succeeded)
	require.Equal(t, attempts-1, duplicates)

	_, total, err := f.requests.GetPaginated(context.Background(), nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
}

type failingCreateRepo struct {
	*testhelpers.InMemoryRequestRepository
	err error
}

func (r *failingCreateRepo) Create(ctx context.Context, entity request.WorkflowRequest) (request.WorkflowRequest, error) {
	return request.WorkflowRequest{}, r.err
}

func TestAdmit_ReleasesSeatWhenInsertFails(t *testing.T) {
	f := newFixture()
	off := f.addOffering(offeringOpts{domain: workflow.DomainRegistration, published: true, capacityBound: true})
	pool := f.addPool(off.ID(), 1)

	broken := &failingCreateRepo{
		InMemoryRequestRepository: f.requests,
		err:                       context.DeadlineExceeded,
	}
	admission := NewAdmissionService(broken, f.offerings, f.pools, f.bus, f.clock, f.log)

	_, err := admission.Admit(context.Background(), AdmitDTO{
		SubjectID: uuid.New(), OfferingID: off.ID(), SlotID: pool.SlotID(),
	})
	require.Error(t, err)

	got, err := f.pools.GetBySlotID(context.Background(), pool.SlotID())
	require.NoError(t, err)
	require.Equal(t, 0, got.Reserved())
}
