package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/aggregates/capacity"
	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/aggregates/offering"
	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/workflow"
	"github.com/alumnet-hq/alumnet/modules/enrollment/testhelpers"
)

type capturingBus struct {
	mu     sync.Mutex
	events []interface{}
}

func (b *capturingBus) Publish(args ...interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, args...)
}

func (b *capturingBus) Subscribe(handler interface{})   {}
func (b *capturingBus) Unsubscribe(handler interface{}) {}
func (b *capturingBus) Clear()                          {}
func (b *capturingBus) SubscribersCount() int           { return 0 }

func (b *capturingBus) Events() []interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]interface{}(nil), b.events...)
}

type fixture struct {
	requests  *testhelpers.InMemoryRequestRepository
	offerings *testhelpers.InMemoryOfferingRepository
	pools     *testhelpers.InMemoryCapacityRepository
	wallet    *testhelpers.RecordingWallet
	outbox    *testhelpers.CollectingOutbox
	bus       *capturingBus
	clock     *clockwork.FakeClock
	log       *logrus.Logger

	admission    *AdmissionService
	transitions  *RequestService
	cancellation *CancellationService

	admin Actor
}

func newFixture() *fixture {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	f := &fixture{
		requests:  testhelpers.NewInMemoryRequestRepository(),
		offerings: testhelpers.NewInMemoryOfferingRepository(),
		pools:     testhelpers.NewInMemoryCapacityRepository(),
		wallet:    &testhelpers.RecordingWallet{},
		outbox:    &testhelpers.CollectingOutbox{},
		bus:       &capturingBus{},
		clock:     clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)),
		log:       log,
		admin:     Actor{ID: uuid.New(), Role: RoleAdmin},
	}
	f.admission = NewAdmissionService(f.requests, f.offerings, f.pools, f.bus, f.clock, f.log)
	f.transitions = NewRequestService(f.requests, f.outbox, f.clock)
	f.cancellation = NewCancellationService(f.requests, f.offerings, f.pools, f.wallet, f.outbox, f.clock, f.log, time.Second)
	return f
}

func feeOf(t testing.TB, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

type offeringOpts struct {
	domain        workflow.Domain
	published     bool
	deadline      time.Time
	capacityBound bool
	fee           decimal.Decimal
	channel       offering.PaymentChannel
}

func (f *fixture) addOffering(opts offeringOpts) offering.Offering {
	if opts.channel == "" {
		opts.channel = offering.ChannelWallet
	}
	o := offering.Hydrate(
		uuid.New(), "Spring Career Fair", opts.domain, opts.published,
		opts.deadline, opts.capacityBound, opts.fee, opts.channel, f.clock.Now(),
	)
	created, err := f.offerings.Create(context.Background(), o)
	if err != nil {
		panic(err)
	}
	return created
}

func (f *fixture) addPool(offeringID uuid.UUID, totalCapacity int) capacity.Pool {
	p := capacity.New(offeringID, totalCapacity, f.clock.Now())
	created, err := f.pools.Create(context.Background(), p)
	if err != nil {
		panic(err)
	}
	return created
}
