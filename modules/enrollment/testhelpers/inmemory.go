// Package testhelpers provides in-memory adapters for the enrollment
// repositories and collaborator ports. They honor the same concurrency
// contracts as the real adapters (version CAS, atomic reservation) so
// service and property tests exercise the production code paths.
package testhelpers

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/aggregates/capacity"
	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/aggregates/offering"
	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/aggregates/request"
	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/workflow"
	"github.com/alumnet-hq/alumnet/pkg/outbox"
)

type InMemoryRequestRepository struct {
	mu       sync.Mutex
	requests map[uuid.UUID]request.WorkflowRequest
}

func NewInMemoryRequestRepository() *InMemoryRequestRepository {
	return &InMemoryRequestRepository{requests: make(map[uuid.UUID]request.WorkflowRequest)}
}

func (r *InMemoryRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (request.WorkflowRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entity, ok := r.requests[id]
	if !ok {
		return request.WorkflowRequest{}, request.ErrNotFound
	}
	return entity, nil
}

func (r *InMemoryRequestRepository) GetPaginated(ctx context.Context, params *request.FindParams) ([]request.WorkflowRequest, int64, error) {
	if params == nil {
		params = &request.FindParams{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []request.WorkflowRequest
	for _, entity := range r.requests {
		if params.SubjectID != uuid.Nil && entity.SubjectID() != params.SubjectID {
			continue
		}
		if params.OfferingID != uuid.Nil && entity.OfferingID() != params.OfferingID {
			continue
		}
		if params.Domain != "" && entity.Domain() != params.Domain {
			continue
		}
		if params.Status != "" && entity.Status() != params.Status {
			continue
		}
		out = append(out, entity)
	}
	return out, int64(len(out)), nil
}

func (r *InMemoryRequestRepository) ExistsActive(ctx context.Context, subjectID, offeringID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entity := range r.requests {
		if entity.SubjectID() != subjectID || entity.OfferingID() != offeringID {
			continue
		}
		table, err := workflow.TableFor(entity.Domain())
		if err != nil {
			return false, err
		}
		if !table.Terminal(entity.Status()) {
			return true, nil
		}
	}
	return false, nil
}

func (r *InMemoryRequestRepository) Create(ctx context.Context, entity request.WorkflowRequest) (request.WorkflowRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Same backstop as the partial unique index in Postgres: the insert
	// itself refuses a second active request for the pair.
	for _, existing := range r.requests {
		if existing.SubjectID() != entity.SubjectID() || existing.OfferingID() != entity.OfferingID() {
			continue
		}
		table, err := workflow.TableFor(existing.Domain())
		if err != nil {
			return request.WorkflowRequest{}, err
		}
		if !table.Terminal(existing.Status()) {
			return request.WorkflowRequest{}, request.ErrDuplicateActive
		}
	}

	r.requests[entity.ID()] = entity
	return entity, nil
}

func (r *InMemoryRequestRepository) Update(ctx context.Context, entity request.WorkflowRequest) (request.WorkflowRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.requests[entity.ID()]
	if !ok {
		return request.WorkflowRequest{}, request.ErrNotFound
	}
	if stored.Version() != entity.Version() {
		return request.WorkflowRequest{}, request.ErrConcurrencyConflict
	}

	saved := request.Hydrate(
		entity.ID(),
		entity.SubjectID(),
		entity.OfferingID(),
		entity.SlotID(),
		entity.Domain(),
		entity.Status(),
		entity.PaymentState(),
		entity.Delivery(),
		entity.Amount(),
		entity.AdminNotes(),
		entity.RejectionReason(),
		entity.Version()+1,
		entity.CreatedAt(),
		entity.LastTransitionAt(),
	)
	r.requests[entity.ID()] = saved
	return saved, nil
}

type poolState struct {
	pool capacity.Pool
}

type InMemoryCapacityRepository struct {
	mu    sync.Mutex
	pools map[uuid.UUID]*poolState
}

func NewInMemoryCapacityRepository() *InMemoryCapacityRepository {
	return &InMemoryCapacityRepository{pools: make(map[uuid.UUID]*poolState)}
}

func (r *InMemoryCapacityRepository) GetBySlotID(ctx context.Context, slotID uuid.UUID) (capacity.Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.pools[slotID]
	if !ok {
		return capacity.Pool{}, capacity.ErrPoolNotFound
	}
	return state.pool, nil
}

func (r *InMemoryCapacityRepository) Create(ctx context.Context, p capacity.Pool) (capacity.Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools[p.SlotID()] = &poolState{pool: p}
	return p, nil
}

func (r *InMemoryCapacityRepository) TryReserve(ctx context.Context, slotID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.pools[slotID]
	if !ok {
		return false, capacity.ErrPoolNotFound
	}
	p := state.pool
	if p.Reserved() >= p.TotalCapacity() {
		return false, nil
	}
	state.pool = capacity.Hydrate(p.SlotID(), p.OfferingID(), p.TotalCapacity(), p.Reserved()+1, p.Version()+1, p.CreatedAt())
	return true, nil
}

func (r *InMemoryCapacityRepository) Release(ctx context.Context, slotID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.pools[slotID]
	if !ok {
		return capacity.ErrPoolNotFound
	}
	p := state.pool
	reserved := p.Reserved() - 1
	if reserved < 0 {
		reserved = 0
	}
	state.pool = capacity.Hydrate(p.SlotID(), p.OfferingID(), p.TotalCapacity(), reserved, p.Version()+1, p.CreatedAt())
	return nil
}

type InMemoryOfferingRepository struct {
	mu        sync.Mutex
	offerings map[uuid.UUID]offering.Offering
}

func NewInMemoryOfferingRepository() *InMemoryOfferingRepository {
	return &InMemoryOfferingRepository{offerings: make(map[uuid.UUID]offering.Offering)}
}

func (r *InMemoryOfferingRepository) GetByID(ctx context.Context, id uuid.UUID) (offering.Offering, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.offerings[id]
	if !ok {
		return offering.Offering{}, offering.ErrNotFound
	}
	return o, nil
}

func (r *InMemoryOfferingRepository) Create(ctx context.Context, o offering.Offering) (offering.Offering, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offerings[o.ID()] = o
	return o, nil
}

// RecordingWallet fails with Err when set and records successful credits.
type RecordingWallet struct {
	mu      sync.Mutex
	Err     error
	credits []decimal.Decimal
}

func (w *RecordingWallet) Credit(ctx context.Context, subjectID uuid.UUID, amount decimal.Decimal) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.Err != nil {
		return w.Err
	}
	w.credits = append(w.credits, amount)
	return nil
}

func (w *RecordingWallet) Credits() []decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]decimal.Decimal(nil), w.credits...)
}

// CollectingOutbox stores enqueued messages instead of writing them to
// Postgres.
type CollectingOutbox struct {
	mu       sync.Mutex
	messages []outbox.Message
}

func (c *CollectingOutbox) Enqueue(ctx context.Context, msg outbox.Message) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	return int64(len(c.messages)), nil
}

func (c *CollectingOutbox) Messages() []outbox.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]outbox.Message(nil), c.messages...)
}
