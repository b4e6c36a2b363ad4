package request

import (
	"context"

	"github.com/google/uuid"

	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/workflow"
)

type FindParams struct {
	SubjectID  uuid.UUID
	OfferingID uuid.UUID
	Domain     workflow.Domain
	Status     workflow.State
	Limit      int
	Offset     int
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (WorkflowRequest, error)
	GetPaginated(ctx context.Context, params *FindParams) ([]WorkflowRequest, int64, error)
	// ExistsActive reports whether the subject already holds a non-terminal
	// request for the offering.
	ExistsActive(ctx context.Context, subjectID, offeringID uuid.UUID) (bool, error)
	Create(ctx context.Context, r WorkflowRequest) (WorkflowRequest, error)
	// Update persists r guarded by its version; a stale version fails with
	// ErrConcurrencyConflict and leaves the row untouched.
	Update(ctx context.Context, r WorkflowRequest) (WorkflowRequest, error)
}
