package offering

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (Offering, error)
	Create(ctx context.Context, o Offering) (Offering, error)
}
