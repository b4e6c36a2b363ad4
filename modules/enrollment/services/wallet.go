package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletService credits a subject's internal wallet. Implementations live
// behind the payment boundary; a failed credit never blocks cancellation.
type WalletService interface {
	Credit(ctx context.Context, subjectID uuid.UUID, amount decimal.Decimal) error
}
