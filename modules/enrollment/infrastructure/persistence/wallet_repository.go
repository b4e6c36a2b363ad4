package persistence

import (
	"context"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alumnet-hq/alumnet/modules/enrollment/services"
	"github.com/alumnet-hq/alumnet/pkg/composables"
)

type PgWalletService struct{}

// NewWalletService returns a wallet backed by the append-only ledger table.
// A subject's balance is the sum of their ledger rows.
func NewWalletService() services.WalletService {
	return &PgWalletService{}
}

func (s *PgWalletService) Credit(ctx context.Context, subjectID uuid.UUID, amount decimal.Decimal) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO wallet_ledger (subject_id, amount, entry_type)
		 VALUES ($1, $2, 'refund_credit')`,
		pgUUID(subjectID), amount.String(),
	)
	if err != nil {
		return gerrors.Wrap(err, "credit wallet")
	}
	return nil
}
