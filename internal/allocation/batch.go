package allocation

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Batch shares one ledger transaction across many reference rows.
// Each row runs under its own savepoint, so a failed row leaves the others intact.
type Batch struct {
	engine *Engine
	ledger Ledger
	seq    int
}

// Batch runs fn inside a single transaction, committed when fn returns nil
func (e *Engine) Batch(ctx context.Context, fn func(*Batch) error) error {
	err := e.store.WithTx(ctx, func(l Ledger) error {
		return fn(&Batch{engine: e, ledger: l})
	})
	return classify("batch", err)
}

// AllocateFromReference behaves like Engine.AllocateFromReference inside the batch transaction
func (b *Batch) AllocateFromReference(ctx context.Context, assetID int, asOf time.Time, amount decimal.Decimal, heldAt string) (Outcome, error) {
	amount = cents(amount)
	if amount.IsZero() {
		return OutcomeSkipped, nil
	}

	b.seq++
	savepoint := fmt.Sprintf("reference_row_%d", b.seq)
	if err := b.ledger.Savepoint(ctx, savepoint); err != nil {
		return OutcomeSkipped, classify("allocate from reference", err)
	}

	outcome, err := b.engine.allocateFromReference(ctx, b.ledger, assetID, asOf, amount, heldAt)
	if err != nil {
		if rbErr := b.ledger.RollbackTo(ctx, savepoint); rbErr != nil {
			return OutcomeSkipped, classify("allocate from reference", fmt.Errorf("%w (rollback to savepoint failed: %v)", err, rbErr))
		}
		return OutcomeSkipped, classify("allocate from reference", err)
	}

	if err := b.ledger.ReleaseSavepoint(ctx, savepoint); err != nil {
		return OutcomeSkipped, classify("allocate from reference", err)
	}
	return outcome, nil
}
