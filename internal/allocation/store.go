package allocation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/asset-allocation/internal/models"
)

// Ledger is the transactional view of the store the engine writes through.
// *database.Tx implements it.
type Ledger interface {
	TemplateDetailsForAsset(ctx context.Context, assetID int) ([]models.TemplateDetail, error)

	PositionIDsForAssetDate(ctx context.Context, assetID int, asOf time.Time) ([]int, error)
	FindPositionByKey(ctx context.Context, assetID int, asOf time.Time, heldAt string) (*models.AssetPosition, error)
	InsertPosition(ctx context.Context, p *models.AssetPosition) error
	InsertPositionNextID(ctx context.Context, p *models.AssetPosition) error
	AddToPositionAmount(ctx context.Context, id int, delta decimal.Decimal) error
	DeletePositions(ctx context.Context, ids []int) error

	InsertDecomposition(ctx context.Context, d *models.Decomposition) error
	AddToDecomposition(ctx context.Context, d *models.Decomposition) (bool, error)
	DeleteDecompositions(ctx context.Context, positionIDs []int) error

	Savepoint(ctx context.Context, name string) error
	RollbackTo(ctx context.Context, name string) error
	ReleaseSavepoint(ctx context.Context, name string) error
}

// Store opens ledger transactions. fn's writes are committed when it returns nil.
type Store interface {
	WithTx(ctx context.Context, fn func(Ledger) error) error
}

type storeFunc func(ctx context.Context, fn func(Ledger) error) error

func (f storeFunc) WithTx(ctx context.Context, fn func(Ledger) error) error {
	return f(ctx, fn)
}

// StoreFunc adapts a concrete WithTx, such as (*database.DB).WithTx, to a Store
func StoreFunc[L Ledger](withTx func(context.Context, func(L) error) error) Store {
	return storeFunc(func(ctx context.Context, fn func(Ledger) error) error {
		return withTx(ctx, func(l L) error { return fn(l) })
	})
}
