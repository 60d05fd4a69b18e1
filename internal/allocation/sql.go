package allocation

import "github.com/trogers1052/asset-allocation/internal/database"

// NewSQLStore returns a Store backed by PostgreSQL transactions
func NewSQLStore(db *database.DB) Store {
	return StoreFunc(db.WithTx)
}
