package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/trogers1052/asset-allocation/internal/database"
	"github.com/trogers1052/asset-allocation/internal/models"
)

// DefaultRetentionDays is the gain-history window kept behind the as-of date being processed
const DefaultRetentionDays = 730

// Ledger is the transactional view the manager deletes through. *database.Tx implements it.
type Ledger interface {
	DeleteGainsOn(ctx context.Context, date time.Time) (int64, error)
	DeleteGainsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	PositionIDsForDate(ctx context.Context, asOf time.Time) ([]int, error)
	DeleteDecompositions(ctx context.Context, positionIDs []int) error
	DeletePositions(ctx context.Context, ids []int) error
}

// Store opens ledger transactions
type Store interface {
	WithTx(ctx context.Context, fn func(Ledger) error) error
}

type storeFunc func(ctx context.Context, fn func(Ledger) error) error

func (f storeFunc) WithTx(ctx context.Context, fn func(Ledger) error) error {
	return f(ctx, fn)
}

// StoreFunc adapts a concrete WithTx to a Store
func StoreFunc[L Ledger](withTx func(context.Context, func(L) error) error) Store {
	return storeFunc(func(ctx context.Context, fn func(Ledger) error) error {
		return withTx(ctx, func(l L) error { return fn(l) })
	})
}

// NewSQLStore returns a Store backed by PostgreSQL transactions
func NewSQLStore(db *database.DB) Store {
	return StoreFunc(db.WithTx)
}

// Publisher receives a notification after a date has been cleared. It may be nil.
type Publisher interface {
	PublishLedgerEvent(ctx context.Context, event models.LedgerEvent) error
}

// Result counts what DeleteAssetInfo removed
type Result struct {
	AsOfDate     time.Time
	Cutoff       time.Time
	GainsOnDate  int64
	GainsExpired int64
	Positions    int
}

// Manager clears a date's ledger rows and prunes expired gain history
type Manager struct {
	store         Store
	publisher     Publisher
	log           zerolog.Logger
	retentionDays int
}

// NewManager creates a retention manager. retentionDays <= 0 selects DefaultRetentionDays.
func NewManager(store Store, retentionDays int, publisher Publisher, log zerolog.Logger) *Manager {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Manager{
		store:         store,
		publisher:     publisher,
		log:           log.With().Str("component", "retention").Logger(),
		retentionDays: retentionDays,
	}
}

// Cutoff returns the oldest gain date kept when processing asOf.
// The window is anchored to asOf, not to the wall clock.
func (m *Manager) Cutoff(asOf time.Time) time.Time {
	return asOf.AddDate(0, 0, -m.retentionDays)
}

// DeleteAssetInfo removes the gain rows of asOf, gain rows older than the retention window
// and every position of asOf with its decompositions, all in one transaction.
func (m *Manager) DeleteAssetInfo(ctx context.Context, asOf time.Time) (*Result, error) {
	res := &Result{AsOfDate: asOf, Cutoff: m.Cutoff(asOf)}

	err := m.store.WithTx(ctx, func(l Ledger) error {
		var err error
		if res.GainsOnDate, err = l.DeleteGainsOn(ctx, asOf); err != nil {
			return err
		}
		if res.GainsExpired, err = l.DeleteGainsBefore(ctx, res.Cutoff); err != nil {
			return err
		}

		ids, err := l.PositionIDsForDate(ctx, asOf)
		if err != nil {
			return err
		}
		for _, id := range ids {
			one := []int{id}
			if err := l.DeleteDecompositions(ctx, one); err != nil {
				return fmt.Errorf("position %d: %w", id, err)
			}
			if err := l.DeletePositions(ctx, one); err != nil {
				return fmt.Errorf("position %d: %w", id, err)
			}
			res.Positions++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete asset info for %s: %w", asOf.Format(models.DateLayout), err)
	}

	m.log.Info().
		Str("as_of_date", asOf.Format(models.DateLayout)).
		Str("cutoff", res.Cutoff.Format(models.DateLayout)).
		Int64("gains_on_date", res.GainsOnDate).
		Int64("gains_expired", res.GainsExpired).
		Int("positions", res.Positions).
		Msg("Deleted asset info")

	if m.publisher != nil {
		event := models.LedgerEvent{
			EventType: models.EventAssetInfoDeleted,
			AsOfDate:  asOf.Format(models.DateLayout),
			Processed: res.Positions,
			Timestamp: time.Now().UTC(),
		}
		if err := m.publisher.PublishLedgerEvent(ctx, event); err != nil {
			m.log.Warn().Err(err).Msg("Failed to publish deletion event")
		}
	}
	return res, nil
}
