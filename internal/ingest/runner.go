package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/asset-allocation/internal/allocation"
	"github.com/trogers1052/asset-allocation/internal/database"
	"github.com/trogers1052/asset-allocation/internal/lock"
	"github.com/trogers1052/asset-allocation/internal/models"
	"github.com/trogers1052/asset-allocation/internal/retention"
)

// AssetResolver maps a reference-sheet ticker to an asset
type AssetResolver interface {
	GetAssetByTicker(ctx context.Context, ticker string) (*models.Asset, error)
}

// Allocator is the part of the allocation engine the runner drives.
// *allocation.Engine implements it.
type Allocator interface {
	AllocateFromReference(ctx context.Context, assetID int, asOf time.Time, amount decimal.Decimal, heldAt string) (allocation.Outcome, error)
	Batch(ctx context.Context, fn func(*allocation.Batch) error) error
}

// Deleter clears a date's ledger before a replacing run. *retention.Manager implements it.
type Deleter interface {
	DeleteAssetInfo(ctx context.Context, asOf time.Time) (*retention.Result, error)
}

// Publisher announces finished runs
type Publisher interface {
	PublishLedgerEvent(ctx context.Context, event models.LedgerEvent) error
}

type allocateFunc func(ctx context.Context, assetID int, asOf time.Time, amount decimal.Decimal, heldAt string) (allocation.Outcome, error)

// Options controls one run
type Options struct {
	AsOfDate time.Time
	// ReplaceExisting deletes the date's ledger before allocating
	ReplaceExisting bool
	// Atomic runs every row in one transaction with a savepoint per row
	Atomic bool
}

// Failure records one row that was not allocated
type Failure struct {
	Row    int    `json:"row"`
	Ticker string `json:"ticker"`
	HeldAt string `json:"held_at,omitempty"`
	Error  string `json:"error"`
}

// Summary reports the outcome of a run
type Summary struct {
	RunID     string            `json:"run_id"`
	AsOfDate  string            `json:"as_of_date"`
	Processed int               `json:"processed"`
	Errors    int               `json:"errors"`
	Created   int               `json:"created"`
	Merged    int               `json:"merged"`
	Unchanged int               `json:"unchanged"`
	Deleted   *retention.Result `json:"deleted,omitempty"`
	Failures  []Failure         `json:"failures,omitempty"`
}

// Runner feeds normalized reference rows to the allocation engine
type Runner struct {
	assets    AssetResolver
	allocator Allocator
	deleter   Deleter
	locker    lock.Locker
	publisher Publisher
	log       zerolog.Logger
}

// NewRunner creates a runner. deleter and publisher may be nil; a nil locker means no locking.
func NewRunner(assets AssetResolver, allocator Allocator, deleter Deleter, locker lock.Locker, publisher Publisher, log zerolog.Logger) *Runner {
	if locker == nil {
		locker = lock.Noop{}
	}
	return &Runner{
		assets:    assets,
		allocator: allocator,
		deleter:   deleter,
		locker:    locker,
		publisher: publisher,
		log:       log.With().Str("component", "ingest").Logger(),
	}
}

// Run normalizes rows and allocates each holding on opts.AsOfDate.
// Row failures are counted in the summary; the returned error is reserved for failures of the run itself.
func (r *Runner) Run(ctx context.Context, rows []RawRow, opts Options) (*Summary, error) {
	asOf := models.TruncateDate(opts.AsOfDate)
	date := asOf.Format(models.DateLayout)
	summary := &Summary{RunID: uuid.New().String(), AsOfDate: date}
	log := r.log.With().Str("run_id", summary.RunID).Str("as_of_date", date).Logger()

	unlock, err := r.locker.Lock(ctx, "run:"+date)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := unlock(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Failed to release run lock")
		}
	}()

	if opts.ReplaceExisting {
		if r.deleter == nil {
			return nil, errors.New("replace requested but no deleter configured")
		}
		deleted, err := r.deleter.DeleteAssetInfo(ctx, asOf)
		if err != nil {
			return nil, fmt.Errorf("failed to clear %s before run: %w", date, err)
		}
		summary.Deleted = deleted
	}

	holdings, rowErrs := Normalize(rows, log)
	for _, re := range rowErrs {
		log.Error().Err(re.Err).Str("ticker", re.Ticker).Int("row", re.Row).Msg("Unreadable row")
		summary.fail(re.Row, re.Ticker, "", re.Err)
	}

	log.Info().
		Int("rows", len(rows)).
		Int("holdings", len(holdings)).
		Bool("atomic", opts.Atomic).
		Msg("Starting allocation run")

	if opts.Atomic {
		err = r.allocator.Batch(ctx, func(b *allocation.Batch) error {
			for _, h := range holdings {
				r.process(ctx, log, h, asOf, b.AllocateFromReference, summary)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to commit batch for %s: %w", date, err)
		}
	} else {
		for _, h := range holdings {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			r.process(ctx, log, h, asOf, r.allocator.AllocateFromReference, summary)
		}
	}

	log.Info().
		Int("processed", summary.Processed).
		Int("errors", summary.Errors).
		Int("created", summary.Created).
		Int("merged", summary.Merged).
		Msg("Allocation run complete")

	if r.publisher != nil {
		event := models.LedgerEvent{
			EventType: models.EventAllocationCompleted,
			RunID:     summary.RunID,
			AsOfDate:  date,
			Processed: summary.Processed,
			Errors:    summary.Errors,
			Timestamp: time.Now().UTC(),
		}
		if err := r.publisher.PublishLedgerEvent(ctx, event); err != nil {
			log.Warn().Err(err).Msg("Failed to publish allocation event")
		}
	}
	return summary, nil
}

func (r *Runner) process(ctx context.Context, log zerolog.Logger, h models.Holding, asOf time.Time, allocate allocateFunc, summary *Summary) {
	asset, err := r.assets.GetAssetByTicker(ctx, h.Ticker)
	if errors.Is(err, database.ErrNotFound) {
		err = &allocation.NotFoundError{Ticker: h.Ticker}
	}
	if err != nil {
		log.Error().Err(err).Str("ticker", h.Ticker).Str("held_at", h.HeldAt).Int("row", h.Row).Msg("Failed to resolve asset")
		summary.fail(h.Row, h.Ticker, h.HeldAt, err)
		return
	}

	outcome, err := allocate(ctx, asset.ID, asOf, h.Amount, h.HeldAt)
	if err != nil {
		log.Error().Err(err).Str("ticker", h.Ticker).Str("held_at", h.HeldAt).Int("row", h.Row).Msg("Failed to allocate row")
		summary.fail(h.Row, h.Ticker, h.HeldAt, err)
		return
	}

	switch outcome {
	case allocation.OutcomeCreated:
		summary.Created++
	case allocation.OutcomeMerged:
		summary.Merged++
	case allocation.OutcomeUnchanged:
		summary.Unchanged++
	}
	summary.Processed++
}

func (s *Summary) fail(row int, ticker, heldAt string, err error) {
	s.Errors++
	s.Failures = append(s.Failures, Failure{Row: row, Ticker: ticker, HeldAt: heldAt, Error: err.Error()})
}

// RowsFromEvent converts a holdings snapshot event into runner input
func RowsFromEvent(event models.HoldingsEvent) ([]RawRow, Options, error) {
	asOf, err := models.ParseDate(event.Data.AsOfDate)
	if err != nil {
		return nil, Options{}, err
	}
	rows := make([]RawRow, 0, len(event.Data.Rows))
	for i, h := range event.Data.Rows {
		rows = append(rows, RawRow{Ticker: h.Ticker, Amount: h.Amount, HeldAt: h.HeldAt, Row: i + 1})
	}
	return rows, Options{AsOfDate: asOf, ReplaceExisting: event.Data.ReplaceExisting}, nil
}
