package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/trogers1052/asset-allocation/internal/gains"
	"github.com/trogers1052/asset-allocation/internal/models"
	"github.com/trogers1052/asset-allocation/internal/retention"
)

// GainCalculator computes gains as of a date. *gains.Calculator implements it.
type GainCalculator interface {
	Run(ctx context.Context, asOf time.Time) (*gains.Result, error)
}

// GainsJob calculates trailing gains as of the current day
type GainsJob struct {
	calc GainCalculator
	now  func() time.Time
}

// NewGainsJob creates the daily gain calculation job
func NewGainsJob(calc GainCalculator) *GainsJob {
	return &GainsJob{calc: calc, now: time.Now}
}

func (j *GainsJob) Name() string { return "gain_calculation" }

func (j *GainsJob) Run(ctx context.Context) error {
	_, err := j.calc.Run(ctx, models.TruncateDate(j.now()))
	return err
}

// PricePruner deletes cached closes. *database.DB implements it.
type PricePruner interface {
	DeletePriceDataOlderThan(ctx context.Context, date time.Time) (int64, error)
}

// PricePruneJob drops cached closes older than the retention window
type PricePruneJob struct {
	store         PricePruner
	retentionDays int
	now           func() time.Time
	log           zerolog.Logger
}

// NewPricePruneJob creates the price cache cleanup job. retentionDays <= 0 selects
// retention.DefaultRetentionDays.
func NewPricePruneJob(store PricePruner, retentionDays int, log zerolog.Logger) *PricePruneJob {
	if retentionDays <= 0 {
		retentionDays = retention.DefaultRetentionDays
	}
	return &PricePruneJob{store: store, retentionDays: retentionDays, now: time.Now, log: log}
}

func (j *PricePruneJob) Name() string { return "price_prune" }

func (j *PricePruneJob) Run(ctx context.Context) error {
	cutoff := models.TruncateDate(j.now()).AddDate(0, 0, -j.retentionDays)
	n, err := j.store.DeletePriceDataOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	j.log.Info().Int64("deleted", n).Str("cutoff", cutoff.Format(models.DateLayout)).Msg("Pruned cached prices")
	return nil
}
