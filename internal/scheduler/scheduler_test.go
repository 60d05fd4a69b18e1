package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/asset-allocation/internal/gains"
)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

func TestScheduler_RunsJobs(t *testing.T) {
	s := New(context.Background(), zerolog.Nop())
	ok := &countingJob{}
	failing := &countingJob{err: errors.New("boom")}

	require.NoError(t, s.AddJob("@every 1s", ok))
	require.NoError(t, s.AddJob("@every 1s", failing))

	s.Start()
	assert.Eventually(t, func() bool {
		return ok.runs.Load() >= 1 && failing.runs.Load() >= 1
	}, 3*time.Second, 50*time.Millisecond)
	s.Stop()
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	s := New(context.Background(), zerolog.Nop())
	assert.Error(t, s.AddJob("0 18 * * MON-FRI", &countingJob{}), "five fields are rejected when seconds are enabled")
	assert.Error(t, s.AddJob("not a schedule", &countingJob{}))
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(context.Background(), zerolog.Nop())
	job := &countingJob{err: errors.New("boom")}

	assert.EqualError(t, s.RunNow(job), "boom")
	assert.Equal(t, int32(1), job.runs.Load())
}

type stubCalculator struct {
	asOf time.Time
}

func (c *stubCalculator) Run(ctx context.Context, asOf time.Time) (*gains.Result, error) {
	c.asOf = asOf
	return &gains.Result{AsOfDate: asOf}, nil
}

func TestGainsJob(t *testing.T) {
	calc := &stubCalculator{}
	job := NewGainsJob(calc)
	job.now = func() time.Time { return time.Date(2024, 4, 5, 18, 0, 3, 0, time.UTC) }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, time.Date(2024, 4, 5, 0, 0, 0, 0, time.UTC), calc.asOf)
	assert.Equal(t, "gain_calculation", job.Name())
}

type stubPruner struct {
	cutoff time.Time
	err    error
}

func (p *stubPruner) DeletePriceDataOlderThan(ctx context.Context, date time.Time) (int64, error) {
	p.cutoff = date
	return 12, p.err
}

func TestPricePruneJob(t *testing.T) {
	pruner := &stubPruner{}
	job := NewPricePruneJob(pruner, 730, zerolog.Nop())
	job.now = func() time.Time { return time.Date(2024, 4, 5, 1, 0, 0, 0, time.UTC) }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, time.Date(2022, 4, 6, 0, 0, 0, 0, time.UTC), pruner.cutoff)

	pruner.err = errors.New("db down")
	assert.Error(t, job.Run(context.Background()))
}

func TestPricePruneJob_NonPositiveWindowUsesDefault(t *testing.T) {
	for _, days := range []int{0, -30} {
		pruner := &stubPruner{}
		job := NewPricePruneJob(pruner, days, zerolog.Nop())
		job.now = func() time.Time { return time.Date(2024, 4, 5, 1, 0, 0, 0, time.UTC) }

		require.NoError(t, job.Run(context.Background()))
		assert.Equal(t, time.Date(2022, 4, 6, 0, 0, 0, 0, time.UTC), pruner.cutoff, "days=%d", days)
	}
}
