package gains

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/asset-allocation/internal/models"
)

var hundred = decimal.NewFromInt(100)

// GainStore lists the tickers to price and stores their gains. *database.DB implements it.
type GainStore interface {
	GetBenchmarkTickers(ctx context.Context) ([]string, error)
	UpsertGainHistory(ctx context.Context, g *models.GainHistory) error
}

// Result summarizes one calculation run
type Result struct {
	AsOfDate   time.Time   `json:"as_of_date"`
	Dates      []time.Time `json:"dates"`
	Calculated int         `json:"calculated"`
	Skipped    int         `json:"skipped"`
	Failed     int         `json:"failed"`
}

// Calculator computes and stores trailing gains for every benchmark ticker
type Calculator struct {
	store    GainStore
	calendar *Calendar
	prices   PriceSource
	skip     map[string]bool
	log      zerolog.Logger
}

// NewCalculator creates a gain calculator. Tickers in skip are never priced.
func NewCalculator(store GainStore, calendar *Calendar, prices PriceSource, skip []string, log zerolog.Logger) *Calculator {
	skipSet := make(map[string]bool, len(skip))
	for _, t := range skip {
		skipSet[t] = true
	}
	return &Calculator{
		store:    store,
		calendar: calendar,
		prices:   prices,
		skip:     skipSet,
		log:      log.With().Str("component", "gains").Logger(),
	}
}

// Gain returns round((current - previous) / previous * 100, 2), or zero when either price is missing
func Gain(current, previous decimal.Decimal) decimal.Decimal {
	if current.IsZero() || previous.IsZero() {
		return decimal.Zero
	}
	return current.Sub(previous).Div(previous).Mul(hundred).Round(2)
}

// Compute builds the gain row for ticker from closes at dates (as-of date first, then one per window)
func Compute(ticker string, dates []time.Time, closes map[string]decimal.Decimal) *models.GainHistory {
	gains := make([]decimal.Decimal, len(WindowWeeks))
	current := closes[dates[0].Format(models.DateLayout)]
	for i := range gains {
		if i+1 < len(dates) {
			gains[i] = Gain(current, closes[dates[i+1].Format(models.DateLayout)])
		}
	}
	return &models.GainHistory{
		Ticker:     ticker,
		GainDate:   dates[0],
		OneWeek:    gains[0],
		TwoWeek:    gains[1],
		OneMonth:   gains[2],
		ThreeMonth: gains[3],
		SixMonth:   gains[4],
		OneYear:    gains[5],
	}
}

// Run prices every benchmark ticker as of asOf. Failures of single tickers are logged and counted.
func (c *Calculator) Run(ctx context.Context, asOf time.Time) (*Result, error) {
	dates, err := c.calendar.WindowDates(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to compute window dates: %w", err)
	}
	tickers, err := c.store.GetBenchmarkTickers(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{AsOfDate: dates[0], Dates: dates}
	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if c.skip[ticker] {
			res.Skipped++
			continue
		}
		if err := c.calculate(ctx, ticker, dates); err != nil {
			c.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to calculate gains")
			res.Failed++
			continue
		}
		res.Calculated++
	}

	c.log.Info().
		Str("as_of_date", dates[0].Format(models.DateLayout)).
		Int("calculated", res.Calculated).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("Gain calculation complete")
	return res, nil
}

func (c *Calculator) calculate(ctx context.Context, ticker string, dates []time.Time) error {
	closes, err := c.prices.Closes(ctx, ticker, dates)
	if err != nil {
		return err
	}
	return c.store.UpsertGainHistory(ctx, Compute(ticker, dates, closes))
}
