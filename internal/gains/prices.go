package gains

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/asset-allocation/internal/models"
)

// Fetcher downloads price history. *Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, ticker string, from, to time.Time) ([]*models.PriceDataDaily, error)
}

// PriceStore persists daily closes. *database.DB implements it.
type PriceStore interface {
	GetClosePrices(ctx context.Context, symbol string, from, to time.Time) ([]*models.PriceDataDaily, error)
	UpsertClosePrices(ctx context.Context, prices []*models.PriceDataDaily) error
}

// PriceSource returns closing prices keyed by YYYY-MM-DD for the requested dates.
// Dates without a close are absent from the map.
type PriceSource interface {
	Closes(ctx context.Context, ticker string, dates []time.Time) (map[string]decimal.Decimal, error)
}

// CachedPrices serves closes from the store and fetches the whole span only when a date is missing
type CachedPrices struct {
	store   PriceStore
	fetcher Fetcher
	log     zerolog.Logger
}

// NewCachedPrices creates a store-backed price source
func NewCachedPrices(store PriceStore, fetcher Fetcher, log zerolog.Logger) *CachedPrices {
	return &CachedPrices{
		store:   store,
		fetcher: fetcher,
		log:     log.With().Str("component", "prices").Logger(),
	}
}

// Closes implements PriceSource
func (p *CachedPrices) Closes(ctx context.Context, ticker string, dates []time.Time) (map[string]decimal.Decimal, error) {
	if len(dates) == 0 {
		return map[string]decimal.Decimal{}, nil
	}
	from, to := span(dates)

	stored, err := p.store.GetClosePrices(ctx, ticker, from, to)
	if err != nil {
		return nil, err
	}
	closes := pick(stored, dates)
	if len(closes) == len(uniqueDays(dates)) {
		return closes, nil
	}

	fetched, err := p.fetcher.Fetch(ctx, ticker, from, to)
	if err != nil {
		return nil, err
	}
	if err := p.store.UpsertClosePrices(ctx, fetched); err != nil {
		return nil, fmt.Errorf("failed to cache prices for %s: %w", ticker, err)
	}
	p.log.Debug().Str("ticker", ticker).Int("prices", len(fetched)).Msg("Cached price history")

	return pick(fetched, dates), nil
}

func span(dates []time.Time) (time.Time, time.Time) {
	from, to := dates[0], dates[0]
	for _, d := range dates[1:] {
		if d.Before(from) {
			from = d
		}
		if d.After(to) {
			to = d
		}
	}
	return models.TruncateDate(from), models.TruncateDate(to)
}

func uniqueDays(dates []time.Time) map[string]bool {
	days := make(map[string]bool, len(dates))
	for _, d := range dates {
		days[d.Format(models.DateLayout)] = true
	}
	return days
}

func pick(prices []*models.PriceDataDaily, dates []time.Time) map[string]decimal.Decimal {
	want := uniqueDays(dates)
	out := make(map[string]decimal.Decimal, len(want))
	for _, p := range prices {
		key := p.Date.Format(models.DateLayout)
		if want[key] {
			out[key] = p.Close
		}
	}
	return out
}
