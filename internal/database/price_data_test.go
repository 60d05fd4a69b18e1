package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/asset-allocation/internal/models"
)

func TestPriceDataRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)

	ctx := context.Background()
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	t.Run("UpsertClosePrices upserts on conflict", func(t *testing.T) {
		testDB.TruncateAll(t)

		err := testDB.UpsertClosePrices(ctx, []*models.PriceDataDaily{
			{Symbol: "FXAIX", Date: date, Close: decimal.NewFromFloat(170.25)},
		})
		require.NoError(t, err)

		err = testDB.UpsertClosePrices(ctx, []*models.PriceDataDaily{
			{Symbol: "FXAIX", Date: date, Close: decimal.NewFromFloat(171.5)},
		})
		require.NoError(t, err)

		retrieved, err := testDB.GetClosePrice(ctx, "FXAIX", date)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromFloat(171.5).Equal(retrieved.Close))
	})

	t.Run("GetClosePrice reports not found", func(t *testing.T) {
		testDB.TruncateAll(t)

		_, err := testDB.GetClosePrice(ctx, "NOPE", date)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("GetClosePrices returns range oldest first", func(t *testing.T) {
		testDB.TruncateAll(t)

		prices := []*models.PriceDataDaily{
			{Symbol: "FXAIX", Date: date.AddDate(0, 0, 2), Close: decimal.NewFromInt(3)},
			{Symbol: "FXAIX", Date: date, Close: decimal.NewFromInt(1)},
			{Symbol: "FXAIX", Date: date.AddDate(0, 0, 1), Close: decimal.NewFromInt(2)},
			{Symbol: "VTSAX", Date: date, Close: decimal.NewFromInt(9)},
		}
		require.NoError(t, testDB.UpsertClosePrices(ctx, prices))

		got, err := testDB.GetClosePrices(ctx, "FXAIX", date, date.AddDate(0, 0, 1))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.True(t, got[0].Date.Equal(date))
		assert.True(t, decimal.NewFromInt(2).Equal(got[1].Close))
	})

	t.Run("DeletePriceDataOlderThan", func(t *testing.T) {
		testDB.TruncateAll(t)

		require.NoError(t, testDB.UpsertClosePrices(ctx, []*models.PriceDataDaily{
			{Symbol: "FXAIX", Date: date.AddDate(-3, 0, 0), Close: decimal.NewFromInt(1)},
			{Symbol: "FXAIX", Date: date, Close: decimal.NewFromInt(1)},
		}))

		deleted, err := testDB.DeletePriceDataOlderThan(ctx, date.AddDate(-1, 0, 0))
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)
	})
}

func TestGainsAndHolidays(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)

	ctx := context.Background()
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	t.Run("UpsertGainHistory replaces same ticker and date", func(t *testing.T) {
		testDB.TruncateAll(t)

		g := &models.GainHistory{Ticker: "FXAIX", GainDate: date, OneWeek: decimal.NewFromFloat(1.5)}
		require.NoError(t, testDB.UpsertGainHistory(ctx, g))
		g.OneWeek = decimal.NewFromFloat(2.25)
		require.NoError(t, testDB.UpsertGainHistory(ctx, g))

		gains, err := testDB.GetGainHistory(ctx, date)
		require.NoError(t, err)
		require.Len(t, gains, 1)
		assert.True(t, decimal.NewFromFloat(2.25).Equal(gains[0].OneWeek))
	})

	t.Run("holidays", func(t *testing.T) {
		testDB.TruncateAll(t)

		require.NoError(t, testDB.CreateHoliday(ctx, date, "MLK Day"))
		holiday, err := testDB.IsHoliday(ctx, date)
		require.NoError(t, err)
		assert.True(t, holiday)

		holiday, err = testDB.IsHoliday(ctx, date.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.False(t, holiday)

		dates, err := testDB.GetHolidays(ctx, date.AddDate(0, 0, -7), date)
		require.NoError(t, err)
		require.Len(t, dates, 1)
		assert.True(t, dates[0].Equal(date))
	})
}
