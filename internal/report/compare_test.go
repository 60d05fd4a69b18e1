package report

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

func amounts(kv ...string) map[string]decimal.Decimal {
	out := map[string]decimal.Decimal{}
	for i := 0; i < len(kv); i += 2 {
		out[kv[i]] = decimal.RequireFromString(kv[i+1])
	}
	return out
}

func TestCompare(t *testing.T) {
	earlier := amounts(
		"Fidelity_FXAIX", "1000",
		"Schwab_VTI", "200",
		"Vanguard_VMMXX", "50",
		"Etrade_Cash", "-40",
	)
	later := amounts(
		"Fidelity_FXAIX", "1100",
		"Vanguard_VMMXX", "50",
		"Etrade_Cash", "-20",
		"Robinhood_Stock", "75",
	)

	deltas := Compare(earlier, later)
	require.Len(t, deltas, 5)

	byKey := map[string]models.PeriodDelta{}
	var keys []string
	for _, d := range deltas {
		byKey[d.Key] = d
		keys = append(keys, d.Key)
	}
	assert.Equal(t, []string{"Etrade_Cash", "Fidelity_FXAIX", "Robinhood_Stock", "Schwab_VTI", "Vanguard_VMMXX"}, keys)

	fx := byKey["Fidelity_FXAIX"]
	assert.Equal(t, models.DeltaChanged, fx.Status)
	assert.True(t, decimal.NewFromInt(100).Equal(fx.Change))
	assert.True(t, decimal.NewFromInt(10).Equal(fx.ChangePct))

	assert.Equal(t, models.DeltaNew, byKey["Robinhood_Stock"].Status)
	assert.True(t, decimal.NewFromInt(100).Equal(byKey["Robinhood_Stock"].ChangePct))

	assert.Equal(t, models.DeltaClosed, byKey["Schwab_VTI"].Status)
	assert.True(t, decimal.NewFromInt(-100).Equal(byKey["Schwab_VTI"].ChangePct))

	assert.Equal(t, models.DeltaUnchanged, byKey["Vanguard_VMMXX"].Status)
	assert.True(t, byKey["Vanguard_VMMXX"].ChangePct.IsZero())

	cash := byKey["Etrade_Cash"]
	assert.Equal(t, models.DeltaChanged, cash.Status)
	assert.True(t, decimal.NewFromInt(50).Equal(cash.ChangePct), "negative base uses its magnitude")
}

func TestCompare_Rounding(t *testing.T) {
	deltas := Compare(amounts("A_X", "3"), amounts("A_X", "4"))
	require.Len(t, deltas, 1)
	assert.Equal(t, "33.33", deltas[0].ChangePct.StringFixed(2))
}

func TestCompare_ZeroBase(t *testing.T) {
	deltas := Compare(amounts("A_X", "0"), amounts("A_X", "10"))
	require.Len(t, deltas, 1)
	assert.Equal(t, models.DeltaNew, deltas[0].Status)
}

type stubSnapshots struct {
	snapshots map[string]map[string]decimal.Decimal
	err       error
}

func (s *stubSnapshots) HasPositionsOn(ctx context.Context, asOf time.Time) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	_, ok := s.snapshots[asOf.Format(models.DateLayout)]
	return ok, nil
}

func (s *stubSnapshots) PositionSnapshot(ctx context.Context, asOf time.Time) (map[string]decimal.Decimal, error) {
	return s.snapshots[asOf.Format(models.DateLayout)], nil
}

func TestComparePeriods(t *testing.T) {
	from := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 29, 0, 0, 0, 0, time.UTC)
	src := &stubSnapshots{snapshots: map[string]map[string]decimal.Decimal{
		"2024-02-29": amounts("Fidelity_FXAIX", "1000", "Schwab_VTI", "200"),
		"2024-03-29": amounts("Fidelity_FXAIX", "1100"),
	}}

	c, err := ComparePeriods(context.Background(), src, from, to)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1200).Equal(c.EarlierTotal))
	assert.True(t, decimal.NewFromInt(1100).Equal(c.LaterTotal))
	assert.Len(t, c.Deltas, 2)

	_, err = ComparePeriods(context.Background(), src, from, time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrNoData)
	assert.ErrorContains(t, err, "2024-04-30")

	src.err = errors.New("db down")
	_, err = ComparePeriods(context.Background(), src, from, to)
	assert.ErrorContains(t, err, "db down")
}
