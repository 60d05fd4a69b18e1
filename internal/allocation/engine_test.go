package allocation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/asset-allocation/internal/ledgertest"
	"github.com/trogers1052/asset-allocation/internal/models"
)

var asOf = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func rule(kind models.RuleKind, code1, code2, pct string) models.TemplateDetail {
	return models.TemplateDetail{Kind: kind, TargetCode1: code1, TargetCode2: code2, Percentage: dec(pct)}
}

func fxaixRules() []models.TemplateDetail {
	return []models.TemplateDetail{
		rule(models.KindAllocationClass, "Equity", "", "80"),
		rule(models.KindAllocationClass, "Bond", "", "20"),
	}
}

func newTestEngine(opts ...Option) (*Engine, *ledgertest.Memory) {
	mem := ledgertest.New()
	return NewEngine(StoreFunc(mem.WithTx), zerolog.Nop(), opts...), mem
}

func amountsByKey(rows []models.Decomposition) map[string]string {
	out := make(map[string]string, len(rows))
	for _, d := range rows {
		out[ledgertest.Key(d)] = d.Amount.StringFixed(2)
	}
	return out
}

func TestShare(t *testing.T) {
	tests := []struct {
		amount, pct, want string
	}{
		{"1000", "80", "800.00"},
		{"10.01", "33.33", "3.34"},
		{"20.02", "33.33", "6.67"},
		{"0.05", "50", "0.03"},
		{"-0.05", "50", "-0.03"},
		{"123.45", "0", "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.amount+"x"+tt.pct, func(t *testing.T) {
			assert.Equal(t, tt.want, Share(dec(tt.amount), dec(tt.pct)).StringFixed(2))
		})
	}
}

func TestAllocate_EndToEnd(t *testing.T) {
	engine, mem := newTestEngine()
	fxaix := mem.AddAsset("FXAIX", fxaixRules()...)

	p, err := engine.Allocate(context.Background(), fxaix.ID, asOf, dec("1000.00"))
	require.NoError(t, err)

	positions := mem.Positions(asOf)
	require.Len(t, positions, 1)
	assert.Equal(t, p.ID, positions[0].ID)
	assert.Equal(t, "1000.00", positions[0].Amount.StringFixed(2))

	assert.Equal(t, map[string]string{
		"alloc:Equity": "800.00",
		"alloc:Bond":   "200.00",
	}, amountsByKey(mem.Decompositions(p.ID)))
}

func TestAllocate_RoutesEveryKind(t *testing.T) {
	engine, mem := newTestEngine()
	asset := mem.AddAsset("MIX",
		rule(models.KindAllocationClass, "Equity", "", "100"),
		rule(models.KindSectorIndustry, "Technology", "Software", "60"),
		rule(models.KindSectorIndustry, "Health", "", "40"),
		rule(models.KindInterestBucket, "", "", "100"),
	)

	p, err := engine.Allocate(context.Background(), asset.ID, asOf, dec("250"))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"alloc:Equity":               "250.00",
		"secind:Technology:Software": "150.00",
		"secind:Health:0":            "100.00",
		"inter:0":                    "250.00",
	}, amountsByKey(mem.Decompositions(p.ID)))
}

func TestAllocate_NoRulesStillCreatesPosition(t *testing.T) {
	engine, mem := newTestEngine()
	asset := mem.AddAsset("BARE")

	p, err := engine.Allocate(context.Background(), asset.ID, asOf, dec("10"))
	require.NoError(t, err)

	assert.Len(t, mem.Positions(asOf), 1)
	assert.Empty(t, mem.Decompositions(p.ID))
}

func TestAllocate_FailureRollsBackPosition(t *testing.T) {
	engine, mem := newTestEngine()
	fxaix := mem.AddAsset("FXAIX", fxaixRules()...)

	storeErr := errors.New("connection reset")
	mem.Fail("InsertDecomposition", 1, storeErr)

	_, err := engine.Allocate(context.Background(), fxaix.ID, asOf, dec("1000"))
	require.Error(t, err)

	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "allocate", se.Op)
	assert.ErrorIs(t, err, storeErr)

	assert.Empty(t, mem.Positions(asOf))
	assert.Empty(t, mem.AllDecompositions())
	assert.Equal(t, 1, mem.Rollbacks())
}

func TestReallocate_ReplacesPriorAllocation(t *testing.T) {
	engine, mem := newTestEngine()
	fxaix := mem.AddAsset("FXAIX", fxaixRules()...)
	ctx := context.Background()

	first, err := engine.Allocate(ctx, fxaix.ID, asOf, dec("1000"))
	require.NoError(t, err)

	second, err := engine.Reallocate(ctx, fxaix.ID, asOf, dec("1500"))
	require.NoError(t, err)

	positions := mem.Positions(asOf)
	require.Len(t, positions, 1)
	assert.Equal(t, second.ID, positions[0].ID)
	assert.Equal(t, "1500.00", positions[0].Amount.StringFixed(2))
	assert.Empty(t, mem.Decompositions(first.ID))
	assert.Equal(t, map[string]string{
		"alloc:Equity": "1200.00",
		"alloc:Bond":   "300.00",
	}, amountsByKey(mem.Decompositions(second.ID)))
}

func TestReallocate_LeavesOtherAssetsAndDates(t *testing.T) {
	engine, mem := newTestEngine()
	fxaix := mem.AddAsset("FXAIX", fxaixRules()...)
	other := mem.AddAsset("VTSAX", rule(models.KindAllocationClass, "Equity", "", "100"))
	ctx := context.Background()
	nextDay := asOf.AddDate(0, 0, 1)

	_, err := engine.Allocate(ctx, fxaix.ID, nextDay, dec("1"))
	require.NoError(t, err)
	_, err = engine.Allocate(ctx, other.ID, asOf, dec("2"))
	require.NoError(t, err)

	_, err = engine.Reallocate(ctx, fxaix.ID, asOf, dec("3"))
	require.NoError(t, err)

	assert.Len(t, mem.Positions(asOf), 2)
	assert.Len(t, mem.Positions(nextDay), 1)
}

func TestReallocate_DeleteFailureRollsBackEverything(t *testing.T) {
	engine, mem := newTestEngine()
	fxaix := mem.AddAsset("FXAIX", fxaixRules()...)
	ctx := context.Background()

	first, err := engine.Allocate(ctx, fxaix.ID, asOf, dec("1000"))
	require.NoError(t, err)

	mem.Fail("DeletePositions", 0, errors.New("lock timeout"))
	_, err = engine.Reallocate(ctx, fxaix.ID, asOf, dec("1500"))
	require.Error(t, err)

	positions := mem.Positions(asOf)
	require.Len(t, positions, 1)
	assert.Equal(t, first.ID, positions[0].ID)
	assert.Len(t, mem.Decompositions(first.ID), 2)
}

func TestAllocateFromReference_MergeScenario(t *testing.T) {
	engine, mem := newTestEngine()
	fxaix := mem.AddAsset("FXAIX", fxaixRules()...)
	ctx := context.Background()

	outcome, err := engine.AllocateFromReference(ctx, fxaix.ID, asOf, dec("500"), "Fidelity")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)

	positions := mem.Positions(asOf)
	require.Len(t, positions, 1)
	assert.Equal(t, "500.00", positions[0].Amount.StringFixed(2))
	assert.Equal(t, map[string]string{
		"alloc:Equity": "400.00",
		"alloc:Bond":   "100.00",
	}, amountsByKey(mem.Decompositions(positions[0].ID)))

	outcome, err = engine.AllocateFromReference(ctx, fxaix.ID, asOf, dec("300"), "Fidelity")
	require.NoError(t, err)
	assert.Equal(t, OutcomeMerged, outcome)

	positions = mem.Positions(asOf)
	require.Len(t, positions, 1)
	assert.Equal(t, "800.00", positions[0].Amount.StringFixed(2))
	assert.Equal(t, map[string]string{
		"alloc:Equity": "640.00",
		"alloc:Bond":   "160.00",
	}, amountsByKey(mem.Decompositions(positions[0].ID)))
}

func TestAllocateFromReference_IdempotentResubmission(t *testing.T) {
	engine, mem := newTestEngine()
	fxaix := mem.AddAsset("FXAIX", fxaixRules()...)
	ctx := context.Background()

	_, err := engine.AllocateFromReference(ctx, fxaix.ID, asOf, dec("500"), "Fidelity")
	require.NoError(t, err)
	before := mem.Positions(asOf)
	beforeRows := amountsByKey(mem.Decompositions(before[0].ID))

	outcome, err := engine.AllocateFromReference(ctx, fxaix.ID, asOf, dec("500"), "Fidelity")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, outcome)

	after := mem.Positions(asOf)
	require.Len(t, after, 1)
	assert.True(t, before[0].Amount.Equal(after[0].Amount))
	assert.Equal(t, beforeRows, amountsByKey(mem.Decompositions(after[0].ID)))
}

func TestAllocateFromReference_AccumulatesPerCallRounding(t *testing.T) {
	engine, mem := newTestEngine()
	asset := mem.AddAsset("THIRDS",
		rule(models.KindAllocationClass, "A", "", "33.33"),
		rule(models.KindAllocationClass, "B", "", "33.33"),
		rule(models.KindAllocationClass, "C", "", "33.34"),
	)
	ctx := context.Background()
	x, y := dec("10.01"), dec("10.04")

	_, err := engine.AllocateFromReference(ctx, asset.ID, asOf, x, "Vanguard")
	require.NoError(t, err)
	_, err = engine.AllocateFromReference(ctx, asset.ID, asOf, y, "Vanguard")
	require.NoError(t, err)

	positions := mem.Positions(asOf)
	require.Len(t, positions, 1)
	assert.Equal(t, "20.05", positions[0].Amount.StringFixed(2))

	pct := dec("33.33")
	perCall := Share(x, pct).Add(Share(y, pct))
	combined := Share(x.Add(y), pct)
	require.False(t, perCall.Equal(combined), "test amounts must round differently")

	rows := amountsByKey(mem.Decompositions(positions[0].ID))
	assert.Equal(t, perCall.StringFixed(2), rows["alloc:A"])
	assert.NotEqual(t, combined.StringFixed(2), rows["alloc:A"])
}

func TestAllocateFromReference_ZeroAmountIsNoOp(t *testing.T) {
	engine, mem := newTestEngine()
	fxaix := mem.AddAsset("FXAIX", fxaixRules()...)

	outcome, err := engine.AllocateFromReference(context.Background(), fxaix.ID, asOf, decimal.Zero, "Fidelity")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)

	assert.Empty(t, mem.Positions(asOf))
	assert.Empty(t, mem.AllDecompositions())
	assert.Zero(t, mem.Commits()+mem.Rollbacks())
}

func TestAllocateFromReference_SubCentNoiseIsIdempotent(t *testing.T) {
	engine, mem := newTestEngine()
	fxaix := mem.AddAsset("FXAIX", fxaixRules()...)
	ctx := context.Background()

	outcome, err := engine.AllocateFromReference(ctx, fxaix.ID, asOf, dec("500.0000000001"), "Fidelity")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)

	outcome, err = engine.AllocateFromReference(ctx, fxaix.ID, asOf, dec("500.0000000001"), "Fidelity")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, outcome)

	positions := mem.Positions(asOf)
	require.Len(t, positions, 1)
	assert.Equal(t, "500.00", positions[0].Amount.StringFixed(2))
	assert.Equal(t, map[string]string{
		"alloc:Equity": "400.00",
		"alloc:Bond":   "100.00",
	}, amountsByKey(mem.Decompositions(positions[0].ID)))
}

func TestAllocateFromReference_SubCentAmountIsNoOp(t *testing.T) {
	engine, mem := newTestEngine()
	fxaix := mem.AddAsset("FXAIX", fxaixRules()...)

	for _, amount := range []string{"0.004", "-0.004"} {
		outcome, err := engine.AllocateFromReference(context.Background(), fxaix.ID, asOf, dec(amount), "Fidelity")
		require.NoError(t, err)
		assert.Equal(t, OutcomeSkipped, outcome, amount)
	}

	assert.Empty(t, mem.Positions(asOf))
	assert.Empty(t, mem.AllDecompositions())
	assert.Zero(t, mem.Commits()+mem.Rollbacks())
}

func TestAllocate_RoundsAmountToCents(t *testing.T) {
	engine, mem := newTestEngine()
	fxaix := mem.AddAsset("FXAIX", fxaixRules()...)
	ctx := context.Background()

	p, err := engine.Allocate(ctx, fxaix.ID, asOf, dec("99.995"))
	require.NoError(t, err)
	assert.Equal(t, "100.00", p.Amount.StringFixed(2))

	p, err = engine.Reallocate(ctx, fxaix.ID, asOf, dec("250.0049"))
	require.NoError(t, err)
	assert.True(t, p.Amount.Equal(dec("250")), p.Amount.String())
}

func TestParseIDStrategy(t *testing.T) {
	for in, want := range map[string]IDStrategy{
		"max_plus_one": IDMaxPlusOne,
		"auto":         IDAuto,
		" Auto ":       IDAuto,
	} {
		got, err := ParseIDStrategy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseIDStrategy("sequence")
	assert.ErrorContains(t, err, `unknown id strategy "sequence"`)
}

func TestWithIDStrategy_UnknownFallsBackToMaxPlusOne(t *testing.T) {
	engine, _ := newTestEngine(WithIDStrategy("sequence"))
	assert.Equal(t, IDMaxPlusOne, engine.idStrategy)
}

func TestAllocateFromReference_NoTemplateIsConfigurationError(t *testing.T) {
	engine, mem := newTestEngine()
	bare := mem.AddAsset("BARE")

	_, err := engine.AllocateFromReference(context.Background(), bare.ID, asOf, dec("100"), "Fidelity")
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, bare.ID, cfgErr.AssetID)
	assert.Contains(t, err.Error(), "no template for asset")

	assert.Empty(t, mem.Positions(asOf))
}

func TestAllocateFromReference_DistinctLocationsStaySeparate(t *testing.T) {
	engine, mem := newTestEngine()
	fxaix := mem.AddAsset("FXAIX", fxaixRules()...)
	ctx := context.Background()

	_, err := engine.AllocateFromReference(ctx, fxaix.ID, asOf, dec("100"), "Fidelity")
	require.NoError(t, err)
	_, err = engine.AllocateFromReference(ctx, fxaix.ID, asOf, dec("100"), "Schwab")
	require.NoError(t, err)

	assert.Len(t, mem.Positions(asOf), 2)
}

func TestAllocateFromReference_MergeInsertsMissingRuleRow(t *testing.T) {
	engine, mem := newTestEngine()
	ctx := context.Background()
	asset := mem.AddAsset("GROW", rule(models.KindAllocationClass, "Equity", "", "100"))

	_, err := engine.AllocateFromReference(ctx, asset.ID, asOf, dec("100"), "Fidelity")
	require.NoError(t, err)

	mem.SetRules(asset.ID,
		rule(models.KindAllocationClass, "Equity", "", "50"),
		rule(models.KindInterestBucket, "Short", "", "50"),
	)
	outcome, err := engine.AllocateFromReference(ctx, asset.ID, asOf, dec("40"), "Fidelity")
	require.NoError(t, err)
	assert.Equal(t, OutcomeMerged, outcome)

	positions := mem.Positions(asOf)
	require.Len(t, positions, 1)
	assert.Equal(t, "140.00", positions[0].Amount.StringFixed(2))
	assert.Equal(t, map[string]string{
		"alloc:Equity": "120.00",
		"inter:Short":  "20.00",
	}, amountsByKey(mem.Decompositions(positions[0].ID)))
}

func TestAllocateFromReference_IDStrategies(t *testing.T) {
	for _, strategy := range []IDStrategy{IDMaxPlusOne, IDAuto} {
		t.Run(string(strategy), func(t *testing.T) {
			engine, mem := newTestEngine(WithIDStrategy(strategy))
			fxaix := mem.AddAsset("FXAIX", fxaixRules()...)
			ctx := context.Background()

			_, err := engine.AllocateFromReference(ctx, fxaix.ID, asOf, dec("1"), "A")
			require.NoError(t, err)
			_, err = engine.AllocateFromReference(ctx, fxaix.ID, asOf, dec("1"), "B")
			require.NoError(t, err)

			positions := mem.Positions(asOf)
			require.Len(t, positions, 2)
			assert.Equal(t, 1, positions[0].ID)
			assert.Equal(t, 2, positions[1].ID)
		})
	}
}

func TestFanOutSumProperty(t *testing.T) {
	templates := [][]models.TemplateDetail{
		fxaixRules(),
		{
			rule(models.KindAllocationClass, "A", "", "33.33"),
			rule(models.KindAllocationClass, "B", "", "33.33"),
			rule(models.KindAllocationClass, "C", "", "33.34"),
		},
		{
			rule(models.KindSectorIndustry, "Tech", "Software", "12.5"),
			rule(models.KindSectorIndustry, "Tech", "Hardware", "12.5"),
			rule(models.KindSectorIndustry, "Energy", "", "17.17"),
			rule(models.KindSectorIndustry, "Health", "", "29.29"),
			rule(models.KindSectorIndustry, "Utilities", "", "28.54"),
		},
	}
	amounts := []string{"0.01", "0.07", "1", "99.99", "1000.00", "12345.67", "3.33", "-250.55"}

	for ti, rules := range templates {
		for _, a := range amounts {
			engine, mem := newTestEngine()
			asset := mem.AddAsset("T", rules...)
			amount := dec(a)

			p, err := engine.Allocate(context.Background(), asset.ID, asOf, amount)
			require.NoError(t, err)

			sum := decimal.Zero
			for _, d := range mem.Decompositions(p.ID) {
				sum = sum.Add(d.Amount)
			}
			tolerance := decimal.NewFromFloat(0.005).Mul(decimal.NewFromInt(int64(len(rules))))
			diff := sum.Sub(amount.Round(2)).Abs()
			assert.True(t, diff.LessThanOrEqual(tolerance),
				"template %d amount %s: decomposition sum %s drifted by %s", ti, a, sum, diff)
		}
	}
}

func TestErrorClassification(t *testing.T) {
	cause := errors.New("boom")

	assert.Nil(t, classify("op", nil))

	cfg := &ConfigurationError{AssetID: 3}
	assert.Same(t, cfg, classify("op", cfg))

	wrapped := classify("op", cause)
	var se *StoreError
	require.ErrorAs(t, wrapped, &se)
	assert.Equal(t, "op: boom", wrapped.Error())
	assert.Same(t, se, classify("outer", wrapped))

	assert.Equal(t, `asset not found for ticker "XYZ"`, (&NotFoundError{Ticker: "XYZ"}).Error())
}
