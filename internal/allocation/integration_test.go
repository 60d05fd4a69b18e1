package allocation

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/trogers1052/asset-allocation/internal/database"
	"github.com/trogers1052/asset-allocation/internal/models"
)

func setupPostgres(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Errorf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.New(connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, filename, _, _ := runtime.Caller(0)
	require.NoError(t, db.Migrate(filepath.Join(filepath.Dir(filename), "..", "..", "db", "migrations")))
	return db
}

func TestEngineAgainstPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupPostgres(t)
	ctx := context.Background()
	engine := NewEngine(NewSQLStore(db), zerolog.Nop())

	templateID, err := db.CreateTemplate(ctx, "FXAIX 80/20")
	require.NoError(t, err)
	require.NoError(t, db.ReplaceTemplateDetails(ctx, templateID, fxaixRules()))
	fxaix := &models.Asset{Ticker: "FXAIX", DisplayName: "Fidelity 500 Index", TemplateID: templateID}
	require.NoError(t, db.CreateAsset(ctx, fxaix))

	t.Run("reference merge accumulates", func(t *testing.T) {
		_, err := engine.AllocateFromReference(ctx, fxaix.ID, asOf, decimal.NewFromInt(500), "Fidelity")
		require.NoError(t, err)
		outcome, err := engine.AllocateFromReference(ctx, fxaix.ID, asOf, decimal.NewFromInt(300), "Fidelity")
		require.NoError(t, err)
		assert.Equal(t, OutcomeMerged, outcome)

		positions, err := db.GetPositionsByDate(ctx, asOf)
		require.NoError(t, err)
		require.Len(t, positions, 1)
		assert.Equal(t, "800.00", positions[0].Amount.StringFixed(2))
		assert.Equal(t, map[string]string{
			"alloc:Equity": "640.00",
			"alloc:Bond":   "160.00",
		}, amountsByKey(positions[0].Decompositions))
	})

	t.Run("batch rows survive a failed row", func(t *testing.T) {
		bare := &models.Asset{Ticker: "BARE", DisplayName: "No template"}
		require.NoError(t, db.CreateAsset(ctx, bare))
		day := asOf.AddDate(0, 0, 1)

		err := engine.Batch(ctx, func(b *Batch) error {
			_, err := b.AllocateFromReference(ctx, fxaix.ID, day, decimal.NewFromInt(100), "Schwab")
			require.NoError(t, err)
			_, err = b.AllocateFromReference(ctx, bare.ID, day, decimal.NewFromInt(100), "Schwab")
			require.Error(t, err)
			_, err = b.AllocateFromReference(ctx, fxaix.ID, day, decimal.NewFromInt(50), "Schwab")
			require.NoError(t, err)
			return nil
		})
		require.NoError(t, err)

		positions, err := db.GetPositionsByDate(ctx, day)
		require.NoError(t, err)
		require.Len(t, positions, 1)
		assert.Equal(t, "150.00", positions[0].Amount.StringFixed(2))
	})

	t.Run("reallocate replaces every position of the asset and date", func(t *testing.T) {
		day := asOf.AddDate(0, 0, 2)
		_, err := engine.Allocate(ctx, fxaix.ID, day, decimal.NewFromInt(1000))
		require.NoError(t, err)
		_, err = engine.Allocate(ctx, fxaix.ID, day, decimal.NewFromInt(1000))
		require.NoError(t, err)

		p, err := engine.Reallocate(ctx, fxaix.ID, day, decimal.NewFromInt(1200))
		require.NoError(t, err)

		positions, err := db.GetPositionsByDate(ctx, day)
		require.NoError(t, err)
		require.Len(t, positions, 1)
		assert.Equal(t, p.ID, positions[0].ID)
		assert.Equal(t, map[string]string{
			"alloc:Equity": "960.00",
			"alloc:Bond":   "240.00",
		}, amountsByKey(positions[0].Decompositions))
	})
}
