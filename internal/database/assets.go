package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/trogers1052/asset-allocation/internal/models"
)

// CreateTemplate inserts a named template and returns its id
func (db *DB) CreateTemplate(ctx context.Context, name string) (int, error) {
	var id int
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO templates (name, created_at) VALUES ($1, $2) RETURNING id`,
		name, time.Now(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create template: %w", err)
	}
	return id, nil
}

// CreateAsset inserts a new asset
func (db *DB) CreateAsset(ctx context.Context, a *models.Asset) error {
	query := `
		INSERT INTO assets (ticker, display_name, template_id, benchmark, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	now := time.Now()
	var templateID sql.NullInt64
	if a.TemplateID != 0 {
		templateID = sql.NullInt64{Int64: int64(a.TemplateID), Valid: true}
	}
	var benchmark sql.NullString
	if a.Benchmark != "" {
		benchmark = sql.NullString{String: a.Benchmark, Valid: true}
	}

	err := db.conn.QueryRowContext(ctx, query,
		a.Ticker, a.DisplayName, templateID, benchmark, now,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("failed to create asset: %w", err)
	}
	a.CreatedAt = now
	return nil
}

// GetAsset retrieves an asset by id
func (db *DB) GetAsset(ctx context.Context, id int) (*models.Asset, error) {
	query := `
		SELECT id, ticker, display_name, template_id, benchmark, created_at
		FROM assets
		WHERE id = $1
	`
	a, err := scanAsset(db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, notFound("asset %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return a, nil
}

// GetAssetByTicker resolves a ticker (or display name) to its asset
func (db *DB) GetAssetByTicker(ctx context.Context, ticker string) (*models.Asset, error) {
	query := `
		SELECT id, ticker, display_name, template_id, benchmark, created_at
		FROM assets
		WHERE ticker = $1 OR display_name = $1
		ORDER BY (ticker = $1) DESC, id ASC
		LIMIT 1
	`
	a, err := scanAsset(db.conn.QueryRowContext(ctx, query, ticker))
	if err == sql.ErrNoRows {
		return nil, notFound("asset for ticker %s", ticker)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset by ticker: %w", err)
	}
	return a, nil
}

// GetBenchmarkTickers returns the distinct tickers that carry a benchmark flag
func (db *DB) GetBenchmarkTickers(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT ticker
		FROM assets
		WHERE benchmark IS NOT NULL AND benchmark != ''
		ORDER BY ticker
	`
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query benchmark tickers: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var ticker string
		if err := rows.Scan(&ticker); err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %w", err)
		}
		tickers = append(tickers, ticker)
	}
	return tickers, rows.Err()
}

func scanAsset(row *sql.Row) (*models.Asset, error) {
	var a models.Asset
	var templateID sql.NullInt64
	var benchmark sql.NullString

	if err := row.Scan(&a.ID, &a.Ticker, &a.DisplayName, &templateID, &benchmark, &a.CreatedAt); err != nil {
		return nil, err
	}
	if templateID.Valid {
		a.TemplateID = int(templateID.Int64)
	}
	if benchmark.Valid {
		a.Benchmark = benchmark.String
	}
	return &a, nil
}
