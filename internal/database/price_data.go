package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/trogers1052/asset-allocation/internal/models"
)

// UpsertClosePrices stores daily closes in one transaction, replacing existing (symbol, date) rows
func (db *DB) UpsertClosePrices(ctx context.Context, prices []*models.PriceDataDaily) error {
	if len(prices) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_data_daily (symbol, date, close, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol, date) DO UPDATE SET
			close = EXCLUDED.close
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, p := range prices {
		if _, err := stmt.ExecContext(ctx, p.Symbol, p.Date, p.Close, now); err != nil {
			return fmt.Errorf("failed to insert price data for %s: %w", p.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetClosePrice returns the stored close of a symbol on a date, or ErrNotFound
func (db *DB) GetClosePrice(ctx context.Context, symbol string, date time.Time) (*models.PriceDataDaily, error) {
	query := `
		SELECT id, symbol, date, close, created_at
		FROM price_data_daily
		WHERE symbol = $1 AND date = $2
	`
	var p models.PriceDataDaily
	err := db.conn.QueryRowContext(ctx, query, symbol, date).Scan(&p.ID, &p.Symbol, &p.Date, &p.Close, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, notFound("price data for %s on %s", symbol, date.Format(models.DateLayout))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get price data: %w", err)
	}
	return &p, nil
}

// GetClosePrices returns a symbol's closes within [from, to], oldest first
func (db *DB) GetClosePrices(ctx context.Context, symbol string, from, to time.Time) ([]*models.PriceDataDaily, error) {
	query := `
		SELECT id, symbol, date, close, created_at
		FROM price_data_daily
		WHERE symbol = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to get price data range: %w", err)
	}
	defer rows.Close()

	var prices []*models.PriceDataDaily
	for rows.Next() {
		var p models.PriceDataDaily
		if err := rows.Scan(&p.ID, &p.Symbol, &p.Date, &p.Close, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price data: %w", err)
		}
		p.Date = models.TruncateDate(p.Date)
		prices = append(prices, &p)
	}
	return prices, rows.Err()
}

// DeletePriceDataOlderThan removes price data older than a specified date
func (db *DB) DeletePriceDataOlderThan(ctx context.Context, date time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM price_data_daily WHERE date < $1`, date)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old price data: %w", err)
	}
	return result.RowsAffected()
}
