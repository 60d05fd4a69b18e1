package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/trogers1052/asset-allocation/internal/models"
)

// DeleteGainsOn removes the gain rows of exactly one date
func (t *Tx) DeleteGainsOn(ctx context.Context, date time.Time) (int64, error) {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM asset_gains WHERE gain_date = $1`, date)
	if err != nil {
		return 0, fmt.Errorf("failed to delete gains on %s: %w", date.Format(models.DateLayout), err)
	}
	return result.RowsAffected()
}

// DeleteGainsBefore removes gain rows strictly older than cutoff
func (t *Tx) DeleteGainsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM asset_gains WHERE gain_date < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete gains before %s: %w", cutoff.Format(models.DateLayout), err)
	}
	return result.RowsAffected()
}

// UpsertGainHistory inserts or replaces the gains of a ticker on a date
func (db *DB) UpsertGainHistory(ctx context.Context, g *models.GainHistory) error {
	query := `
		INSERT INTO asset_gains (ticker, gain_date, one_week, two_week, one_month, three_month, six_month, one_year, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (ticker, gain_date) DO UPDATE SET
			one_week = EXCLUDED.one_week,
			two_week = EXCLUDED.two_week,
			one_month = EXCLUDED.one_month,
			three_month = EXCLUDED.three_month,
			six_month = EXCLUDED.six_month,
			one_year = EXCLUDED.one_year
	`
	now := time.Now()
	_, err := db.conn.ExecContext(ctx, query,
		g.Ticker, g.GainDate, g.OneWeek, g.TwoWeek, g.OneMonth, g.ThreeMonth, g.SixMonth, g.OneYear, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert gains for %s: %w", g.Ticker, err)
	}
	g.CreatedAt = now
	return nil
}

// GetGainHistory returns the gains of every ticker on a date
func (db *DB) GetGainHistory(ctx context.Context, date time.Time) ([]*models.GainHistory, error) {
	query := `
		SELECT ticker, gain_date, one_week, two_week, one_month, three_month, six_month, one_year, created_at
		FROM asset_gains
		WHERE gain_date = $1
		ORDER BY ticker
	`
	rows, err := db.conn.QueryContext(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query gains: %w", err)
	}
	defer rows.Close()

	var gains []*models.GainHistory
	for rows.Next() {
		var g models.GainHistory
		err := rows.Scan(&g.Ticker, &g.GainDate, &g.OneWeek, &g.TwoWeek, &g.OneMonth, &g.ThreeMonth, &g.SixMonth, &g.OneYear, &g.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan gains: %w", err)
		}
		gains = append(gains, &g)
	}
	return gains, rows.Err()
}

// CountGainsBefore counts gain rows strictly older than cutoff
func (db *DB) CountGainsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM asset_gains WHERE gain_date < $1`, cutoff).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count gains: %w", err)
	}
	return n, nil
}

// CreateHoliday records a market holiday
func (db *DB) CreateHoliday(ctx context.Context, date time.Time, description string) error {
	query := `
		INSERT INTO holidays (holiday_date, description)
		VALUES ($1, $2)
		ON CONFLICT (holiday_date) DO UPDATE SET description = EXCLUDED.description
	`
	if _, err := db.conn.ExecContext(ctx, query, date, description); err != nil {
		return fmt.Errorf("failed to create holiday: %w", err)
	}
	return nil
}

// GetHolidays returns the holidays within [from, to]
func (db *DB) GetHolidays(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT holiday_date FROM holidays WHERE holiday_date >= $1 AND holiday_date <= $2 ORDER BY holiday_date`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan holiday: %w", err)
		}
		dates = append(dates, models.TruncateDate(d))
	}
	return dates, rows.Err()
}

// IsHoliday reports whether date is a recorded holiday
func (db *DB) IsHoliday(ctx context.Context, date time.Time) (bool, error) {
	var d time.Time
	err := db.conn.QueryRowContext(ctx, `SELECT holiday_date FROM holidays WHERE holiday_date = $1`, date).Scan(&d)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check holiday: %w", err)
	}
	return true, nil
}
