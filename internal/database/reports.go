package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/asset-allocation/internal/models"
)

// UnassignedHeldAt labels positions stored without a location
const UnassignedHeldAt = "Unassigned"

// PositionSnapshot returns held_at_ticker -> summed amount for one date
func (db *DB) PositionSnapshot(ctx context.Context, asOf time.Time) (map[string]decimal.Decimal, error) {
	query := `
		SELECT COALESCE(p.held_at, $2) || '_' || a.ticker AS account_ticker, SUM(p.amount)
		FROM asset_inv p
		INNER JOIN assets a ON a.id = p.asset_id
		WHERE p.as_of_date = $1
		GROUP BY account_ticker
	`
	rows, err := db.conn.QueryContext(ctx, query, asOf, UnassignedHeldAt)
	if err != nil {
		return nil, fmt.Errorf("failed to query position snapshot: %w", err)
	}
	defer rows.Close()

	snapshot := make(map[string]decimal.Decimal)
	for rows.Next() {
		var key string
		var amount decimal.Decimal
		if err := rows.Scan(&key, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan position snapshot: %w", err)
		}
		snapshot[key] = amount
	}
	return snapshot, rows.Err()
}

// TotalsByAllocationClass sums the allocation-class decompositions per class and date within [from, to]
func (db *DB) TotalsByAllocationClass(ctx context.Context, from, to time.Time) ([]models.DatedTotal, error) {
	query := `
		SELECT d.alloc_code, p.as_of_date, SUM(d.amount)
		FROM asset_inv_alloc d
		INNER JOIN asset_inv p ON p.id = d.asset_inv_id
		WHERE p.as_of_date >= $1 AND p.as_of_date <= $2
		GROUP BY 1, 2
		ORDER BY 2, 1
	`
	return scanDatedTotals(ctx, db.conn, query, from, to)
}

// TotalsByHeldAt sums position amounts per location and date within [from, to]
func (db *DB) TotalsByHeldAt(ctx context.Context, from, to time.Time) ([]models.DatedTotal, error) {
	query := `
		SELECT COALESCE(held_at, $3), as_of_date, SUM(amount)
		FROM asset_inv
		WHERE as_of_date >= $1 AND as_of_date <= $2
		GROUP BY 1, 2
		ORDER BY 2, 1
	`
	return scanDatedTotals(ctx, db.conn, query, from, to, UnassignedHeldAt)
}

// CashByHeldAt sums the Cash asset per location and date within [from, to]
func (db *DB) CashByHeldAt(ctx context.Context, from, to time.Time) ([]models.DatedTotal, error) {
	query := `
		SELECT COALESCE(p.held_at, $3), p.as_of_date, SUM(p.amount)
		FROM asset_inv p
		INNER JOIN assets a ON a.id = p.asset_id
		WHERE p.as_of_date >= $1 AND p.as_of_date <= $2 AND a.ticker = $4
		GROUP BY 1, 2
		ORDER BY 2, 1
	`
	return scanDatedTotals(ctx, db.conn, query, from, to, UnassignedHeldAt, models.AssetCash)
}

// AvailableDates returns every as-of date that has positions, newest first
func (db *DB) AvailableDates(ctx context.Context) ([]time.Time, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT DISTINCT as_of_date FROM asset_inv ORDER BY as_of_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan date: %w", err)
		}
		dates = append(dates, models.TruncateDate(d))
	}
	return dates, rows.Err()
}

// SetReportDates stores the pair of dates compared by default
func (db *DB) SetReportDates(ctx context.Context, rd models.ReportDates) error {
	query := `
		INSERT INTO report_dates (id, curr_date, date_to_compare)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET
			curr_date = EXCLUDED.curr_date,
			date_to_compare = EXCLUDED.date_to_compare
	`
	if _, err := db.conn.ExecContext(ctx, query, rd.CurrentDate, rd.DateToCompare); err != nil {
		return fmt.Errorf("failed to set report dates: %w", err)
	}
	return nil
}

// GetReportDates returns the stored comparison dates, or ErrNotFound
func (db *DB) GetReportDates(ctx context.Context) (*models.ReportDates, error) {
	var rd models.ReportDates
	err := db.conn.QueryRowContext(ctx, `SELECT curr_date, date_to_compare FROM report_dates WHERE id = 1`).
		Scan(&rd.CurrentDate, &rd.DateToCompare)
	if err == sql.ErrNoRows {
		return nil, notFound("report dates")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report dates: %w", err)
	}
	rd.CurrentDate = models.TruncateDate(rd.CurrentDate)
	rd.DateToCompare = models.TruncateDate(rd.DateToCompare)
	return &rd, nil
}

func scanDatedTotals(ctx context.Context, q querier, query string, args ...interface{}) ([]models.DatedTotal, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}
	defer rows.Close()

	var totals []models.DatedTotal
	for rows.Next() {
		var t models.DatedTotal
		if err := rows.Scan(&t.Label, &t.AsOfDate, &t.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan total: %w", err)
		}
		t.AsOfDate = models.TruncateDate(t.AsOfDate)
		totals = append(totals, t)
	}
	return totals, rows.Err()
}
