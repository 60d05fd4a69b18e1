package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/asset-allocation/internal/models"
)

// InsertPosition inserts a position and lets the sequence assign its id
func (t *Tx) InsertPosition(ctx context.Context, p *models.AssetPosition) error {
	query := `
		INSERT INTO asset_inv (asset_id, as_of_date, amount, held_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	now := time.Now()
	err := t.tx.QueryRowContext(ctx, query,
		p.AssetID, p.AsOfDate, p.Amount, nullString(p.HeldAt), now,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to insert position: %w", err)
	}
	p.CreatedAt = now
	return nil
}

// InsertPositionNextID inserts a position with id max(id)+1, so the id is known
// from the current table contents, and moves the sequence past it.
func (t *Tx) InsertPositionNextID(ctx context.Context, p *models.AssetPosition) error {
	query := `
		INSERT INTO asset_inv (id, asset_id, as_of_date, amount, held_at, created_at)
		SELECT COALESCE(MAX(id), 0) + 1, $1, $2, $3, $4, $5 FROM asset_inv
		RETURNING id
	`
	now := time.Now()
	err := t.tx.QueryRowContext(ctx, query,
		p.AssetID, p.AsOfDate, p.Amount, nullString(p.HeldAt), now,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to insert position: %w", err)
	}

	if _, err := t.tx.ExecContext(ctx, `SELECT setval(pg_get_serial_sequence('asset_inv', 'id'), $1)`, p.ID); err != nil {
		return fmt.Errorf("failed to advance position sequence: %w", err)
	}
	p.CreatedAt = now
	return nil
}

// FindPositionByKey returns the position for (asset, date, held_at), or ErrNotFound
func (t *Tx) FindPositionByKey(ctx context.Context, assetID int, asOf time.Time, heldAt string) (*models.AssetPosition, error) {
	query := `
		SELECT id, asset_id, as_of_date, amount, held_at, created_at
		FROM asset_inv
		WHERE asset_id = $1 AND as_of_date = $2 AND held_at = $3
	`
	var p models.AssetPosition
	var held sql.NullString
	err := t.tx.QueryRowContext(ctx, query, assetID, asOf, heldAt).Scan(
		&p.ID, &p.AssetID, &p.AsOfDate, &p.Amount, &held, &p.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, notFound("position for asset %d on %s at %s", assetID, asOf.Format(models.DateLayout), heldAt)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	p.HeldAt = held.String
	return &p, nil
}

// AddToPositionAmount adds delta to a position's stored amount
func (t *Tx) AddToPositionAmount(ctx context.Context, id int, delta decimal.Decimal) error {
	result, err := t.tx.ExecContext(ctx, `UPDATE asset_inv SET amount = amount + $2 WHERE id = $1`, id, delta)
	if err != nil {
		return fmt.Errorf("failed to update position amount: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return notFound("position %d", id)
	}
	return nil
}

// PositionIDsForAssetDate returns every position of an asset on a date, newest first
func (t *Tx) PositionIDsForAssetDate(ctx context.Context, assetID int, asOf time.Time) ([]int, error) {
	return scanIDs(ctx, t.tx,
		`SELECT id FROM asset_inv WHERE asset_id = $1 AND as_of_date = $2 ORDER BY id DESC`,
		assetID, asOf)
}

// PositionIDsForDate returns every position on a date
func (t *Tx) PositionIDsForDate(ctx context.Context, asOf time.Time) ([]int, error) {
	return scanIDs(ctx, t.tx, `SELECT id FROM asset_inv WHERE as_of_date = $1 ORDER BY id`, asOf)
}

// DeletePositions deletes positions by id. Decompositions must be deleted first.
func (t *Tx) DeletePositions(ctx context.Context, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM asset_inv WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to delete positions: %w", err)
	}
	return nil
}

// GetPositionsByDate returns the positions of a date with their tickers and decompositions
func (db *DB) GetPositionsByDate(ctx context.Context, asOf time.Time) ([]*models.PositionDetail, error) {
	query := `
		SELECT p.id, p.asset_id, p.as_of_date, p.amount, p.held_at, p.created_at, a.ticker
		FROM asset_inv p
		INNER JOIN assets a ON a.id = p.asset_id
		WHERE p.as_of_date = $1
		ORDER BY p.held_at NULLS FIRST, a.ticker, p.id
	`
	rows, err := db.conn.QueryContext(ctx, query, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []*models.PositionDetail
	byID := make(map[int]*models.PositionDetail)
	var ids []int
	for rows.Next() {
		var p models.PositionDetail
		var held sql.NullString
		if err := rows.Scan(&p.ID, &p.AssetID, &p.AsOfDate, &p.Amount, &held, &p.CreatedAt, &p.Ticker); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		p.HeldAt = held.String
		positions = append(positions, &p)
		byID[p.ID] = &p
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read positions: %w", err)
	}

	decompositions, err := decompositionsFor(ctx, db.conn, ids)
	if err != nil {
		return nil, err
	}
	for _, d := range decompositions {
		if p, ok := byID[d.PositionID]; ok {
			p.Decompositions = append(p.Decompositions, d)
		}
	}
	return positions, nil
}

// HasPositionsOn reports whether any position exists on a date
func (db *DB) HasPositionsOn(ctx context.Context, asOf time.Time) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM asset_inv WHERE as_of_date = $1)`, asOf).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check positions: %w", err)
	}
	return exists, nil
}

func scanIDs(ctx context.Context, q querier, query string, args ...interface{}) ([]int, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query position ids: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan position id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read position ids: %w", err)
	}
	return ids, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
