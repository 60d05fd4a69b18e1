package database

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"github.com/trogers1052/asset-allocation/internal/models"
)

// decompositionTables lists the per-kind tables in deletion order
var decompositionTables = []string{"asset_inv_alloc", "asset_inv_sec_ind", "asset_inv_inter"}

// InsertDecomposition inserts one decomposition row into the table selected by its kind
func (t *Tx) InsertDecomposition(ctx context.Context, d *models.Decomposition) error {
	var query string
	var args []interface{}

	switch d.Kind {
	case models.KindAllocationClass:
		query = `INSERT INTO asset_inv_alloc (asset_inv_id, alloc_code, amount) VALUES ($1, $2, $3)`
		args = []interface{}{d.PositionID, d.Code1, d.Amount}
	case models.KindSectorIndustry:
		query = `INSERT INTO asset_inv_sec_ind (asset_inv_id, sec_code, ind_code, amount) VALUES ($1, $2, $3, $4)`
		args = []interface{}{d.PositionID, d.Code1, d.Code2, d.Amount}
	case models.KindInterestBucket:
		query = `INSERT INTO asset_inv_inter (asset_inv_id, inter_code, amount) VALUES ($1, $2, $3)`
		args = []interface{}{d.PositionID, d.Code1, d.Amount}
	default:
		return fmt.Errorf("failed to insert decomposition: %w: %d", models.ErrUnknownRuleKind, int(d.Kind))
	}

	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert %s decomposition: %w", d.Kind, err)
	}
	return nil
}

// AddToDecomposition adds d.Amount to the existing row matching the position and codes.
// It reports false when no row matched.
func (t *Tx) AddToDecomposition(ctx context.Context, d *models.Decomposition) (bool, error) {
	var query string
	var args []interface{}

	switch d.Kind {
	case models.KindAllocationClass:
		query = `UPDATE asset_inv_alloc SET amount = amount + $3 WHERE asset_inv_id = $1 AND alloc_code = $2`
		args = []interface{}{d.PositionID, d.Code1, d.Amount}
	case models.KindSectorIndustry:
		query = `UPDATE asset_inv_sec_ind SET amount = amount + $4 WHERE asset_inv_id = $1 AND sec_code = $2 AND ind_code = $3`
		args = []interface{}{d.PositionID, d.Code1, d.Code2, d.Amount}
	case models.KindInterestBucket:
		query = `UPDATE asset_inv_inter SET amount = amount + $3 WHERE asset_inv_id = $1 AND inter_code = $2`
		args = []interface{}{d.PositionID, d.Code1, d.Amount}
	default:
		return false, fmt.Errorf("failed to update decomposition: %w: %d", models.ErrUnknownRuleKind, int(d.Kind))
	}

	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update %s decomposition: %w", d.Kind, err)
	}
	rowsAffected, _ := result.RowsAffected()
	return rowsAffected > 0, nil
}

// DeleteDecompositions removes the rows of all three decomposition tables owned by the positions
func (t *Tx) DeleteDecompositions(ctx context.Context, positionIDs []int) error {
	if len(positionIDs) == 0 {
		return nil
	}
	for _, table := range decompositionTables {
		query := `DELETE FROM ` + table + ` WHERE asset_inv_id = ANY($1)`
		if _, err := t.tx.ExecContext(ctx, query, pq.Array(positionIDs)); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}
	return nil
}

func decompositionsFor(ctx context.Context, q querier, positionIDs []int) ([]models.Decomposition, error) {
	if len(positionIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT asset_inv_id, 'alloc', alloc_code, '0', amount FROM asset_inv_alloc WHERE asset_inv_id = ANY($1)
		UNION ALL
		SELECT asset_inv_id, 'secind', sec_code, ind_code, amount FROM asset_inv_sec_ind WHERE asset_inv_id = ANY($1)
		UNION ALL
		SELECT asset_inv_id, 'inter', inter_code, '0', amount FROM asset_inv_inter WHERE asset_inv_id = ANY($1)
		ORDER BY 1, 2, 3, 4
	`
	rows, err := q.QueryContext(ctx, query, pq.Array(positionIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query decompositions: %w", err)
	}
	defer rows.Close()

	var out []models.Decomposition
	for rows.Next() {
		var d models.Decomposition
		if err := rows.Scan(&d.PositionID, &d.Kind, &d.Code1, &d.Code2, &d.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan decomposition: %w", err)
		}
		if d.Kind != models.KindSectorIndustry {
			d.Code2 = ""
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read decompositions: %w", err)
	}
	return out, nil
}
