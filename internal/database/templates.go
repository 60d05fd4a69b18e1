package database

import (
	"context"
	"fmt"

	"github.com/trogers1052/asset-allocation/internal/models"
)

const templateDetailColumns = `td.id, td.template_id, td.kind, td.target_code_1, td.target_code_2, td.percentage`

// GetTemplateDetails returns the rules of a template in definition order
func (db *DB) GetTemplateDetails(ctx context.Context, templateID int) ([]models.TemplateDetail, error) {
	query := `
		SELECT ` + templateDetailColumns + `
		FROM template_details td
		WHERE td.template_id = $1
		ORDER BY td.id
	`
	return scanTemplateDetails(ctx, db.conn, query, templateID)
}

// GetTemplateDetailsForAsset returns the rules of the template owned by an asset
func (db *DB) GetTemplateDetailsForAsset(ctx context.Context, assetID int) ([]models.TemplateDetail, error) {
	return templateDetailsForAsset(ctx, db.conn, assetID)
}

// TemplateDetailsForAsset reads an asset's rules inside the transaction
func (t *Tx) TemplateDetailsForAsset(ctx context.Context, assetID int) ([]models.TemplateDetail, error) {
	return templateDetailsForAsset(ctx, t.tx, assetID)
}

func templateDetailsForAsset(ctx context.Context, q querier, assetID int) ([]models.TemplateDetail, error) {
	query := `
		SELECT ` + templateDetailColumns + `
		FROM template_details td
		INNER JOIN assets a ON td.template_id = a.template_id
		WHERE a.id = $1
		ORDER BY td.id
	`
	return scanTemplateDetails(ctx, q, query, assetID)
}

// ReplaceTemplateDetails deletes a template's rules and inserts the given ones in one transaction
func (db *DB) ReplaceTemplateDetails(ctx context.Context, templateID int, details []models.TemplateDetail) error {
	return db.WithTx(ctx, func(t *Tx) error {
		if _, err := t.tx.ExecContext(ctx, `DELETE FROM template_details WHERE template_id = $1`, templateID); err != nil {
			return fmt.Errorf("failed to delete existing template details: %w", err)
		}

		query := `
			INSERT INTO template_details (template_id, kind, target_code_1, target_code_2, percentage)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`
		for i := range details {
			d := &details[i]
			code1, code2 := d.Codes()
			err := t.tx.QueryRowContext(ctx, query, templateID, d.Kind, code1, code2, d.Percentage.Round(2)).Scan(&d.ID)
			if err != nil {
				return fmt.Errorf("failed to insert template detail %d: %w", i+1, err)
			}
			d.TemplateID = templateID
		}
		return nil
	})
}

// DeleteTemplateDetails removes every rule of a template
func (db *DB) DeleteTemplateDetails(ctx context.Context, templateID int) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM template_details WHERE template_id = $1`, templateID); err != nil {
		return fmt.Errorf("failed to delete template details: %w", err)
	}
	return nil
}

func scanTemplateDetails(ctx context.Context, q querier, query string, args ...interface{}) ([]models.TemplateDetail, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query template details: %w", err)
	}
	defer rows.Close()

	var details []models.TemplateDetail
	for rows.Next() {
		var d models.TemplateDetail
		if err := rows.Scan(&d.ID, &d.TemplateID, &d.Kind, &d.TargetCode1, &d.TargetCode2, &d.Percentage); err != nil {
			return nil, fmt.Errorf("failed to scan template detail: %w", err)
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read template details: %w", err)
	}
	return details, nil
}
