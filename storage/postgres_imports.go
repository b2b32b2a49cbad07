package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// RecordImport persists the outcome of a CSV upload and returns its ID.
func (s *PostgresStore) RecordImport(ctx context.Context, imp *Import) (string, error) {
	importID := imp.ID
	if importID == "" {
		importID = uuid.New().String()
	}

	errorsJSON, err := json.Marshal(imp.Errors)
	if err != nil {
		return "", fmt.Errorf("failed to marshal row errors: %w", err)
	}

	query := `
		INSERT INTO greenchain_imports (id, filename, rows_total, rows_accepted,
		                                rows_rejected, errors, instance_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`

	_, err = s.getQuerier(ctx).Exec(ctx, query,
		importID,
		imp.Filename,
		imp.RowsTotal,
		imp.RowsAccepted,
		imp.RowsRejected,
		errorsJSON,
		imp.InstanceID,
	)
	if err != nil {
		return "", fmt.Errorf("failed to record import: %w", err)
	}

	return importID, nil
}

// GetImport retrieves an import record by ID
func (s *PostgresStore) GetImport(ctx context.Context, importID string) (*Import, error) {
	query := `
		SELECT id, filename, rows_total, rows_accepted, rows_rejected, errors, instance_id, created_at
		FROM greenchain_imports
		WHERE id = $1
	`

	imp, err := scanImport(s.getQuerier(ctx).QueryRow(ctx, query, importID))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("import %s: %w", importID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get import: %w", err)
	}

	return imp, nil
}

// ListImports retrieves import records newest first, plus the total count.
func (s *PostgresStore) ListImports(ctx context.Context, limit, offset int) ([]*Import, int, error) {
	var total int
	if err := s.getQuerier(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM greenchain_imports`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count imports: %w", err)
	}

	query := `
		SELECT id, filename, rows_total, rows_accepted, rows_rejected, errors, instance_id, created_at
		FROM greenchain_imports
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := s.getQuerier(ctx).Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query imports: %w", err)
	}
	defer rows.Close()

	var imports []*Import
	for rows.Next() {
		imp, err := scanImport(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan import: %w", err)
		}
		imports = append(imports, imp)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating imports: %w", err)
	}

	return imports, total, nil
}

// GetImportStats aggregates upload activity since the given time.
func (s *PostgresStore) GetImportStats(ctx context.Context, since time.Time) (*ImportStats, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(rows_accepted), 0), COALESCE(SUM(rows_rejected), 0)
		FROM greenchain_imports
		WHERE created_at >= $1
	`

	var stats ImportStats
	err := s.getQuerier(ctx).QueryRow(ctx, query, since).Scan(
		&stats.Uploads,
		&stats.RowsAccepted,
		&stats.RowsRejected,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get import stats: %w", err)
	}

	return &stats, nil
}

func scanImport(row pgx.Row) (*Import, error) {
	var imp Import
	var errorsJSON []byte
	var instanceID pgtype.Text

	err := row.Scan(
		&imp.ID,
		&imp.Filename,
		&imp.RowsTotal,
		&imp.RowsAccepted,
		&imp.RowsRejected,
		&errorsJSON,
		&instanceID,
		&imp.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if instanceID.Valid {
		imp.InstanceID = instanceID.String
	}

	if len(errorsJSON) > 0 {
		if err := json.Unmarshal(errorsJSON, &imp.Errors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal row errors: %w", err)
		}
	}

	return &imp, nil
}
