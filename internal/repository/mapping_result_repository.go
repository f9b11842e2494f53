package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/esgboard/kpiledger/internal/db"
	"github.com/esgboard/kpiledger/internal/domain"
)

type mappingResultRepository struct {
	conn *db.Connection
}

// NewMappingResultRepository wires a repository backed by the shared
// connection. ReplaceForFile swaps a file's whole result set in one
// transaction so a reprocess never exposes a mixed run.
func NewMappingResultRepository(conn *db.Connection) MappingResultRepository {
	return &mappingResultRepository{conn: conn}
}

func (r *mappingResultRepository) ReplaceForFile(ctx context.Context, fileID uuid.UUID, results []domain.MappingResult, unmapped []domain.UnmappedColumn) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if err := deleteMappingRows(ctx, tx, fileID); err != nil {
			return err
		}

		for _, result := range results {
			_, err := tx.Exec(
				ctx,
				`INSERT INTO mapping_results
				 (id, file_id, source_column, kpi_id, confidence, contributed_value, record_count, skipped_cells, unit, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				result.ID,
				result.FileID,
				result.SourceColumn,
				result.KpiID,
				result.Confidence,
				result.ContributedValue,
				result.RecordCount,
				result.SkippedCells,
				result.Unit,
				result.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert mapping result for column %q: %w", result.SourceColumn, err)
			}
		}

		for _, column := range unmapped {
			_, err := tx.Exec(
				ctx,
				`INSERT INTO unmapped_columns (file_id, source_column, best_kpi_id, best_score)
				 VALUES ($1, $2, $3, $4)`,
				column.FileID,
				column.SourceColumn,
				column.BestKpiID,
				column.BestScore,
			)
			if err != nil {
				return fmt.Errorf("failed to insert unmapped column %q: %w", column.SourceColumn, err)
			}
		}

		return nil
	})
}

func (r *mappingResultRepository) ListByFile(ctx context.Context, fileID uuid.UUID) ([]domain.MappingResult, []domain.UnmappedColumn, error) {
	rows, err := r.conn.Pool.Query(
		ctx,
		`SELECT id, file_id, source_column, kpi_id, confidence, contributed_value, record_count, skipped_cells, unit, created_at
		 FROM mapping_results
		 WHERE file_id = $1
		 ORDER BY source_column`,
		fileID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list mapping results: %w", err)
	}
	defer rows.Close()

	results := []domain.MappingResult{}
	for rows.Next() {
		var result domain.MappingResult
		if err := rows.Scan(
			&result.ID,
			&result.FileID,
			&result.SourceColumn,
			&result.KpiID,
			&result.Confidence,
			&result.ContributedValue,
			&result.RecordCount,
			&result.SkippedCells,
			&result.Unit,
			&result.CreatedAt,
		); err != nil {
			return nil, nil, fmt.Errorf("failed to scan mapping result: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	unmappedRows, err := r.conn.Pool.Query(
		ctx,
		`SELECT file_id, source_column, best_kpi_id, best_score
		 FROM unmapped_columns
		 WHERE file_id = $1
		 ORDER BY source_column`,
		fileID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list unmapped columns: %w", err)
	}
	defer unmappedRows.Close()

	unmapped := []domain.UnmappedColumn{}
	for unmappedRows.Next() {
		var column domain.UnmappedColumn
		if err := unmappedRows.Scan(&column.FileID, &column.SourceColumn, &column.BestKpiID, &column.BestScore); err != nil {
			return nil, nil, fmt.Errorf("failed to scan unmapped column: %w", err)
		}
		unmapped = append(unmapped, column)
	}

	return results, unmapped, unmappedRows.Err()
}

func (r *mappingResultRepository) DeleteForFile(ctx context.Context, fileID uuid.UUID) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		return deleteMappingRows(ctx, tx, fileID)
	})
}

func deleteMappingRows(ctx context.Context, tx pgx.Tx, fileID uuid.UUID) error {
	if _, err := tx.Exec(ctx, `DELETE FROM mapping_results WHERE file_id = $1`, fileID); err != nil {
		return fmt.Errorf("failed to delete mapping results of %s: %w", fileID, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM unmapped_columns WHERE file_id = $1`, fileID); err != nil {
		return fmt.Errorf("failed to delete unmapped columns of %s: %w", fileID, err)
	}
	return nil
}
