package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/esgboard/kpiledger/internal/domain"
)

type complianceRepository struct {
	pool *pgxpool.Pool
}

// NewComplianceRepository wires a repository backed by pgxpool. The missing
// KPI details of each check are stored as a JSONB document; the history is
// append-only.
func NewComplianceRepository(pool *pgxpool.Pool) ComplianceRepository {
	return &complianceRepository{pool: pool}
}

func (r *complianceRepository) Record(ctx context.Context, result domain.ComplianceCheckResult) error {
	if r.pool == nil {
		return fmt.Errorf("compliance repository not initialized")
	}

	missing, err := json.Marshal(result.Missing)
	if err != nil {
		return fmt.Errorf("failed to encode missing kpis: %w", err)
	}

	_, err = r.pool.Exec(
		ctx,
		`INSERT INTO compliance_check_results
		 (id, standard_id, period, total_required, critical_missing, warning_missing, compliance_rate, status, missing, checked_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		result.ID,
		result.StandardID,
		result.Period,
		result.TotalRequired,
		result.CriticalMissing,
		result.WarningMissing,
		result.ComplianceRate,
		string(result.Status),
		missing,
		result.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record compliance check for %s: %w", result.StandardID, err)
	}

	return nil
}

func (r *complianceRepository) List(ctx context.Context, standardID string, limit int) ([]domain.ComplianceCheckResult, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("compliance repository not initialized")
	}

	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `SELECT id, standard_id, period, total_required, critical_missing, warning_missing, compliance_rate, status, missing, checked_at
	 FROM compliance_check_results`
	args := []any{}
	if standardID != "" {
		query += ` WHERE standard_id = $1 ORDER BY checked_at DESC LIMIT $2`
		args = append(args, standardID, limit)
	} else {
		query += ` ORDER BY checked_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list compliance checks: %w", err)
	}
	defer rows.Close()

	results := []domain.ComplianceCheckResult{}
	for rows.Next() {
		result, scanErr := scanComplianceResult(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		results = append(results, result)
	}

	return results, rows.Err()
}

func (r *complianceRepository) Latest(ctx context.Context, standardID string) (domain.ComplianceCheckResult, bool, error) {
	if r.pool == nil {
		return domain.ComplianceCheckResult{}, false, fmt.Errorf("compliance repository not initialized")
	}

	row := r.pool.QueryRow(
		ctx,
		`SELECT id, standard_id, period, total_required, critical_missing, warning_missing, compliance_rate, status, missing, checked_at
		 FROM compliance_check_results
		 WHERE standard_id = $1
		 ORDER BY checked_at DESC
		 LIMIT 1`,
		standardID,
	)

	result, err := scanComplianceResult(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ComplianceCheckResult{}, false, nil
	}
	if err != nil {
		return domain.ComplianceCheckResult{}, false, err
	}
	return result, true, nil
}

func scanComplianceResult(row pgx.Row) (domain.ComplianceCheckResult, error) {
	var (
		result  domain.ComplianceCheckResult
		status  string
		missing []byte
	)
	err := row.Scan(
		&result.ID,
		&result.StandardID,
		&result.Period,
		&result.TotalRequired,
		&result.CriticalMissing,
		&result.WarningMissing,
		&result.ComplianceRate,
		&status,
		&missing,
		&result.CheckedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ComplianceCheckResult{}, err
	}
	if err != nil {
		return domain.ComplianceCheckResult{}, fmt.Errorf("failed to scan compliance check: %w", err)
	}

	result.Status = domain.ComplianceStatus(status)
	if len(missing) > 0 {
		if err := json.Unmarshal(missing, &result.Missing); err != nil {
			return domain.ComplianceCheckResult{}, fmt.Errorf("failed to decode missing kpis: %w", err)
		}
	}
	return result, nil
}
