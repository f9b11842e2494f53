package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/esgboard/kpiledger/internal/db"
	"github.com/esgboard/kpiledger/internal/domain"
	"github.com/esgboard/kpiledger/internal/ledger"
)

// ledgerStore persists cumulative records and contributions. Apply and
// reverse run inside one transaction with the affected rows locked in
// sorted order, so a crash can never leave a half-applied delta.
type ledgerStore struct {
	conn *db.Connection
}

// NewLedgerStore wires the Postgres-backed ledger store.
func NewLedgerStore(conn *db.Connection) ledger.Store {
	return &ledgerStore{conn: conn}
}

func (s *ledgerStore) GetRecords(ctx context.Context, kpiIDs []string) (map[string]domain.CumulativeKpiRecord, error) {
	rows, err := s.conn.Pool.Query(
		ctx,
		`SELECT kpi_id, total_value, unit, contributing_files, updated_at
		 FROM cumulative_kpi_records
		 WHERE kpi_id = ANY($1)`,
		kpiIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query cumulative records: %w", err)
	}
	defer rows.Close()

	records := make(map[string]domain.CumulativeKpiRecord, len(kpiIDs))
	for rows.Next() {
		record, scanErr := scanCumulativeRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records[record.KpiID] = record
	}
	return records, rows.Err()
}

func (s *ledgerStore) ListRecords(ctx context.Context) ([]domain.CumulativeKpiRecord, error) {
	rows, err := s.conn.Pool.Query(
		ctx,
		`SELECT kpi_id, total_value, unit, contributing_files, updated_at
		 FROM cumulative_kpi_records
		 ORDER BY kpi_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list cumulative records: %w", err)
	}
	defer rows.Close()

	records := []domain.CumulativeKpiRecord{}
	for rows.Next() {
		record, scanErr := scanCumulativeRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *ledgerStore) ListContributions(ctx context.Context, fileID uuid.UUID) ([]ledger.Contribution, error) {
	rows, err := s.conn.Pool.Query(
		ctx,
		`SELECT file_id, kpi_id, delta, unit, before_value, after_value, applied_at
		 FROM kpi_contributions
		 WHERE file_id = $1
		 ORDER BY kpi_id`,
		fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}
	defer rows.Close()

	contributions := []ledger.Contribution{}
	for rows.Next() {
		var contribution ledger.Contribution
		if scanErr := rows.Scan(
			&contribution.FileID,
			&contribution.KpiID,
			&contribution.Delta,
			&contribution.Unit,
			&contribution.Before,
			&contribution.After,
			&contribution.AppliedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan contribution: %w", scanErr)
		}
		contributions = append(contributions, contribution)
	}
	return contributions, rows.Err()
}

func (s *ledgerStore) ApplyAtomic(ctx context.Context, records []domain.CumulativeKpiRecord, contributions []ledger.Contribution) error {
	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if err := lockRecords(ctx, tx, records); err != nil {
			return err
		}
		for _, record := range records {
			if err := upsertCumulativeRecord(ctx, tx, record); err != nil {
				return err
			}
		}
		for _, contribution := range contributions {
			_, err := tx.Exec(
				ctx,
				`INSERT INTO kpi_contributions (file_id, kpi_id, delta, unit, before_value, after_value, applied_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				contribution.FileID,
				contribution.KpiID,
				contribution.Delta,
				contribution.Unit,
				contribution.Before,
				contribution.After,
				contribution.AppliedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert contribution for %s: %w", contribution.KpiID, err)
			}
		}
		return nil
	})
}

func (s *ledgerStore) ReverseAtomic(ctx context.Context, fileID uuid.UUID, records []domain.CumulativeKpiRecord) error {
	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if err := lockRecords(ctx, tx, records); err != nil {
			return err
		}
		for _, record := range records {
			if err := upsertCumulativeRecord(ctx, tx, record); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `DELETE FROM kpi_contributions WHERE file_id = $1`, fileID); err != nil {
			return fmt.Errorf("failed to delete contributions of %s: %w", fileID, err)
		}
		return nil
	})
}

// lockRecords takes row locks on the affected KPI rows in sorted order so
// two concurrent transactions touching overlapping KPI sets cannot deadlock.
func lockRecords(ctx context.Context, tx pgx.Tx, records []domain.CumulativeKpiRecord) error {
	kpiIDs := make([]string, 0, len(records))
	for _, record := range records {
		kpiIDs = append(kpiIDs, record.KpiID)
	}
	sort.Strings(kpiIDs)

	rows, err := tx.Query(
		ctx,
		`SELECT kpi_id FROM cumulative_kpi_records
		 WHERE kpi_id = ANY($1)
		 ORDER BY kpi_id
		 FOR UPDATE`,
		kpiIDs,
	)
	if err != nil {
		return fmt.Errorf("failed to lock cumulative records: %w", err)
	}
	rows.Close()
	return rows.Err()
}

func upsertCumulativeRecord(ctx context.Context, tx pgx.Tx, record domain.CumulativeKpiRecord) error {
	_, err := tx.Exec(
		ctx,
		`INSERT INTO cumulative_kpi_records (kpi_id, total_value, unit, contributing_files, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (kpi_id) DO UPDATE
		 SET total_value = EXCLUDED.total_value,
		     contributing_files = EXCLUDED.contributing_files,
		     updated_at = EXCLUDED.updated_at`,
		record.KpiID,
		record.TotalValue,
		record.Unit,
		record.ContributingFiles,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cumulative record %s: %w", record.KpiID, err)
	}
	return nil
}

func scanCumulativeRecord(rows pgx.Rows) (domain.CumulativeKpiRecord, error) {
	var record domain.CumulativeKpiRecord
	if err := rows.Scan(
		&record.KpiID,
		&record.TotalValue,
		&record.Unit,
		&record.ContributingFiles,
		&record.UpdatedAt,
	); err != nil {
		return domain.CumulativeKpiRecord{}, fmt.Errorf("failed to scan cumulative record: %w", err)
	}
	return record, nil
}
