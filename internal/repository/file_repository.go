package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/esgboard/kpiledger/internal/domain"
)

// ErrFileRecordNotFound is returned when a file id has no stored record.
var ErrFileRecordNotFound = errors.New("file processing record not found")

type fileRepository struct {
	pool *pgxpool.Pool
}

// NewFileRepository wires a repository backed by pgxpool. The raw upload
// payload is stored alongside the record so a reprocess can re-read the
// original bytes.
func NewFileRepository(pool *pgxpool.Pool) FileRepository {
	return &fileRepository{pool: pool}
}

func (r *fileRepository) Create(ctx context.Context, record domain.FileProcessingRecord, payload []byte) error {
	if r.pool == nil {
		return fmt.Errorf("file repository not initialized")
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO file_processing_records
		 (id, upload_id, file_name, status, uploaded_at, processed_at, duration_ms, error_detail, detected_kpi_count, record_count, payload)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		record.ID,
		record.UploadID,
		record.FileName,
		string(record.Status),
		record.UploadedAt,
		record.ProcessedAt,
		record.Duration.Milliseconds(),
		record.ErrorDetail,
		record.DetectedKpiCount,
		record.RecordCount,
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to create file record %s: %w", record.ID, err)
	}

	return nil
}

func (r *fileRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.FileProcessingRecord, error) {
	if r.pool == nil {
		return domain.FileProcessingRecord{}, fmt.Errorf("file repository not initialized")
	}

	row := r.pool.QueryRow(
		ctx,
		`SELECT id, upload_id, file_name, status, uploaded_at, processed_at, duration_ms, error_detail, detected_kpi_count, record_count
		 FROM file_processing_records
		 WHERE id = $1`,
		id,
	)

	record, err := scanFileRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.FileProcessingRecord{}, ErrFileRecordNotFound
	}
	return record, err
}

func (r *fileRepository) GetPayload(ctx context.Context, id uuid.UUID) ([]byte, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("file repository not initialized")
	}

	var payload []byte
	err := r.pool.QueryRow(ctx, `SELECT payload FROM file_processing_records WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFileRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payload of %s: %w", id, err)
	}
	return payload, nil
}

func (r *fileRepository) Update(ctx context.Context, record domain.FileProcessingRecord) error {
	if r.pool == nil {
		return fmt.Errorf("file repository not initialized")
	}

	tag, err := r.pool.Exec(
		ctx,
		`UPDATE file_processing_records
		 SET status = $2,
		     processed_at = $3,
		     duration_ms = $4,
		     error_detail = $5,
		     detected_kpi_count = $6,
		     record_count = $7
		 WHERE id = $1`,
		record.ID,
		string(record.Status),
		record.ProcessedAt,
		record.Duration.Milliseconds(),
		record.ErrorDetail,
		record.DetectedKpiCount,
		record.RecordCount,
	)
	if err != nil {
		return fmt.Errorf("failed to update file record %s: %w", record.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFileRecordNotFound
	}

	return nil
}

func (r *fileRepository) List(ctx context.Context, page int, limit int) ([]domain.FileProcessingRecord, int, error) {
	if r.pool == nil {
		return nil, 0, fmt.Errorf("file repository not initialized")
	}

	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := (page - 1) * limit

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM file_processing_records`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count file records: %w", err)
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, upload_id, file_name, status, uploaded_at, processed_at, duration_ms, error_detail, detected_kpi_count, record_count
		 FROM file_processing_records
		 ORDER BY uploaded_at DESC
		 LIMIT $1 OFFSET $2`,
		limit,
		offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list file records: %w", err)
	}
	defer rows.Close()

	records := []domain.FileProcessingRecord{}
	for rows.Next() {
		record, scanErr := scanFileRecord(rows)
		if scanErr != nil {
			return nil, 0, scanErr
		}
		records = append(records, record)
	}

	return records, total, rows.Err()
}

func (r *fileRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if r.pool == nil {
		return fmt.Errorf("file repository not initialized")
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM file_processing_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete file record %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFileRecordNotFound
	}

	return nil
}

func scanFileRecord(row pgx.Row) (domain.FileProcessingRecord, error) {
	var (
		record      domain.FileProcessingRecord
		status      string
		processedAt pgtype.Timestamptz
		durationMs  int64
	)
	err := row.Scan(
		&record.ID,
		&record.UploadID,
		&record.FileName,
		&status,
		&record.UploadedAt,
		&processedAt,
		&durationMs,
		&record.ErrorDetail,
		&record.DetectedKpiCount,
		&record.RecordCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.FileProcessingRecord{}, err
	}
	if err != nil {
		return domain.FileProcessingRecord{}, fmt.Errorf("failed to scan file record: %w", err)
	}

	record.Status = domain.ProcessingStatus(status)
	record.Duration = time.Duration(durationMs) * time.Millisecond
	if processedAt.Valid {
		t := processedAt.Time
		record.ProcessedAt = &t
	}
	return record, nil
}
