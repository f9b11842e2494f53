package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/esgboard/kpiledger/internal/domain"
)

// KpiDefinitionRepository stores the seeded KPI taxonomy.
type KpiDefinitionRepository interface {
	Upsert(ctx context.Context, def domain.StandardKpiDefinition) error
	List(ctx context.Context) ([]domain.StandardKpiDefinition, error)
}

// FileRepository stores file processing records and the raw upload payloads
// needed for reprocessing.
type FileRepository interface {
	Create(ctx context.Context, record domain.FileProcessingRecord, payload []byte) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.FileProcessingRecord, error)
	GetPayload(ctx context.Context, id uuid.UUID) ([]byte, error)
	Update(ctx context.Context, record domain.FileProcessingRecord) error
	List(ctx context.Context, page int, limit int) ([]domain.FileProcessingRecord, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// MappingResultRepository stores mapping results per processing run. A
// reprocess replaces the file's whole set; results are never updated in
// place.
type MappingResultRepository interface {
	ReplaceForFile(ctx context.Context, fileID uuid.UUID, results []domain.MappingResult, unmapped []domain.UnmappedColumn) error
	ListByFile(ctx context.Context, fileID uuid.UUID) ([]domain.MappingResult, []domain.UnmappedColumn, error)
	DeleteForFile(ctx context.Context, fileID uuid.UUID) error
}

// ComplianceRepository stores check results as append-only history.
type ComplianceRepository interface {
	Record(ctx context.Context, result domain.ComplianceCheckResult) error
	List(ctx context.Context, standardID string, limit int) ([]domain.ComplianceCheckResult, error)
	Latest(ctx context.Context, standardID string) (domain.ComplianceCheckResult, bool, error)
}

// NotificationRepository stores user-facing notifications; only the read
// flag is ever mutated.
type NotificationRepository interface {
	Create(ctx context.Context, notification domain.Notification) error
	List(ctx context.Context, limit int, unreadOnly bool) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
	UnreadCount(ctx context.Context) (int, error)
}
