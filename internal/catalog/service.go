// Package catalog is the read-side query surface consumed by the dashboard
// and the notification feed.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/esgboard/kpiledger/internal/compliance"
	"github.com/esgboard/kpiledger/internal/domain"
	"github.com/esgboard/kpiledger/internal/ledger"
	"github.com/esgboard/kpiledger/internal/repository"
	"github.com/esgboard/kpiledger/internal/taxonomy"
)

// KpiView joins a cumulative record with its taxonomy metadata.
type KpiView struct {
	KpiID      string             `json:"kpiId"`
	Name       string             `json:"name"`
	Category   domain.KpiCategory `json:"category"`
	TotalValue decimal.Decimal    `json:"totalValue"`
	Unit       string             `json:"unit"`
	FileCount  int                `json:"fileCount"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

// Stats summarizes the ledger for the dashboard header.
type Stats struct {
	TotalKpisTracked int                        `json:"totalKpisTracked"`
	KpisByCategory   map[domain.KpiCategory]int `json:"kpisByCategory"`
	TotalFiles       int                        `json:"totalFiles"`
	LastUpdatedAt    *time.Time                 `json:"lastUpdatedAt,omitempty"`
}

// FileDetails bundles a file record with its mapping run.
type FileDetails struct {
	File     domain.FileProcessingRecord `json:"file"`
	Results  []domain.MappingResult      `json:"results"`
	Unmapped []domain.UnmappedColumn     `json:"unmapped"`
}

// Service answers dashboard queries. All operations are read-only except
// MarkNotificationRead.
type Service struct {
	ledger        *ledger.Service
	registry      *taxonomy.Registry
	evaluator     *compliance.Evaluator
	standards     []domain.ComplianceStandard
	files         repository.FileRepository
	mappings      repository.MappingResultRepository
	checks        repository.ComplianceRepository
	notifications repository.NotificationRepository
}

// NewService wires the query surface.
func NewService(
	ledgerService *ledger.Service,
	registry *taxonomy.Registry,
	evaluator *compliance.Evaluator,
	standards []domain.ComplianceStandard,
	files repository.FileRepository,
	mappings repository.MappingResultRepository,
	checks repository.ComplianceRepository,
	notifications repository.NotificationRepository,
) *Service {
	return &Service{
		ledger:        ledgerService,
		registry:      registry,
		evaluator:     evaluator,
		standards:     standards,
		files:         files,
		mappings:      mappings,
		checks:        checks,
		notifications: notifications,
	}
}

// ListCumulativeKpis returns every tracked KPI with its current total.
func (s *Service) ListCumulativeKpis(ctx context.Context) ([]KpiView, error) {
	snapshot, err := s.ledger.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot ledger: %w", err)
	}

	views := make([]KpiView, 0, len(snapshot))
	for _, record := range snapshot {
		view := KpiView{
			KpiID:      record.KpiID,
			TotalValue: record.TotalValue,
			Unit:       record.Unit,
			FileCount:  len(record.ContributingFiles),
			UpdatedAt:  record.UpdatedAt,
		}
		if def, ok := s.registry.Get(record.KpiID); ok {
			view.Name = def.Name
			view.Category = def.Category
		}
		views = append(views, view)
	}
	return views, nil
}

// GetMissingKpis evaluates the current snapshot live and returns the missing
// entries per standard without persisting a check result.
func (s *Service) GetMissingKpis(ctx context.Context, standardID string) (map[string][]domain.MissingKpi, error) {
	snapshot, err := s.ledger.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot ledger: %w", err)
	}

	missing := make(map[string][]domain.MissingKpi)
	for _, standard := range s.standards {
		if !standard.Enabled {
			continue
		}
		if standardID != "" && standard.ID != standardID {
			continue
		}
		result := s.evaluator.Evaluate(standard, snapshot)
		missing[standard.ID] = result.Missing
	}
	return missing, nil
}

// GetCumulativeStats summarizes ledger coverage for the dashboard.
func (s *Service) GetCumulativeStats(ctx context.Context) (Stats, error) {
	snapshot, err := s.ledger.Snapshot(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to snapshot ledger: %w", err)
	}

	stats := Stats{KpisByCategory: make(map[domain.KpiCategory]int)}
	for _, record := range snapshot {
		stats.TotalKpisTracked++
		if def, ok := s.registry.Get(record.KpiID); ok {
			stats.KpisByCategory[def.Category]++
		}
		if stats.LastUpdatedAt == nil || record.UpdatedAt.After(*stats.LastUpdatedAt) {
			updated := record.UpdatedAt
			stats.LastUpdatedAt = &updated
		}
	}

	_, total, err := s.files.List(ctx, 1, 1)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count files: %w", err)
	}
	stats.TotalFiles = total
	return stats, nil
}

// GetFileHistory returns the paginated upload history, newest first.
func (s *Service) GetFileHistory(ctx context.Context, page int, limit int) ([]domain.FileProcessingRecord, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 20
	}
	return s.files.List(ctx, page, limit)
}

// GetFileDetails returns one file with its full mapping run.
func (s *Service) GetFileDetails(ctx context.Context, fileID uuid.UUID) (FileDetails, error) {
	record, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		return FileDetails{}, fmt.Errorf("failed to load file %s: %w", fileID, err)
	}
	results, unmapped, err := s.mappings.ListByFile(ctx, fileID)
	if err != nil {
		return FileDetails{}, fmt.Errorf("failed to load mapping results: %w", err)
	}
	return FileDetails{File: record, Results: results, Unmapped: unmapped}, nil
}

// GetComplianceHistory returns persisted check results, newest first,
// optionally filtered to one standard.
func (s *Service) GetComplianceHistory(ctx context.Context, standardID string, limit int) ([]domain.ComplianceCheckResult, error) {
	if limit < 1 || limit > 500 {
		limit = 50
	}
	return s.checks.List(ctx, standardID, limit)
}

// ListNotifications returns the notification feed.
func (s *Service) ListNotifications(ctx context.Context, limit int, unreadOnly bool) ([]domain.Notification, error) {
	if limit < 1 || limit > 500 {
		limit = 50
	}
	return s.notifications.List(ctx, limit, unreadOnly)
}

// MarkNotificationRead flips one notification's read flag.
func (s *Service) MarkNotificationRead(ctx context.Context, id uuid.UUID) error {
	return s.notifications.MarkRead(ctx, id)
}

// UnreadNotificationCount returns the badge counter.
func (s *Service) UnreadNotificationCount(ctx context.Context) (int, error) {
	return s.notifications.UnreadCount(ctx)
}
