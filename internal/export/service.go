// Package export renders the current dashboard state as a downloadable
// XLSX report: one sheet of cumulative KPI totals, one sheet per standard's
// latest compliance check.
package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/esgboard/kpiledger/internal/catalog"
	"github.com/esgboard/kpiledger/internal/domain"
)

// Catalog is the slice of the query surface the report needs.
type Catalog interface {
	ListCumulativeKpis(ctx context.Context) ([]catalog.KpiView, error)
	GetMissingKpis(ctx context.Context, standardID string) (map[string][]domain.MissingKpi, error)
	GetComplianceHistory(ctx context.Context, standardID string, limit int) ([]domain.ComplianceCheckResult, error)
}

// Service builds XLSX reports from the catalog.
type Service struct {
	catalog Catalog
	logger  *logrus.Logger
}

// NewService creates the report exporter.
func NewService(cat Catalog, logger *logrus.Logger) *Service {
	return &Service{catalog: cat, logger: logger}
}

// WriteReport renders the report workbook to w.
func (s *Service) WriteReport(ctx context.Context, w io.Writer) error {
	workbook := excelize.NewFile()
	defer workbook.Close()

	if err := s.writeKpiSheet(ctx, workbook); err != nil {
		return err
	}
	if err := s.writeComplianceSheet(ctx, workbook); err != nil {
		return err
	}

	// The default sheet is replaced by the KPI sheet.
	workbook.DeleteSheet("Sheet1")

	if err := workbook.Write(w); err != nil {
		return fmt.Errorf("failed to write report workbook: %w", err)
	}

	s.logger.Info("exported kpi report")
	return nil
}

func (s *Service) writeKpiSheet(ctx context.Context, workbook *excelize.File) error {
	views, err := s.catalog.ListCumulativeKpis(ctx)
	if err != nil {
		return fmt.Errorf("failed to load cumulative kpis: %w", err)
	}

	const sheet = "Cumulative KPIs"
	if _, err := workbook.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}

	header := []any{"KPI", "Name", "Category", "Total", "Unit", "Contributing Files", "Updated At"}
	if err := workbook.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, view := range views {
		row := []any{
			view.KpiID,
			view.Name,
			string(view.Category),
			view.TotalValue.String(),
			view.Unit,
			view.FileCount,
			view.UpdatedAt.Format(time.RFC3339),
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := workbook.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write kpi row: %w", err)
		}
	}

	return nil
}

func (s *Service) writeComplianceSheet(ctx context.Context, workbook *excelize.File) error {
	missing, err := s.catalog.GetMissingKpis(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to evaluate compliance: %w", err)
	}
	history, err := s.catalog.GetComplianceHistory(ctx, "", 20)
	if err != nil {
		return fmt.Errorf("failed to load compliance history: %w", err)
	}

	const sheet = "Compliance"
	if _, err := workbook.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}

	header := []any{"Standard", "Missing KPI", "Name", "Severity"}
	if err := workbook.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	line := 2
	for standardID, kpis := range missing {
		for _, kpi := range kpis {
			severity := "warning"
			if kpi.Critical {
				severity = "critical"
			}
			row := []any{standardID, kpi.KpiID, kpi.Name, severity}
			if err := workbook.SetSheetRow(sheet, fmt.Sprintf("A%d", line), &row); err != nil {
				return fmt.Errorf("failed to write missing kpi row: %w", err)
			}
			line++
		}
	}

	line += 2
	historyHeader := []any{"Standard", "Checked At", "Rate", "Status", "Critical", "Warning"}
	if err := workbook.SetSheetRow(sheet, fmt.Sprintf("A%d", line), &historyHeader); err != nil {
		return fmt.Errorf("failed to write history header: %w", err)
	}
	line++
	for _, check := range history {
		row := []any{
			check.StandardID,
			check.CheckedAt.Format(time.RFC3339),
			check.ComplianceRate,
			string(check.Status),
			check.CriticalMissing,
			check.WarningMissing,
		}
		if err := workbook.SetSheetRow(sheet, fmt.Sprintf("A%d", line), &row); err != nil {
			return fmt.Errorf("failed to write history row: %w", err)
		}
		line++
	}

	return nil
}
