// Package mapping turns uploaded CSV or XLSX payloads into MappingResults
// ready for the cumulative ledger.
package mapping

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/esgboard/kpiledger/internal/domain"
	"github.com/esgboard/kpiledger/internal/taxonomy"
	"github.com/esgboard/kpiledger/internal/units"
)

// ErrUnsupportedFormat is returned when an uploaded file is not supported.
var ErrUnsupportedFormat = errors.New("unsupported file format")

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// ParseError marks a structurally malformed upload. The file transitions to
// ERROR before any mapping begins and the ledger is never touched.
type ParseError struct {
	FileName string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", e.FileName, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Outcome is the full result of mapping one file: resolved columns,
// unresolved columns kept for review, and data-quality counters.
type Outcome struct {
	Results      []domain.MappingResult
	Unmapped     []domain.UnmappedColumn
	TotalRows    int
	SkippedCells int
}

// Engine maps parsed tables onto the KPI taxonomy.
type Engine struct {
	registry *taxonomy.Registry
	logger   *logrus.Logger
}

// NewEngine creates a mapping engine over the given registry.
func NewEngine(registry *taxonomy.Registry, logger *logrus.Logger) *Engine {
	return &Engine{registry: registry, logger: logger}
}

type tableData struct {
	headers []string
	rows    [][]string
}

// MapFile parses the payload and produces one MappingResult per resolved
// column. A header-only file maps to an empty outcome; a file with zero
// resolved columns is a zero-mapping outcome, not an error.
func (e *Engine) MapFile(fileID uuid.UUID, fileName string, payload []byte) (Outcome, error) {
	outcome := Outcome{
		Results:  []domain.MappingResult{},
		Unmapped: []domain.UnmappedColumn{},
	}

	table, err := parseTable(fileName, payload)
	if err != nil {
		return outcome, &ParseError{FileName: fileName, Err: err}
	}
	outcome.TotalRows = len(table.rows)

	for colIdx, header := range table.headers {
		resolution, declaredUnit := e.resolveHeader(header)

		switch resolution := resolution.(type) {
		case taxonomy.Resolved:
			def, ok := e.registry.Get(resolution.KpiID)
			if !ok {
				// Resolver and registry share an index; a miss here is a bug.
				return outcome, fmt.Errorf("resolved kpi %s missing from registry", resolution.KpiID)
			}

			result, convErr := e.extractColumn(fileID, def, header, declaredUnit, colIdx, table.rows)
			if convErr != nil {
				// Unit problems fail the column, not the file.
				e.logger.WithFields(logrus.Fields{
					"file":   fileName,
					"column": header,
					"kpi":    def.ID,
				}).Warnf("column skipped: %v", convErr)
				outcome.Unmapped = append(outcome.Unmapped, domain.UnmappedColumn{
					FileID:       fileID,
					SourceColumn: header,
					BestKpiID:    def.ID,
					BestScore:    resolution.Confidence,
				})
				continue
			}

			result.Confidence = resolution.Confidence
			outcome.SkippedCells += result.SkippedCells
			if result.RecordCount == 0 {
				// Column resolved but held no numeric data; nothing to apply.
				continue
			}
			outcome.Results = append(outcome.Results, result)

		case taxonomy.Unresolved:
			outcome.Unmapped = append(outcome.Unmapped, domain.UnmappedColumn{
				FileID:       fileID,
				SourceColumn: header,
				BestKpiID:    resolution.BestKpiID,
				BestScore:    resolution.BestScore,
			})
		}
	}

	return outcome, nil
}

// extractColumn aggregates one resolved column into a unit-normalized
// MappingResult. Non-numeric cells are skipped and counted.
func (e *Engine) extractColumn(
	fileID uuid.UUID,
	def domain.StandardKpiDefinition,
	header string,
	declaredUnit string,
	colIdx int,
	rows [][]string,
) (domain.MappingResult, error) {
	sum := decimal.Zero
	var latest decimal.Decimal
	recordCount := 0
	skipped := 0

	for _, row := range rows {
		if colIdx >= len(row) {
			continue
		}
		raw := strings.TrimSpace(row[colIdx])
		if raw == "" {
			continue
		}

		value, err := parseNumeric(raw)
		if err != nil {
			skipped++
			continue
		}

		sum = sum.Add(value)
		latest = value
		recordCount++
	}

	aggregated := sum
	if def.Aggregation == domain.AggregationLatest {
		aggregated = latest
	}

	sourceUnit := declaredUnit
	if sourceUnit == "" {
		sourceUnit = def.BaseUnit
	}
	normalized, err := units.Normalize(aggregated, sourceUnit, def.BaseUnit)
	if err != nil {
		return domain.MappingResult{}, err
	}

	return domain.MappingResult{
		ID:               uuid.New(),
		FileID:           fileID,
		SourceColumn:     header,
		KpiID:            def.ID,
		ContributedValue: normalized,
		RecordCount:      recordCount,
		SkippedCells:     skipped,
		Unit:             def.BaseUnit,
	}, nil
}

// parseNumeric accepts plain and thousands-separated decimal values.
func parseNumeric(raw string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(raw, ",", "")
	cleaned = strings.TrimSpace(cleaned)
	return decimal.NewFromString(cleaned)
}

// resolveHeader resolves one header against the taxonomy, honouring a
// declared unit embedded either as a parenthesized suffix ("CO2_SCOPE1 (t)")
// or a trailing token ("energy_usage_kwh"). An exact match on the full
// identifier always wins; the trailing token is only treated as a unit when
// stripping it resolves better.
func (e *Engine) resolveHeader(header string) (taxonomy.Resolution, string) {
	identifier, declaredUnit := splitParenUnit(header)

	resolution := e.registry.Resolve(identifier)
	if resolved, ok := resolution.(taxonomy.Resolved); ok && resolved.Confidence == 1.0 {
		return resolution, declaredUnit
	}

	normalized := taxonomy.NormalizeIdentifier(identifier)
	if idx := strings.LastIndex(normalized, "_"); idx != -1 {
		if symbol, ok := units.Canonical(normalized[idx+1:]); ok {
			stripped := e.registry.Resolve(normalized[:idx])
			if better(stripped, resolution) {
				return stripped, symbol
			}
		}
	}

	return resolution, declaredUnit
}

// better reports whether resolution a is a stronger outcome than b.
func better(a, b taxonomy.Resolution) bool {
	resolvedA, okA := a.(taxonomy.Resolved)
	if !okA {
		return false
	}
	resolvedB, okB := b.(taxonomy.Resolved)
	if !okB {
		return true
	}
	return resolvedA.Confidence > resolvedB.Confidence
}

// splitParenUnit strips a parenthesized unit suffix from a header when the
// content names a known unit.
func splitParenUnit(header string) (string, string) {
	trimmed := strings.TrimSpace(header)

	if open := strings.LastIndex(trimmed, "("); open != -1 && strings.HasSuffix(trimmed, ")") {
		candidate := trimmed[open+1 : len(trimmed)-1]
		if symbol, ok := units.Canonical(candidate); ok {
			return strings.TrimSpace(trimmed[:open]), symbol
		}
	}

	return trimmed, ""
}

func parseTable(fileName string, payload []byte) (tableData, error) {
	if len(payload) == 0 {
		return tableData{}, errors.New("file is empty")
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return parseCSV(payload)
	case ".xlsx":
		return parseExcel(payload)
	default:
		return tableData{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte) (tableData, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return tableData{}, fmt.Errorf("failed to read csv: %w", err)
	}

	return normalizeTable(records)
}

func parseExcel(payload []byte) (tableData, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return tableData{}, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return tableData{}, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return tableData{}, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}

	return normalizeTable(rows)
}

func normalizeTable(records [][]string) (tableData, error) {
	var headers []string
	var rows [][]string

	for _, record := range records {
		if len(cleanRow(record)) == 0 {
			continue
		}
		if headers == nil {
			headers = make([]string, len(record))
			for i, cell := range record {
				headers[i] = strings.TrimSpace(cell)
			}
			continue
		}
		rows = append(rows, record)
	}

	if headers == nil {
		return tableData{}, errors.New("no header row detected")
	}

	return tableData{headers: headers, rows: rows}, nil
}

func cleanRow(row []string) []string {
	var cleaned []string
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			cleaned = append(cleaned, cell)
		}
	}
	return cleaned
}
