package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MappingResult records one detected column-to-KPI association for one
// processing run. Results are immutable after creation; reprocessing a file
// writes a new set and supersedes the old one.
type MappingResult struct {
	ID               uuid.UUID       `json:"id"`
	FileID           uuid.UUID       `json:"fileId"`
	SourceColumn     string          `json:"sourceColumn"`
	KpiID            string          `json:"kpiId"`
	Confidence       float64         `json:"confidence"`
	ContributedValue decimal.Decimal `json:"contributedValue"`
	RecordCount      int             `json:"recordCount"`
	SkippedCells     int             `json:"skippedCells"`
	Unit             string          `json:"unit"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// UnmappedColumn reports a header that did not resolve above the confidence
// floor. Kept per run so a reviewer can inspect near misses.
type UnmappedColumn struct {
	FileID       uuid.UUID `json:"fileId"`
	SourceColumn string    `json:"sourceColumn"`
	BestKpiID    string    `json:"bestKpiId,omitempty"`
	BestScore    float64   `json:"bestScore"`
}
