package domain

import (
	"time"

	"github.com/google/uuid"
)

// ComplianceStatus is the overall verdict of one compliance check.
type ComplianceStatus string

const (
	ComplianceOK       ComplianceStatus = "ok"
	ComplianceWarning  ComplianceStatus = "warning"
	ComplianceCritical ComplianceStatus = "critical"
)

// RequiredKpi is one entry in a standard's required KPI set. DueDate, when
// set, escalates a missing KPI from warning to critical once passed.
type RequiredKpi struct {
	KpiID   string     `json:"kpiId" yaml:"kpi_id"`
	DueDate *time.Time `json:"dueDate,omitempty" yaml:"due_date,omitempty"`
}

// ComplianceStandard declares one regulatory standard (e.g. ISSB, CSRD) as a
// required KPI set plus an optional freshness window. A zero freshness window
// means presence alone satisfies the requirement.
type ComplianceStandard struct {
	ID        string        `json:"id" yaml:"id"`
	Name      string        `json:"name" yaml:"name"`
	Required  []RequiredKpi `json:"required" yaml:"required"`
	Freshness time.Duration `json:"freshness" yaml:"freshness"`
	Enabled   bool          `json:"enabled" yaml:"enabled"`
}

// MissingKpi identifies one required KPI absent (or stale) in the ledger.
type MissingKpi struct {
	KpiID    string      `json:"kpiId"`
	Name     string      `json:"name"`
	Category KpiCategory `json:"category"`
	Critical bool        `json:"critical"`
}

// ComplianceCheckResult is one point-in-time evaluation of the ledger against
// one standard. Results are append-only history, never mutated.
type ComplianceCheckResult struct {
	ID              uuid.UUID        `json:"id"`
	StandardID      string           `json:"standardId"`
	Period          string           `json:"period"`
	TotalRequired   int              `json:"totalRequired"`
	CriticalMissing int              `json:"criticalMissing"`
	WarningMissing  int              `json:"warningMissing"`
	ComplianceRate  int              `json:"complianceRate"`
	Status          ComplianceStatus `json:"status"`
	Missing         []MissingKpi     `json:"missing"`
	CheckedAt       time.Time        `json:"checkedAt"`
}
