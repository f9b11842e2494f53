package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// KpiCategory buckets a standard KPI into one of the ESG pillars.
type KpiCategory string

const (
	CategoryEnvironment KpiCategory = "environment"
	CategorySocial      KpiCategory = "social"
	CategoryGovernance  KpiCategory = "governance"
)

// AggregationPolicy decides how column values are folded into one
// contributed value. Flow metrics (emissions, water, waste) sum across rows;
// stock metrics (headcount, ratios) take the latest reported value.
type AggregationPolicy string

const (
	AggregationSum    AggregationPolicy = "sum"
	AggregationLatest AggregationPolicy = "latest"
)

// StandardKpiDefinition is canonical reference data describing one KPI in the
// taxonomy. Definitions are created by administrative seeding only; the
// processing pipeline never mutates them.
type StandardKpiDefinition struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Category    KpiCategory       `json:"category" yaml:"category"`
	BaseUnit    string            `json:"baseUnit" yaml:"base_unit"`
	Aliases     []string          `json:"aliases" yaml:"aliases"`
	Aggregation AggregationPolicy `json:"aggregation" yaml:"aggregation"`
	Active      bool              `json:"active" yaml:"active"`
}

// CumulativeKpiRecord is the authoritative running total for one standard
// KPI. It is mutated exclusively through the ledger's apply and reverse
// operations; the invariant is that TotalValue equals the sum of the
// contributions of every file currently in ContributingFiles.
type CumulativeKpiRecord struct {
	KpiID             string          `json:"kpiId"`
	TotalValue        decimal.Decimal `json:"totalValue"`
	Unit              string          `json:"unit"`
	ContributingFiles []string        `json:"contributingFiles"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// HasContributor reports whether fileID is currently part of this record's
// contributor list.
func (r CumulativeKpiRecord) HasContributor(fileID string) bool {
	for _, id := range r.ContributingFiles {
		if id == fileID {
			return true
		}
	}
	return false
}
