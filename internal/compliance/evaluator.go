package compliance

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/esgboard/kpiledger/internal/domain"
	"github.com/esgboard/kpiledger/internal/taxonomy"
)

// Evaluator computes compliance reports from ledger snapshots. Evaluation is
// read-only; persisting the result is the caller's concern.
type Evaluator struct {
	registry *taxonomy.Registry
	clock    func() time.Time
}

// NewEvaluator creates an evaluator resolving KPI metadata from registry.
func NewEvaluator(registry *taxonomy.Registry) *Evaluator {
	return &Evaluator{registry: registry, clock: time.Now}
}

// WithClock overrides the evaluation clock, for tests and backdated sweeps.
func (e *Evaluator) WithClock(clock func() time.Time) *Evaluator {
	e.clock = clock
	return e
}

// Evaluate checks a snapshot against one standard. A required KPI is
// satisfied when present with a non-zero total and, if the standard declares
// a freshness window, updated within it. Missing KPIs past their due date
// are critical; the rest are warnings.
func (e *Evaluator) Evaluate(standard domain.ComplianceStandard, snapshot []domain.CumulativeKpiRecord) domain.ComplianceCheckResult {
	now := e.clock()

	byKpi := make(map[string]domain.CumulativeKpiRecord, len(snapshot))
	for _, record := range snapshot {
		byKpi[record.KpiID] = record
	}

	result := domain.ComplianceCheckResult{
		ID:            uuid.New(),
		StandardID:    standard.ID,
		Period:        now.Format("2006"),
		TotalRequired: len(standard.Required),
		Missing:       []domain.MissingKpi{},
		CheckedAt:     now,
	}

	satisfied := 0
	for _, required := range standard.Required {
		if e.satisfied(required, byKpi, standard.Freshness, now) {
			satisfied++
			continue
		}

		critical := required.DueDate != nil && now.After(*required.DueDate)
		missing := domain.MissingKpi{KpiID: required.KpiID, Critical: critical}
		if def, ok := e.registry.Get(required.KpiID); ok {
			missing.Name = def.Name
			missing.Category = def.Category
		}
		result.Missing = append(result.Missing, missing)
		if critical {
			result.CriticalMissing++
		} else {
			result.WarningMissing++
		}
	}

	if result.TotalRequired > 0 {
		rate := float64(satisfied) / float64(result.TotalRequired) * 100
		result.ComplianceRate = int(math.Round(rate))
	} else {
		result.ComplianceRate = 100
	}

	switch {
	case result.CriticalMissing > 0:
		result.Status = domain.ComplianceCritical
	case result.WarningMissing > 0:
		result.Status = domain.ComplianceWarning
	default:
		result.Status = domain.ComplianceOK
	}

	return result
}

func (e *Evaluator) satisfied(
	required domain.RequiredKpi,
	byKpi map[string]domain.CumulativeKpiRecord,
	freshness time.Duration,
	now time.Time,
) bool {
	record, ok := byKpi[required.KpiID]
	if !ok || record.TotalValue.IsZero() {
		return false
	}
	if len(record.ContributingFiles) == 0 {
		return false
	}
	if freshness > 0 && now.Sub(record.UpdatedAt) > freshness {
		return false
	}
	return true
}
