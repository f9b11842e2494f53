package compliance

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/esgboard/kpiledger/internal/domain"
	"github.com/esgboard/kpiledger/internal/taxonomy"
)

var evalTime = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func newEvaluator() *Evaluator {
	registry := taxonomy.NewRegistry(taxonomy.DefaultDefinitions())
	return NewEvaluator(registry).WithClock(func() time.Time { return evalTime })
}

func record(kpiID string, value string, updatedAt time.Time) domain.CumulativeKpiRecord {
	return domain.CumulativeKpiRecord{
		KpiID:             kpiID,
		TotalValue:        decimal.RequireFromString(value),
		ContributingFiles: []string{"file-1"},
		UpdatedAt:         updatedAt,
	}
}

func standard(required ...domain.RequiredKpi) domain.ComplianceStandard {
	return domain.ComplianceStandard{
		ID:       "TEST",
		Name:     "Test Standard",
		Required: required,
		Enabled:  true,
	}
}

func TestEvaluatePartialCompliance(t *testing.T) {
	evaluator := newEvaluator()
	std := standard(
		domain.RequiredKpi{KpiID: "CO2_SCOPE1"},
		domain.RequiredKpi{KpiID: "CO2_SCOPE2"},
		domain.RequiredKpi{KpiID: "ENERGY_USAGE"},
	)
	snapshot := []domain.CumulativeKpiRecord{record("CO2_SCOPE1", "150", evalTime)}

	result := evaluator.Evaluate(std, snapshot)

	if result.ComplianceRate != 33 {
		t.Fatalf("expected rate 33, got %d", result.ComplianceRate)
	}
	if len(result.Missing) != 2 {
		t.Fatalf("expected 2 missing KPIs, got %d", len(result.Missing))
	}
	if result.Status != domain.ComplianceWarning {
		t.Fatalf("expected warning status, got %s", result.Status)
	}
	for _, missing := range result.Missing {
		if missing.Name == "" {
			t.Errorf("missing KPI %s lacks display name", missing.KpiID)
		}
	}
}

func TestEvaluateFullCompliance(t *testing.T) {
	evaluator := newEvaluator()
	std := standard(
		domain.RequiredKpi{KpiID: "CO2_SCOPE1"},
		domain.RequiredKpi{KpiID: "ENERGY_USAGE"},
	)
	snapshot := []domain.CumulativeKpiRecord{
		record("CO2_SCOPE1", "150", evalTime),
		record("ENERGY_USAGE", "900", evalTime),
	}

	result := evaluator.Evaluate(std, snapshot)

	if result.Status != domain.ComplianceOK || result.ComplianceRate != 100 {
		t.Fatalf("expected ok/100, got %s/%d", result.Status, result.ComplianceRate)
	}
	if len(result.Missing) != 0 {
		t.Fatalf("expected no missing KPIs, got %d", len(result.Missing))
	}
}

func TestEvaluatePastDueIsCritical(t *testing.T) {
	evaluator := newEvaluator()
	pastDue := evalTime.Add(-24 * time.Hour)
	std := standard(domain.RequiredKpi{KpiID: "CO2_SCOPE1", DueDate: &pastDue})

	result := evaluator.Evaluate(std, nil)

	if result.Status != domain.ComplianceCritical {
		t.Fatalf("expected critical, got %s", result.Status)
	}
	if result.CriticalMissing != 1 || result.WarningMissing != 0 {
		t.Fatalf("unexpected missing counts: critical=%d warning=%d", result.CriticalMissing, result.WarningMissing)
	}
	if !result.Missing[0].Critical {
		t.Fatal("missing entry should be flagged critical")
	}
}

func TestEvaluateStaleValueIsMissing(t *testing.T) {
	evaluator := newEvaluator()
	std := standard(domain.RequiredKpi{KpiID: "CO2_SCOPE1"})
	std.Freshness = 30 * 24 * time.Hour

	stale := []domain.CumulativeKpiRecord{record("CO2_SCOPE1", "150", evalTime.Add(-60*24*time.Hour))}
	result := evaluator.Evaluate(std, stale)
	if result.Status != domain.ComplianceWarning {
		t.Fatalf("stale value must count as missing, got %s", result.Status)
	}

	fresh := []domain.CumulativeKpiRecord{record("CO2_SCOPE1", "150", evalTime.Add(-10*24*time.Hour))}
	result = evaluator.Evaluate(std, fresh)
	if result.Status != domain.ComplianceOK {
		t.Fatalf("fresh value must satisfy, got %s", result.Status)
	}
}

func TestEvaluateZeroTotalIsMissing(t *testing.T) {
	evaluator := newEvaluator()
	std := standard(domain.RequiredKpi{KpiID: "CO2_SCOPE1"})
	snapshot := []domain.CumulativeKpiRecord{record("CO2_SCOPE1", "0", evalTime)}

	result := evaluator.Evaluate(std, snapshot)
	if result.Status != domain.ComplianceWarning {
		t.Fatalf("zero total must count as missing, got %s", result.Status)
	}
}

func TestComplianceRateBounds(t *testing.T) {
	evaluator := newEvaluator()

	empty := evaluator.Evaluate(standard(), nil)
	if empty.ComplianceRate != 100 {
		t.Fatalf("empty standard should report 100, got %d", empty.ComplianceRate)
	}

	defs := taxonomy.DefaultDefinitions()
	for n := 1; n <= len(defs); n++ {
		required := make([]domain.RequiredKpi, 0, n)
		for i := 0; i < n; i++ {
			required = append(required, domain.RequiredKpi{KpiID: defs[i].ID})
		}
		for present := 0; present <= n; present++ {
			snapshot := make([]domain.CumulativeKpiRecord, 0, present)
			for i := 0; i < present; i++ {
				snapshot = append(snapshot, record(defs[i].ID, "10", evalTime))
			}
			result := evaluator.Evaluate(standard(required...), snapshot)
			if result.ComplianceRate < 0 || result.ComplianceRate > 100 {
				t.Fatalf("rate out of bounds: %d (n=%d, present=%d)", result.ComplianceRate, n, present)
			}
		}
	}
}

func TestDefaultStandardsEnabled(t *testing.T) {
	standards := DefaultStandards(evalTime)
	if len(standards) != 2 {
		t.Fatalf("expected ISSB and CSRD, got %d standards", len(standards))
	}
	for _, std := range standards {
		if !std.Enabled {
			t.Errorf("standard %s should be enabled", std.ID)
		}
		if len(std.Required) == 0 {
			t.Errorf("standard %s has no required KPIs", std.ID)
		}
	}
}
