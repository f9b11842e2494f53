// Package compliance evaluates the cumulative ledger against declarative
// regulatory standards.
package compliance

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/esgboard/kpiledger/internal/domain"
)

// LoadStandards reads compliance standards from a YAML file.
func LoadStandards(path string) ([]domain.ComplianceStandard, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read standards file: %w", err)
	}

	var doc struct {
		Standards []domain.ComplianceStandard `yaml:"standards"`
	}
	if err := yaml.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse standards file: %w", err)
	}
	return doc.Standards, nil
}

// DefaultStandards is the built-in ISSB and CSRD declaration used when no
// standards file is configured. Both carry a 365 day freshness window.
func DefaultStandards(now time.Time) []domain.ComplianceStandard {
	yearEnd := time.Date(now.Year(), 12, 31, 23, 59, 59, 0, time.UTC)

	return []domain.ComplianceStandard{
		{
			ID:   "ISSB",
			Name: "IFRS Sustainability Disclosure Standards",
			Required: []domain.RequiredKpi{
				{KpiID: "CO2_SCOPE1", DueDate: &yearEnd},
				{KpiID: "CO2_SCOPE2", DueDate: &yearEnd},
				{KpiID: "CO2_SCOPE3"},
				{KpiID: "ENERGY_USAGE"},
			},
			Freshness: 365 * 24 * time.Hour,
			Enabled:   true,
		},
		{
			ID:   "CSRD",
			Name: "Corporate Sustainability Reporting Directive",
			Required: []domain.RequiredKpi{
				{KpiID: "CO2_SCOPE1", DueDate: &yearEnd},
				{KpiID: "CO2_SCOPE2", DueDate: &yearEnd},
				{KpiID: "ENERGY_USAGE", DueDate: &yearEnd},
				{KpiID: "WATER_USAGE"},
				{KpiID: "WASTE_GENERATED"},
				{KpiID: "EMPLOYEE_HEADCOUNT"},
				{KpiID: "FEMALE_LEADERSHIP_RATIO"},
				{KpiID: "LOST_TIME_INJURIES"},
				{KpiID: "BOARD_INDEPENDENCE_RATIO"},
			},
			Freshness: 365 * 24 * time.Hour,
			Enabled:   true,
		},
	}
}
