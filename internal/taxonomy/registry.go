// Package taxonomy holds the standard KPI registry and resolves free-text
// column identifiers against it.
package taxonomy

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/esgboard/kpiledger/internal/domain"
)

var identifierPattern = regexp.MustCompile(`[^A-Z0-9]+`)

// NormalizeIdentifier uppercases a raw column identifier and collapses every
// non-alphanumeric run into a single underscore.
func NormalizeIdentifier(raw string) string {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	normalized = identifierPattern.ReplaceAllString(normalized, "_")
	return strings.Trim(normalized, "_")
}

// Registry indexes active KPI definitions by canonical id and by normalized
// alias for resolution.
type Registry struct {
	defs       map[string]domain.StandardKpiDefinition
	aliasIndex map[string]string
}

// NewRegistry builds a registry from definitions, skipping inactive ones.
func NewRegistry(defs []domain.StandardKpiDefinition) *Registry {
	r := &Registry{
		defs:       make(map[string]domain.StandardKpiDefinition),
		aliasIndex: make(map[string]string),
	}
	for _, def := range defs {
		if !def.Active {
			continue
		}
		r.defs[def.ID] = def
		r.aliasIndex[NormalizeIdentifier(def.ID)] = def.ID
		for _, alias := range def.Aliases {
			r.aliasIndex[NormalizeIdentifier(alias)] = def.ID
		}
	}
	return r
}

// Get returns the definition for a canonical KPI id.
func (r *Registry) Get(kpiID string) (domain.StandardKpiDefinition, bool) {
	def, ok := r.defs[kpiID]
	return def, ok
}

// List returns all active definitions sorted by id.
func (r *Registry) List() []domain.StandardKpiDefinition {
	defs := make([]domain.StandardKpiDefinition, 0, len(r.defs))
	for _, def := range r.defs {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs
}

// Len returns the number of active definitions.
func (r *Registry) Len() int {
	return len(r.defs)
}

// LoadDefinitions reads KPI definitions from a YAML seed file.
func LoadDefinitions(path string) ([]domain.StandardKpiDefinition, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read kpi seed file: %w", err)
	}

	var doc struct {
		Kpis []domain.StandardKpiDefinition `yaml:"kpis"`
	}
	if err := yaml.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse kpi seed file: %w", err)
	}

	for i := range doc.Kpis {
		if doc.Kpis[i].Aggregation == "" {
			doc.Kpis[i].Aggregation = domain.AggregationSum
		}
	}
	return doc.Kpis, nil
}

// DefaultDefinitions is the built-in KPI taxonomy used when no seed file is
// configured.
func DefaultDefinitions() []domain.StandardKpiDefinition {
	return []domain.StandardKpiDefinition{
		{
			ID:       "CO2_SCOPE1",
			Name:     "Scope 1 GHG Emissions",
			Category: domain.CategoryEnvironment,
			BaseUnit: "kg",
			Aliases: []string{
				"SCOPE1_EMISSIONS", "SCOPE_1_EMISSIONS", "GHG_SCOPE1",
				"DIRECT_EMISSIONS", "SCOPE1_CO2", "CO2_DIRECT",
			},
			Aggregation: domain.AggregationSum,
			Active:      true,
		},
		{
			ID:       "CO2_SCOPE2",
			Name:     "Scope 2 GHG Emissions",
			Category: domain.CategoryEnvironment,
			BaseUnit: "kg",
			Aliases: []string{
				"SCOPE2_EMISSIONS", "SCOPE_2_EMISSIONS", "GHG_SCOPE2",
				"INDIRECT_EMISSIONS", "ENERGY_INDIRECT_EMISSIONS",
			},
			Aggregation: domain.AggregationSum,
			Active:      true,
		},
		{
			ID:       "CO2_SCOPE3",
			Name:     "Scope 3 GHG Emissions",
			Category: domain.CategoryEnvironment,
			BaseUnit: "kg",
			Aliases: []string{
				"SCOPE3_EMISSIONS", "SCOPE_3_EMISSIONS", "GHG_SCOPE3",
				"VALUE_CHAIN_EMISSIONS",
			},
			Aggregation: domain.AggregationSum,
			Active:      true,
		},
		{
			ID:       "ENERGY_USAGE",
			Name:     "Total Energy Consumption",
			Category: domain.CategoryEnvironment,
			BaseUnit: "kwh",
			Aliases: []string{
				"ENERGY_CONSUMPTION", "TOTAL_ENERGY", "POWER_CONSUMPTION",
				"ELECTRICITY_USAGE", "ENERGY_USE",
			},
			Aggregation: domain.AggregationSum,
			Active:      true,
		},
		{
			ID:       "RENEWABLE_ENERGY_SHARE",
			Name:     "Renewable Energy Share",
			Category: domain.CategoryEnvironment,
			BaseUnit: "pct",
			Aliases: []string{
				"RENEWABLES_SHARE", "RENEWABLE_PERCENTAGE", "GREEN_ENERGY_SHARE",
			},
			Aggregation: domain.AggregationLatest,
			Active:      true,
		},
		{
			ID:       "WATER_USAGE",
			Name:     "Water Withdrawal",
			Category: domain.CategoryEnvironment,
			BaseUnit: "m3",
			Aliases: []string{
				"WATER_CONSUMPTION", "WATER_WITHDRAWAL", "TOTAL_WATER",
			},
			Aggregation: domain.AggregationSum,
			Active:      true,
		},
		{
			ID:       "WASTE_GENERATED",
			Name:     "Waste Generated",
			Category: domain.CategoryEnvironment,
			BaseUnit: "kg",
			Aliases: []string{
				"TOTAL_WASTE", "WASTE_PRODUCED", "WASTE_OUTPUT",
			},
			Aggregation: domain.AggregationSum,
			Active:      true,
		},
		{
			ID:       "EMPLOYEE_HEADCOUNT",
			Name:     "Employee Headcount",
			Category: domain.CategorySocial,
			BaseUnit: "count",
			Aliases: []string{
				"HEADCOUNT", "TOTAL_EMPLOYEES", "FTE", "EMPLOYEE_COUNT",
				"WORKFORCE_SIZE",
			},
			Aggregation: domain.AggregationLatest,
			Active:      true,
		},
		{
			ID:       "FEMALE_LEADERSHIP_RATIO",
			Name:     "Female Leadership Ratio",
			Category: domain.CategorySocial,
			BaseUnit: "pct",
			Aliases: []string{
				"WOMEN_IN_LEADERSHIP", "FEMALE_MANAGEMENT_SHARE",
				"GENDER_DIVERSITY_LEADERSHIP",
			},
			Aggregation: domain.AggregationLatest,
			Active:      true,
		},
		{
			ID:       "TRAINING_HOURS",
			Name:     "Employee Training Hours",
			Category: domain.CategorySocial,
			BaseUnit: "h",
			Aliases: []string{
				"TRAINING_TIME", "LEARNING_HOURS", "TOTAL_TRAINING_HOURS",
			},
			Aggregation: domain.AggregationSum,
			Active:      true,
		},
		{
			ID:       "LOST_TIME_INJURIES",
			Name:     "Lost Time Injuries",
			Category: domain.CategorySocial,
			BaseUnit: "count",
			Aliases: []string{
				"LTI", "LTI_COUNT", "ACCIDENT_COUNT", "WORKPLACE_INJURIES",
			},
			Aggregation: domain.AggregationSum,
			Active:      true,
		},
		{
			ID:       "BOARD_INDEPENDENCE_RATIO",
			Name:     "Board Independence Ratio",
			Category: domain.CategoryGovernance,
			BaseUnit: "pct",
			Aliases: []string{
				"INDEPENDENT_DIRECTORS_SHARE", "BOARD_INDEPENDENCE",
			},
			Aggregation: domain.AggregationLatest,
			Active:      true,
		},
	}
}
