// Package validator checks seed data before it reaches the database. Seeds
// are operator-authored YAML, so mistakes like colliding aliases or unknown
// units need to fail startup loudly instead of corrupting mappings later.
package validator

import (
	"fmt"
	"strings"

	"github.com/esgboard/kpiledger/internal/domain"
	"github.com/esgboard/kpiledger/internal/taxonomy"
	"github.com/esgboard/kpiledger/internal/units"
)

// ValidationError describes one problem found in the seed data.
type ValidationError struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Subject, e.Message)
}

// ValidationErrors aggregates every problem so an operator can fix the whole
// file in one pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	messages := make([]string, len(e))
	for i, err := range e {
		messages[i] = err.Error()
	}
	return strings.Join(messages, "; ")
}

// SeedValidator validates KPI definitions and compliance standards.
type SeedValidator struct{}

// NewSeedValidator creates a seed validator.
func NewSeedValidator() *SeedValidator {
	return &SeedValidator{}
}

var validCategories = map[domain.KpiCategory]bool{
	domain.CategoryEnvironment: true,
	domain.CategorySocial:      true,
	domain.CategoryGovernance:  true,
}

var validAggregations = map[domain.AggregationPolicy]bool{
	domain.AggregationSum:    true,
	domain.AggregationLatest: true,
}

// ValidateDefinitions checks a KPI definition set for internal consistency.
func (v *SeedValidator) ValidateDefinitions(defs []domain.StandardKpiDefinition) error {
	var errs ValidationErrors

	seenIDs := map[string]bool{}
	aliasOwners := map[string]string{}

	for _, def := range defs {
		if def.ID == "" {
			errs = append(errs, ValidationError{Subject: "definition", Message: "empty id"})
			continue
		}
		if seenIDs[def.ID] {
			errs = append(errs, ValidationError{Subject: def.ID, Message: "duplicate id"})
		}
		seenIDs[def.ID] = true

		if def.Name == "" {
			errs = append(errs, ValidationError{Subject: def.ID, Message: "missing name"})
		}
		if !validCategories[def.Category] {
			errs = append(errs, ValidationError{Subject: def.ID, Message: fmt.Sprintf("unknown category %q", def.Category)})
		}
		if !validAggregations[def.Aggregation] {
			errs = append(errs, ValidationError{Subject: def.ID, Message: fmt.Sprintf("unknown aggregation %q", def.Aggregation)})
		}
		if _, ok := units.Canonical(def.BaseUnit); !ok {
			errs = append(errs, ValidationError{Subject: def.ID, Message: fmt.Sprintf("unknown base unit %q", def.BaseUnit)})
		}

		for _, alias := range def.Aliases {
			normalized := taxonomy.NormalizeIdentifier(alias)
			if normalized == "" {
				errs = append(errs, ValidationError{Subject: def.ID, Message: fmt.Sprintf("alias %q normalizes to nothing", alias)})
				continue
			}
			if owner, taken := aliasOwners[normalized]; taken && owner != def.ID {
				errs = append(errs, ValidationError{
					Subject: def.ID,
					Message: fmt.Sprintf("alias %q already claimed by %s", alias, owner),
				})
				continue
			}
			aliasOwners[normalized] = def.ID
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateStandards checks that every required KPI of every standard exists
// in the definition set.
func (v *SeedValidator) ValidateStandards(standards []domain.ComplianceStandard, defs []domain.StandardKpiDefinition) error {
	var errs ValidationErrors

	known := map[string]bool{}
	for _, def := range defs {
		known[def.ID] = true
	}

	seen := map[string]bool{}
	for _, standard := range standards {
		if standard.ID == "" {
			errs = append(errs, ValidationError{Subject: "standard", Message: "empty id"})
			continue
		}
		if seen[standard.ID] {
			errs = append(errs, ValidationError{Subject: standard.ID, Message: "duplicate id"})
		}
		seen[standard.ID] = true

		if len(standard.Required) == 0 {
			errs = append(errs, ValidationError{Subject: standard.ID, Message: "no required KPIs"})
		}
		for _, required := range standard.Required {
			if !known[required.KpiID] {
				errs = append(errs, ValidationError{
					Subject: standard.ID,
					Message: fmt.Sprintf("requires unknown KPI %q", required.KpiID),
				})
			}
		}
		if standard.Freshness < 0 {
			errs = append(errs, ValidationError{Subject: standard.ID, Message: "negative freshness window"})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
