package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/esgboard/kpiledger/internal/domain"
)

type kpiDefinitionRepository struct {
	pool *pgxpool.Pool
}

// NewKpiDefinitionRepository wires a repository backed by pgxpool.
func NewKpiDefinitionRepository(pool *pgxpool.Pool) KpiDefinitionRepository {
	return &kpiDefinitionRepository{pool: pool}
}

func (r *kpiDefinitionRepository) Upsert(ctx context.Context, def domain.StandardKpiDefinition) error {
	if r.pool == nil {
		return fmt.Errorf("kpi definition repository not initialized")
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO standard_kpi_definitions (id, name, category, base_unit, aliases, aggregation, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE
		 SET name = EXCLUDED.name,
		     category = EXCLUDED.category,
		     base_unit = EXCLUDED.base_unit,
		     aliases = EXCLUDED.aliases,
		     aggregation = EXCLUDED.aggregation,
		     active = EXCLUDED.active`,
		def.ID,
		def.Name,
		string(def.Category),
		def.BaseUnit,
		def.Aliases,
		string(def.Aggregation),
		def.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert kpi definition %s: %w", def.ID, err)
	}

	return nil
}

func (r *kpiDefinitionRepository) List(ctx context.Context) ([]domain.StandardKpiDefinition, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("kpi definition repository not initialized")
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, name, category, base_unit, aliases, aggregation, active
		 FROM standard_kpi_definitions
		 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list kpi definitions: %w", err)
	}
	defer rows.Close()

	defs := []domain.StandardKpiDefinition{}
	for rows.Next() {
		var (
			def         domain.StandardKpiDefinition
			category    string
			aggregation string
		)
		if err := rows.Scan(&def.ID, &def.Name, &category, &def.BaseUnit, &def.Aliases, &aggregation, &def.Active); err != nil {
			return nil, fmt.Errorf("failed to scan kpi definition: %w", err)
		}
		def.Category = domain.KpiCategory(category)
		def.Aggregation = domain.AggregationPolicy(aggregation)
		defs = append(defs, def)
	}

	return defs, rows.Err()
}
