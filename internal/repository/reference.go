package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/greenledger/internal/model"
)

func scanFactor(row pgx.Row) (*model.EmissionFactor, error) {
	var f model.EmissionFactor
	if err := row.Scan(&f.Category, &f.CO2PerUnit, &f.BaselineCO2PerUnit, &f.Unit); err != nil {
		return nil, err
	}
	return &f, nil
}

func (t *pgTx) GetEmissionFactor(ctx context.Context, category string) (*model.EmissionFactor, error) {
	query := `SELECT category, co2_per_unit, baseline_co2_per_unit, unit FROM emission_factors WHERE category = $1`
	f, err := scanFactor(t.tx.QueryRow(ctx, query, category))
	if err != nil {
		return nil, notFound(err, "emission factor")
	}
	return f, nil
}

func (t *pgTx) ListEmissionFactors(ctx context.Context) ([]model.EmissionFactor, error) {
	rows, err := t.tx.Query(ctx, `SELECT category, co2_per_unit, baseline_co2_per_unit, unit FROM emission_factors ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("query emission factors: %w", err)
	}
	return collect(rows, scanFactor)
}

func (t *pgTx) UpsertEmissionFactor(ctx context.Context, f model.EmissionFactor) error {
	query := `
		INSERT INTO emission_factors (category, co2_per_unit, baseline_co2_per_unit, unit)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (category) DO UPDATE
		SET co2_per_unit = EXCLUDED.co2_per_unit,
		    baseline_co2_per_unit = EXCLUDED.baseline_co2_per_unit,
		    unit = EXCLUDED.unit`

	if _, err := t.tx.Exec(ctx, query, f.Category, f.CO2PerUnit, f.BaselineCO2PerUnit, f.Unit); err != nil {
		return fmt.Errorf("upsert emission factor: %w", err)
	}
	return nil
}

func (t *pgTx) UpsertBadge(ctx context.Context, b model.Badge) error {
	query := `
		INSERT INTO badges (code, name, description)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE
		SET name = EXCLUDED.name, description = EXCLUDED.description`

	if _, err := t.tx.Exec(ctx, query, b.Code, b.Name, b.Description); err != nil {
		return fmt.Errorf("upsert badge: %w", err)
	}
	return nil
}

func (t *pgTx) UpsertChallenge(ctx context.Context, c model.Challenge) error {
	query := `
		INSERT INTO challenges (code, name, description, type, goal_value, reward_points, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (code) DO UPDATE
		SET name = EXCLUDED.name,
		    description = EXCLUDED.description,
		    type = EXCLUDED.type,
		    goal_value = EXCLUDED.goal_value,
		    reward_points = EXCLUDED.reward_points,
		    active = EXCLUDED.active`

	_, err := t.tx.Exec(ctx, query, c.Code, c.Name, c.Description, c.Type, c.Goal, c.RewardPoints, c.Active)
	if err != nil {
		return fmt.Errorf("upsert challenge: %w", err)
	}
	return nil
}

func (t *pgTx) GetFixtureVersion(ctx context.Context, name string) (int, error) {
	var version int
	err := t.tx.QueryRow(ctx, `SELECT version FROM fixture_versions WHERE name = $1 FOR UPDATE`, name).Scan(&version)
	if err != nil {
		if isNoRows(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("get fixture version: %w", err)
	}
	return version, nil
}

func (t *pgTx) SetFixtureVersion(ctx context.Context, name string, version int) error {
	query := `
		INSERT INTO fixture_versions (name, version) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET version = EXCLUDED.version`

	if _, err := t.tx.Exec(ctx, query, name, version); err != nil {
		return fmt.Errorf("set fixture version: %w", err)
	}
	return nil
}
