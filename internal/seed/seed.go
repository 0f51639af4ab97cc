// Package seed загружает справочные данные: коэффициенты выбросов, значки и челленджи.
package seed

import (
	"context"
	_ "embed"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/mmeshcher/greenledger/internal/model"
	"github.com/mmeshcher/greenledger/internal/store"
)

// FixtureName — имя набора в таблице версий фикстур.
const FixtureName = "reference"

//go:embed fixtures.yaml
var embedded []byte

// Fixtures — версионированный набор справочных данных.
type Fixtures struct {
	Version         int              `yaml:"version"`
	EmissionFactors []EmissionFactor `yaml:"emission_factors"`
	Badges          []Badge          `yaml:"badges"`
	Challenges      []Challenge      `yaml:"challenges"`
}

type EmissionFactor struct {
	Category   string   `yaml:"category"`
	CO2PerUnit float64  `yaml:"co2_per_unit"`
	Baseline   *float64 `yaml:"baseline_co2_per_unit"`
	Unit       string   `yaml:"unit"`
}

type Badge struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type Challenge struct {
	Code         string  `yaml:"code"`
	Name         string  `yaml:"name"`
	Description  string  `yaml:"description"`
	Type         string  `yaml:"type"`
	Goal         float64 `yaml:"goal"`
	RewardPoints int64   `yaml:"reward_points"`
	Inactive     bool    `yaml:"inactive"`
}

// Default возвращает встроенный набор фикстур.
func Default() (*Fixtures, error) {
	return Parse(embedded)
}

// Parse разбирает и проверяет набор фикстур.
func Parse(data []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}

	if f.Version <= 0 {
		return nil, fmt.Errorf("fixtures: version must be positive")
	}
	for _, ef := range f.EmissionFactors {
		if ef.Category == "" || ef.CO2PerUnit < 0 {
			return nil, fmt.Errorf("fixtures: invalid emission factor %q", ef.Category)
		}
	}
	for _, b := range f.Badges {
		if b.Code == "" {
			return nil, fmt.Errorf("fixtures: badge without code")
		}
	}
	for _, c := range f.Challenges {
		switch model.ChallengeType(c.Type) {
		case model.ChallengeTransactions, model.ChallengeCarbonSaved, model.ChallengePointsEarned:
		default:
			return nil, fmt.Errorf("fixtures: challenge %s: unknown type %q", c.Code, c.Type)
		}
		if c.Goal <= 0 {
			return nil, fmt.Errorf("fixtures: challenge %s: goal must be positive", c.Code)
		}
	}

	return &f, nil
}

// Apply записывает фикстуры, если сохранённая версия ниже. Все строки upsert-ятся.
// Возвращает true, если данные были применены.
func Apply(ctx context.Context, s store.Store, f *Fixtures, logger *zap.Logger) (bool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	applied := false
	err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		current, err := tx.GetFixtureVersion(ctx, FixtureName)
		if err != nil {
			return err
		}
		if current >= f.Version {
			return nil
		}

		for _, ef := range f.EmissionFactors {
			if err := tx.UpsertEmissionFactor(ctx, model.EmissionFactor{
				Category:           ef.Category,
				CO2PerUnit:         ef.CO2PerUnit,
				BaselineCO2PerUnit: ef.Baseline,
				Unit:               ef.Unit,
			}); err != nil {
				return fmt.Errorf("emission factor %s: %w", ef.Category, err)
			}
		}

		for _, b := range f.Badges {
			if err := tx.UpsertBadge(ctx, model.Badge{Code: b.Code, Name: b.Name, Description: b.Description}); err != nil {
				return fmt.Errorf("badge %s: %w", b.Code, err)
			}
		}

		for _, c := range f.Challenges {
			if err := tx.UpsertChallenge(ctx, model.Challenge{
				Code:         c.Code,
				Name:         c.Name,
				Description:  c.Description,
				Type:         model.ChallengeType(c.Type),
				Goal:         c.Goal,
				RewardPoints: c.RewardPoints,
				Active:       !c.Inactive,
			}); err != nil {
				return fmt.Errorf("challenge %s: %w", c.Code, err)
			}
		}

		applied = true
		logger.Info("reference fixtures applied",
			zap.Int("from", current),
			zap.Int("to", f.Version),
			zap.Int("emissionFactors", len(f.EmissionFactors)),
			zap.Int("badges", len(f.Badges)),
			zap.Int("challenges", len(f.Challenges)),
		)
		return tx.SetFixtureVersion(ctx, FixtureName, f.Version)
	})
	return applied, err
}
