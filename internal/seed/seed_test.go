package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/greenledger/internal/carbon"
	"github.com/mmeshcher/greenledger/internal/repository/memstore"
	"github.com/mmeshcher/greenledger/internal/store"
)

func TestDefault(t *testing.T) {
	f, err := Default()
	require.NoError(t, err)
	assert.Equal(t, 1, f.Version)
	assert.Len(t, f.Badges, 8)
	assert.Len(t, f.Challenges, 3)

	var hasFallback bool
	for _, ef := range f.EmissionFactors {
		if ef.Category == carbon.FallbackCategory {
			hasFallback = true
		}
	}
	assert.True(t, hasFallback)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "no version", data: "badges: []"},
		{name: "bad yaml", data: "version: ["},
		{name: "unknown challenge type", data: "version: 1\nchallenges:\n  - code: X\n    type: steps\n    goal: 1\n"},
		{name: "zero goal", data: "version: 1\nchallenges:\n  - code: X\n    type: carbon_saved\n"},
		{name: "badge without code", data: "version: 1\nbadges:\n  - name: X\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			require.Error(t, err)
		})
	}
}

func TestApply_Idempotent(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	f, err := Default()
	require.NoError(t, err)

	applied, err := Apply(ctx, s, f, nil)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = Apply(ctx, s, f, nil)
	require.NoError(t, err)
	assert.False(t, applied)

	err = s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		badges, err := tx.ListBadges(ctx)
		if err != nil {
			return err
		}
		assert.Len(t, badges, 8)

		challenges, err := tx.ListActiveChallenges(ctx)
		if err != nil {
			return err
		}
		assert.Len(t, challenges, 3)

		travel, err := tx.GetEmissionFactor(ctx, "Travel")
		if err != nil {
			return err
		}
		require.NotNil(t, travel.BaselineCO2PerUnit)
		assert.Equal(t, 0.0008, *travel.BaselineCO2PerUnit)

		v, err := tx.GetFixtureVersion(ctx, FixtureName)
		assert.Equal(t, 1, v)
		return err
	})
	require.NoError(t, err)
}

func TestApply_Upgrade(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	v1, err := Parse([]byte("version: 1\nchallenges:\n  - code: TX_5\n    name: Five\n    type: transactions_count\n    goal: 5\n    reward_points: 100\n"))
	require.NoError(t, err)
	_, err = Apply(ctx, s, v1, nil)
	require.NoError(t, err)

	v2, err := Parse([]byte("version: 2\nchallenges:\n  - code: TX_5\n    name: Five\n    type: transactions_count\n    goal: 5\n    reward_points: 150\n"))
	require.NoError(t, err)
	applied, err := Apply(ctx, s, v2, nil)
	require.NoError(t, err)
	assert.True(t, applied)

	err = s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		challenges, err := tx.ListActiveChallenges(ctx)
		if err != nil {
			return err
		}
		require.Len(t, challenges, 1)
		assert.Equal(t, int64(150), challenges[0].RewardPoints)
		return nil
	})
	require.NoError(t, err)
}
