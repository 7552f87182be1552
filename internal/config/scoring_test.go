package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRentTablePerRoom(t *testing.T) {
	table := DefaultScoringConfig().Rents

	assert.Equal(t, 550.0, table.PerRoom("Manchester"))
	assert.Equal(t, 750.0, table.PerRoom("London"))

	// Substring matching catches portal spellings like "Greater Manchester".
	assert.Equal(t, 550.0, table.PerRoom("Greater Manchester"))
	assert.Equal(t, 550.0, table.PerRoom("manchester"))

	// Unknown or blank cities fall back to the table default.
	assert.Equal(t, 450.0, table.PerRoom("Carlisle"))
	assert.Equal(t, 450.0, table.PerRoom(""))
}

func TestValidateScoringConfig(t *testing.T) {
	assert.NoError(t, validateScoringConfig(DefaultScoringConfig()))

	t.Run("empty floor area table", func(t *testing.T) {
		cfg := DefaultScoringConfig()
		cfg.Breakpoints.FloorArea = nil
		assert.Error(t, validateScoringConfig(cfg))
	})

	t.Run("empty lettable rooms table", func(t *testing.T) {
		cfg := DefaultScoringConfig()
		cfg.Breakpoints.LettableRooms = nil
		assert.Error(t, validateScoringConfig(cfg))
	})

	t.Run("empty yield table", func(t *testing.T) {
		cfg := DefaultScoringConfig()
		cfg.Breakpoints.Yield = nil
		assert.Error(t, validateScoringConfig(cfg))
	})

	t.Run("non-positive default rent", func(t *testing.T) {
		cfg := DefaultScoringConfig()
		cfg.Rents.DefaultPerRoom = 0
		assert.Error(t, validateScoringConfig(cfg))
	})

	t.Run("inverted area floors", func(t *testing.T) {
		cfg := DefaultScoringConfig()
		cfg.SpaceStandards.AbsoluteFloorSqm = cfg.SpaceStandards.MinAreaSqm + 1
		assert.Error(t, validateScoringConfig(cfg))
	})
}

func TestScoringConfigHolderDefaults(t *testing.T) {
	holder, err := NewScoringConfigHolder()
	assert.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 5, cfg.SpaceStandards.MandatoryOccupants)
	assert.Equal(t, 70, cfg.Classification.ReadyToGoMinScore)
	assert.Equal(t, 40, cfg.Classification.ValueAddMinScore)
}
