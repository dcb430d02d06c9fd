package social

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mini-city/internal/economy"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNewFromDefaultSeed(t *testing.T) {
	s := New("42", "Hamlet", DefaultSeed(), 5, t0, nil)

	assert.Equal(t, 1, s.Population)
	assert.Equal(t, 5, s.MaxPopulation)
	assert.Equal(t, 1, s.Count(economy.House))
	assert.Equal(t, 100.0, s.Resources.Get(economy.Food))
	assert.Equal(t, 1, s.Day)
	assert.Equal(t, t0, s.LastTick)
	require.NoError(t, s.Validate())
}

func TestNewClampsPopulation(t *testing.T) {
	seed := DefaultSeed()
	seed.Population = 9
	s := New("1", "Crowded", seed, 5, t0, nil)
	assert.Equal(t, 5, s.Population)
}

func TestAdmitAndLose(t *testing.T) {
	s := New("1", "x", DefaultSeed(), 5, t0, nil)

	assert.Equal(t, 2, s.Admit(2))
	assert.Equal(t, 2, s.Admit(7))
	assert.Equal(t, 0, s.Admit(1))
	assert.Equal(t, 5, s.Population)

	assert.Equal(t, 5, s.Lose(9))
	assert.Equal(t, 0, s.Population)
	assert.Equal(t, 0, s.Lose(1))
}

func TestAddHoursAdvancesDay(t *testing.T) {
	s := New("1", "x", DefaultSeed(), 5, t0, nil)
	s.AddHours(23.5)
	assert.Equal(t, 1, s.Day)
	s.AddHours(0.5)
	assert.Equal(t, 2, s.Day)
	s.AddHours(-4)
	assert.Equal(t, 24.0, s.SimHours)
}

func TestCloneIsIndependent(t *testing.T) {
	s := New("1", "x", DefaultSeed(), 5, t0, nil)
	c := s.Clone()
	c.Resources[economy.Food] = 0
	c.Buildings[economy.Mine] = 3
	assert.Equal(t, 100.0, s.Resources[economy.Food])
	assert.Zero(t, s.Count(economy.Mine))
}

func TestValidate(t *testing.T) {
	s := New("1", "x", DefaultSeed(), 5, t0, nil)
	s.Population = 6
	assert.Error(t, s.Validate())

	s.Population = 1
	s.Resources[economy.Wood] = -1
	assert.Error(t, s.Validate())
}

func TestSnapshotJSON(t *testing.T) {
	s := New("7", "Oakridge", DefaultSeed(), 5, t0, nil)
	s.Buildings[economy.FoodFarm] = 2
	s.Resources[economy.Wood] = 49.9

	v := Snapshot(s, economy.DefaultCatalog(), 10)
	assert.Equal(t, int64(49), v.Resources[economy.Wood])
	assert.Equal(t, 10.0, v.FoodPerDay)
	assert.InDelta(t, 240.0, v.ProductionDay[economy.Food], 1e-9)

	raw, err := json.Marshal(v)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, map[string]any{"food_farm": 2.0, "house": 1.0}, decoded["buildings"])
	assert.Contains(t, decoded["resources"], "stone")

	v.Buildings[economy.Mine] = 9
	assert.Zero(t, s.Count(economy.Mine), "view must not alias settlement state")
}
