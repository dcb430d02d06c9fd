// Package social provides the per-player settlement aggregate and its
// read-only view.
package social

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/mini-city/internal/economy"
	"github.com/talgya/mini-city/internal/entropy"
)

// HoursPerDay is the length of one settlement day in simulated hours.
const HoursPerDay = 24

// Settlement is one player's town. It is not safe for concurrent use; the
// registry serializes access per settlement.
type Settlement struct {
	ID      uuid.UUID `json:"id"`
	OwnerID string    `json:"owner_id"`
	Name    string    `json:"name"`

	Resources economy.Ledger               `json:"resources"`
	Buildings map[economy.BuildingKind]int `json:"buildings"`

	// Demographics
	Population    int `json:"population"`
	MaxPopulation int `json:"max_population"`

	// StarvingHours is simulated time spent short of food since the last
	// starvation loss. A full day of it costs settlers.
	StarvingHours float64 `json:"starving_hours"`

	// Time
	Day       int       `json:"day"`
	SimHours  float64   `json:"sim_hours"` // total simulated time since founding
	LastTick  time.Time `json:"last_tick"`
	CreatedAt time.Time `json:"created_at"`

	// RNG drives starvation, arrivals and day events for this settlement only.
	RNG entropy.Source `json:"-"`
}

// Seed describes the starting state of a new settlement.
type Seed struct {
	Population int
	Resources  economy.Ledger
	Buildings  map[economy.BuildingKind]int
}

// DefaultSeed is the stock starting town: one villager in one house.
func DefaultSeed() Seed {
	return Seed{
		Population: 1,
		Resources:  economy.Ledger{economy.Food: 100, economy.Wood: 50, economy.Stone: 30, economy.Gold: 0},
		Buildings:  map[economy.BuildingKind]int{economy.House: 1},
	}
}

// New founds a settlement from seed. maxPopulation must already account for
// the seeded houses; population is clamped to it.
func New(owner, name string, seed Seed, maxPopulation int, now time.Time, rng entropy.Source) *Settlement {
	s := &Settlement{
		ID:            uuid.New(),
		OwnerID:       owner,
		Name:          name,
		Resources:     seed.Resources.Clone(),
		Buildings:     make(map[economy.BuildingKind]int, len(economy.BuildingKinds)),
		MaxPopulation: maxPopulation,
		Day:           1,
		LastTick:      now,
		CreatedAt:     now,
		RNG:           rng,
	}
	for k, n := range seed.Buildings {
		if n > 0 {
			s.Buildings[k] = n
		}
	}
	s.Population = min(max(seed.Population, 0), s.MaxPopulation)
	return s
}

// Count returns how many buildings of kind stand in the settlement.
func (s *Settlement) Count(kind economy.BuildingKind) int {
	return s.Buildings[kind]
}

// AddHours records simulated time and keeps Day in step with it.
func (s *Settlement) AddHours(hours float64) {
	if hours <= 0 {
		return
	}
	s.SimHours += hours
	s.Day = 1 + int(math.Floor(s.SimHours/HoursPerDay+1e-9))
}

// Admit adds up to n settlers without exceeding MaxPopulation and returns how
// many moved in.
func (s *Settlement) Admit(n int) int {
	room := s.MaxPopulation - s.Population
	if n <= 0 || room <= 0 {
		return 0
	}
	n = min(n, room)
	s.Population += n
	return n
}

// Lose removes up to n settlers, never dropping below zero, and returns how
// many were lost.
func (s *Settlement) Lose(n int) int {
	if n <= 0 {
		return 0
	}
	n = min(n, s.Population)
	s.Population -= n
	return n
}

// Clone returns a deep copy that shares the RNG.
func (s *Settlement) Clone() *Settlement {
	c := *s
	c.Resources = s.Resources.Clone()
	c.Buildings = make(map[economy.BuildingKind]int, len(s.Buildings))
	for k, n := range s.Buildings {
		c.Buildings[k] = n
	}
	return &c
}

// Validate checks the settlement invariants.
func (s *Settlement) Validate() error {
	for _, r := range economy.Resources {
		if v := s.Resources.Get(r); v < 0 || math.IsNaN(v) {
			return fmt.Errorf("settlement %s: %s balance %v is negative", s.OwnerID, r, v)
		}
	}
	if s.Population < 0 || s.Population > s.MaxPopulation {
		return fmt.Errorf("settlement %s: population %d outside [0, %d]", s.OwnerID, s.Population, s.MaxPopulation)
	}
	for k, n := range s.Buildings {
		if n < 0 {
			return fmt.Errorf("settlement %s: negative %s count", s.OwnerID, k)
		}
	}
	if s.StarvingHours < 0 || s.StarvingHours >= HoursPerDay {
		return fmt.Errorf("settlement %s: starving hours %v outside [0, %d)", s.OwnerID, s.StarvingHours, HoursPerDay)
	}
	if s.Day < 1 {
		return fmt.Errorf("settlement %s: day %d", s.OwnerID, s.Day)
	}
	return nil
}
