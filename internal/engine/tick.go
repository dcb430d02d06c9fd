// Package engine provides the settlement economy: the tick that turns elapsed
// wall-clock time into production, consumption, starvation and arrivals, the
// construction transaction, day advances with random events, and the
// registry and service that serialize access per settlement.
package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/talgya/mini-city/internal/economy"
	"github.com/talgya/mini-city/internal/entropy"
	"github.com/talgya/mini-city/internal/social"
	"github.com/talgya/mini-city/internal/world"
)

// shortfallEpsilon absorbs float noise when comparing food required to food
// eaten, and when summing many short starving intervals into whole days.
const shortfallEpsilon = 1e-9

// fallbackSource serves engines built without NewEngine.
var fallbackSource = entropy.NewLocked(entropy.NewSeeded(1))

// SourceFunc returns the random source for a newly founded settlement.
type SourceFunc func(owner string) entropy.Source

// SeededSources gives every owner an independent, reproducible stream derived
// from seed.
func SeededSources(seed int64) SourceFunc {
	return func(owner string) entropy.Source {
		return entropy.NewSeeded(entropy.SeedFor(seed, owner))
	}
}

// SharedSource hands every settlement the same concurrency-safe source.
func SharedSource(src entropy.Source) SourceFunc {
	return func(string) entropy.Source { return src }
}

// Engine applies the economy rules to settlements. It holds no per-settlement
// state; callers must serialize calls for the same settlement.
type Engine struct {
	Catalog *economy.Catalog
	Policy  Policy
	Events  []EventDef
	Start   social.Seed
	Fortune *world.Fortune
	Sources SourceFunc

	fallback entropy.Source
}

// NewEngine creates an engine with the stock seed and event table. Settlements
// draw from per-owner streams derived from seed; settlements without a stream
// share one seeded fallback.
func NewEngine(catalog *economy.Catalog, policy Policy, seed int64) (*Engine, error) {
	if catalog == nil {
		return nil, fmt.Errorf("engine: nil catalog")
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("engine policy: %w", err)
	}
	return &Engine{
		Catalog:  catalog,
		Policy:   policy,
		Events:   DefaultEvents(),
		Start:    social.DefaultSeed(),
		Fortune:  world.NewFortune(seed),
		Sources:  SeededSources(seed),
		fallback: entropy.NewLocked(entropy.NewSeeded(seed)),
	}, nil
}

// TickReport describes what one pass of the tick pipeline did.
type TickReport struct {
	Hours        float64        `json:"hours"`
	Produced     economy.Ledger `json:"produced"`
	FoodRequired float64        `json:"food_required"`
	FoodConsumed float64        `json:"food_consumed"`
	Starved      bool           `json:"starved"`
	Deaths       int            `json:"deaths"`
	Arrivals     int            `json:"arrivals"`
}

// NewSettlement founds a settlement for owner with the engine's starting state.
func (e *Engine) NewSettlement(owner, name string, now time.Time) *social.Settlement {
	var rng entropy.Source
	if e.Sources != nil {
		rng = e.Sources(owner)
	}
	return social.New(owner, name, e.Start, e.MaxPopulationFor(e.Start.Buildings), now, rng)
}

// MaxPopulationFor returns the housing capacity of the given buildings.
func (e *Engine) MaxPopulationFor(buildings map[economy.BuildingKind]int) int {
	total := e.Policy.BaseMaxPopulation
	for k, n := range buildings {
		if n > 0 {
			total += n * e.Catalog.HousingOf(k)
		}
	}
	return total
}

// View snapshots s with the engine's rates.
func (e *Engine) View(s *social.Settlement) social.View {
	return social.Snapshot(s, e.Catalog, e.Policy.FoodPerCapitaPerDay)
}

// Tick brings s up to now. Calls with now at or before s.LastTick change
// nothing, so repeated status refreshes are idempotent.
func (e *Engine) Tick(s *social.Settlement, now time.Time) TickReport {
	hours := now.Sub(s.LastTick).Hours()
	if hours <= 0 {
		return TickReport{}
	}
	rep := e.advance(s, hours)
	s.LastTick = now
	return rep
}

// advance runs production, consumption, starvation and arrivals over hours of
// simulated time, in that order. It does not touch LastTick.
func (e *Engine) advance(s *social.Settlement, hours float64) TickReport {
	rep := TickReport{Hours: hours}
	rng := e.rand(s)

	rep.Produced = e.Catalog.Output(s.Buildings, hours)
	for _, r := range economy.Resources {
		s.Resources.Credit(r, rep.Produced[r])
	}

	rep.FoodRequired = float64(s.Population) * e.Policy.FoodPerCapitaPerDay * hours / social.HoursPerDay
	rep.FoodConsumed = s.Resources.Drain(economy.Food, rep.FoodRequired)

	if rep.FoodRequired-rep.FoodConsumed > shortfallEpsilon && s.Population > 0 {
		rep.Starved = true
		rep.Deaths = e.starve(s, hours, rng)
	} else {
		s.StarvingHours = 0
	}

	if s.Population < s.MaxPopulation {
		p := math.Min(1, e.Policy.ArrivalChancePerHour*hours)
		if p > 0 && rng.Float64() < p {
			n := 1
			if rng.Float64() < e.Policy.ArrivalPairChance {
				n = 2
			}
			rep.Arrivals = s.Admit(n)
		}
	}

	s.AddHours(hours)
	return rep
}

// starve adds hours to the settlement's famine and takes one starvation loss
// per full day of it. Many short hungry ticks cost the same as one long one.
func (e *Engine) starve(s *social.Settlement, hours float64, rng entropy.Source) int {
	s.StarvingHours += hours
	deaths := 0
	for s.StarvingHours+shortfallEpsilon >= social.HoursPerDay {
		s.StarvingHours = max(0, s.StarvingHours-social.HoursPerDay)
		if s.Population == 0 {
			continue
		}
		deaths += s.Lose(e.starvationLoss(s.Population, rng))
	}
	if s.Population == 0 {
		s.StarvingHours = 0
	}
	return deaths
}

// starvationLoss draws a loss in [1, max(1, population/divisor)].
func (e *Engine) starvationLoss(population int, rng entropy.Source) int {
	div := max(e.Policy.StarvationDivisor, 1)
	upper := max(1, population/div)
	return 1 + rng.Intn(upper)
}

func (e *Engine) rand(s *social.Settlement) entropy.Source {
	if s.RNG != nil {
		return s.RNG
	}
	if e.fallback == nil {
		return fallbackSource
	}
	return e.fallback
}
