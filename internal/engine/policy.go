package engine

import (
	"errors"
	"fmt"

	"github.com/talgya/mini-city/internal/economy"
)

// Policy holds the tunable economy rules.
type Policy struct {
	// FoodPerCapitaPerDay is how much food one settler eats per 24 hours.
	FoodPerCapitaPerDay float64

	// StarvationDivisor bounds starvation losses: a hungry tick kills
	// between 1 and max(1, population/StarvationDivisor) settlers.
	StarvationDivisor int

	// ArrivalChancePerHour is the per-hour chance of newcomers while there is
	// housing to spare; the chance for a tick is this times elapsed hours,
	// capped at 1.
	ArrivalChancePerHour float64

	// ArrivalPairChance is the chance an arrival brings two settlers instead of one.
	ArrivalPairChance float64

	// HouseSettlers is how many settlers move in right away when a house is built.
	HouseSettlers int

	// BaseMaxPopulation is housing available without any houses.
	BaseMaxPopulation int

	// EventChance is the chance a day advance triggers a random event.
	EventChance float64

	// FortuneAmplitude is how far a day's fortune moves EventChance either way.
	FortuneAmplitude float64
}

// DefaultPolicy returns the stock rules. Arrivals average 0.6 per day-long
// stretch with one pair in three, matching the 0/1/2 settler odds of 40/40/20.
func DefaultPolicy() Policy {
	return Policy{
		FoodPerCapitaPerDay:  10,
		StarvationDivisor:    2,
		ArrivalChancePerHour: 0.025,
		ArrivalPairChance:    1.0 / 3.0,
		HouseSettlers:        2,
		BaseMaxPopulation:    0,
		EventChance:          0.3,
		FortuneAmplitude:     0.05,
	}
}

// Validate rejects rules the engine cannot run with.
func (p Policy) Validate() error {
	var errs []error
	if p.FoodPerCapitaPerDay < 0 {
		errs = append(errs, fmt.Errorf("food_per_capita_per_day %v < 0", p.FoodPerCapitaPerDay))
	}
	if p.StarvationDivisor < 1 {
		errs = append(errs, fmt.Errorf("starvation_divisor %d < 1", p.StarvationDivisor))
	}
	if p.ArrivalChancePerHour < 0 {
		errs = append(errs, fmt.Errorf("arrival_chance_per_hour %v < 0", p.ArrivalChancePerHour))
	}
	if p.ArrivalPairChance < 0 || p.ArrivalPairChance > 1 {
		errs = append(errs, fmt.Errorf("arrival_pair_chance %v outside [0, 1]", p.ArrivalPairChance))
	}
	if p.HouseSettlers < 0 {
		errs = append(errs, fmt.Errorf("house_settlers %d < 0", p.HouseSettlers))
	}
	if p.BaseMaxPopulation < 0 {
		errs = append(errs, fmt.Errorf("base_max_population %d < 0", p.BaseMaxPopulation))
	}
	if p.EventChance < 0 || p.EventChance > 1 {
		errs = append(errs, fmt.Errorf("event_chance %v outside [0, 1]", p.EventChance))
	}
	if p.FortuneAmplitude < 0 || p.FortuneAmplitude > 1 {
		errs = append(errs, fmt.Errorf("fortune_amplitude %v outside [0, 1]", p.FortuneAmplitude))
	}
	return errors.Join(errs...)
}

// EventDef is one entry of the day-event table.
type EventDef struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Delta       economy.Ledger `json:"delta"` // signed; negative entries are losses
	Weight      float64        `json:"weight"`
}

// DefaultEvents returns the stock day-event table. All events are equally
// likely.
func DefaultEvents() []EventDef {
	return []EventDef{
		{ID: "rain", Description: "Rain helped the harvest", Delta: economy.Ledger{economy.Food: 30}, Weight: 1},
		{ID: "forest_fire", Description: "A fire swept through the woods", Delta: economy.Ledger{economy.Wood: -20}, Weight: 1},
		{ID: "treasure", Description: "Villagers dug up a buried treasure", Delta: economy.Ledger{economy.Gold: 10}, Weight: 1},
		{ID: "caravan", Description: "A caravan arrived bearing gifts", Delta: economy.Ledger{economy.Food: 15, economy.Wood: 15}, Weight: 1},
		{ID: "wolves", Description: "Wolves raided the stores", Delta: economy.Ledger{economy.Food: -25}, Weight: 1},
	}
}
