package engine

import (
	"time"

	"github.com/talgya/mini-city/internal/economy"
	"github.com/talgya/mini-city/internal/entropy"
	"github.com/talgya/mini-city/internal/social"
)

// AppliedEvent is a day event after clamping. Applied can be smaller than
// Delta when a loss hit an already empty store.
type AppliedEvent struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Delta       economy.Ledger `json:"delta"`
	Applied     economy.Ledger `json:"applied"`
}

// DayReport is everything a presentation layer needs to narrate a day.
// Starved, Deaths, Arrivals and PopulationDelta cover the catch-up tick and
// the skipped day together.
type DayReport struct {
	Day             int           `json:"day"`
	CatchUp         TickReport    `json:"catch_up"`
	Tick            TickReport    `json:"tick"`
	Starved         bool          `json:"starved"`
	Deaths          int           `json:"deaths"`
	Arrivals        int           `json:"arrivals"`
	PopulationDelta int           `json:"population_delta"`
	Event           *AppliedEvent `json:"event,omitempty"`
}

// AdvanceDay brings s up to now, then skips one full day: the tick pipeline
// runs over 24 simulated hours without moving LastTick, Day goes up by one,
// and a random event may fire.
func (e *Engine) AdvanceDay(s *social.Settlement, now time.Time) DayReport {
	before := s.Population
	catchUp := e.Tick(s, now)
	day := e.advance(s, social.HoursPerDay)

	rep := DayReport{
		Day:      s.Day,
		CatchUp:  catchUp,
		Tick:     day,
		Starved:  catchUp.Starved || day.Starved,
		Deaths:   catchUp.Deaths + day.Deaths,
		Arrivals: catchUp.Arrivals + day.Arrivals,
		Event:    e.rollEvent(s),
	}
	rep.PopulationDelta = s.Population - before
	return rep
}

// EventChance returns the chance of an event on the settlement's current day.
func (e *Engine) EventChance(s *social.Settlement) float64 {
	return e.Fortune.Modulate(e.Policy.EventChance, e.Policy.FortuneAmplitude, s.OwnerID, s.Day)
}

func (e *Engine) rollEvent(s *social.Settlement) *AppliedEvent {
	if len(e.Events) == 0 {
		return nil
	}
	rng := e.rand(s)
	if rng.Float64() >= e.EventChance(s) {
		return nil
	}
	def, ok := pickEvent(e.Events, rng)
	if !ok {
		return nil
	}

	applied := economy.NewLedger()
	for _, r := range economy.Resources {
		if d, ok := def.Delta[r]; ok {
			applied[r] = s.Resources.Adjust(r, d)
		}
	}
	return &AppliedEvent{
		ID:          def.ID,
		Description: def.Description,
		Delta:       def.Delta.Clone(),
		Applied:     applied,
	}
}

// pickEvent draws one event by weight. Events with non-positive weight never
// fire.
func pickEvent(events []EventDef, rng entropy.Source) (EventDef, bool) {
	total := 0.0
	for _, ev := range events {
		if ev.Weight > 0 {
			total += ev.Weight
		}
	}
	if total <= 0 {
		return EventDef{}, false
	}
	x := rng.Float64() * total
	var last EventDef
	for _, ev := range events {
		if ev.Weight <= 0 {
			continue
		}
		last = ev
		if x < ev.Weight {
			return ev, true
		}
		x -= ev.Weight
	}
	return last, true
}
