package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/mini-city/internal/social"
)

// Event categories.
const (
	CategoryFounded      = "founded"
	CategoryConstruction = "construction"
	CategoryDay          = "day"
	CategoryEvent        = "event"
	CategoryStarvation   = "starvation"
	CategoryArrival      = "arrival"
)

// Event is a notable occurrence in a settlement.
type Event struct {
	ID           uuid.UUID      `json:"id"`
	SettlementID uuid.UUID      `json:"settlement_id"`
	OwnerID      string         `json:"owner_id"`
	Day          int            `json:"day"`
	Category     string         `json:"category"`
	Description  string         `json:"description"`
	At           time.Time      `json:"at"`
	Meta         map[string]any `json:"meta,omitempty"`
}

func newEvent(s *social.Settlement, at time.Time, category, desc string, meta map[string]any) Event {
	return Event{
		ID:           uuid.New(),
		SettlementID: s.ID,
		OwnerID:      s.OwnerID,
		Day:          s.Day,
		Category:     category,
		Description:  desc,
		At:           at,
		Meta:         meta,
	}
}

// Journal receives settlement events. Implementations must be safe for
// concurrent use.
type Journal interface {
	Record(ctx context.Context, events ...Event) error
}

// MultiJournal fans events out to every journal and joins their errors.
type MultiJournal []Journal

func (m MultiJournal) Record(ctx context.Context, events ...Event) error {
	var errs []error
	for _, j := range m {
		if j == nil {
			continue
		}
		if err := j.Record(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemoryJournal keeps the most recent events in memory.
type MemoryJournal struct {
	mu     sync.Mutex
	events []Event
	limit  int
}

// NewMemoryJournal keeps at most limit events; limit <= 0 keeps 1000.
func NewMemoryJournal(limit int) *MemoryJournal {
	if limit <= 0 {
		limit = 1000
	}
	return &MemoryJournal{limit: limit}
}

func (m *MemoryJournal) Record(_ context.Context, events ...Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	// Trim old events to prevent unbounded growth.
	if len(m.events) > m.limit {
		m.events = m.events[len(m.events)-m.limit:]
	}
	return nil
}

// Events returns a copy of the recorded events, oldest first.
func (m *MemoryJournal) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// ByCategory returns recorded events of one category.
func (m *MemoryJournal) ByCategory(category string) []Event {
	var out []Event
	for _, e := range m.Events() {
		if e.Category == category {
			out = append(out, e)
		}
	}
	return out
}

type nopJournal struct{}

func (nopJournal) Record(context.Context, ...Event) error { return nil }

func tickEvents(s *social.Settlement, rep TickReport, at time.Time) []Event {
	var out []Event
	if rep.Deaths > 0 {
		out = append(out, newEvent(s, at, CategoryStarvation,
			fmt.Sprintf("Famine in %s: %d settlers starved", s.Name, rep.Deaths),
			map[string]any{"deaths": rep.Deaths, "food_shortfall": rep.FoodRequired - rep.FoodConsumed}))
	}
	if rep.Arrivals > 0 {
		out = append(out, newEvent(s, at, CategoryArrival,
			fmt.Sprintf("%d newcomers settled in %s", rep.Arrivals, s.Name),
			map[string]any{"arrivals": rep.Arrivals}))
	}
	return out
}

func buildEvent(s *social.Settlement, rep BuildReport, at time.Time) Event {
	meta := map[string]any{"kind": rep.Kind.String()}
	for r, v := range rep.Cost {
		meta["cost_"+r.String()] = v
	}
	if rep.Housing > 0 {
		meta["housing"] = rep.Housing
		meta["settlers"] = rep.Settlers
	}
	return newEvent(s, at, CategoryConstruction,
		fmt.Sprintf("%s built a %s", s.Name, rep.Kind), meta)
}

func dayEvents(s *social.Settlement, rep DayReport, at time.Time) []Event {
	out := tickEvents(s, rep.CatchUp, at)
	out = append(out, tickEvents(s, rep.Tick, at)...)
	out = append(out, newEvent(s, at, CategoryDay,
		fmt.Sprintf("Day %d dawns in %s", rep.Day, s.Name),
		map[string]any{
			"population":       s.Population,
			"population_delta": rep.PopulationDelta,
			"starved":          rep.Starved,
		}))
	if rep.Event != nil {
		meta := map[string]any{"event": rep.Event.ID}
		for r, v := range rep.Event.Applied {
			meta[r.String()] = v
		}
		out = append(out, newEvent(s, at, CategoryEvent, rep.Event.Description, meta))
	}
	return out
}
