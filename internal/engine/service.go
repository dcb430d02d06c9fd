package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/talgya/mini-city/internal/economy"
	"github.com/talgya/mini-city/internal/social"
)

// DefaultName is used when a settlement is founded without a display name.
const DefaultName = "New Town"

var (
	// ErrInvalidOwner is returned for an empty owner ID.
	ErrInvalidOwner = errors.New("invalid owner id")
	// ErrNoSettlement is returned by lookups for an owner that has not founded
	// a settlement yet.
	ErrNoSettlement = errors.New("no settlement for owner")
)

// Service is the boundary the presentation layers talk to. Every call finds
// or founds the owner's settlement, brings it up to the clock, and returns a
// snapshot. Journal writes happen after the settlement lock is released.
type Service struct {
	engine   *Engine
	registry *Registry
	clock    Clock
	journal  Journal
}

// NewService wires an engine to a registry. A nil clock uses wall time; a nil
// journal drops events.
func NewService(e *Engine, r *Registry, clock Clock, journal Journal) *Service {
	if r == nil {
		r = NewRegistry()
	}
	if clock == nil {
		clock = RealClock{}
	}
	if journal == nil {
		journal = nopJournal{}
	}
	return &Service{engine: e, registry: r, clock: clock, journal: journal}
}

// Engine returns the rules engine.
func (s *Service) Engine() *Engine { return s.engine }

// Registry returns the settlement registry.
func (s *Service) Registry() *Registry { return s.registry }

// CollectReport is the result of gathering what the buildings produced.
type CollectReport struct {
	View     social.View                  `json:"view"`
	Hours    float64                      `json:"hours"`
	Produced map[economy.Resource]float64 `json:"produced"`
}

// Stats aggregates every settlement after a sweep.
type Stats struct {
	At            time.Time                    `json:"at"`
	Settlements   int                          `json:"settlements"`
	Population    int                          `json:"population"`
	MaxPopulation int                          `json:"max_population"`
	Resources     economy.Ledger               `json:"resources"`
	Buildings     map[economy.BuildingKind]int `json:"buildings"`
}

// GetOrCreate returns the owner's settlement, founding it with name on first
// access. name is ignored for existing settlements.
func (s *Service) GetOrCreate(ctx context.Context, owner, name string) (social.View, error) {
	var view social.View
	err := s.with(ctx, owner, name, func(sett *social.Settlement, now time.Time) ([]Event, error) {
		rep := s.engine.Tick(sett, now)
		view = s.engine.View(sett)
		return tickEvents(sett, rep, now), nil
	})
	return view, err
}

// Tick refreshes the owner's settlement to now and returns its state.
func (s *Service) Tick(ctx context.Context, owner string) (social.View, error) {
	return s.GetOrCreate(ctx, owner, "")
}

// Status refreshes an existing settlement to now and returns its state. Unlike
// Tick it never founds one: unknown owners get ErrNoSettlement.
func (s *Service) Status(ctx context.Context, owner string) (social.View, error) {
	if err := ctx.Err(); err != nil {
		return social.View{}, err
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return social.View{}, ErrInvalidOwner
	}
	sl, ok := s.registry.Lookup(owner)
	if !ok {
		return social.View{}, ErrNoSettlement
	}

	var view social.View
	var events []Event
	sl.Read(func(sett *social.Settlement) {
		now := s.clock.Now()
		rep := s.engine.Tick(sett, now)
		view = s.engine.View(sett)
		events = tickEvents(sett, rep, now)
	})
	s.record(ctx, events)
	return view, nil
}

// Collect ticks the settlement and reports what its buildings produced since
// the previous tick.
func (s *Service) Collect(ctx context.Context, owner string) (CollectReport, error) {
	var out CollectReport
	err := s.with(ctx, owner, "", func(sett *social.Settlement, now time.Time) ([]Event, error) {
		rep := s.engine.Tick(sett, now)
		out.Hours = rep.Hours
		out.Produced = make(map[economy.Resource]float64)
		for r, v := range rep.Produced {
			if v > 0 {
				out.Produced[r] = v
			}
		}
		out.View = s.engine.View(sett)
		return tickEvents(sett, rep, now), nil
	})
	return out, err
}

// Build constructs one building of kind. The returned view is the current
// state whether or not construction succeeded, so callers can re-render
// after a *economy.InsufficientResourcesError.
func (s *Service) Build(ctx context.Context, owner string, kind economy.BuildingKind) (social.View, error) {
	var view social.View
	var buildErr error
	err := s.with(ctx, owner, "", func(sett *social.Settlement, now time.Time) ([]Event, error) {
		rep, err := s.engine.Build(sett, kind, now)
		view = s.engine.View(sett)
		events := tickEvents(sett, rep.Tick, now)
		if err != nil {
			buildErr = err
			return events, nil
		}
		slog.Info("construction", "owner", owner, "kind", kind, "settlers", rep.Settlers, "day", sett.Day)
		return append(events, buildEvent(sett, rep, now)), nil
	})
	if err != nil {
		return view, err
	}
	return view, buildErr
}

// AdvanceDay skips the settlement ahead one day and reports what happened.
func (s *Service) AdvanceDay(ctx context.Context, owner string) (DayReport, social.View, error) {
	var rep DayReport
	var view social.View
	err := s.with(ctx, owner, "", func(sett *social.Settlement, now time.Time) ([]Event, error) {
		rep = s.engine.AdvanceDay(sett, now)
		view = s.engine.View(sett)
		slog.Info("day advanced",
			"owner", owner,
			"day", rep.Day,
			"population", sett.Population,
			"starved", rep.Starved,
			"event", eventID(rep.Event),
		)
		return dayEvents(sett, rep, now), nil
	})
	return rep, view, err
}

// Settlements returns a snapshot of every settlement without ticking them.
func (s *Service) Settlements(ctx context.Context) ([]social.View, error) {
	owners := s.registry.Owners()
	views := make([]social.View, 0, len(owners))
	for _, owner := range owners {
		if err := ctx.Err(); err != nil {
			return views, err
		}
		sl, ok := s.registry.Lookup(owner)
		if !ok {
			continue
		}
		sl.Read(func(sett *social.Settlement) {
			views = append(views, s.engine.View(sett))
		})
	}
	return views, nil
}

// Sweep aggregates totals over every settlement as of its last tick.
// Settlements advance only when their owner acts, so a sweep never runs
// production, starvation or arrivals.
func (s *Service) Sweep(ctx context.Context) (Stats, error) {
	stats := Stats{
		At:        s.clock.Now(),
		Resources: economy.NewLedger(),
		Buildings: make(map[economy.BuildingKind]int),
	}
	for _, owner := range s.registry.Owners() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		sl, ok := s.registry.Lookup(owner)
		if !ok {
			continue
		}
		sl.Read(func(sett *social.Settlement) {
			stats.Settlements++
			stats.Population += sett.Population
			stats.MaxPopulation += sett.MaxPopulation
			for _, r := range economy.Resources {
				stats.Resources[r] += sett.Resources.Get(r)
			}
			for k, n := range sett.Buildings {
				stats.Buildings[k] += n
			}
		})
	}
	return stats, nil
}

// with finds or founds the owner's settlement and runs fn under its lock.
// Events returned by fn are journaled after the lock is released.
func (s *Service) with(ctx context.Context, owner, name string, fn func(*social.Settlement, time.Time) ([]Event, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return ErrInvalidOwner
	}

	sl, created := s.registry.GetOrCreate(owner, func() *social.Settlement {
		n := strings.TrimSpace(name)
		if n == "" {
			n = DefaultName
		}
		return s.engine.NewSettlement(owner, n, s.clock.Now())
	})

	var events []Event
	err := sl.Do(func(sett *social.Settlement) error {
		if created {
			slog.Info("settlement founded", "owner", owner, "name", sett.Name, "id", sett.ID)
			events = append(events, newEvent(sett, sett.CreatedAt, CategoryFounded,
				sett.Name+" was founded", map[string]any{"population": sett.Population}))
		}
		evs, err := fn(sett, s.clock.Now())
		events = append(events, evs...)
		return err
	})
	s.record(ctx, events)
	return err
}

func (s *Service) record(ctx context.Context, events []Event) {
	if len(events) == 0 {
		return
	}
	if err := s.journal.Record(ctx, events...); err != nil {
		slog.Warn("journal write failed", "events", len(events), "error", err)
	}
}

func eventID(ev *AppliedEvent) string {
	if ev == nil {
		return ""
	}
	return ev.ID
}
