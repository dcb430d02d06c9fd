package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mini-city/internal/economy"
	"github.com/talgya/mini-city/internal/social"
)

type failingJournal struct{ calls atomic.Int32 }

func (f *failingJournal) Record(context.Context, ...Event) error {
	f.calls.Add(1)
	return errors.New("disk full")
}

func newTestService(t *testing.T, src fixedSource) (*Service, *FakeClock, *MemoryJournal) {
	t.Helper()
	e := newTestEngine(t)
	e.Sources = SharedSource(src)
	clock := NewFakeClock(epoch)
	journal := NewMemoryJournal(0)
	return NewService(e, NewRegistry(), clock, journal), clock, journal
}

func TestServiceGetOrCreate(t *testing.T) {
	svc, _, journal := newTestService(t, quiet)
	ctx := context.Background()

	view, err := svc.GetOrCreate(ctx, "chat-1", "Riverside")
	require.NoError(t, err)
	assert.Equal(t, "Riverside", view.Name)
	assert.Equal(t, 1, view.Population)
	assert.Equal(t, int64(100), view.Resources[economy.Food])

	again, err := svc.GetOrCreate(ctx, "chat-1", "Ignored")
	require.NoError(t, err)
	assert.Equal(t, view.ID, again.ID)
	assert.Equal(t, "Riverside", again.Name)

	founded := journal.ByCategory(CategoryFounded)
	require.Len(t, founded, 1)
	assert.Equal(t, "chat-1", founded[0].OwnerID)
}

func TestServiceDefaultName(t *testing.T) {
	svc, _, _ := newTestService(t, quiet)
	view, err := svc.Tick(context.Background(), "chat-2")
	require.NoError(t, err)
	assert.Equal(t, DefaultName, view.Name)
}

func TestServiceRejectsEmptyOwner(t *testing.T) {
	svc, _, _ := newTestService(t, quiet)
	_, err := svc.Tick(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrInvalidOwner)
	assert.Zero(t, svc.Registry().Len())
}

func TestServiceHonoursCancelledContext(t *testing.T) {
	svc, _, _ := newTestService(t, quiet)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Tick(ctx, "chat-1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestServiceTickFollowsClock(t *testing.T) {
	svc, clock, _ := newTestService(t, quiet)
	ctx := context.Background()

	_, err := svc.Tick(ctx, "chat-1")
	require.NoError(t, err)

	clock.Advance(24 * time.Hour)
	view, err := svc.Tick(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, int64(90), view.Resources[economy.Food])
	assert.Equal(t, 2, view.Day)

	// Same instant again: nothing changes.
	view, err = svc.Tick(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, int64(90), view.Resources[economy.Food])
}

func TestServiceCollect(t *testing.T) {
	svc, clock, _ := newTestService(t, quiet)
	svc.Engine().Start.Buildings = map[economy.BuildingKind]int{economy.House: 1, economy.Mine: 1}
	ctx := context.Background()

	_, err := svc.Tick(ctx, "chat-1")
	require.NoError(t, err)
	clock.Advance(4 * time.Hour)

	rep, err := svc.Collect(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, 4.0, rep.Hours)
	assert.InDelta(t, 12, rep.Produced[economy.Stone], 1e-9)
	assert.InDelta(t, 1, rep.Produced[economy.Gold], 1e-9)
	assert.NotContains(t, rep.Produced, economy.Food)
	assert.Equal(t, int64(42), rep.View.Resources[economy.Stone])
}

func TestServiceBuildFailureReturnsView(t *testing.T) {
	svc, _, journal := newTestService(t, quiet)

	view, err := svc.Build(context.Background(), "chat-1", economy.FoodFarm)
	var short *economy.InsufficientResourcesError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, economy.Wood, short.Resource)
	assert.Equal(t, "chat-1", view.OwnerID)
	assert.Equal(t, int64(50), view.Resources[economy.Wood])
	assert.Empty(t, journal.ByCategory(CategoryConstruction))
}

func TestServiceBuildHouse(t *testing.T) {
	svc, _, journal := newTestService(t, quiet)
	svc.Engine().Start.Resources = economy.Ledger{economy.Food: 200, economy.Wood: 500, economy.Stone: 300}

	view, err := svc.Build(context.Background(), "chat-1", economy.House)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Buildings[economy.House])
	assert.Equal(t, 10, view.MaxPopulation)
	assert.Equal(t, 3, view.Population)

	built := journal.ByCategory(CategoryConstruction)
	require.Len(t, built, 1)
	assert.Equal(t, "house", built[0].Meta["kind"])
}

func TestServiceConcurrentBuildsNeverOverspend(t *testing.T) {
	svc, _, _ := newTestService(t, quiet)
	// Enough for exactly two farms.
	svc.Engine().Start.Resources = economy.Ledger{economy.Food: 100, economy.Wood: 250, economy.Stone: 125}
	ctx := context.Background()

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Build(ctx, "chat-1", economy.FoodFarm); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), ok.Load())
	view, err := svc.Tick(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, 2, view.Buildings[economy.FoodFarm])
	assert.Equal(t, int64(50), view.Resources[economy.Wood])
	assert.Equal(t, int64(25), view.Resources[economy.Stone])
}

func TestServiceAdvanceDay(t *testing.T) {
	svc, _, journal := newTestService(t, fixedSource{f: 0})

	rep, view, err := svc.AdvanceDay(context.Background(), "chat-1")
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Day)
	assert.Equal(t, 2, view.Day)
	require.NotNil(t, rep.Event)

	assert.Len(t, journal.ByCategory(CategoryDay), 1)
	assert.Len(t, journal.ByCategory(CategoryEvent), 1)
	assert.Len(t, journal.ByCategory(CategoryArrival), 1)
}

func TestServiceJournalFailureDoesNotFailOperation(t *testing.T) {
	e := newTestEngine(t)
	j := &failingJournal{}
	svc := NewService(e, nil, NewFakeClock(epoch), j)

	_, err := svc.Tick(context.Background(), "chat-1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), j.calls.Load())
}

func TestServiceSettlementsAndSweep(t *testing.T) {
	svc, clock, _ := newTestService(t, quiet)
	ctx := context.Background()

	for _, owner := range []string{"b", "a"} {
		_, err := svc.GetOrCreate(ctx, owner, "")
		require.NoError(t, err)
	}

	views, err := svc.Settlements(ctx)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "a", views[0].OwnerID)

	clock.Advance(24 * time.Hour)
	stats, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Settlements)
	assert.Equal(t, 2, stats.Population)
	assert.Equal(t, 10, stats.MaxPopulation)
	assert.InDelta(t, 200, stats.Resources.Get(economy.Food), 1e-9, "a sweep does not advance settlements")
	assert.Equal(t, 2, stats.Buildings[economy.House])
	assert.Equal(t, clock.Now(), stats.At)

	_, err = svc.Status(ctx, "a")
	require.NoError(t, err)
	views, err = svc.Settlements(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, views[0].Day)
	assert.Equal(t, 1, views[1].Day)
}

func TestServiceStatusNeverFounds(t *testing.T) {
	svc, clock, _ := newTestService(t, quiet)
	ctx := context.Background()

	_, err := svc.Status(ctx, "stranger")
	assert.ErrorIs(t, err, ErrNoSettlement)
	_, err = svc.Status(ctx, "  ")
	assert.ErrorIs(t, err, ErrInvalidOwner)
	assert.Zero(t, svc.Registry().Len())

	_, err = svc.GetOrCreate(ctx, "chat-1", "")
	require.NoError(t, err)
	clock.Advance(24 * time.Hour)
	view, err := svc.Status(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, int64(90), view.Resources[economy.Food])
	assert.Equal(t, 2, view.Day)
}

func TestFrequentPollingDoesNotSpeedUpFamine(t *testing.T) {
	e := newTestEngine(t)
	e.Sources = SharedSource(quiet)
	e.Start = social.Seed{
		Population: 5,
		Resources:  economy.Ledger{},
		Buildings:  map[economy.BuildingKind]int{economy.House: 1},
	}
	clock := NewFakeClock(epoch)
	svc := NewService(e, nil, clock, nil)
	ctx := context.Background()

	_, err := svc.GetOrCreate(ctx, "chat-1", "")
	require.NoError(t, err)

	for minute := 1; minute <= 5; minute++ {
		clock.Advance(time.Minute)
		_, err := svc.Sweep(ctx)
		require.NoError(t, err)
		view, err := svc.Status(ctx, "chat-1")
		require.NoError(t, err)
		require.Equal(t, 5, view.Population, "after %d min", minute)
	}

	// The rest of the day, polled every minute, costs what one long tick does.
	for minute := 6; minute <= 24*60; minute++ {
		clock.Advance(time.Minute)
		_, err := svc.Status(ctx, "chat-1")
		require.NoError(t, err)
	}
	view, err := svc.Status(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, 4, view.Population)
}

func TestMultiJournalJoinsErrors(t *testing.T) {
	mem := NewMemoryJournal(2)
	bad := &failingJournal{}
	j := MultiJournal{mem, nil, bad}

	s := social.New("o", "n", social.DefaultSeed(), 5, epoch, nil)
	err := j.Record(context.Background(),
		newEvent(s, epoch, CategoryDay, "1", nil),
		newEvent(s, epoch, CategoryDay, "2", nil),
		newEvent(s, epoch, CategoryDay, "3", nil),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	events := mem.Events()
	require.Len(t, events, 2, "memory journal keeps the newest events")
	assert.Equal(t, "2", events[0].Description)
}
