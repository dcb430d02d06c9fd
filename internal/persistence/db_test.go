package persistence

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mini-city/internal/economy"
	"github.com/talgya/mini-city/internal/engine"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "city.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testEvent(owner, category string, day int, at time.Time) engine.Event {
	return engine.Event{
		ID:           uuid.New(),
		SettlementID: uuid.New(),
		OwnerID:      owner,
		Day:          day,
		Category:     category,
		Description:  category + " happened",
		At:           at,
		Meta:         map[string]any{"deaths": 2},
	}
}

func TestRecordAndRecentEvents(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	first := testEvent("chat-1", engine.CategoryFounded, 1, at)
	first.Meta = nil
	require.NoError(t, db.Record(ctx,
		first,
		testEvent("chat-2", engine.CategoryFounded, 1, at),
		testEvent("chat-1", engine.CategoryStarvation, 3, at.Add(time.Hour)),
	))
	require.NoError(t, db.Record(ctx))

	all, err := db.RecentEvents(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, engine.CategoryStarvation, all[0].Category, "newest first")

	mine, err := db.RecentEvents(ctx, "chat-1", 10)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, 3, mine[0].Day)
	assert.Equal(t, float64(2), mine[0].Meta["deaths"])
	assert.True(t, mine[0].At.Equal(at.Add(time.Hour)))
	assert.Equal(t, first.ID, mine[1].ID)
	assert.Equal(t, first.SettlementID, mine[1].SettlementID)
	assert.Nil(t, mine[1].Meta)

	limited, err := db.RecentEvents(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	n, err := db.CountEvents(ctx, "chat-1", engine.CategoryFounded)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecordIsAtomic(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	ev := testEvent("chat-1", engine.CategoryDay, 2, time.Now())

	// The duplicate ID violates the unique constraint and rolls back both rows.
	err := db.Record(ctx, ev, ev)
	require.Error(t, err)

	events, err := db.RecentEvents(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDBServesAsJournal(t *testing.T) {
	db := openTestDB(t)
	svc := engine.NewService(mustEngine(t), nil, engine.NewFakeClock(time.Now()), db)

	_, err := svc.GetOrCreate(context.Background(), "chat-9", "Harbor")
	require.NoError(t, err)

	events, err := db.RecentEvents(context.Background(), "chat-9", 5)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, engine.CategoryFounded, events[0].Category)
	assert.Contains(t, events[0].Description, "Harbor")
}

func TestStatsHistory(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, db.SaveStats(ctx, engine.Stats{
			At:            at.Add(time.Duration(i) * time.Minute),
			Settlements:   i + 1,
			Population:    10 * (i + 1),
			MaxPopulation: 20 * (i + 1),
			Resources:     economy.Ledger{economy.Food: float64(100 * i), economy.Gold: 1.5},
			Buildings:     map[economy.BuildingKind]int{economy.House: i + 1},
		}))
	}

	history, err := db.StatsHistory(ctx, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 2, history[0].Settlements, "oldest of the window first")
	assert.Equal(t, 3, history[1].Settlements)
	assert.Equal(t, 200.0, history[1].Resources.Get(economy.Food))
	assert.Equal(t, 1.5, history[1].Resources.Get(economy.Gold))
	assert.Equal(t, 3, history[1].Buildings[economy.House])
	assert.True(t, history[1].At.Equal(at.Add(2*time.Minute)))
}

func TestMeta(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.GetMeta(ctx, "started_at")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, db.SaveMeta(ctx, "started_at", "a"))
	require.NoError(t, db.SaveMeta(ctx, "started_at", "b"))
	v, err := db.GetMeta(ctx, "started_at")
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "city.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Record(context.Background(), testEvent("chat-1", engine.CategoryDay, 2, time.Now())))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	events, err := db.RecentEvents(context.Background(), "chat-1", 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func mustEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.NewEngine(economy.DefaultCatalog(), engine.DefaultPolicy(), 1)
	require.NoError(t, err)
	return e
}
