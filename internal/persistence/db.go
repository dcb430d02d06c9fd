// Package persistence provides SQLite-backed storage for the settlement
// journal and sweep statistics.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/mini-city/internal/economy"
	"github.com/talgya/mini-city/internal/engine"
)

// DB wraps a SQLite connection.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		settlement_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		day INTEGER NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL,
		at INTEGER NOT NULL,
		meta_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS stats (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		at INTEGER NOT NULL,
		settlements INTEGER NOT NULL,
		population INTEGER NOT NULL,
		max_population INTEGER NOT NULL,
		resources_json TEXT NOT NULL,
		buildings_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS server_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_owner ON events(owner_id);
	CREATE INDEX IF NOT EXISTS idx_events_category ON events(category);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Record appends events to the journal table.
func (db *DB) Record(ctx context.Context, events ...engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `INSERT INTO events
		(id, settlement_id, owner_id, day, category, description, at, meta_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		metaJSON, err := json.Marshal(e.Meta)
		if err != nil {
			return fmt.Errorf("encode event %s meta: %w", e.ID, err)
		}
		if e.Meta == nil {
			metaJSON = []byte("{}")
		}
		_, err = stmt.ExecContext(ctx,
			e.ID.String(), e.SettlementID.String(), e.OwnerID, e.Day,
			e.Category, e.Description, e.At.UnixNano(), string(metaJSON),
		)
		if err != nil {
			return fmt.Errorf("insert event %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

type eventRow struct {
	ID           string `db:"id"`
	SettlementID string `db:"settlement_id"`
	OwnerID      string `db:"owner_id"`
	Day          int    `db:"day"`
	Category     string `db:"category"`
	Description  string `db:"description"`
	At           int64  `db:"at"`
	MetaJSON     string `db:"meta_json"`
}

func (r eventRow) event() (engine.Event, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return engine.Event{}, fmt.Errorf("event id: %w", err)
	}
	sid, err := uuid.Parse(r.SettlementID)
	if err != nil {
		return engine.Event{}, fmt.Errorf("event %s settlement id: %w", r.ID, err)
	}
	e := engine.Event{
		ID:           id,
		SettlementID: sid,
		OwnerID:      r.OwnerID,
		Day:          r.Day,
		Category:     r.Category,
		Description:  r.Description,
		At:           time.Unix(0, r.At).UTC(),
	}
	if r.MetaJSON != "" && r.MetaJSON != "{}" {
		if err := json.Unmarshal([]byte(r.MetaJSON), &e.Meta); err != nil {
			return engine.Event{}, fmt.Errorf("event %s meta: %w", r.ID, err)
		}
	}
	return e, nil
}

// RecentEvents returns the most recent limit events, newest first. An empty
// owner returns events from every settlement.
func (db *DB) RecentEvents(ctx context.Context, owner string, limit int) ([]engine.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []eventRow
	var err error
	if owner == "" {
		err = db.conn.SelectContext(ctx, &rows,
			"SELECT id, settlement_id, owner_id, day, category, description, at, meta_json FROM events ORDER BY seq DESC LIMIT ?",
			limit,
		)
	} else {
		err = db.conn.SelectContext(ctx, &rows,
			"SELECT id, settlement_id, owner_id, day, category, description, at, meta_json FROM events WHERE owner_id = ? ORDER BY seq DESC LIMIT ?",
			owner, limit,
		)
	}
	if err != nil {
		return nil, err
	}

	events := make([]engine.Event, 0, len(rows))
	for _, r := range rows {
		e, err := r.event()
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

// CountEvents returns how many events of category are stored for owner.
func (db *DB) CountEvents(ctx context.Context, owner, category string) (int, error) {
	var n int
	err := db.conn.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM events WHERE owner_id = ? AND category = ?",
		owner, category,
	)
	return n, err
}

// SaveStats appends one sweep's totals.
func (db *DB) SaveStats(ctx context.Context, s engine.Stats) error {
	resJSON, err := json.Marshal(s.Resources)
	if err != nil {
		return fmt.Errorf("encode resources: %w", err)
	}
	bldJSON, err := json.Marshal(s.Buildings)
	if err != nil {
		return fmt.Errorf("encode buildings: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `INSERT INTO stats
		(at, settlements, population, max_population, resources_json, buildings_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.At.UnixNano(), s.Settlements, s.Population, s.MaxPopulation,
		string(resJSON), string(bldJSON),
	)
	return err
}

type statsRow struct {
	At            int64  `db:"at"`
	Settlements   int    `db:"settlements"`
	Population    int    `db:"population"`
	MaxPopulation int    `db:"max_population"`
	ResourcesJSON string `db:"resources_json"`
	BuildingsJSON string `db:"buildings_json"`
}

// StatsHistory returns the latest limit sweeps, oldest first.
func (db *DB) StatsHistory(ctx context.Context, limit int) ([]engine.Stats, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []statsRow
	err := db.conn.SelectContext(ctx, &rows,
		"SELECT at, settlements, population, max_population, resources_json, buildings_json FROM stats ORDER BY seq DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}

	out := make([]engine.Stats, len(rows))
	for i, r := range rows {
		s := engine.Stats{
			At:            time.Unix(0, r.At).UTC(),
			Settlements:   r.Settlements,
			Population:    r.Population,
			MaxPopulation: r.MaxPopulation,
			Resources:     economy.NewLedger(),
			Buildings:     make(map[economy.BuildingKind]int),
		}
		if err := json.Unmarshal([]byte(r.ResourcesJSON), &s.Resources); err != nil {
			return nil, fmt.Errorf("decode resources: %w", err)
		}
		if err := json.Unmarshal([]byte(r.BuildingsJSON), &s.Buildings); err != nil {
			return nil, fmt.Errorf("decode buildings: %w", err)
		}
		out[len(rows)-1-i] = s
	}
	return out, nil
}

// SaveMeta stores a key-value pair in server metadata.
func (db *DB) SaveMeta(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT OR REPLACE INTO server_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := db.conn.GetContext(ctx, &value, "SELECT value FROM server_meta WHERE key = ?", key)
	return value, err
}
