// Package persistence provides SQLite-based world state storage and
// compressed point-in-time snapshots.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/divine-realms/internal/world"
)

// DB wraps a SQLite connection for world state persistence.
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
	CREATE TABLE IF NOT EXISTS territories (
		id TEXT PRIMARY KEY,
		q INTEGER NOT NULL,
		r INTEGER NOT NULL,
		owner TEXT NOT NULL,
		population INTEGER NOT NULL,
		food INTEGER NOT NULL,
		production INTEGER NOT NULL,
		buildings_json TEXT NOT NULL,
		effects_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS factions (
		id TEXT PRIMARY KEY,
		deity_id TEXT NOT NULL,
		name TEXT NOT NULL,
		color TEXT NOT NULL,
		is_ai INTEGER NOT NULL,
		policy_json TEXT NOT NULL,
		divine_power INTEGER NOT NULL,
		food INTEGER NOT NULL,
		production INTEGER NOT NULL,
		gold INTEGER NOT NULL,
		faith INTEGER NOT NULL,
		last_cast_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sieges (
		id TEXT PRIMARY KEY,
		attacker_id TEXT NOT NULL,
		defender_id TEXT NOT NULL,
		territory_id TEXT NOT NULL,
		attacker_strength INTEGER NOT NULL,
		defender_strength INTEGER NOT NULL,
		progress INTEGER NOT NULL,
		required INTEGER NOT NULL,
		started_tick INTEGER NOT NULL,
		status TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS battles (
		seq INTEGER PRIMARY KEY,
		id TEXT NOT NULL,
		attacker_id TEXT NOT NULL,
		defender_id TEXT NOT NULL,
		territory_id TEXT NOT NULL,
		attacker_strength INTEGER NOT NULL,
		defender_strength INTEGER NOT NULL,
		status TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_territories_owner ON territories(owner);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type territoryRow struct {
	ID            string `db:"id"`
	Q             int    `db:"q"`
	R             int    `db:"r"`
	Owner         string `db:"owner"`
	Population    int    `db:"population"`
	Food          int    `db:"food"`
	Production    int    `db:"production"`
	BuildingsJSON string `db:"buildings_json"`
	EffectsJSON   string `db:"effects_json"`
}

type factionRow struct {
	ID           string `db:"id"`
	DeityID      string `db:"deity_id"`
	Name         string `db:"name"`
	Color        string `db:"color"`
	IsAI         bool   `db:"is_ai"`
	PolicyJSON   string `db:"policy_json"`
	DivinePower  int    `db:"divine_power"`
	Food         int    `db:"food"`
	Production   int    `db:"production"`
	Gold         int    `db:"gold"`
	Faith        int    `db:"faith"`
	LastCastJSON string `db:"last_cast_json"`
}

type siegeRow struct {
	ID               string `db:"id"`
	AttackerID       string `db:"attacker_id"`
	DefenderID       string `db:"defender_id"`
	TerritoryID      string `db:"territory_id"`
	AttackerStrength int    `db:"attacker_strength"`
	DefenderStrength int    `db:"defender_strength"`
	Progress         int    `db:"progress"`
	Required         int    `db:"required"`
	StartedTick      uint64 `db:"started_tick"`
	Status           string `db:"status"`
}

type battleRow struct {
	Seq              int    `db:"seq"`
	ID               string `db:"id"`
	AttackerID       string `db:"attacker_id"`
	DefenderID       string `db:"defender_id"`
	TerritoryID      string `db:"territory_id"`
	AttackerStrength int    `db:"attacker_strength"`
	DefenderStrength int    `db:"defender_strength"`
	Status           string `db:"status"`
}

// SaveWorldState writes the whole world in one transaction (full replace).
// ws must not be mutated concurrently; the engine hands in a clone.
func (db *DB) SaveWorldState(ctx context.Context, ws *world.WorldState) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := saveTerritories(ctx, tx, ws); err != nil {
		return fmt.Errorf("save territories: %w", err)
	}
	if err := saveFactions(ctx, tx, ws); err != nil {
		return fmt.Errorf("save factions: %w", err)
	}
	if err := saveSieges(ctx, tx, ws); err != nil {
		return fmt.Errorf("save sieges: %w", err)
	}
	if err := saveBattles(ctx, tx, ws); err != nil {
		return fmt.Errorf("save battles: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		"last_tick", strconv.FormatUint(ws.Tick, 10),
	); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	slog.Debug("world state saved",
		"tick", ws.Tick,
		"territories", len(ws.Territories),
		"factions", len(ws.Factions),
	)
	return nil
}

func saveTerritories(ctx context.Context, tx *sqlx.Tx, ws *world.WorldState) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM territories"); err != nil {
		return err
	}
	stmt, err := tx.PreparexContext(ctx, `INSERT INTO territories
		(id, q, r, owner, population, food, production, buildings_json, effects_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, id := range ws.TerritoryIDs() {
		t := ws.Territories[id]
		buildings, err := json.Marshal(t.Buildings)
		if err != nil {
			return fmt.Errorf("territory %s buildings: %w", id, err)
		}
		effects, err := json.Marshal(t.ActiveEffects)
		if err != nil {
			return fmt.Errorf("territory %s effects: %w", id, err)
		}
		if _, err := stmt.ExecContext(ctx,
			t.ID, t.Coord.Q, t.Coord.R, t.Owner,
			t.Population, t.Food, t.Production,
			string(buildings), string(effects),
		); err != nil {
			return fmt.Errorf("insert territory %s: %w", id, err)
		}
	}
	return nil
}

func saveFactions(ctx context.Context, tx *sqlx.Tx, ws *world.WorldState) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM factions"); err != nil {
		return err
	}
	for _, id := range ws.FactionIDs() {
		f := ws.Factions[id]
		policy, err := json.Marshal(f.Policy)
		if err != nil {
			return fmt.Errorf("faction %s policy: %w", id, err)
		}
		lastCast, err := json.Marshal(f.LastCast)
		if err != nil {
			return fmt.Errorf("faction %s last cast: %w", id, err)
		}
		_, err = tx.NamedExecContext(ctx, `INSERT INTO factions
			(id, deity_id, name, color, is_ai, policy_json, divine_power,
			 food, production, gold, faith, last_cast_json)
			VALUES (:id, :deity_id, :name, :color, :is_ai, :policy_json, :divine_power,
			 :food, :production, :gold, :faith, :last_cast_json)`,
			factionRow{
				ID:           f.ID,
				DeityID:      f.DeityID,
				Name:         f.Name,
				Color:        f.Color,
				IsAI:         f.IsAI,
				PolicyJSON:   string(policy),
				DivinePower:  f.DivinePower,
				Food:         f.Resources.Food,
				Production:   f.Resources.Production,
				Gold:         f.Resources.Gold,
				Faith:        f.Resources.Faith,
				LastCastJSON: string(lastCast),
			})
		if err != nil {
			return fmt.Errorf("insert faction %s: %w", id, err)
		}
	}
	return nil
}

func saveSieges(ctx context.Context, tx *sqlx.Tx, ws *world.WorldState) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM sieges"); err != nil {
		return err
	}
	for _, s := range ws.Sieges {
		_, err := tx.NamedExecContext(ctx, `INSERT INTO sieges
			(id, attacker_id, defender_id, territory_id, attacker_strength,
			 defender_strength, progress, required, started_tick, status)
			VALUES (:id, :attacker_id, :defender_id, :territory_id, :attacker_strength,
			 :defender_strength, :progress, :required, :started_tick, :status)`,
			siegeRow{
				ID:               s.ID,
				AttackerID:       s.AttackerID,
				DefenderID:       s.DefenderID,
				TerritoryID:      s.TerritoryID,
				AttackerStrength: s.AttackerStrength,
				DefenderStrength: s.DefenderStrength,
				Progress:         s.Progress,
				Required:         s.Required,
				StartedTick:      s.StartedTick,
				Status:           string(s.Status),
			})
		if err != nil {
			return fmt.Errorf("insert siege %s: %w", s.ID, err)
		}
	}
	return nil
}

func saveBattles(ctx context.Context, tx *sqlx.Tx, ws *world.WorldState) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM battles"); err != nil {
		return err
	}
	for i, b := range ws.PendingBattles {
		_, err := tx.ExecContext(ctx, `INSERT INTO battles
			(seq, id, attacker_id, defender_id, territory_id,
			 attacker_strength, defender_strength, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			i, b.ID, b.AttackerID, b.DefenderID, b.TerritoryID,
			b.AttackerStrength, b.DefenderStrength, string(b.Status),
		)
		if err != nil {
			return fmt.Errorf("insert battle %s: %w", b.ID, err)
		}
	}
	return nil
}

// HasWorldState reports whether a saved world exists.
func (db *DB) HasWorldState(ctx context.Context) (bool, error) {
	var n int
	if err := db.conn.GetContext(ctx, &n, "SELECT COUNT(*) FROM territories"); err != nil {
		return false, err
	}
	return n > 0, nil
}

// LastTick returns the tick recorded by the most recent save.
func (db *DB) LastTick(ctx context.Context) (uint64, error) {
	var value string
	err := db.conn.GetContext(ctx, &value, "SELECT value FROM world_meta WHERE key = ?", "last_tick")
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(value, 10, 64)
}

// LoadWorldState rebuilds the world from the database. Faction territory
// sets are derived from territory owners.
func (db *DB) LoadWorldState(ctx context.Context) (*world.WorldState, error) {
	ws := world.NewWorldState()

	tick, err := db.LastTick(ctx)
	if err != nil {
		return nil, fmt.Errorf("load meta: %w", err)
	}
	ws.Tick = tick

	var factions []factionRow
	if err := db.conn.SelectContext(ctx, &factions, "SELECT * FROM factions ORDER BY id"); err != nil {
		return nil, fmt.Errorf("load factions: %w", err)
	}
	for _, r := range factions {
		f := world.NewFaction(r.ID, r.DeityID, r.Name, r.Color)
		f.IsAI = r.IsAI
		f.DivinePower = r.DivinePower
		f.Resources = world.Resources{Food: r.Food, Production: r.Production, Gold: r.Gold, Faith: r.Faith}
		if err := json.Unmarshal([]byte(r.PolicyJSON), &f.Policy); err != nil {
			return nil, fmt.Errorf("faction %s policy: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(r.LastCastJSON), &f.LastCast); err != nil {
			return nil, fmt.Errorf("faction %s last cast: %w", r.ID, err)
		}
		if f.LastCast == nil {
			f.LastCast = make(map[string]uint64)
		}
		if err := ws.AddFaction(f); err != nil {
			return nil, err
		}
	}

	var territories []territoryRow
	if err := db.conn.SelectContext(ctx, &territories, "SELECT * FROM territories"); err != nil {
		return nil, fmt.Errorf("load territories: %w", err)
	}
	for _, r := range territories {
		t := world.NewTerritory(world.HexCoord{Q: r.Q, R: r.R})
		t.ID = r.ID
		t.Population = r.Population
		t.Food = r.Food
		t.Production = r.Production
		if err := json.Unmarshal([]byte(r.BuildingsJSON), &t.Buildings); err != nil {
			return nil, fmt.Errorf("territory %s buildings: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(r.EffectsJSON), &t.ActiveEffects); err != nil {
			return nil, fmt.Errorf("territory %s effects: %w", r.ID, err)
		}
		ws.AddTerritory(t)
		if r.Owner == "" {
			continue
		}
		if _, ok := ws.Factions[r.Owner]; ok {
			if err := ws.SetOwner(t.ID, r.Owner); err != nil {
				return nil, err
			}
		} else {
			// Dangling owner: keep it, the formulas skip it.
			t.Owner = r.Owner
		}
	}

	var sieges []siegeRow
	if err := db.conn.SelectContext(ctx, &sieges, "SELECT * FROM sieges"); err != nil {
		return nil, fmt.Errorf("load sieges: %w", err)
	}
	for _, r := range sieges {
		ws.Sieges[r.ID] = &world.Siege{
			ID:               r.ID,
			AttackerID:       r.AttackerID,
			DefenderID:       r.DefenderID,
			TerritoryID:      r.TerritoryID,
			AttackerStrength: r.AttackerStrength,
			DefenderStrength: r.DefenderStrength,
			Progress:         r.Progress,
			Required:         r.Required,
			StartedTick:      r.StartedTick,
			Status:           world.SiegeStatus(r.Status),
		}
	}

	var battles []battleRow
	if err := db.conn.SelectContext(ctx, &battles, "SELECT * FROM battles ORDER BY seq"); err != nil {
		return nil, fmt.Errorf("load battles: %w", err)
	}
	for _, r := range battles {
		ws.PendingBattles = append(ws.PendingBattles, world.PendingBattle{
			ID:               r.ID,
			AttackerID:       r.AttackerID,
			DefenderID:       r.DefenderID,
			TerritoryID:      r.TerritoryID,
			AttackerStrength: r.AttackerStrength,
			DefenderStrength: r.DefenderStrength,
			Status:           world.BattleStatus(r.Status),
		})
	}

	slog.Info("world state loaded",
		"tick", ws.Tick,
		"territories", len(ws.Territories),
		"factions", len(ws.Factions),
		"sieges", len(ws.Sieges),
	)
	return ws, nil
}
