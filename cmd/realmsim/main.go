// Command realmsim runs a Divine Realms shard: the tick engine, its
// persistence and broadcast hooks, and the HTTP API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/talgya/divine-realms/internal/api"
	"github.com/talgya/divine-realms/internal/config"
	"github.com/talgya/divine-realms/internal/conflict"
	"github.com/talgya/divine-realms/internal/engine"
	"github.com/talgya/divine-realms/internal/entropy"
	"github.com/talgya/divine-realms/internal/miracles"
	"github.com/talgya/divine-realms/internal/persistence"
	"github.com/talgya/divine-realms/internal/world"
)

// Starting pantheon for a fresh shard.
var pantheon = []struct {
	id, deity, name, color string
	ai                     bool
	policy                 world.Policy
}{
	{"sun", "sol", "Children of the Sun", "#f2b705", false, world.Policy{Expansion: 0.6, Aggression: 0.3, ResourceFocus: "food"}},
	{"moon", "luna", "Moonward Covenant", "#8c9eff", true, world.Policy{Expansion: 0.4, Aggression: 0.5, ResourceFocus: "faith"}},
	{"storm", "tempest", "Stormcallers", "#00acc1", true, world.Policy{Expansion: 0.7, Aggression: 0.8, ResourceFocus: "production"}},
	{"earth", "terra", "Hearth of Terra", "#6d4c41", true, world.Policy{Expansion: 0.3, Aggression: 0.2, ResourceFocus: "food"}},
}

const (
	startPopulation  = 100
	startDivinePower = 50
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("Divine Realms shard starting",
		"tick_interval", cfg.TickInterval,
		"map_radius", cfg.MapRadius,
		"overrun_policy", cfg.OverrunPolicy,
	)

	// ── Database ──────────────────────────────────────────────────────
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		slog.Error("failed to create data directory", "error", err)
		os.Exit(1)
	}
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	// ── Load or Generate World State ─────────────────────────────────
	ws, err := loadOrGenerate(db, cfg)
	if err != nil {
		slog.Error("failed to prepare world", "error", err)
		os.Exit(1)
	}

	// ── Miracles ─────────────────────────────────────────────────────
	catalog := miracles.DefaultCatalog()
	if cfg.MiracleCatalog != "" {
		catalog, err = miracles.LoadCatalogFile(cfg.MiracleCatalog)
		if err != nil {
			slog.Error("failed to load miracle catalog", "path", cfg.MiracleCatalog, "error", err)
			os.Exit(1)
		}
	}
	slog.Info("miracle catalog ready", "miracles", catalog.IDs())

	// ── Engine ───────────────────────────────────────────────────────
	hub := api.NewHub()
	saver := persistence.NewSaver(db, cfg.SaveEvery, cfg.SnapshotDir, cfg.HookTimeout)
	eng := engine.New(ws, miracles.NewCaster(catalog), engine.Config{
		Hooks: engine.Hooks{
			SiegeProgress: conflict.SiegePhase{},
			Persistence:   saver,
			Broadcast:     hub,
		},
		SummaryEvery: cfg.SummaryEvery,
		HookTimeout:  cfg.HookTimeout,
	})
	sched := engine.NewScheduler(eng, cfg.TickInterval,
		engine.WithOverrunPolicy(engine.OverrunPolicy(cfg.OverrunPolicy)))

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.AdminKey == "" {
		slog.Warn("REALM_ADMIN_KEY not set, admin endpoints disabled")
	}
	casts := api.NewRateLimiter(cfg.CastRate, cfg.CastBurst, 10*time.Minute)
	apiServer := &api.Server{
		Eng:      eng,
		Sched:    sched,
		Hub:      hub,
		Casts:    casts,
		Port:     cfg.APIPort,
		AdminKey: cfg.AdminKey,
	}
	apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		t := time.NewTicker(10 * time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := casts.Cleanup(); n > 0 {
					slog.Debug("rate limiter cleanup", "removed", n)
				}
			}
		}
	}()

	factions, territories := len(ws.Factions), len(ws.Territories)
	if err := sched.Start(ctx); err != nil {
		slog.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	fmt.Printf("\nThe realm is alive: %d factions across %d territories.\n",
		factions, territories)
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.APIPort)
	fmt.Println("Ticking... (Ctrl+C to stop)")

	<-ctx.Done()
	slog.Info("shutting down")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}

	// Final save on shutdown.
	final := eng.Snapshot()
	slog.Info("final save...", "tick", final.Tick)
	if err := saver.SaveNow(shutdownCtx, final); err != nil {
		slog.Error("final save failed", "error", err)
	}

	fmt.Println("Realm stopped. World state saved.")
}

// loadOrGenerate restores the world from the database, falling back to the
// newest snapshot, and generates a fresh shard when neither exists.
func loadOrGenerate(db *persistence.DB, cfg config.Config) (*world.WorldState, error) {
	ctx := context.Background()

	has, err := db.HasWorldState(ctx)
	if err != nil {
		return nil, fmt.Errorf("check saved state: %w", err)
	}
	if has {
		slog.Info("found saved world state, loading...")
		return db.LoadWorldState(ctx)
	}

	if path := persistence.LatestSnapshot(cfg.SnapshotDir); path != "" {
		slog.Info("restoring from snapshot", "path", path)
		_, ws, err := persistence.ReadSnapshot(path)
		if err != nil {
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		return ws, nil
	}

	slog.Info("no saved state found, generating new world...")
	seed := entropy.Resolve(cfg.Seed)
	gen := world.DefaultGenConfig()
	gen.Radius = cfg.MapRadius
	gen.Seed = seed
	ws := world.NewWorldState()
	world.GenerateMap(ws, gen)

	ids := make([]string, 0, len(pantheon))
	for _, p := range pantheon {
		f := world.NewFaction(p.id, p.deity, p.name, p.color)
		f.IsAI = p.ai
		f.Policy = p.policy
		f.DivinePower = startDivinePower
		if err := ws.AddFaction(f); err != nil {
			return nil, err
		}
		ids = append(ids, p.id)
	}

	minDist := cfg.MapRadius / 2
	if minDist < 1 {
		minDist = 1
	}
	if unplaced := world.PlaceCapitals(ws, ids, startPopulation, minDist); len(unplaced) > 0 {
		slog.Warn("map too small for every capital", "unplaced", unplaced)
	}

	slog.Info("world generated",
		"seed", seed,
		"territories", len(ws.Territories),
		"factions", len(ws.Factions),
	)
	// Save on fresh generation only (loaded worlds are already saved).
	if err := db.SaveWorldState(ctx, ws); err != nil {
		slog.Error("initial save failed", "error", err)
	}
	return ws, nil
}
