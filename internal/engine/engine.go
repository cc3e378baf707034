// Package engine advances the world one tick at a time and owns the lock
// that serializes ticks with miracle casts and other external mutations.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/talgya/divine-realms/internal/economy"
	"github.com/talgya/divine-realms/internal/effects"
	"github.com/talgya/divine-realms/internal/miracles"
	"github.com/talgya/divine-realms/internal/world"
)

// Config tunes an Engine.
type Config struct {
	Hooks Hooks

	// SummaryEvery logs a world summary every N ticks (0 = never).
	SummaryEvery uint64

	// HookTimeout bounds the context handed to each hook (0 = unbounded).
	HookTimeout time.Duration
}

// TickReport describes one completed tick.
type TickReport struct {
	Tick           uint64                   `json:"tick"`
	Duration       time.Duration            `json:"duration"`
	ExpiredEffects int                      `json:"expired_effects"`
	Produced       economy.Totals           `json:"produced"`
	Population     economy.PopulationChange `json:"population"`
	HookFailures   []string                 `json:"hook_failures,omitempty"`
}

// Engine owns the world. Every read or write of the world goes through
// its lock, so a cast is either fully applied before a tick starts or
// waits until the tick has finished.
type Engine struct {
	mu     sync.Mutex
	state  *world.WorldState
	caster *miracles.Caster
	cfg    Config
	last   TickReport
}

// New creates an engine that takes ownership of state. Callers must not
// touch state directly afterwards.
func New(state *world.WorldState, caster *miracles.Caster, cfg Config) *Engine {
	return &Engine{
		state:  state,
		caster: caster,
		cfg:    cfg,
	}
}

// Tick advances the world by one tick. The counter is incremented before
// any phase runs, so every phase observes the new tick value. Phases run in
// a fixed order:
//
//  1. divine power regeneration
//  2. effect expiration
//  3. resource production hook, then built-in production
//  4. population growth hook, then built-in growth
//  5. AI decisions
//  6. combat resolution
//  7. siege progress
//  8. persistence
//  9. broadcast
//
// Hook failures are logged and recorded in the report; they never stop
// later phases.
func (e *Engine) Tick(ctx context.Context) TickReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	ws := e.state
	ws.Tick++
	rep := TickReport{Tick: ws.Tick}

	economy.RegenerateDivinePower(ws)
	rep.ExpiredEffects = effects.Expire(ws)

	e.runHook(ctx, &rep, HookResourceProduction, e.cfg.Hooks.ResourceProduction)
	rep.Produced = economy.Produce(ws)

	e.runHook(ctx, &rep, HookPopulationGrowth, e.cfg.Hooks.PopulationGrowth)
	rep.Population = economy.GrowPopulation(ws)

	e.runHook(ctx, &rep, HookAIDecision, e.cfg.Hooks.AIDecision)
	e.runHook(ctx, &rep, HookCombatResolution, e.cfg.Hooks.CombatResolution)
	e.runHook(ctx, &rep, HookSiegeProgress, e.cfg.Hooks.SiegeProgress)
	e.runHook(ctx, &rep, HookPersistence, e.cfg.Hooks.Persistence)
	e.runHook(ctx, &rep, HookBroadcast, e.cfg.Hooks.Broadcast)

	rep.Duration = time.Since(start)
	e.last = rep

	if e.cfg.SummaryEvery > 0 && ws.Tick%e.cfg.SummaryEvery == 0 {
		logSummary(ws, rep)
	}
	return rep
}

func (e *Engine) runHook(ctx context.Context, rep *TickReport, name string, p Phase) {
	if p == nil {
		return
	}
	if e.cfg.HookTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.HookTimeout)
		defer cancel()
	}
	if err := runPhase(ctx, p, e.state); err != nil {
		rep.HookFailures = append(rep.HookFailures, name)
		slog.Error("phase hook failed", "phase", name, "tick", e.state.Tick, "error", err)
	}
}

// CastMiracle validates and applies a miracle under the world lock.
func (e *Engine) CastMiracle(factionID, miracleID, targetID string) miracles.CastResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := e.caster.Cast(e.state, factionID, miracleID, targetID)
	if res.Success {
		slog.Info("miracle cast",
			"tick", e.state.Tick,
			"faction", factionID,
			"miracle", miracleID,
			"target", targetID,
			"effect_id", res.EffectID,
		)
	} else {
		slog.Debug("miracle rejected",
			"faction", factionID,
			"miracle", miracleID,
			"target", targetID,
			"error", res.Error,
		)
	}
	return res
}

// ValidateMiracleCast runs the cast checks without changing the world.
func (e *Engine) ValidateMiracleCast(factionID, miracleID, targetID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.caster.Validate(e.state, factionID, miracleID, targetID)
}

// Catalog returns the miracle registry.
func (e *Engine) Catalog() *miracles.Catalog {
	return e.caster.Catalog()
}

// Update runs fn with exclusive access to the world.
func (e *Engine) Update(fn func(ws *world.WorldState) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.state)
}

// View runs fn with exclusive access to the world. fn must not mutate ws
// or retain references into it.
func (e *Engine) View(fn func(ws *world.WorldState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.state)
}

// Snapshot returns a deep copy of the world.
func (e *Engine) Snapshot() *world.WorldState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// CurrentTick returns the most recently started tick number.
func (e *Engine) CurrentTick() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Tick
}

// LastReport returns the report of the most recent tick.
func (e *Engine) LastReport() TickReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}
