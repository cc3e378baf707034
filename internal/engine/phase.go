package engine

import (
	"context"
	"fmt"

	"github.com/talgya/divine-realms/internal/world"
)

// Phase is one unit of per-tick work over the world. Phases run while the
// engine holds the world lock, so they may mutate ws freely but must not
// retain it after returning. Slow I/O belongs on a clone in the background.
type Phase interface {
	Run(ctx context.Context, ws *world.WorldState) error
}

// PhaseFunc adapts a function to Phase.
type PhaseFunc func(ctx context.Context, ws *world.WorldState) error

// Run calls f.
func (f PhaseFunc) Run(ctx context.Context, ws *world.WorldState) error {
	return f(ctx, ws)
}

// Hooks are the externally supplied phases. A nil hook is skipped.
type Hooks struct {
	ResourceProduction Phase // Runs before built-in production
	PopulationGrowth   Phase // Runs before built-in growth
	AIDecision         Phase
	CombatResolution   Phase
	SiegeProgress      Phase
	Persistence        Phase
	Broadcast          Phase
}

// Hook names as they appear in logs and tick reports.
const (
	HookResourceProduction = "resource_production"
	HookPopulationGrowth   = "population_growth"
	HookAIDecision         = "ai_decision"
	HookCombatResolution   = "combat_resolution"
	HookSiegeProgress      = "siege_progress"
	HookPersistence        = "persistence"
	HookBroadcast          = "broadcast"
)

// runPhase calls p and converts a panic into an error.
func runPhase(ctx context.Context, p Phase, ws *world.WorldState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.Run(ctx, ws)
}
