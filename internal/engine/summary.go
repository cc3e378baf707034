package engine

import (
	"fmt"
	"log/slog"

	"github.com/talgya/divine-realms/internal/world"
)

// WorldStats aggregates world-wide totals for reports and the API.
type WorldStats struct {
	Territories      int `json:"territories"`
	OwnedTerritories int `json:"owned_territories"`
	Factions         int `json:"factions"`
	Population       int `json:"population"`
	DivinePower      int `json:"divine_power"`
	ActiveEffects    int `json:"active_effects"`
	ActiveSieges     int `json:"active_sieges"`
	PendingBattles   int `json:"pending_battles"`
}

// CollectStats computes WorldStats for ws.
func CollectStats(ws *world.WorldState) WorldStats {
	st := WorldStats{
		Territories:    len(ws.Territories),
		Factions:       len(ws.Factions),
		PendingBattles: len(ws.PendingBattles),
	}
	for _, t := range ws.Territories {
		if t.Owner != "" {
			st.OwnedTerritories++
		}
		st.Population += t.Population
		st.ActiveEffects += len(t.ActiveEffects)
	}
	for _, f := range ws.Factions {
		st.DivinePower += f.DivinePower
	}
	for _, s := range ws.Sieges {
		if s.Status == world.SiegeActive {
			st.ActiveSieges++
		}
	}
	return st
}

func logSummary(ws *world.WorldState, rep TickReport) {
	st := CollectStats(ws)
	slog.Info("tick summary",
		"tick", rep.Tick,
		"duration", rep.Duration,
		"territories", st.Territories,
		"owned", st.OwnedTerritories,
		"factions", st.Factions,
		"population", st.Population,
		"divine_power", st.DivinePower,
		"active_effects", st.ActiveEffects,
		"expired_effects", rep.ExpiredEffects,
		"food_produced", rep.Produced.Food,
		"production_produced", rep.Produced.Production,
		"grown", rep.Population.Grown,
		"starved", rep.Population.Starved,
		"active_sieges", st.ActiveSieges,
		"hook_failures", len(rep.HookFailures),
	)

	for _, id := range ws.FactionIDs() {
		f := ws.Factions[id]
		slog.Info("faction update",
			"faction", f.Name,
			"territories", len(f.Territories),
			"divine_power", f.DivinePower,
			"resources", fmt.Sprintf("food=%d production=%d gold=%d faith=%d",
				f.Resources.Food, f.Resources.Production, f.Resources.Gold, f.Resources.Faith),
		)
	}
}
