// Package conflict holds the siege-progress phase.
package conflict

import (
	"context"
	"log/slog"
	"sort"

	"github.com/talgya/divine-realms/internal/effects"
	"github.com/talgya/divine-realms/internal/errs"
	"github.com/talgya/divine-realms/internal/world"
)

// SiegeOutcome counts what one pass did.
type SiegeOutcome struct {
	Advanced int
	Held     int // Reached required progress but blocked by a shield
	Captured int
	Broken   int
}

// SiegePhase advances active sieges by one step per tick.
//
// A siege progresses while the attacker is stronger than the defender and
// stalls otherwise. On reaching its required progress it captures the
// territory, unless the territory is shielded: then it stays active at the
// required progress and captures on the first tick the shield is gone.
// A siege whose attacker or territory no longer exists is broken.
type SiegePhase struct{}

// Run implements the engine phase interface.
func (SiegePhase) Run(ctx context.Context, ws *world.WorldState) error {
	Advance(ws)
	return nil
}

// Advance runs one siege pass over ws.
func Advance(ws *world.WorldState) SiegeOutcome {
	var out SiegeOutcome

	ids := make([]string, 0, len(ws.Sieges))
	for id, s := range ws.Sieges {
		if s.Status == world.SiegeActive {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	for _, id := range ids {
		s := ws.Sieges[id]
		t, ok := ws.Territories[s.TerritoryID]
		if _, attacker := ws.Factions[s.AttackerID]; !attacker || !ok {
			s.Status = world.SiegeBroken
			out.Broken++
			slog.Info("siege broken", "siege", s.ID, "territory", s.TerritoryID, "attacker", s.AttackerID)
			continue
		}

		if s.Progress < s.Required {
			if s.AttackerStrength <= s.DefenderStrength {
				continue
			}
			s.Progress++
			out.Advanced++
			if s.Progress < s.Required {
				continue
			}
		}

		if effects.IsShielded(t) {
			out.Held++
			continue
		}
		// Capture requires an existing faction, checked above.
		if err := ws.SetOwner(t.ID, s.AttackerID); err != nil {
			slog.Error("siege capture failed", "siege", s.ID, "error", err)
			continue
		}
		s.Status = world.SiegeCaptured
		out.Captured++
		slog.Info("territory captured",
			"siege", s.ID,
			"territory", t.ID,
			"attacker", s.AttackerID,
			"defender", s.DefenderID,
			"tick", ws.Tick,
		)
	}
	return out
}

// DefaultSiegeRequired is the progress a siege needs when started without
// an explicit requirement.
const DefaultSiegeRequired = 5

// StartSiege registers a new active siege against territoryID. The
// defender is the territory's current owner, if any.
func StartSiege(ws *world.WorldState, id, attackerID, territoryID string, attackerStrength, defenderStrength, required int) (*world.Siege, error) {
	if err := validateSiege(ws, id, attackerID, territoryID); err != nil {
		return nil, err
	}
	if required <= 0 {
		required = DefaultSiegeRequired
	}
	s := &world.Siege{
		ID:               id,
		AttackerID:       attackerID,
		DefenderID:       ws.Territories[territoryID].Owner,
		TerritoryID:      territoryID,
		AttackerStrength: attackerStrength,
		DefenderStrength: defenderStrength,
		Required:         required,
		StartedTick:      ws.Tick,
		Status:           world.SiegeActive,
	}
	ws.Sieges[id] = s
	return s, nil
}

func validateSiege(ws *world.WorldState, id, attackerID, territoryID string) error {
	if id == "" {
		return errs.New(errs.CodeInvalidInput, "siege id is required")
	}
	if _, exists := ws.Sieges[id]; exists {
		return errs.New(errs.CodeInvalidState, "siege %q already exists", id)
	}
	if _, ok := ws.Factions[attackerID]; !ok {
		return errs.New(errs.CodeNotFound, "faction %q not found", attackerID)
	}
	t, ok := ws.Territories[territoryID]
	if !ok {
		return errs.New(errs.CodeNotFound, "territory %q not found", territoryID)
	}
	if t.Owner == attackerID {
		return errs.New(errs.CodeInvalidState, "%s already owns %s", attackerID, territoryID)
	}
	return nil
}
