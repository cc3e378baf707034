package world

import (
	"github.com/talgya/divine-realms/internal/errs"
)

// AddFaction registers a faction. IDs must be unique.
func (ws *WorldState) AddFaction(f *Faction) error {
	if f.ID == "" {
		return errs.New(errs.CodeInvalidInput, "faction id is required")
	}
	if _, exists := ws.Factions[f.ID]; exists {
		return errs.New(errs.CodeInvalidState, "faction %q already exists", f.ID)
	}
	if f.Territories == nil {
		f.Territories = make(map[string]bool)
	}
	if f.LastCast == nil {
		f.LastCast = make(map[string]uint64)
	}
	ws.Factions[f.ID] = f
	return nil
}

// RemoveFaction deletes a faction and releases the territories it lists.
// Territories that still point at the removed ID are left alone and are
// skipped by the tick formulas.
func (ws *WorldState) RemoveFaction(id string) error {
	f, ok := ws.Factions[id]
	if !ok {
		return errs.New(errs.CodeNotFound, "faction %q not found", id)
	}
	for tid := range f.Territories {
		if t, ok := ws.Territories[tid]; ok && t.Owner == id {
			t.Owner = ""
		}
	}
	delete(ws.Factions, id)
	return nil
}

// SetOwner transfers a territory to factionID, updating both the territory's
// owner and the old and new factions' territory sets. An empty factionID
// releases the territory.
func (ws *WorldState) SetOwner(territoryID, factionID string) error {
	t, ok := ws.Territories[territoryID]
	if !ok {
		return errs.New(errs.CodeNotFound, "territory %q not found", territoryID)
	}
	var next *Faction
	if factionID != "" {
		next, ok = ws.Factions[factionID]
		if !ok {
			return errs.New(errs.CodeNotFound, "faction %q not found", factionID)
		}
	}

	if prev, ok := ws.Factions[t.Owner]; ok {
		delete(prev.Territories, territoryID)
	}
	t.Owner = factionID
	if next != nil {
		next.Territories[territoryID] = true
	}
	return nil
}

// OwnerOf returns the faction owning t. It reports false for unowned
// territories and for owners that no longer exist.
func (ws *WorldState) OwnerOf(t *Territory) (*Faction, bool) {
	if t.Owner == "" {
		return nil, false
	}
	f, ok := ws.Factions[t.Owner]
	return f, ok
}
