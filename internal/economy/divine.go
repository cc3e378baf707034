package economy

import (
	"github.com/talgya/divine-realms/internal/world"
)

// Divine power regeneration per tick.
const (
	BaseDivineRegen      = 1
	DivineRegenPerTemple = 1
)

// RegenerateDivinePower grants every faction BaseDivineRegen plus
// DivineRegenPerTemple for each owned territory with a temple, capped at
// world.MaxDivinePower.
func RegenerateDivinePower(ws *world.WorldState) {
	for _, f := range ws.Factions {
		temples := 0
		for tid := range f.Territories {
			t, ok := ws.Territories[tid]
			if !ok {
				continue
			}
			if t.HasBuilding(world.BuildingTemple) {
				temples++
			}
		}

		next := f.DivinePower + BaseDivineRegen + temples*DivineRegenPerTemple
		if next > world.MaxDivinePower {
			next = world.MaxDivinePower
		}
		f.DivinePower = next
	}
}
