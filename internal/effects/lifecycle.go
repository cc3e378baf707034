// Package effects expires time-bounded territory modifiers and folds the
// surviving ones into the values the tick formulas consume.
package effects

import (
	"github.com/talgya/divine-realms/internal/world"
)

// Expire drops every effect whose expiry tick has been reached. An effect
// with ExpiresTick == ws.Tick is removed at that tick. Returns the number
// of effects removed.
func Expire(ws *world.WorldState) int {
	removed := 0
	for _, t := range ws.Territories {
		if len(t.ActiveEffects) == 0 {
			continue
		}
		kept := t.ActiveEffects[:0]
		for _, e := range t.ActiveEffects {
			if e.ExpiresTick > ws.Tick {
				kept = append(kept, e)
			} else {
				removed++
			}
		}
		// Clear the tail so dropped modifiers are not kept alive.
		for i := len(kept); i < len(t.ActiveEffects); i++ {
			t.ActiveEffects[i] = world.ActiveEffect{}
		}
		t.ActiveEffects = kept
	}
	return removed
}
