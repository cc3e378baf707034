// Package economy implements the per-tick resource formulas: production,
// population growth and starvation, and divine power regeneration.
package economy

import (
	"math"

	"github.com/talgya/divine-realms/internal/effects"
	"github.com/talgya/divine-realms/internal/world"
)

// Yield rates applied to a territory's base values each tick.
const (
	FoodYieldRate       = 0.1
	ProductionYieldRate = 0.1
)

// Totals summarizes what a phase moved this tick.
type Totals struct {
	Food       int `json:"food"`
	Production int `json:"production"`
}

// Produce credits each owning faction with its territories' output, scaled
// by the composed multipliers of their active effects. Unowned territories
// and territories whose owner no longer exists are skipped.
func Produce(ws *world.WorldState) Totals {
	var totals Totals
	for _, id := range ws.TerritoryIDs() {
		t := ws.Territories[id]
		f, ok := ws.OwnerOf(t)
		if !ok {
			continue
		}

		m := effects.Compose(t.ActiveEffects)
		food := int(math.Floor(float64(t.Food) * FoodYieldRate * m.Food))
		prod := int(math.Floor(float64(t.Production) * ProductionYieldRate * m.Production))

		// Multipliers are positive by construction; clamp anyway so a bad
		// catalog entry cannot drain a stockpile below zero.
		if food > 0 {
			f.Resources.Food += food
			totals.Food += food
		}
		if prod > 0 {
			f.Resources.Production += prod
			totals.Production += prod
		}
	}
	return totals
}
