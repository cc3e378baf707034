package economy

import (
	"math"

	"github.com/talgya/divine-realms/internal/world"
)

// Population rates per tick.
const (
	FoodPerCapita = 0.1  // Food consumed per population unit
	GrowthRate    = 0.02 // Growth when fed
)

// PopulationChange summarizes one growth pass.
type PopulationChange struct {
	Grown   int `json:"grown"`   // Population units added
	Starved int `json:"starved"` // Population units lost
}

// GrowPopulation feeds each owned territory from its faction's food stock.
// A fed territory grows by 2% (capped at MaxPopulation). An underfed one
// empties the stock and loses population in proportion to the shortfall:
// every missing food unit costs 1/FoodPerCapita people. Territories are
// visited in coordinate order because they draw from a shared stock.
func GrowPopulation(ws *world.WorldState) PopulationChange {
	var change PopulationChange
	for _, id := range ws.TerritoryIDs() {
		t := ws.Territories[id]
		f, ok := ws.OwnerOf(t)
		if !ok {
			continue
		}

		consumed := int(math.Floor(float64(t.Population) * FoodPerCapita))
		if f.Resources.Food >= consumed {
			f.Resources.Food -= consumed
			growth := int(math.Floor(float64(t.Population) * GrowthRate))
			next := t.Population + growth
			if next > world.MaxPopulation {
				next = world.MaxPopulation
			}
			change.Grown += next - t.Population
			t.Population = next
			continue
		}

		deficit := consumed - f.Resources.Food
		loss := int(math.Floor(float64(deficit) / FoodPerCapita))
		next := t.Population - loss
		if next < 0 {
			next = 0
		}
		change.Starved += t.Population - next
		t.Population = next
		f.Resources.Food = 0
	}
	return change
}
