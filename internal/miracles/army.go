package miracles

import (
	"math"

	"github.com/talgya/divine-realms/internal/errs"
	"github.com/talgya/divine-realms/internal/world"
)

// Army is the thing an army-targeted miracle lands on.
type Army interface {
	// Damage removes percent of the army's strength and returns the loss.
	Damage(percent float64) int
}

// ArmyResolver locates the army a miracle targets. Resolve must not mutate
// the world; it runs during validation.
type ArmyResolver interface {
	Resolve(ws *world.WorldState, targetID string) (Army, error)
}

// TerritoryPopulationResolver treats a territory's population as the army
// standing on it. It stands in until armies exist as their own entities.
type TerritoryPopulationResolver struct{}

// Resolve looks up the territory with ID targetID.
func (TerritoryPopulationResolver) Resolve(ws *world.WorldState, targetID string) (Army, error) {
	t, ok := ws.Territories[targetID]
	if !ok {
		return nil, errs.New(errs.CodeNotFound, "target territory %q not found", targetID)
	}
	return territoryArmy{t: t}, nil
}

type territoryArmy struct {
	t *world.Territory
}

func (a territoryArmy) Damage(percent float64) int {
	damage := int(math.Floor(float64(a.t.Population) * percent / 100))
	before := a.t.Population
	a.t.Population -= damage
	if a.t.Population < 0 {
		a.t.Population = 0
	}
	return before - a.t.Population
}
