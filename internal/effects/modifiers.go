package effects

import (
	"github.com/talgya/divine-realms/internal/world"
)

// Multipliers is the composed modifier state of one territory.
type Multipliers struct {
	Food       float64
	Production float64
	Defense    float64
}

// Compose multiplies each field across all effects. Unset fields are
// neutral, so a territory without effects yields 1.0 everywhere.
func Compose(active []world.ActiveEffect) Multipliers {
	m := Multipliers{Food: 1, Production: 1, Defense: 1}
	for _, e := range active {
		if v := e.Modifier.FoodMultiplier; v != nil {
			m.Food *= *v
		}
		if v := e.Modifier.ProductionMultiplier; v != nil {
			m.Production *= *v
		}
		if v := e.Modifier.DefenseMultiplier; v != nil {
			m.Defense *= *v
		}
	}
	return m
}

// IsShielded reports whether any active effect on t carries a shield.
// Capture logic must consult this before transferring ownership.
func IsShielded(t *world.Territory) bool {
	for _, e := range t.ActiveEffects {
		if e.Modifier.IsShielded {
			return true
		}
	}
	return false
}
