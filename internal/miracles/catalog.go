// Package miracles validates and applies faction-triggered miracles against
// the world. The catalog is an immutable registry built once at startup.
package miracles

import (
	"sort"

	"github.com/talgya/divine-realms/internal/errs"
	"github.com/talgya/divine-realms/internal/world"
)

// TargetType is what a miracle is aimed at.
type TargetType string

const (
	TargetTerritory TargetType = "territory"
	TargetArmy      TargetType = "army"
	TargetFaction   TargetType = "faction"
)

func (t TargetType) valid() bool {
	switch t {
	case TargetTerritory, TargetArmy, TargetFaction:
		return true
	}
	return false
}

// Effect is a miracle's payload: the persistent modifier bundle plus the
// fields that only make sense for instant application.
type Effect struct {
	world.Modifier `yaml:",inline"`

	CombatStrengthMultiplier *float64 `json:"combat_strength_multiplier,omitempty" yaml:"combat_strength_multiplier,omitempty"`
	InstantDamagePercent     *float64 `json:"instant_damage_percent,omitempty" yaml:"instant_damage_percent,omitempty"`
}

// IsBuff reports whether the effect improves the target territory. Buffs
// may only be cast on territory the caster owns.
func (e Effect) IsBuff() bool {
	return e.IsShielded || e.FoodMultiplier != nil || e.ProductionMultiplier != nil
}

func (e Effect) clone() Effect {
	return Effect{
		Modifier:                 e.Modifier.Clone(),
		CombatStrengthMultiplier: cloneFloat(e.CombatStrengthMultiplier),
		InstantDamagePercent:     cloneFloat(e.InstantDamagePercent),
	}
}

// Miracle is one catalog entry.
type Miracle struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Cost        int        `json:"cost" yaml:"cost"` // Divine power
	TargetType  TargetType `json:"target_type" yaml:"target_type"`
	Duration    uint64     `json:"duration" yaml:"duration"` // Ticks; 0 = instant
	Cooldown    uint64     `json:"cooldown" yaml:"cooldown"` // Ticks between casts per faction
	Effect      Effect     `json:"effect" yaml:"effect"`
}

// Instant reports whether the miracle leaves no persistent effect.
func (m Miracle) Instant() bool {
	return m.Duration == 0
}

func (m Miracle) validate() error {
	if m.ID == "" {
		return errs.New(errs.CodeInvalidInput, "miracle id is required")
	}
	if m.Cost < 0 {
		return errs.New(errs.CodeInvalidInput, "miracle %q: negative cost %d", m.ID, m.Cost)
	}
	if !m.TargetType.valid() {
		return errs.New(errs.CodeInvalidInput, "miracle %q: unknown target type %q", m.ID, m.TargetType)
	}
	for name, v := range map[string]*float64{
		"food_multiplier":            m.Effect.FoodMultiplier,
		"production_multiplier":      m.Effect.ProductionMultiplier,
		"defense_multiplier":         m.Effect.DefenseMultiplier,
		"combat_strength_multiplier": m.Effect.CombatStrengthMultiplier,
	} {
		if v != nil && *v < 0 {
			return errs.New(errs.CodeInvalidInput, "miracle %q: negative %s", m.ID, name)
		}
	}
	if p := m.Effect.InstantDamagePercent; p != nil && (*p < 0 || *p > 100) {
		return errs.New(errs.CodeInvalidInput, "miracle %q: instant_damage_percent %v outside 0–100", m.ID, *p)
	}
	return nil
}

// Catalog is a read-only registry of miracles keyed by ID.
type Catalog struct {
	entries map[string]Miracle
	order   []string
}

// NewCatalog builds a catalog. Later entries with a repeated ID replace
// earlier ones, which is how file extensions override the defaults.
func NewCatalog(miracles ...Miracle) (*Catalog, error) {
	c := &Catalog{entries: make(map[string]Miracle, len(miracles))}
	for _, m := range miracles {
		if err := m.validate(); err != nil {
			return nil, err
		}
		if _, exists := c.entries[m.ID]; !exists {
			c.order = append(c.order, m.ID)
		}
		c.entries[m.ID] = m.clone()
	}
	return c, nil
}

// Get returns a copy of the miracle with the given ID.
func (c *Catalog) Get(id string) (Miracle, bool) {
	m, ok := c.entries[id]
	if !ok {
		return Miracle{}, false
	}
	return m.clone(), true
}

// All returns copies of every entry in registration order.
func (c *Catalog) All() []Miracle {
	out := make([]Miracle, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.entries[id].clone())
	}
	return out
}

// IDs returns the sorted miracle IDs.
func (c *Catalog) IDs() []string {
	ids := append([]string(nil), c.order...)
	sort.Strings(ids)
	return ids
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

func (m Miracle) clone() Miracle {
	m.Effect = m.Effect.clone()
	return m
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func ptr(v float64) *float64 { return &v }

// DefaultMiracles returns the entries shipped with every shard.
func DefaultMiracles() []Miracle {
	return []Miracle{
		{
			ID:          "bountiful_harvest",
			Name:        "Bountiful Harvest",
			Description: "Fields swell with grain; food yield rises by half.",
			Cost:        30,
			TargetType:  TargetTerritory,
			Duration:    10,
			Cooldown:    20,
			Effect:      Effect{Modifier: world.Modifier{FoodMultiplier: ptr(1.5)}},
		},
		{
			ID:          "blessing_of_valor",
			Name:        "Blessing of Valor",
			Description: "Soldiers fight with borrowed courage.",
			Cost:        40,
			TargetType:  TargetArmy,
			Duration:    5,
			Cooldown:    15,
			Effect:      Effect{CombatStrengthMultiplier: ptr(1.3)},
		},
		{
			ID:          "divine_shield",
			Name:        "Divine Shield",
			Description: "A territory cannot be captured while the shield holds.",
			Cost:        50,
			TargetType:  TargetTerritory,
			Duration:    8,
			Cooldown:    30,
			Effect:      Effect{Modifier: world.Modifier{IsShielded: true, DefenseMultiplier: ptr(2.0)}},
		},
		{
			ID:          "smite",
			Name:        "Smite",
			Description: "Lightning strikes the enemy host.",
			Cost:        40,
			TargetType:  TargetArmy,
			Duration:    0,
			Cooldown:    10,
			Effect:      Effect{InstantDamagePercent: ptr(25)},
		},
		{
			ID:          "inspire",
			Name:        "Inspire",
			Description: "Workshops hum through the night; production rises.",
			Cost:        25,
			TargetType:  TargetTerritory,
			Duration:    6,
			Cooldown:    12,
			Effect:      Effect{Modifier: world.Modifier{ProductionMultiplier: ptr(1.3)}},
		},
	}
}

// DefaultCatalog returns a catalog holding DefaultMiracles.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultMiracles()...)
	if err != nil {
		panic("miracles: invalid default catalog: " + err.Error())
	}
	return c
}
