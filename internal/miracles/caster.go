package miracles

import (
	"github.com/google/uuid"

	"github.com/talgya/divine-realms/internal/errs"
	"github.com/talgya/divine-realms/internal/world"
)

// CastResult reports the outcome of one cast. Failures carry the error as
// a value; they never leave partial changes behind.
type CastResult struct {
	Success  bool
	Error    error
	EffectID string
	Damage   int    // Strength removed by an instant-damage miracle
	Tick     uint64 // World tick the cast was applied at
}

// Option configures a Caster.
type Option func(*Caster)

// WithArmyResolver replaces the resolver used for army-targeted miracles.
func WithArmyResolver(r ArmyResolver) Option {
	return func(c *Caster) { c.armies = r }
}

// WithoutCooldowns disables per-faction cooldown enforcement.
func WithoutCooldowns() Option {
	return func(c *Caster) { c.cooldowns = false }
}

// WithIDGenerator replaces the effect ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(c *Caster) { c.newID = fn }
}

// Caster validates and applies miracles. It holds no world state of its
// own; callers serialize access to the world they pass in.
type Caster struct {
	catalog   *Catalog
	armies    ArmyResolver
	cooldowns bool
	newID     func() string
}

// NewCaster creates a caster over catalog. Cooldowns are enforced unless
// WithoutCooldowns is given.
func NewCaster(catalog *Catalog, opts ...Option) *Caster {
	c := &Caster{
		catalog:   catalog,
		armies:    TerritoryPopulationResolver{},
		cooldowns: true,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Catalog returns the registry the caster reads from.
func (c *Caster) Catalog() *Catalog {
	return c.catalog
}

// plan is everything a validated cast needs to apply itself.
type plan struct {
	miracle   Miracle
	faction   *world.Faction
	territory *world.Territory
	army      Army
}

// Validate runs the same checks as Cast without touching the world.
func (c *Caster) Validate(ws *world.WorldState, factionID, miracleID, targetID string) error {
	_, err := c.check(ws, factionID, miracleID, targetID)
	return err
}

func (c *Caster) check(ws *world.WorldState, factionID, miracleID, targetID string) (plan, error) {
	m, ok := c.catalog.Get(miracleID)
	if !ok {
		return plan{}, errs.New(errs.CodeNotFound, "unknown miracle %q", miracleID)
	}
	f, ok := ws.Factions[factionID]
	if !ok {
		return plan{}, errs.New(errs.CodeNotFound, "faction %q not found", factionID)
	}
	if f.DivinePower < m.Cost {
		return plan{}, errs.New(errs.CodeInvalidState,
			"insufficient divine power for %s: have %d, need %d", m.ID, f.DivinePower, m.Cost)
	}
	if c.cooldowns && m.Cooldown > 0 {
		if last, ok := f.LastCast[m.ID]; ok && last <= ws.Tick && ws.Tick-last < m.Cooldown {
			return plan{}, errs.New(errs.CodeInvalidState,
				"%s is on cooldown for %d more ticks", m.ID, m.Cooldown-(ws.Tick-last))
		}
	}

	p := plan{miracle: m, faction: f}
	switch m.TargetType {
	case TargetTerritory:
		t, ok := ws.Territories[targetID]
		if !ok {
			return plan{}, errs.New(errs.CodeNotFound, "target territory %q not found", targetID)
		}
		if m.Effect.IsBuff() && t.Owner != factionID {
			return plan{}, errs.New(errs.CodeInvalidState,
				"%s can only target territory owned by %s; %s is not", m.ID, factionID, targetID)
		}
		p.territory = t
	case TargetArmy:
		if m.Effect.InstantDamagePercent != nil {
			army, err := c.armies.Resolve(ws, targetID)
			if err != nil {
				return plan{}, err
			}
			p.army = army
		}
	}
	return p, nil
}

// Cast validates and, on success, charges the caster and applies the
// miracle. The cost is deducted exactly once before any effect applies.
func (c *Caster) Cast(ws *world.WorldState, factionID, miracleID, targetID string) CastResult {
	p, err := c.check(ws, factionID, miracleID, targetID)
	if err != nil {
		return CastResult{Error: err}
	}

	m := p.miracle
	p.faction.DivinePower -= m.Cost
	if p.faction.LastCast == nil {
		p.faction.LastCast = make(map[string]uint64)
	}
	p.faction.LastCast[m.ID] = ws.Tick

	res := CastResult{Success: true, EffectID: c.newID(), Tick: ws.Tick}
	switch m.TargetType {
	case TargetTerritory:
		if m.Instant() {
			break
		}
		p.territory.ActiveEffects = append(p.territory.ActiveEffects, world.ActiveEffect{
			ID:          res.EffectID,
			MiracleID:   m.ID,
			ExpiresTick: ws.Tick + m.Duration,
			Modifier:    m.Effect.Modifier.Clone(),
		})
	case TargetArmy:
		if p.army != nil {
			res.Damage = p.army.Damage(*m.Effect.InstantDamagePercent)
		}
		// Combat buffs are acknowledged only; battles do not read them yet.
	case TargetFaction:
		// Acknowledged only.
	}
	return res
}
