package world

import (
	"sort"
)

// Bounds enforced by the tick formulas.
const (
	MaxPopulation  = 1000
	MaxDivinePower = 200
)

// Building is a structure kind placed on a territory.
type Building string

const (
	BuildingTemple   Building = "temple"
	BuildingFarm     Building = "farm"
	BuildingWorkshop Building = "workshop"
	BuildingFortress Building = "fortress"
)

// Modifier is the multiplier bundle carried by an active effect. Nil
// multipliers are unset and count as neutral (1.0) when consumed.
type Modifier struct {
	FoodMultiplier       *float64 `json:"food_multiplier,omitempty" yaml:"food_multiplier,omitempty"`
	ProductionMultiplier *float64 `json:"production_multiplier,omitempty" yaml:"production_multiplier,omitempty"`
	DefenseMultiplier    *float64 `json:"defense_multiplier,omitempty" yaml:"defense_multiplier,omitempty"`
	IsShielded           bool     `json:"is_shielded,omitempty" yaml:"is_shielded,omitempty"`
}

// Clone returns a copy that shares no pointers with m.
func (m Modifier) Clone() Modifier {
	return Modifier{
		FoodMultiplier:       cloneFloat(m.FoodMultiplier),
		ProductionMultiplier: cloneFloat(m.ProductionMultiplier),
		DefenseMultiplier:    cloneFloat(m.DefenseMultiplier),
		IsShielded:           m.IsShielded,
	}
}

// ActiveEffect is a time-bounded modifier attached to a territory.
type ActiveEffect struct {
	ID          string   `json:"id"`
	MiracleID   string   `json:"miracle_id"`
	ExpiresTick uint64   `json:"expires_tick"`
	Modifier    Modifier `json:"modifier"`
}

// Territory is one hex cell of the map.
type Territory struct {
	ID         string            `json:"id"`
	Coord      HexCoord          `json:"coord"`
	Owner      string            `json:"owner,omitempty"` // Faction ID; empty = unowned
	Population int               `json:"population"`      // 0–1000
	Food       int               `json:"food"`
	Production int               `json:"production"`
	Buildings  map[Building]bool `json:"buildings,omitempty"`

	ActiveEffects []ActiveEffect `json:"active_effects,omitempty"`
}

// NewTerritory creates an unowned, empty territory at coord.
func NewTerritory(coord HexCoord) *Territory {
	return &Territory{
		ID:        coord.ID(),
		Coord:     coord,
		Buildings: make(map[Building]bool),
	}
}

// HasBuilding reports whether the territory contains a building of kind b.
func (t *Territory) HasBuilding(b Building) bool {
	return t.Buildings[b]
}

// Policy holds the tendencies consumed by AI controllers.
type Policy struct {
	Expansion     float64 `json:"expansion"`
	Aggression    float64 `json:"aggression"`
	ResourceFocus string  `json:"resource_focus"`
}

// Resources is a faction's stockpile. Values never go below zero.
type Resources struct {
	Food       int `json:"food"`
	Production int `json:"production"`
	Gold       int `json:"gold"`
	Faith      int `json:"faith"`
}

// Faction is a player- or AI-controlled power.
type Faction struct {
	ID          string    `json:"id"`
	DeityID     string    `json:"deity_id"`
	Name        string    `json:"name"`
	Color       string    `json:"color"`
	IsAI        bool      `json:"is_ai"`
	Policy      Policy    `json:"policy"`
	DivinePower int       `json:"divine_power"` // 0–200
	Resources   Resources `json:"resources"`

	// Owned territory IDs. Kept in sync with Territory.Owner via SetOwner.
	Territories map[string]bool `json:"territories"`

	// Last tick each miracle was cast by this faction (miracle ID → tick).
	LastCast map[string]uint64 `json:"last_cast,omitempty"`
}

// NewFaction creates a faction with empty stockpiles and no territory.
func NewFaction(id, deityID, name, color string) *Faction {
	return &Faction{
		ID:          id,
		DeityID:     deityID,
		Name:        name,
		Color:       color,
		Territories: make(map[string]bool),
		LastCast:    make(map[string]uint64),
	}
}

// BattleStatus tracks the lifecycle of a pending battle.
type BattleStatus string

const (
	BattlePending  BattleStatus = "pending"
	BattleResolved BattleStatus = "resolved"
)

// PendingBattle is a queued engagement awaiting the combat phase.
type PendingBattle struct {
	ID               string       `json:"id"`
	AttackerID       string       `json:"attacker_id"`
	DefenderID       string       `json:"defender_id"`
	TerritoryID      string       `json:"territory_id"`
	AttackerStrength int          `json:"attacker_strength"`
	DefenderStrength int          `json:"defender_strength"`
	Status           BattleStatus `json:"status"`
}

// SiegeStatus tracks the lifecycle of a siege.
type SiegeStatus string

const (
	SiegeActive   SiegeStatus = "active"
	SiegeCaptured SiegeStatus = "captured"
	SiegeBroken   SiegeStatus = "broken"
)

// Siege is an ongoing attempt to capture a territory.
type Siege struct {
	ID               string      `json:"id"`
	AttackerID       string      `json:"attacker_id"`
	DefenderID       string      `json:"defender_id"`
	TerritoryID      string      `json:"territory_id"`
	AttackerStrength int         `json:"attacker_strength"`
	DefenderStrength int         `json:"defender_strength"`
	Progress         int         `json:"progress"`
	Required         int         `json:"required"`
	StartedTick      uint64      `json:"started_tick"`
	Status           SiegeStatus `json:"status"`
}

// WorldState is the aggregate root of one shard.
type WorldState struct {
	Tick           uint64                `json:"tick"`
	Territories    map[string]*Territory `json:"territories"`
	Factions       map[string]*Faction   `json:"factions"`
	PendingBattles []PendingBattle       `json:"pending_battles"`
	Sieges         map[string]*Siege     `json:"sieges"`
}

// NewWorldState creates an empty world at tick 0.
func NewWorldState() *WorldState {
	return &WorldState{
		Territories:    make(map[string]*Territory),
		Factions:       make(map[string]*Faction),
		PendingBattles: []PendingBattle{},
		Sieges:         make(map[string]*Siege),
	}
}

// AddTerritory inserts t, replacing any territory with the same ID.
func (ws *WorldState) AddTerritory(t *Territory) {
	if t.Buildings == nil {
		t.Buildings = make(map[Building]bool)
	}
	ws.Territories[t.ID] = t
}

// TerritoryIDs returns territory IDs in a stable order (q, then r).
// Map iteration order is random; formulas that share faction stockpiles
// across territories iterate in this order so ticks are reproducible.
func (ws *WorldState) TerritoryIDs() []string {
	ids := make([]string, 0, len(ws.Territories))
	for id := range ws.Territories {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := ws.Territories[ids[i]].Coord, ws.Territories[ids[j]].Coord
		if a.Q != b.Q {
			return a.Q < b.Q
		}
		if a.R != b.R {
			return a.R < b.R
		}
		return ids[i] < ids[j]
	})
	return ids
}

// FactionIDs returns faction IDs in lexical order.
func (ws *WorldState) FactionIDs() []string {
	ids := make([]string, 0, len(ws.Factions))
	for id := range ws.Factions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns a deep copy of the world. Hooks that hand state to
// background I/O work on a clone, never on the live aggregate.
func (ws *WorldState) Clone() *WorldState {
	out := &WorldState{
		Tick:           ws.Tick,
		Territories:    make(map[string]*Territory, len(ws.Territories)),
		Factions:       make(map[string]*Faction, len(ws.Factions)),
		PendingBattles: append([]PendingBattle(nil), ws.PendingBattles...),
		Sieges:         make(map[string]*Siege, len(ws.Sieges)),
	}
	if out.PendingBattles == nil {
		out.PendingBattles = []PendingBattle{}
	}
	for id, t := range ws.Territories {
		out.Territories[id] = t.clone()
	}
	for id, f := range ws.Factions {
		out.Factions[id] = f.clone()
	}
	for id, s := range ws.Sieges {
		cp := *s
		out.Sieges[id] = &cp
	}
	return out
}

func (t *Territory) clone() *Territory {
	cp := *t
	cp.Buildings = make(map[Building]bool, len(t.Buildings))
	for b, ok := range t.Buildings {
		cp.Buildings[b] = ok
	}
	if t.ActiveEffects != nil {
		cp.ActiveEffects = make([]ActiveEffect, len(t.ActiveEffects))
		for i, e := range t.ActiveEffects {
			e.Modifier = e.Modifier.Clone()
			cp.ActiveEffects[i] = e
		}
	}
	return &cp
}

func (f *Faction) clone() *Faction {
	cp := *f
	cp.Territories = make(map[string]bool, len(f.Territories))
	for id, ok := range f.Territories {
		cp.Territories[id] = ok
	}
	cp.LastCast = make(map[string]uint64, len(f.LastCast))
	for id, tick := range f.LastCast {
		cp.LastCast[id] = tick
	}
	return &cp
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}
