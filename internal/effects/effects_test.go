package effects

import (
	"testing"

	"github.com/talgya/divine-realms/internal/world"
)

func f(v float64) *float64 { return &v }

func TestExpireStrictBoundary(t *testing.T) {
	ws := world.NewWorldState()
	tr := world.NewTerritory(world.HexCoord{})
	tr.ActiveEffects = []world.ActiveEffect{
		{ID: "past", ExpiresTick: 4},
		{ID: "now", ExpiresTick: 5},
		{ID: "next", ExpiresTick: 6},
	}
	ws.AddTerritory(tr)
	ws.Tick = 5

	if n := Expire(ws); n != 2 {
		t.Fatalf("removed %d, want 2", n)
	}
	if len(tr.ActiveEffects) != 1 || tr.ActiveEffects[0].ID != "next" {
		t.Fatalf("remaining = %+v", tr.ActiveEffects)
	}
}

func TestExpirePreservesOrder(t *testing.T) {
	ws := world.NewWorldState()
	tr := world.NewTerritory(world.HexCoord{Q: 1})
	tr.ActiveEffects = []world.ActiveEffect{
		{ID: "a", ExpiresTick: 10},
		{ID: "b", ExpiresTick: 1},
		{ID: "c", ExpiresTick: 12},
	}
	ws.AddTerritory(tr)
	ws.Tick = 2
	Expire(ws)
	if len(tr.ActiveEffects) != 2 || tr.ActiveEffects[0].ID != "a" || tr.ActiveEffects[1].ID != "c" {
		t.Fatalf("remaining = %+v", tr.ActiveEffects)
	}
}

func TestComposeMultiplicative(t *testing.T) {
	m := Compose([]world.ActiveEffect{
		{Modifier: world.Modifier{FoodMultiplier: f(1.5)}},
		{Modifier: world.Modifier{FoodMultiplier: f(2.0), DefenseMultiplier: f(3)}},
		{Modifier: world.Modifier{IsShielded: true}},
	})
	if m.Food != 3.0 {
		t.Fatalf("food = %v, want 3.0", m.Food)
	}
	if m.Production != 1.0 {
		t.Fatalf("production = %v, want neutral 1.0", m.Production)
	}
	if m.Defense != 3.0 {
		t.Fatalf("defense = %v, want 3.0", m.Defense)
	}
	if got := Compose(nil); got != (Multipliers{Food: 1, Production: 1, Defense: 1}) {
		t.Fatalf("empty compose = %+v", got)
	}
}

func TestIsShielded(t *testing.T) {
	tr := world.NewTerritory(world.HexCoord{})
	if IsShielded(tr) {
		t.Fatal("no effects should not be shielded")
	}
	tr.ActiveEffects = []world.ActiveEffect{{Modifier: world.Modifier{FoodMultiplier: f(2)}}}
	if IsShielded(tr) {
		t.Fatal("food buff should not shield")
	}
	tr.ActiveEffects = append(tr.ActiveEffects, world.ActiveEffect{Modifier: world.Modifier{IsShielded: true}})
	if !IsShielded(tr) {
		t.Fatal("shield effect should shield")
	}
}
