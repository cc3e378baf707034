package miracles

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/talgya/divine-realms/internal/errs"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	want := []string{"blessing_of_valor", "bountiful_harvest", "divine_shield", "inspire", "smite"}
	ids := c.IDs()
	if len(ids) != len(want) {
		t.Fatalf("ids = %v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
	shield, ok := c.Get("divine_shield")
	if !ok || shield.Cost != 50 || !shield.Effect.IsShielded || !shield.Effect.IsBuff() {
		t.Fatalf("divine_shield = %+v", shield)
	}
	smite, _ := c.Get("smite")
	if smite.Effect.IsBuff() || !smite.Instant() {
		t.Fatalf("smite = %+v", smite)
	}
}

func TestCatalogGetReturnsCopy(t *testing.T) {
	c := DefaultCatalog()
	m, _ := c.Get("bountiful_harvest")
	*m.Effect.FoodMultiplier = 100
	m.Cost = 0
	again, _ := c.Get("bountiful_harvest")
	if *again.Effect.FoodMultiplier != 1.5 || again.Cost != 30 {
		t.Fatalf("catalog mutated: %+v", again)
	}
}

func TestNewCatalogRejectsInvalid(t *testing.T) {
	bad := []Miracle{
		{ID: "", TargetType: TargetTerritory},
		{ID: "x", Cost: -1, TargetType: TargetTerritory},
		{ID: "x", TargetType: "planet"},
		{ID: "x", TargetType: TargetArmy, Effect: Effect{InstantDamagePercent: ptr(150)}},
		{ID: "x", TargetType: TargetTerritory, Effect: Effect{CombatStrengthMultiplier: ptr(-1)}},
	}
	for _, m := range bad {
		if _, err := NewCatalog(m); !errors.Is(err, errs.InvalidInput) {
			t.Fatalf("%+v: expected InvalidInput, got %v", m, err)
		}
	}
}

func TestParseCatalogExtends(t *testing.T) {
	raw := []byte(`
miracles:
  - id: rain_of_plenty
    name: Rain of Plenty
    cost: 60
    target_type: territory
    duration: 4
    cooldown: 8
    effect:
      food_multiplier: 2.0
      production_multiplier: 1.1
  - id: smite
    cost: 45
    target_type: army
    effect:
      instant_damage_percent: 30
`)
	c, err := ParseCatalog(raw)
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	if c.Len() != 6 {
		t.Fatalf("len = %d, want 6", c.Len())
	}
	rain, ok := c.Get("rain_of_plenty")
	if !ok {
		t.Fatal("rain_of_plenty missing")
	}
	if rain.Cost != 60 || rain.Duration != 4 || rain.Cooldown != 8 || rain.TargetType != TargetTerritory {
		t.Fatalf("rain = %+v", rain)
	}
	if rain.Effect.FoodMultiplier == nil || *rain.Effect.FoodMultiplier != 2.0 {
		t.Fatalf("food multiplier = %v", rain.Effect.FoodMultiplier)
	}
	if rain.Effect.DefenseMultiplier != nil {
		t.Fatal("unset multiplier decoded as set")
	}
	smite, _ := c.Get("smite")
	if smite.Cost != 45 || *smite.Effect.InstantDamagePercent != 30 {
		t.Fatalf("smite override = %+v", smite)
	}
}

func TestParseCatalogReplace(t *testing.T) {
	c, err := ParseCatalog([]byte("replace: true\nmiracles:\n  - id: only\n    target_type: faction\n"))
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("len = %d, want 1", c.Len())
	}
}

func TestLoadCatalogFileErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadCatalogFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("miracles:\n  - id: x\n    target_type: moon\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadCatalogFile(path); !errors.Is(err, errs.InvalidInput) {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}
