package world

import (
	"errors"
	"testing"

	"github.com/talgya/divine-realms/internal/errs"
)

func newTestWorld(t *testing.T) *WorldState {
	t.Helper()
	ws := NewWorldState()
	for _, c := range HexesInRadius(HexCoord{}, 1) {
		ws.AddTerritory(NewTerritory(c))
	}
	for _, id := range []string{"red", "blue"} {
		if err := ws.AddFaction(NewFaction(id, "deity-"+id, id, "#000000")); err != nil {
			t.Fatalf("AddFaction(%s): %v", id, err)
		}
	}
	return ws
}

func TestNewWorldStateEmpty(t *testing.T) {
	ws := NewWorldState()
	if ws.Tick != 0 {
		t.Fatalf("tick = %d, want 0", ws.Tick)
	}
	if len(ws.Territories) != 0 || len(ws.Factions) != 0 || len(ws.Sieges) != 0 || len(ws.PendingBattles) != 0 {
		t.Fatal("expected empty collections")
	}
}

func TestAddFactionDuplicate(t *testing.T) {
	ws := newTestWorld(t)
	err := ws.AddFaction(NewFaction("red", "", "Red again", ""))
	if !errors.Is(err, errs.InvalidState) {
		t.Fatalf("expected InvalidState, got %v", err)
	}
	if err := ws.AddFaction(&Faction{}); !errors.Is(err, errs.InvalidInput) {
		t.Fatalf("expected InvalidInput for empty id, got %v", err)
	}
}

func TestSetOwnerKeepsBackReferences(t *testing.T) {
	ws := newTestWorld(t)
	id := HexCoord{Q: 1, R: 0}.ID()

	if err := ws.SetOwner(id, "red"); err != nil {
		t.Fatalf("SetOwner: %v", err)
	}
	if !ws.Factions["red"].Territories[id] || ws.Territories[id].Owner != "red" {
		t.Fatal("red should own territory")
	}

	if err := ws.SetOwner(id, "blue"); err != nil {
		t.Fatalf("SetOwner: %v", err)
	}
	if ws.Factions["red"].Territories[id] {
		t.Fatal("red should no longer list territory")
	}
	if !ws.Factions["blue"].Territories[id] || ws.Territories[id].Owner != "blue" {
		t.Fatal("blue should own territory")
	}

	if err := ws.SetOwner(id, ""); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ws.Territories[id].Owner != "" || len(ws.Factions["blue"].Territories) != 0 {
		t.Fatal("territory should be unowned")
	}
}

func TestSetOwnerErrors(t *testing.T) {
	ws := newTestWorld(t)
	if err := ws.SetOwner("9,9", "red"); !errors.Is(err, errs.NotFound) {
		t.Fatalf("missing territory: got %v", err)
	}
	if err := ws.SetOwner("0,0", "green"); !errors.Is(err, errs.NotFound) {
		t.Fatalf("missing faction: got %v", err)
	}
	if ws.Territories["0,0"].Owner != "" {
		t.Fatal("failed SetOwner must not change owner")
	}
}

func TestRemoveFactionReleasesTerritories(t *testing.T) {
	ws := newTestWorld(t)
	if err := ws.SetOwner("0,0", "red"); err != nil {
		t.Fatalf("SetOwner: %v", err)
	}
	if err := ws.RemoveFaction("red"); err != nil {
		t.Fatalf("RemoveFaction: %v", err)
	}
	if ws.Territories["0,0"].Owner != "" {
		t.Fatal("territory should be released")
	}
	if err := ws.RemoveFaction("red"); !errors.Is(err, errs.NotFound) {
		t.Fatalf("second remove: got %v", err)
	}
}

func TestOwnerOfDangling(t *testing.T) {
	ws := newTestWorld(t)
	ws.Territories["0,0"].Owner = "ghost"
	if _, ok := ws.OwnerOf(ws.Territories["0,0"]); ok {
		t.Fatal("dangling owner should not resolve")
	}
	if _, ok := ws.OwnerOf(ws.Territories["1,0"]); ok {
		t.Fatal("unowned territory should not resolve")
	}
}

func TestTerritoryIDsStableOrder(t *testing.T) {
	ws := newTestWorld(t)
	ids := ws.TerritoryIDs()
	want := []string{"-1,0", "-1,1", "0,-1", "0,0", "0,1", "1,-1", "1,0"}
	if len(ids) != len(want) {
		t.Fatalf("got %d ids, want %d", len(ids), len(want))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	ws := newTestWorld(t)
	if err := ws.SetOwner("0,0", "red"); err != nil {
		t.Fatalf("SetOwner: %v", err)
	}
	mult := 1.5
	ws.Territories["0,0"].ActiveEffects = []ActiveEffect{{ID: "e1", Modifier: Modifier{FoodMultiplier: &mult}}}
	ws.Sieges["s1"] = &Siege{ID: "s1", Progress: 1}

	cp := ws.Clone()
	cp.Tick = 99
	cp.Territories["0,0"].Population = 500
	*cp.Territories["0,0"].ActiveEffects[0].Modifier.FoodMultiplier = 9
	cp.Factions["red"].Territories["1,0"] = true
	cp.Factions["red"].LastCast["smite"] = 3
	cp.Sieges["s1"].Progress = 7

	if ws.Tick != 0 || ws.Territories["0,0"].Population != 0 {
		t.Fatal("clone shares scalar state")
	}
	if *ws.Territories["0,0"].ActiveEffects[0].Modifier.FoodMultiplier != 1.5 {
		t.Fatal("clone shares modifier pointers")
	}
	if ws.Factions["red"].Territories["1,0"] || len(ws.Factions["red"].LastCast) != 0 {
		t.Fatal("clone shares faction maps")
	}
	if ws.Sieges["s1"].Progress != 1 {
		t.Fatal("clone shares sieges")
	}
}
