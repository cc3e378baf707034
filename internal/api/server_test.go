package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/talgya/divine-realms/internal/engine"
	"github.com/talgya/divine-realms/internal/miracles"
	"github.com/talgya/divine-realms/internal/world"
)

const testAdminKey = "letmein"

func testServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	ws := world.NewWorldState()
	for _, c := range world.HexesInRadius(world.HexCoord{}, 1) {
		tr := world.NewTerritory(c)
		tr.Food = 50
		tr.Population = 10
		ws.AddTerritory(tr)
	}
	sun := world.NewFaction("sun", "sol", "Sun", "#ffaa00")
	sun.DivinePower = 100
	moon := world.NewFaction("moon", "luna", "Moon", "#8888ff")
	for _, f := range []*world.Faction{sun, moon} {
		if err := ws.AddFaction(f); err != nil {
			t.Fatal(err)
		}
	}
	if err := ws.SetOwner("0,0", "sun"); err != nil {
		t.Fatal(err)
	}
	if err := ws.SetOwner("1,0", "moon"); err != nil {
		t.Fatal(err)
	}

	hub := NewHub()
	eng := engine.New(ws, miracles.NewCaster(miracles.DefaultCatalog()), engine.Config{
		Hooks: engine.Hooks{Broadcast: hub},
	})
	return &Server{
		Eng:      eng,
		Sched:    engine.NewScheduler(eng, time.Hour),
		Hub:      hub,
		AdminKey: testAdminKey,
	}, eng
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestReadEndpoints(t *testing.T) {
	s, _ := testServer(t)
	h := s.Handler()

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"status", http.MethodGet, "/api/v1/status", http.StatusOK},
		{"territories", http.MethodGet, "/api/v1/territories", http.StatusOK},
		{"territory", http.MethodGet, "/api/v1/territory/0,-1", http.StatusOK},
		{"territory missing", http.MethodGet, "/api/v1/territory/5,5", http.StatusNotFound},
		{"territory non-canonical", http.MethodGet, "/api/v1/territory/01,0", http.StatusBadRequest},
		{"factions", http.MethodGet, "/api/v1/factions", http.StatusOK},
		{"faction", http.MethodGet, "/api/v1/faction/sun", http.StatusOK},
		{"faction missing", http.MethodGet, "/api/v1/faction/star", http.StatusNotFound},
		{"miracles", http.MethodGet, "/api/v1/miracles", http.StatusOK},
		{"post to read endpoint", http.MethodPost, "/api/v1/status", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, "")
			if rec.Code != tt.want {
				t.Errorf("%s %s = %d, want %d (%s)", tt.method, tt.path, rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestTerritoriesFilterAndShape(t *testing.T) {
	s, _ := testServer(t)
	rec := do(t, s.Handler(), http.MethodGet, "/api/v1/territories?owner=sun", "")
	var list []territorySummary
	decode(t, rec, &list)
	if len(list) != 1 || list[0].ID != "0,0" || list[0].Owner != "sun" {
		t.Errorf("owner filter = %+v", list)
	}

	rec = do(t, s.Handler(), http.MethodGet, "/api/v1/territories", "")
	decode(t, rec, &list)
	if len(list) != 7 {
		t.Errorf("territories = %d, want 7", len(list))
	}
}

func TestCastEndpoint(t *testing.T) {
	s, eng := testServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/miracles/validate",
		`{"faction_id":"sun","miracle_id":"divine_shield","target_id":"0,0"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("validate = %d: %s", rec.Code, rec.Body)
	}

	if err := eng.Update(func(ws *world.WorldState) error {
		ws.Tick = 7
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	rec = do(t, h, http.MethodPost, "/api/v1/miracles/cast",
		`{"faction_id":"sun","miracle_id":"divine_shield","target_id":"0,0"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("cast = %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Success  bool   `json:"success"`
		EffectID string `json:"effect_id"`
		Tick     uint64 `json:"tick"`
	}
	decode(t, rec, &resp)
	if !resp.Success || resp.EffectID == "" || resp.Tick != 7 {
		t.Errorf("cast response = %+v", resp)
	}
	eng.View(func(ws *world.WorldState) {
		if ws.Factions["sun"].DivinePower != 50 {
			t.Errorf("DivinePower = %d, want 50", ws.Factions["sun"].DivinePower)
		}
		// divine_shield lasts 8 ticks from the tick reported to the caller.
		effs := ws.Territories["0,0"].ActiveEffects
		if len(effs) != 1 || effs[0].ExpiresTick != resp.Tick+8 {
			t.Errorf("effects = %+v, cast tick %d", effs, resp.Tick)
		}
	})

	rec = do(t, h, http.MethodGet, "/api/v1/hex?x=0&y=0", "")
	var lookup struct {
		Territory *territorySummary `json:"territory"`
	}
	decode(t, rec, &lookup)
	if lookup.Territory == nil || !lookup.Territory.Shielded {
		t.Errorf("shielded territory summary = %s", rec.Body)
	}

	tests := []struct {
		name string
		body string
		want int
		code string
	}{
		{"not owned", `{"faction_id":"sun","miracle_id":"bountiful_harvest","target_id":"1,0"}`, http.StatusConflict, "INVALID_STATE"},
		{"unknown miracle", `{"faction_id":"sun","miracle_id":"flood","target_id":"0,0"}`, http.StatusNotFound, "NOT_FOUND"},
		{"too poor", `{"faction_id":"moon","miracle_id":"smite","target_id":"0,0"}`, http.StatusConflict, "INVALID_STATE"},
		{"missing fields", `{"faction_id":"sun"}`, http.StatusBadRequest, "INVALID_INPUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/miracles/cast", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
			var body struct {
				Code string `json:"code"`
			}
			decode(t, rec, &body)
			if body.Code != tt.code {
				t.Errorf("code = %q, want %q", body.Code, tt.code)
			}
		})
	}

	if rec := do(t, h, http.MethodPost, "/api/v1/miracles/cast", "{"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d", rec.Code)
	}
}

func TestCastRateLimited(t *testing.T) {
	s, _ := testServer(t)
	s.Casts = NewRateLimiter(0.001, 1, time.Minute)
	h := s.Handler()

	body := `{"faction_id":"sun","miracle_id":"inspire","target_id":"0,0"}`
	first := do(t, h, http.MethodPost, "/api/v1/miracles/validate", body, "X-Forwarded-For", "10.0.0.1")
	if first.Code != http.StatusOK {
		t.Fatalf("first = %d", first.Code)
	}
	second := do(t, h, http.MethodPost, "/api/v1/miracles/cast", body, "X-Forwarded-For", "10.0.0.1")
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second = %d, want 429", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	other := do(t, h, http.MethodPost, "/api/v1/miracles/cast", body, "X-Forwarded-For", "10.0.0.2")
	if other.Code != http.StatusOK {
		t.Errorf("other ip = %d", other.Code)
	}
}

func TestAdminAuth(t *testing.T) {
	s, _ := testServer(t)

	if rec := do(t, s.Handler(), http.MethodPost, "/api/v1/admin/tick", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", rec.Code)
	}
	if rec := do(t, s.Handler(), http.MethodPost, "/api/v1/admin/tick", "",
		"Authorization", "Bearer nope"); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", rec.Code)
	}
	if rec := do(t, s.Handler(), http.MethodGet, "/api/v1/admin/tick", "",
		"Authorization", "Bearer "+testAdminKey); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET = %d, want 405", rec.Code)
	}

	s.AdminKey = ""
	if rec := do(t, s.Handler(), http.MethodPost, "/api/v1/admin/tick", "",
		"Authorization", "Bearer "); rec.Code != http.StatusForbidden {
		t.Errorf("disabled = %d, want 403", rec.Code)
	}
}

func TestAdminEndpoints(t *testing.T) {
	s, eng := testServer(t)
	h := s.Handler()
	auth := []string{"Authorization", "Bearer " + testAdminKey}

	rec := do(t, h, http.MethodPost, "/api/v1/admin/tick", "", auth...)
	var rep engine.TickReport
	decode(t, rec, &rep)
	if rec.Code != http.StatusOK || rep.Tick != 1 {
		t.Errorf("tick = %d %+v", rec.Code, rep)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/admin/faction",
		`{"id":"star","name":"Star","deity_id":"astra","divine_power":20}`, auth...)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create faction = %d: %s", rec.Code, rec.Body)
	}
	rec = do(t, h, http.MethodPost, "/api/v1/admin/faction", `{"id":"star"}`, auth...)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate faction = %d, want 409", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/v1/admin/faction", `{"id":"nova","divine_power":900}`, auth...)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("out of range power = %d, want 400", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/admin/owner", `{"territory_id":"-1,0","faction_id":"star"}`, auth...)
	if rec.Code != http.StatusOK {
		t.Fatalf("set owner = %d: %s", rec.Code, rec.Body)
	}
	rec = do(t, h, http.MethodPost, "/api/v1/admin/owner", `{"territory_id":"-1,0","faction_id":"ghost"}`, auth...)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown faction owner = %d, want 404", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/admin/siege",
		`{"id":"s1","attacker_id":"moon","territory_id":"0,0","attacker_strength":9,"defender_strength":3,"required":4}`, auth...)
	if rec.Code != http.StatusCreated {
		t.Fatalf("siege = %d: %s", rec.Code, rec.Body)
	}

	big := `{"id":"huge","name":"` + strings.Repeat("x", 8192) + `"}`
	for _, path := range []string{"/api/v1/admin/faction", "/api/v1/admin/owner", "/api/v1/admin/siege", "/api/v1/admin/faction/remove"} {
		if rec := do(t, h, http.MethodPost, path, big, auth...); rec.Code != http.StatusBadRequest {
			t.Errorf("%s oversized body = %d, want 400", path, rec.Code)
		}
	}

	eng.View(func(ws *world.WorldState) {
		if ws.Territories["-1,0"].Owner != "star" || !ws.Factions["star"].Territories["-1,0"] {
			t.Error("owner not applied")
		}
		if ws.Factions["star"].DivinePower != 20 {
			t.Errorf("star power = %d", ws.Factions["star"].DivinePower)
		}
		if sg := ws.Sieges["s1"]; sg == nil || sg.DefenderID != "sun" || sg.StartedTick != 1 {
			t.Errorf("siege = %+v", sg)
		}
	})
}

func TestAdminFactionRemove(t *testing.T) {
	s, eng := testServer(t)
	h := s.Handler()
	auth := []string{"Authorization", "Bearer " + testAdminKey}

	rec := do(t, h, http.MethodPost, "/api/v1/admin/faction/remove", `{"id":"moon"}`, auth...)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove = %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		ID       string `json:"id"`
		Released int    `json:"released"`
	}
	decode(t, rec, &resp)
	if resp.ID != "moon" || resp.Released != 1 {
		t.Errorf("remove response = %+v", resp)
	}
	eng.View(func(ws *world.WorldState) {
		if _, ok := ws.Factions["moon"]; ok {
			t.Error("faction still registered")
		}
		if owner := ws.Territories["1,0"].Owner; owner != "" {
			t.Errorf("territory 1,0 owner = %q, want released", owner)
		}
	})

	if rec := do(t, h, http.MethodPost, "/api/v1/admin/faction/remove", `{"id":"moon"}`, auth...); rec.Code != http.StatusNotFound {
		t.Errorf("second remove = %d, want 404", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/admin/faction/remove", `{"id":"sun"}`); rec.Code != http.StatusUnauthorized {
		t.Errorf("remove without token = %d, want 401", rec.Code)
	}

	// The shard keeps ticking without the removed faction.
	if rec := do(t, h, http.MethodPost, "/api/v1/admin/tick", "", auth...); rec.Code != http.StatusOK {
		t.Errorf("tick after remove = %d", rec.Code)
	}
}

func TestHexLookup(t *testing.T) {
	s, _ := testServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/hex?x=0.1&y=-0.2&size=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("lookup = %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		ID        string            `json:"id"`
		Territory *territorySummary `json:"territory"`
	}
	decode(t, rec, &resp)
	if resp.ID != "0,0" || resp.Territory == nil || resp.Territory.Owner != "sun" {
		t.Errorf("lookup = %+v", resp)
	}

	// One hex to the east in pointy-top layout is sqrt(3)*size away.
	rec = do(t, h, http.MethodGet, "/api/v1/hex?x=17.3&y=0&size=10&orientation=pointy", "")
	decode(t, rec, &resp)
	if resp.ID != "1,0" {
		t.Errorf("east neighbor = %q, want 1,0", resp.ID)
	}

	for _, q := range []string{"x=a&y=0", "x=0&y=0&size=-1", "x=0&y=0&orientation=diagonal"} {
		if rec := do(t, h, http.MethodGet, "/api/v1/hex?"+q, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s = %d, want 400", q, rec.Code)
		}
	}
}

func TestFactionDetailCooldowns(t *testing.T) {
	s, eng := testServer(t)
	if res := eng.CastMiracle("sun", "inspire", "0,0"); !res.Success {
		t.Fatalf("cast: %v", res.Error)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.Tick(ctx)

	rec := do(t, s.Handler(), http.MethodGet, "/api/v1/faction/sun", "")
	var resp struct {
		Territories []string          `json:"territories"`
		Cooldowns   map[string]uint64 `json:"cooldowns"`
	}
	decode(t, rec, &resp)
	if len(resp.Territories) != 1 || resp.Territories[0] != "0,0" {
		t.Errorf("territories = %v", resp.Territories)
	}
	if resp.Cooldowns["inspire"] != 11 {
		t.Errorf("inspire cooldown = %d, want 11", resp.Cooldowns["inspire"])
	}
}
