// Package api provides the HTTP API for observing the realm and casting
// miracles.
// GET endpoints are public (read-only observation).
// Cast endpoints are rate-limited per IP.
// Admin endpoints require a bearer token.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/divine-realms/internal/conflict"
	"github.com/talgya/divine-realms/internal/effects"
	"github.com/talgya/divine-realms/internal/engine"
	"github.com/talgya/divine-realms/internal/errs"
	"github.com/talgya/divine-realms/internal/world"
)

// Server serves the realm over HTTP.
type Server struct {
	Eng      *engine.Engine
	Sched    *engine.Scheduler
	Hub      *Hub
	Casts    *RateLimiter
	Port     int
	AdminKey string // Bearer token for admin endpoints. Empty = admin disabled.

	httpServer *http.Server
}

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/territories", s.handleTerritories)
	mux.HandleFunc("/api/v1/territory/", s.handleTerritoryDetail)
	mux.HandleFunc("/api/v1/factions", s.handleFactions)
	mux.HandleFunc("/api/v1/faction/", s.handleFactionDetail)
	mux.HandleFunc("/api/v1/miracles", s.handleMiracles)
	mux.HandleFunc("/api/v1/hex", s.handleHexLookup)
	if s.Hub != nil {
		mux.HandleFunc("/api/v1/ws", s.Hub.ServeWS)
	}

	// Player endpoints (POST, rate-limited).
	validate, cast := http.HandlerFunc(s.handleValidate), http.HandlerFunc(s.handleCast)
	if s.Casts != nil {
		validate = RateLimitMiddleware(s.Casts, validate)
		cast = RateLimitMiddleware(s.Casts, cast)
	}
	mux.HandleFunc("/api/v1/miracles/validate", validate)
	mux.HandleFunc("/api/v1/miracles/cast", cast)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/admin/tick", s.adminOnly(s.handleAdminTick))
	mux.HandleFunc("/api/v1/admin/faction", s.adminOnly(s.handleAdminFaction))
	mux.HandleFunc("/api/v1/admin/faction/remove", s.adminOnly(s.handleAdminFactionRemove))
	mux.HandleFunc("/api/v1/admin/owner", s.adminOnly(s.handleAdminOwner))
	mux.HandleFunc("/api/v1/admin/siege", s.adminOnly(s.handleAdminSiege))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops accepting requests and closes websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.Hub != nil {
		s.Hub.Close()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a POST-only handler with bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no REALM_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func getOnly(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func postOnly(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !getOnly(w, r) {
		return
	}
	var stats engine.WorldStats
	var tick uint64
	s.Eng.View(func(ws *world.WorldState) {
		stats = engine.CollectStats(ws)
		tick = ws.Tick
	})

	status := map[string]any{
		"name":        "Divine Realms",
		"tick":        tick,
		"stats":       stats,
		"last_tick":   s.Eng.LastReport(),
		"miracles":    s.Eng.Catalog().Len(),
		"running":     s.Sched != nil && s.Sched.Running(),
		"skipped":     s.skipped(),
		"ws_clients":  s.wsClients(),
		"server_time": time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, status)
}

func (s *Server) skipped() uint64 {
	if s.Sched == nil {
		return 0
	}
	return s.Sched.Skipped()
}

func (s *Server) wsClients() int {
	if s.Hub == nil {
		return 0
	}
	return s.Hub.Clients()
}

type territorySummary struct {
	ID         string   `json:"id"`
	Q          int      `json:"q"`
	R          int      `json:"r"`
	Owner      string   `json:"owner,omitempty"`
	Population int      `json:"population"`
	Food       int      `json:"food"`
	Production int      `json:"production"`
	Buildings  []string `json:"buildings,omitempty"`
	Effects    int      `json:"effects"`
	Shielded   bool     `json:"shielded,omitempty"`
}

func summarizeTerritory(t *world.Territory) territorySummary {
	sum := territorySummary{
		ID:         t.ID,
		Q:          t.Coord.Q,
		R:          t.Coord.R,
		Owner:      t.Owner,
		Population: t.Population,
		Food:       t.Food,
		Production: t.Production,
		Effects:    len(t.ActiveEffects),
	}
	for b, ok := range t.Buildings {
		if ok {
			sum.Buildings = append(sum.Buildings, string(b))
		}
	}
	sort.Strings(sum.Buildings)
	sum.Shielded = effects.IsShielded(t)
	return sum
}

func (s *Server) handleTerritories(w http.ResponseWriter, r *http.Request) {
	if !getOnly(w, r) {
		return
	}
	owner := r.URL.Query().Get("owner")

	list := []territorySummary{}
	s.Eng.View(func(ws *world.WorldState) {
		for _, id := range ws.TerritoryIDs() {
			t := ws.Territories[id]
			if owner != "" && t.Owner != owner {
				continue
			}
			list = append(list, summarizeTerritory(t))
		}
	})
	writeJSON(w, list)
}

// handleTerritoryDetail serves GET /api/v1/territory/{q,r}.
func (s *Server) handleTerritoryDetail(w http.ResponseWriter, r *http.Request) {
	if !getOnly(w, r) {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/territory/")
	if _, err := world.ParseHexID(id); err != nil {
		writeError(w, err)
		return
	}

	snap := s.Eng.Snapshot()
	t, ok := snap.Territories[id]
	if !ok {
		writeError(w, errs.New(errs.CodeNotFound, "territory %q not found", id))
		return
	}

	neighbors := make([]string, 0, 6)
	for _, n := range t.Coord.Neighbors() {
		if _, ok := snap.Territories[n.ID()]; ok {
			neighbors = append(neighbors, n.ID())
		}
	}
	var sieges []*world.Siege
	for _, sg := range snap.Sieges {
		if sg.TerritoryID == id {
			sieges = append(sieges, sg)
		}
	}
	sort.Slice(sieges, func(i, j int) bool { return sieges[i].ID < sieges[j].ID })

	writeJSON(w, map[string]any{
		"territory": t,
		"neighbors": neighbors,
		"sieges":    sieges,
	})
}

type factionSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DeityID     string `json:"deity_id"`
	Color       string `json:"color"`
	IsAI        bool   `json:"is_ai"`
	DivinePower int    `json:"divine_power"`
	Territories int    `json:"territories"`
	Population  int    `json:"population"`
}

func (s *Server) handleFactions(w http.ResponseWriter, r *http.Request) {
	if !getOnly(w, r) {
		return
	}
	list := []factionSummary{}
	s.Eng.View(func(ws *world.WorldState) {
		for _, id := range ws.FactionIDs() {
			f := ws.Factions[id]
			sum := factionSummary{
				ID:          f.ID,
				Name:        f.Name,
				DeityID:     f.DeityID,
				Color:       f.Color,
				IsAI:        f.IsAI,
				DivinePower: f.DivinePower,
				Territories: len(f.Territories),
			}
			for tid := range f.Territories {
				if t, ok := ws.Territories[tid]; ok {
					sum.Population += t.Population
				}
			}
			list = append(list, sum)
		}
	})
	writeJSON(w, list)
}

func (s *Server) handleFactionDetail(w http.ResponseWriter, r *http.Request) {
	if !getOnly(w, r) {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/faction/")
	if id == "" {
		http.Error(w, "missing faction id", http.StatusBadRequest)
		return
	}

	snap := s.Eng.Snapshot()
	f, ok := snap.Factions[id]
	if !ok {
		writeError(w, errs.New(errs.CodeNotFound, "faction %q not found", id))
		return
	}
	owned := make([]string, 0, len(f.Territories))
	for tid := range f.Territories {
		owned = append(owned, tid)
	}
	sort.Strings(owned)

	// Cooldowns remaining per miracle at the current tick.
	cooldowns := make(map[string]uint64)
	for _, m := range s.Eng.Catalog().All() {
		last, ok := f.LastCast[m.ID]
		if !ok || m.Cooldown == 0 || last > snap.Tick {
			continue
		}
		if elapsed := snap.Tick - last; elapsed < m.Cooldown {
			cooldowns[m.ID] = m.Cooldown - elapsed
		}
	}

	writeJSON(w, map[string]any{
		"faction":     f,
		"territories": owned,
		"cooldowns":   cooldowns,
	})
}

func (s *Server) handleMiracles(w http.ResponseWriter, r *http.Request) {
	if !getOnly(w, r) {
		return
	}
	writeJSON(w, s.Eng.Catalog().All())
}

type castRequest struct {
	FactionID string `json:"faction_id"`
	MiracleID string `json:"miracle_id"`
	TargetID  string `json:"target_id"`
}

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 4096

// decodeBody decodes a size-limited JSON body into v, answering 400 on
// failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

func decodeCast(w http.ResponseWriter, r *http.Request) (castRequest, bool) {
	var req castRequest
	if !decodeBody(w, r, &req) {
		return req, false
	}
	if req.FactionID == "" || req.MiracleID == "" {
		writeError(w, errs.New(errs.CodeInvalidInput, "faction_id and miracle_id are required"))
		return req, false
	}
	return req, true
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if !postOnly(w, r) {
		return
	}
	req, ok := decodeCast(w, r)
	if !ok {
		return
	}
	if err := s.Eng.ValidateMiracleCast(req.FactionID, req.MiracleID, req.TargetID); err != nil {
		writeJSONStatus(w, statusFor(err), map[string]any{
			"valid": false,
			"error": err.Error(),
			"code":  errs.CodeOf(err),
		})
		return
	}
	writeJSON(w, map[string]any{"valid": true})
}

func (s *Server) handleCast(w http.ResponseWriter, r *http.Request) {
	if !postOnly(w, r) {
		return
	}
	req, ok := decodeCast(w, r)
	if !ok {
		return
	}
	res := s.Eng.CastMiracle(req.FactionID, req.MiracleID, req.TargetID)
	if !res.Success {
		writeJSONStatus(w, statusFor(res.Error), map[string]any{
			"success": false,
			"error":   res.Error.Error(),
			"code":    errs.CodeOf(res.Error),
		})
		return
	}
	writeJSON(w, map[string]any{
		"success":   true,
		"effect_id": res.EffectID,
		"damage":    res.Damage,
		"tick":      res.Tick,
	})
}

// handleHexLookup serves GET /api/v1/hex?x=&y=&size=&orientation=pointy|flat.
func (s *Server) handleHexLookup(w http.ResponseWriter, r *http.Request) {
	if !getOnly(w, r) {
		return
	}
	q := r.URL.Query()
	x, errX := strconv.ParseFloat(q.Get("x"), 64)
	y, errY := strconv.ParseFloat(q.Get("y"), 64)
	if errX != nil || errY != nil {
		writeError(w, errs.New(errs.CodeInvalidInput, "x and y must be numbers"))
		return
	}
	size := 1.0
	if raw := q.Get("size"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			writeError(w, errs.New(errs.CodeInvalidInput, "size must be a positive number"))
			return
		}
		size = v
	}
	orient := world.PointyTop
	switch q.Get("orientation") {
	case "", "pointy":
	case "flat":
		orient = world.FlatTop
	default:
		writeError(w, errs.New(errs.CodeInvalidInput, "orientation must be pointy or flat"))
		return
	}

	h := world.PixelToHex(world.Point{X: x, Y: y}, size, orient)
	resp := map[string]any{
		"q":      h.Q,
		"r":      h.R,
		"id":     h.ID(),
		"center": world.HexToPixel(h, size, orient),
	}
	s.Eng.View(func(ws *world.WorldState) {
		if t, ok := ws.Territories[h.ID()]; ok {
			resp["territory"] = summarizeTerritory(t)
		}
	})
	writeJSON(w, resp)
}

func (s *Server) handleAdminTick(w http.ResponseWriter, r *http.Request) {
	var rep engine.TickReport
	if s.Sched != nil {
		rep = s.Sched.TickNow(r.Context())
	} else {
		rep = s.Eng.Tick(r.Context())
	}
	writeJSON(w, rep)
}

func (s *Server) handleAdminFaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID          string       `json:"id"`
		DeityID     string       `json:"deity_id"`
		Name        string       `json:"name"`
		Color       string       `json:"color"`
		IsAI        bool         `json:"is_ai"`
		DivinePower int          `json:"divine_power"`
		Policy      world.Policy `json:"policy"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DivinePower < 0 || req.DivinePower > world.MaxDivinePower {
		writeError(w, errs.New(errs.CodeInvalidInput,
			"divine_power must be within [0, %d]", world.MaxDivinePower))
		return
	}

	f := world.NewFaction(req.ID, req.DeityID, req.Name, req.Color)
	f.IsAI = req.IsAI
	f.DivinePower = req.DivinePower
	f.Policy = req.Policy
	if err := s.Eng.Update(func(ws *world.WorldState) error { return ws.AddFaction(f) }); err != nil {
		writeError(w, err)
		return
	}
	slog.Info("faction registered", "faction", req.ID, "name", req.Name, "ai", req.IsAI)
	writeJSONStatus(w, http.StatusCreated, map[string]any{"id": req.ID})
}

// handleAdminFactionRemove deletes a faction. Its territories are released;
// sieges and battles that name it are left for their phases to resolve.
func (s *Server) handleAdminFactionRemove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	var released int
	err := s.Eng.Update(func(ws *world.WorldState) error {
		if f, ok := ws.Factions[req.ID]; ok {
			released = len(f.Territories)
		}
		return ws.RemoveFaction(req.ID)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	slog.Info("faction removed", "faction", req.ID, "released", released)
	writeJSON(w, map[string]any{"id": req.ID, "released": released})
}

func (s *Server) handleAdminOwner(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TerritoryID string `json:"territory_id"`
		FactionID   string `json:"faction_id"` // Empty releases the territory
	}
	if !decodeBody(w, r, &req) {
		return
	}
	err := s.Eng.Update(func(ws *world.WorldState) error {
		return ws.SetOwner(req.TerritoryID, req.FactionID)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	slog.Info("territory owner set", "territory", req.TerritoryID, "faction", req.FactionID)
	writeJSON(w, map[string]any{"territory_id": req.TerritoryID, "owner": req.FactionID})
}

func (s *Server) handleAdminSiege(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID               string `json:"id"`
		AttackerID       string `json:"attacker_id"`
		TerritoryID      string `json:"territory_id"`
		AttackerStrength int    `json:"attacker_strength"`
		DefenderStrength int    `json:"defender_strength"`
		Required         int    `json:"required"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	var siege world.Siege
	err := s.Eng.Update(func(ws *world.WorldState) error {
		sg, err := conflict.StartSiege(ws, req.ID, req.AttackerID, req.TerritoryID,
			req.AttackerStrength, req.DefenderStrength, req.Required)
		if err != nil {
			return err
		}
		siege = *sg
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	slog.Info("siege started", "siege", siege.ID, "attacker", siege.AttackerID, "territory", siege.TerritoryID)
	writeJSONStatus(w, http.StatusCreated, siege)
}

// statusFor maps an error code to an HTTP status.
func statusFor(err error) int {
	switch errs.CodeOf(err) {
	case errs.CodeNotFound:
		return http.StatusNotFound
	case errs.CodeInvalidState:
		return http.StatusConflict
	case errs.CodeInvalidInput:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSONStatus(w, statusFor(err), map[string]any{
		"error": err.Error(),
		"code":  errs.CodeOf(err),
	})
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
