// Map generation using layered simplex noise.
// Food and production yields are noise-shaped but always fall inside the
// fixed starting bounds.
package world

import (
	"math"
	"math/rand"
	"sort"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// Starting yield bounds for generated territories (inclusive).
const (
	MinStartFood       = 10
	MaxStartFood       = 100
	MinStartProduction = 5
	MaxStartProduction = 50
)

// GenConfig holds map generation parameters.
type GenConfig struct {
	Radius int   // Hex grid radius around the origin
	Seed   int64 // Random seed (0 = random)
}

// DefaultGenConfig returns a reasonable starting configuration.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Radius: 8,
		Seed:   0,
	}
}

// GenerateMap populates ws with one unowned, unpopulated territory per hex
// within cfg.Radius of the origin. Existing territories with the same IDs
// are replaced.
func GenerateMap(ws *WorldState, cfg GenConfig) {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}

	// Two independent noise layers plus per-hex jitter.
	foodNoise := opensimplex.NewNormalized(seed)
	prodNoise := opensimplex.NewNormalized(seed + 1)
	rng := rand.New(rand.NewSource(seed + 2))

	for _, coord := range HexesInRadius(HexCoord{}, cfg.Radius) {
		p := HexToPixel(coord, 1, PointyTop)

		fertility := octaveNoise(foodNoise, p.X, p.Y, 3, 0.12, 0.5)
		industry := octaveNoise(prodNoise, p.X, p.Y, 3, 0.10, 0.5)

		t := NewTerritory(coord)
		t.Food = yieldInRange(fertility, rng.Float64(), MinStartFood, MaxStartFood)
		t.Production = yieldInRange(industry, rng.Float64(), MinStartProduction, MaxStartProduction)
		ws.AddTerritory(t)
	}
}

// yieldInRange blends a noise sample with jitter and maps it into [lo, hi].
func yieldInRange(noise, jitter float64, lo, hi int) int {
	v := noise*0.75 + jitter*0.25
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return lo + int(math.Round(v*float64(hi-lo)))
}

func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

// PlaceCapitals picks one starting territory per faction, preferring the
// richest hexes and keeping capitals at least minDist apart. Each capital is
// assigned to its faction, populated, and given a temple. Factions that
// cannot be placed are returned in unplaced.
func PlaceCapitals(ws *WorldState, factionIDs []string, startPopulation, minDist int) (unplaced []string) {
	type scored struct {
		id    string
		coord HexCoord
		score int
	}
	var candidates []scored
	for _, id := range ws.TerritoryIDs() {
		t := ws.Territories[id]
		if t.Owner != "" {
			continue
		}
		candidates = append(candidates, scored{id: id, coord: t.Coord, score: capitalScore(ws, t)})
	}
	// Stable sort on the already coordinate-ordered list keeps ties deterministic.
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	var placed []HexCoord
	next := 0
	for _, fid := range factionIDs {
		if _, ok := ws.Factions[fid]; !ok {
			unplaced = append(unplaced, fid)
			continue
		}
		found := false
		for next < len(candidates) {
			c := candidates[next]
			next++
			if tooClose(c.coord, placed, minDist) {
				continue
			}
			t := ws.Territories[c.id]
			if err := ws.SetOwner(c.id, fid); err != nil {
				continue
			}
			t.Population = startPopulation
			t.Buildings[BuildingTemple] = true
			placed = append(placed, c.coord)
			found = true
			break
		}
		if !found {
			unplaced = append(unplaced, fid)
		}
	}
	return unplaced
}

// capitalScore favors fertile hexes with fertile neighbors.
func capitalScore(ws *WorldState, t *Territory) int {
	score := t.Food*2 + t.Production
	for _, nc := range t.Coord.Neighbors() {
		if n, ok := ws.Territories[nc.ID()]; ok {
			score += n.Food / 2
		}
	}
	return score
}

func tooClose(coord HexCoord, existing []HexCoord, minDist int) bool {
	for _, c := range existing {
		if Distance(coord, c) < minDist {
			return true
		}
	}
	return false
}
