package persistence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/divine-realms/internal/world"
)

// SnapshotVersion is the current snapshot format.
const SnapshotVersion = 2

const snapshotSuffix = ".snap.zst"

// SnapshotHeader is written as a JSON line ahead of the body so tools can
// identify a snapshot without decoding it.
type SnapshotHeader struct {
	Version int    `json:"version"`
	Tick    uint64 `json:"tick"`
}

// SnapshotPath returns the conventional file name for a tick's snapshot.
func SnapshotPath(dir string, tick uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d%s", tick, snapshotSuffix))
}

// WriteSnapshot writes ws to path as a zstd-compressed stream: a JSON
// header line followed by the JSON-encoded world. The body uses the same
// encoding as the database columns, so an explicit 0 multiplier survives.
func WriteSnapshot(path string, ws *world.WorldState) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(SnapshotHeader{Version: SnapshotVersion, Tick: ws.Tick})
	if err != nil {
		return err
	}
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := json.NewEncoder(bw).Encode(ws); err != nil {
		return fmt.Errorf("encode world: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadSnapshot decodes a snapshot written by WriteSnapshot.
func ReadSnapshot(path string) (SnapshotHeader, *world.WorldState, error) {
	var hdr SnapshotHeader
	f, err := os.Open(path)
	if err != nil {
		return hdr, nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return hdr, nil, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return hdr, nil, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &hdr); err != nil {
		return hdr, nil, fmt.Errorf("decode header: %w", err)
	}
	if hdr.Version != SnapshotVersion {
		return hdr, nil, fmt.Errorf("unsupported snapshot version %d", hdr.Version)
	}

	ws := world.NewWorldState()
	if err := json.NewDecoder(br).Decode(ws); err != nil {
		return hdr, nil, fmt.Errorf("decode world: %w", err)
	}
	normalize(ws)
	return hdr, ws, nil
}

// LatestSnapshot returns the path of the highest-tick snapshot in dir, or
// "" if there is none.
func LatestSnapshot(dir string) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, snapshotSuffix) {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, snapshotSuffix), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

// normalize restores the empty collections omitted from the body.
func normalize(ws *world.WorldState) {
	if ws.Territories == nil {
		ws.Territories = make(map[string]*world.Territory)
	}
	if ws.Factions == nil {
		ws.Factions = make(map[string]*world.Faction)
	}
	if ws.Sieges == nil {
		ws.Sieges = make(map[string]*world.Siege)
	}
	if ws.PendingBattles == nil {
		ws.PendingBattles = []world.PendingBattle{}
	}
	for _, t := range ws.Territories {
		if t.Buildings == nil {
			t.Buildings = make(map[world.Building]bool)
		}
	}
	for _, f := range ws.Factions {
		if f.Territories == nil {
			f.Territories = make(map[string]bool)
		}
		if f.LastCast == nil {
			f.LastCast = make(map[string]uint64)
		}
	}
}
