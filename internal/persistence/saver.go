package persistence

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talgya/divine-realms/internal/world"
)

// Store persists a whole world.
type Store interface {
	SaveWorldState(ctx context.Context, ws *world.WorldState) error
}

// Saver is the engine's persistence phase. Every Every ticks it clones the
// world and writes the clone in the background, so the tick never waits on
// disk. At most one save is in flight; a due save that finds one running
// is skipped.
type Saver struct {
	store       Store
	every       uint64
	snapshotDir string
	timeout     time.Duration

	inflight atomic.Bool
	wg       sync.WaitGroup
	skipped  atomic.Uint64
	failed   atomic.Uint64
}

// NewSaver creates a saver. snapshotDir may be empty to disable snapshots.
func NewSaver(store Store, every uint64, snapshotDir string, timeout time.Duration) *Saver {
	if every == 0 {
		every = 1
	}
	return &Saver{
		store:       store,
		every:       every,
		snapshotDir: snapshotDir,
		timeout:     timeout,
	}
}

// Run implements the engine phase interface.
func (s *Saver) Run(ctx context.Context, ws *world.WorldState) error {
	if ws.Tick%s.every != 0 {
		return nil
	}
	if !s.inflight.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		slog.Warn("previous save still running, skipping", "tick", ws.Tick)
		return nil
	}

	clone := ws.Clone()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inflight.Store(false)
		s.save(clone)
	}()
	return nil
}

// SaveNow writes ws synchronously, e.g. on shutdown. ws must not be shared
// with a running engine.
func (s *Saver) SaveNow(ctx context.Context, ws *world.WorldState) error {
	s.Wait()
	if err := s.store.SaveWorldState(ctx, ws); err != nil {
		return err
	}
	if s.snapshotDir != "" {
		return WriteSnapshot(SnapshotPath(s.snapshotDir, ws.Tick), ws)
	}
	return nil
}

func (s *Saver) save(ws *world.WorldState) {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := s.store.SaveWorldState(ctx, ws); err != nil {
		s.failed.Add(1)
		slog.Error("failed to save world state", "tick", ws.Tick, "error", err)
		return
	}
	if s.snapshotDir != "" {
		if err := WriteSnapshot(SnapshotPath(s.snapshotDir, ws.Tick), ws); err != nil {
			s.failed.Add(1)
			slog.Error("failed to write snapshot", "tick", ws.Tick, "error", err)
			return
		}
	}
	slog.Info("world state saved", "tick", ws.Tick, "elapsed", time.Since(start))
}

// Wait blocks until the in-flight save, if any, has finished.
func (s *Saver) Wait() {
	s.wg.Wait()
}

// Skipped returns how many due saves were dropped.
func (s *Saver) Skipped() uint64 { return s.skipped.Load() }

// Failed returns how many background saves failed.
func (s *Saver) Failed() uint64 { return s.failed.Load() }
