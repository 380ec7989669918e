package facade

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kosmos-research/kosmos/internal/observe"
	"github.com/kosmos-research/kosmos/pkg/worldmodel"
	"github.com/kosmos-research/kosmos/pkg/worldmodel/pgraph"
)

var (
	mu       sync.Mutex
	instance *Facade
)

// GetWorldModel returns the process-wide world-model singleton, building it
// from cfg on the first call. Subsequent calls return the existing instance
// unchanged, regardless of cfg; [ResetWorldModel] discards it and builds a
// fresh one (§4.4 "reset closes the previous instance and rebuilds").
//
// Construction failure is never fatal to the caller: if cfg asks for a
// backend that can't be reached, GetWorldModel logs a warning and returns a
// degraded facade instead of an error, so a host process can keep running
// with world-model writes silently dropped (§4.4).
func GetWorldModel(ctx context.Context, cfg Config) (*Facade, error) {
	return getWorldModel(ctx, cfg, false)
}

// ResetWorldModel discards the current singleton (if any) and rebuilds it
// from cfg.
func ResetWorldModel(ctx context.Context, cfg Config) (*Facade, error) {
	return getWorldModel(ctx, cfg, true)
}

func getWorldModel(ctx context.Context, cfg Config, reset bool) (*Facade, error) {
	mu.Lock()
	defer mu.Unlock()

	if instance != nil && !reset {
		return instance, nil
	}
	if instance != nil {
		closePrevious(instance)
		observe.DefaultMetrics().ActiveWorldModels.Add(ctx, -1)
		instance = nil
	}

	instance = buildFacade(ctx, cfg)
	observe.DefaultMetrics().ActiveWorldModels.Add(ctx, 1)
	return instance, nil
}

func closePrevious(f *Facade) {
	type closer interface{ Close() }
	if c, ok := f.backend.(closer); ok {
		c.Close()
	}
}

func buildFacade(ctx context.Context, cfg Config) *Facade {
	if !cfg.Enabled {
		slog.Info("worldmodel: disabled by config, running in degraded mode")
		return newFacade(degradedStorage{}, "degraded", cfg.Project, true)
	}

	backend, label, err := newBackend(ctx, cfg)
	if err != nil {
		slog.Warn("worldmodel: backend construction failed, falling back to degraded mode",
			"mode", cfg.Mode, "error", err)
		return newFacade(degradedStorage{}, "degraded", cfg.Project, true)
	}
	return newFacade(backend, label, cfg.Project, false)
}

// newBackend picks a concrete [worldmodel.Storage] by cfg.Mode. "simple" and
// "production" both resolve to a single backend today: Postgres when a graph
// URI is configured, otherwise the in-process memory graph. Both modes are
// accepted per §6; "production" is reserved for a future polyglot backend
// selection and currently behaves identically to "simple".
func newBackend(ctx context.Context, cfg Config) (worldmodel.Storage, string, error) {
	switch cfg.Mode {
	case "", "simple", "production":
		if cfg.Graph.URI != "" {
			store, err := pgraph.NewStore(ctx, cfg.Graph.URI)
			if err != nil {
				return nil, "", fmt.Errorf("worldmodel: connecting to graph backend: %w", err)
			}
			return store, "pgraph", nil
		}
		return worldmodel.NewMemGraph(), "memgraph", nil
	default:
		return nil, "", fmt.Errorf("worldmodel: unknown mode %q", cfg.Mode)
	}
}
