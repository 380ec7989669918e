package facade

import (
	"context"
	"errors"
	"time"

	"github.com/kosmos-research/kosmos/internal/observe"
	"github.com/kosmos-research/kosmos/internal/resilience"
	"github.com/kosmos-research/kosmos/pkg/worldmodel"
)

// Compile-time assertion.
var _ worldmodel.Storage = (*Facade)(nil)

// Facade is the single entry point every agent and the director funnel
// world-model calls through (§5 "all callers funnel through the facade").
// It validates inputs, attaches the default project tag when the caller
// omits one, and routes every call through a [resilience.FallbackGroup]: the
// real backend is tried first behind its own circuit breaker, and a wedged
// or failing backend falls back to the no-op degradedStorage rather than
// hanging or erroring the caller out. One metric is recorded per operation
// regardless of which entry in the group served it (§4.4, §4.10).
type Facade struct {
	backend      worldmodel.Storage
	fallback     *resilience.FallbackGroup[worldmodel.Storage]
	metrics      *observe.Metrics
	backendLabel string
	project      string
	degraded     bool
}

// newFacade wraps backend behind a Facade. backendLabel is the metrics/log tag
// ("memgraph", "pgraph", "degraded"). A facade built from a real backend
// gets "degraded" registered as its fallback; a facade already built
// degraded has nothing further to fall back to.
func newFacade(backend worldmodel.Storage, backendLabel, project string, degraded bool) *Facade {
	fallback := resilience.NewFallbackGroup[worldmodel.Storage](backend, backendLabel, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{Name: "worldmodel." + backendLabel},
	})
	if !degraded {
		fallback.AddFallback("degraded", degradedStorage{})
	}
	return &Facade{
		backend:      backend,
		fallback:     fallback,
		metrics:      observe.DefaultMetrics(),
		backendLabel: backendLabel,
		project:      project,
		degraded:     degraded,
	}
}

// Degraded reports whether this facade was built on the no-op backend
// (disabled by config or backend construction failed) rather than a real
// one. It is fixed at construction: calls that a real backend's failure
// sends to the no-op fallback do not change it.
func (f *Facade) Degraded() bool {
	return f.degraded
}

// call runs fn through the fallback group and records the operation's
// duration and outcome. Every entry failing (primary plus the degraded
// fallback) surfaces as [worldmodel.ErrBackendUnavailable] rather than the
// raw [resilience.ErrAllFailed], since callers outside this package
// shouldn't need to know the resilience package's sentinel.
func (f *Facade) call(ctx context.Context, operation string, fn func(worldmodel.Storage) error) error {
	start := time.Now()
	err := f.fallback.Execute(fn)
	outcome := "ok"
	if err != nil {
		outcome = "fail"
	}
	f.metrics.RecordStorageOperation(ctx, operation, f.backendLabel, outcome, time.Since(start).Seconds())

	if errors.Is(err, resilience.ErrAllFailed) {
		return worldmodel.ErrBackendUnavailable
	}
	return err
}

// callResult is call's counterpart for operations that return a value
// alongside the error, routed through [resilience.ExecuteWithResult].
func callResult[R any](f *Facade, ctx context.Context, operation string, fn func(worldmodel.Storage) (R, error)) (R, error) {
	start := time.Now()
	result, err := resilience.ExecuteWithResult(f.fallback, fn)
	outcome := "ok"
	if err != nil {
		outcome = "fail"
	}
	f.metrics.RecordStorageOperation(ctx, operation, f.backendLabel, outcome, time.Since(start).Seconds())

	if errors.Is(err, resilience.ErrAllFailed) {
		var zero R
		return zero, worldmodel.ErrBackendUnavailable
	}
	return result, err
}

func (f *Facade) AddEntity(ctx context.Context, e worldmodel.Entity) (string, error) {
	if e.Project == "" {
		e.Project = f.project
	}
	return callResult(f, ctx, "AddEntity", func(backend worldmodel.Storage) (string, error) {
		return backend.AddEntity(ctx, e)
	})
}

func (f *Facade) GetEntity(ctx context.Context, id string) (*worldmodel.Entity, error) {
	return callResult(f, ctx, "GetEntity", func(backend worldmodel.Storage) (*worldmodel.Entity, error) {
		return backend.GetEntity(ctx, id)
	})
}

func (f *Facade) UpdateEntity(ctx context.Context, e worldmodel.Entity) error {
	if e.Project == "" {
		e.Project = f.project
	}
	return f.call(ctx, "UpdateEntity", func(backend worldmodel.Storage) error {
		return backend.UpdateEntity(ctx, e)
	})
}

func (f *Facade) DeleteEntity(ctx context.Context, id string) error {
	return f.call(ctx, "DeleteEntity", func(backend worldmodel.Storage) error {
		return backend.DeleteEntity(ctx, id)
	})
}

func (f *Facade) AddRelationship(ctx context.Context, r worldmodel.Relationship) (string, error) {
	return callResult(f, ctx, "AddRelationship", func(backend worldmodel.Storage) (string, error) {
		return backend.AddRelationship(ctx, r)
	})
}

func (f *Facade) Query(ctx context.Context, spec string, filter worldmodel.EntityFilter) ([]worldmodel.Entity, error) {
	if filter.Project == "" {
		filter.Project = f.project
	}
	return callResult(f, ctx, "Query", func(backend worldmodel.Storage) ([]worldmodel.Entity, error) {
		return backend.Query(ctx, spec, filter)
	})
}

func (f *Facade) IterateEntities(ctx context.Context, project string) ([]worldmodel.Entity, error) {
	if project == "" {
		project = f.project
	}
	return callResult(f, ctx, "IterateEntities", func(backend worldmodel.Storage) ([]worldmodel.Entity, error) {
		return backend.IterateEntities(ctx, project)
	})
}

func (f *Facade) GetStatistics(ctx context.Context) (worldmodel.Statistics, error) {
	return callResult(f, ctx, "GetStatistics", func(backend worldmodel.Storage) (worldmodel.Statistics, error) {
		return backend.GetStatistics(ctx)
	})
}

func (f *Facade) ExportGraph(ctx context.Context, path, project string) error {
	if project == "" {
		project = f.project
	}
	return f.call(ctx, "ExportGraph", func(backend worldmodel.Storage) error {
		return backend.ExportGraph(ctx, path, project)
	})
}

func (f *Facade) ImportGraph(ctx context.Context, path, project string, mode worldmodel.ImportMode) (int, error) {
	if project == "" {
		project = f.project
	}
	return callResult(f, ctx, "ImportGraph", func(backend worldmodel.Storage) (int, error) {
		return backend.ImportGraph(ctx, path, project, mode)
	})
}

func (f *Facade) AddAnnotation(ctx context.Context, entityID string, ann worldmodel.Annotation) error {
	return f.call(ctx, "AddAnnotation", func(backend worldmodel.Storage) error {
		return backend.AddAnnotation(ctx, entityID, ann)
	})
}

func (f *Facade) Reset(ctx context.Context, project string, confirm bool) error {
	if project == "" {
		project = f.project
	}
	return f.call(ctx, "Reset", func(backend worldmodel.Storage) error {
		return backend.Reset(ctx, project, confirm)
	})
}
