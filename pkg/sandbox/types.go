// Package sandbox defines the wire-level contract between the research
// director and an out-of-process experiment executor (§4.8). The executor
// itself is a black box from the director's point of view: the director
// never reconstructs execution traces, only stores the returned result
// record (§4.8, §5).
//
// Grounded on internal/mcp.Host's tool-execution contract (JSON-in,
// bounded-result-out, a Close-able connection the caller never reaches
// inside of) generalized from "run a named tool" to "run an experiment
// protocol".
package sandbox

import (
	"context"
	"time"
)

// Status is the tri-outcome an executor reports for a single run (§4.8).
type Status string

const (
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusTimedOut Status = "timed_out"
)

// ResourceLimits caps a single run (§6: sandbox.wall_clock_s,
// sandbox.memory_mb, sandbox.cpu_cores).
type ResourceLimits struct {
	WallClockSeconds int
	MemoryMB         int
	CPUCores         float64
}

// DataHandle names an input data artifact available to the executed plan,
// by reference rather than by value (§4.8 "inputs table of data handles").
type DataHandle struct {
	Name string
	URI  string
}

// Plan is the JSON-serializable executable unit handed to the executor
// (§4.8): a language, a code body, a dependency list, input data handles,
// and the resource caps to enforce.
type Plan struct {
	Language     string
	Code         string
	Dependencies []string
	Inputs       []DataHandle
	Limits       ResourceLimits
}

// Result is the record returned by a run (§4.8). SupportsHypothesis is
// tri-state (nil = inconclusive, matching §9's Open Question 1 decision);
// PValue and EffectSize are populated only "when applicable".
type Result struct {
	Status             Status
	Metrics            map[string]any
	Figures            []string
	Stdout             string
	Stderr             string
	SupportsHypothesis *bool
	PValue             *float64
	EffectSize         *float64
	DurationMs         int64
	CompletedAt        time.Time
}

// Executor runs a [Plan] out of process and returns its [Result]. §4.8's
// isolation guarantees (no network egress, read-only filesystem outside a
// scratch directory, CPU/wall-clock/memory caps, result-schema validation)
// are the implementation's responsibility, not the interface's — the
// director only ever sees the typed Plan/Result pair.
//
// Run must honor ctx cancellation: a cancelled context should cause Run to
// return promptly with a [Result] whose Status is [StatusTimedOut] (or a
// non-nil error if the executor cannot even start), never block
// indefinitely (§5 "awaiting completion of a sandbox run" is one of the
// director's three permitted suspension points).
type Executor interface {
	Run(ctx context.Context, plan Plan) (Result, error)
}
