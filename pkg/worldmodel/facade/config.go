// Package facade provides the process-wide world-model singleton (§4.4): a
// factory that builds a [worldmodel.Storage] from a typed config, a circuit
// breaker and per-operation metrics wrapped around every call, and a
// graceful-degradation mode that turns backend outages into silent no-ops
// rather than host-process failures.
//
// Grounded on internal/config.Registry's name-to-constructor indirection and
// internal/resilience.CircuitBreaker/FallbackGroup for the failure handling;
// generalized from "pick an LLM/STT/TTS provider by name" to "pick a graph
// backend by mode".
package facade

// GraphConfig holds the connection parameters for the configured graph
// backend (§6: world_model.graph.*).
type GraphConfig struct {
	URI      string
	User     string
	Password string
	Database string
}

// Config is the typed configuration record the facade is built from exactly
// once at process startup (§4.4).
type Config struct {
	// Enabled is the master switch; when false every mutating call other
	// than ImportGraph is a no-op (adds return a synthetic id), every read
	// returns empty, and ExportGraph/ImportGraph fail with
	// worldmodel.ErrBackendUnavailable.
	Enabled bool

	// Mode selects the backend: "simple" (single in-process or single
	// Postgres instance) or "production" (polyglot, declared but not
	// required — treated the same as "simple" until a second backend is
	// added).
	Mode string

	// Project is the default project namespace attached to entities/
	// relationships that don't specify one explicitly.
	Project string

	Graph GraphConfig

	// SimilarityThreshold is reserved for future duplicate-merge detection
	// (§6 default 0.85); it is accepted and stored but not yet consulted by
	// any operation.
	SimilarityThreshold float64
}

// DefaultConfig returns the §6 documented defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		Mode:                "simple",
		Graph:               GraphConfig{Database: "kosmos"},
		SimilarityThreshold: 0.85,
	}
}
