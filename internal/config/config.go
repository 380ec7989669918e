// Package config provides the configuration schema, loader, and hot-reload
// watcher for kosmos (§6).
package config

// Config is the root configuration structure for kosmos. It is typically
// loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	WorldModel WorldModelConfig `yaml:"world_model"`
	Relational RelationalConfig `yaml:"relational"`
	Sandbox    SandboxConfig    `yaml:"sandbox"`
	Server     ServerConfig     `yaml:"server"`
	LogLevel   LogLevel         `yaml:"log_level"`
}

// ServerConfig holds the listen address for the optional `kosmos serve`
// health/readiness HTTP surface (§4.10). Carried from the teacher's
// ServerConfig, narrowed to the one field kosmos's ambient HTTP surface
// needs — the teacher's Discord/voice listener settings have no analog here.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// WorldModelConfig mirrors §6's world_model.* keys and corresponds field for
// field to [pkg/worldmodel/facade.Config]; cmd/kosmos's toFacadeConfig does
// the conversion, which keeps the facade package itself free of a YAML
// dependency.
type WorldModelConfig struct {
	// Enabled is the master switch for graph persistence. When false, the
	// facade factory returns a degraded no-op backend (§4.4).
	Enabled bool `yaml:"enabled"`

	// Mode selects the backend topology: "simple" or "production". Both
	// currently pick the same backend: the Postgres-backed pgraph.Store when
	// graph.uri is set, the in-process MemGraph otherwise. Validate requires
	// graph.uri in production mode.
	Mode Mode `yaml:"mode"`

	// Project namespaces entities and relationships written by this
	// process. Empty means no project tag is attached.
	Project string `yaml:"project"`

	Graph GraphConfig `yaml:"graph"`

	// SimilarityThreshold is reserved for future duplicate-hypothesis
	// detection; not yet consulted by any operation.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// GraphConfig holds the graph backend's connection parameters. A non-empty
// URI selects the Postgres graph backend in either mode.
type GraphConfig struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// RelationalConfig holds the authoritative relstore's connection string.
type RelationalConfig struct {
	URL string `yaml:"url"`
}

// SandboxConfig holds the per-run resource caps a [pkg/sandbox.Executor]
// enforces (§4.8).
type SandboxConfig struct {
	WallClockSeconds int     `yaml:"wall_clock_s"`
	MemoryMB         int     `yaml:"memory_mb"`
	CPUCores         float64 `yaml:"cpu_cores"`
}

// Mode selects the world model's backend topology (§6).
type Mode string

const (
	ModeSimple     Mode = "simple"
	ModeProduction Mode = "production"
)

// IsValid reports whether m is empty or a recognised mode.
func (m Mode) IsValid() bool {
	switch m {
	case "", ModeSimple, ModeProduction:
		return true
	default:
		return false
	}
}

// LogLevel controls slog verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether l is empty or a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case "", LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// Default returns the §6-documented defaults: world model enabled in simple
// mode, info-level logging, and no sandbox caps (an executor is expected to
// supply its own conservative defaults when these are zero).
func Default() Config {
	return Config{
		WorldModel: WorldModelConfig{
			Enabled:             true,
			Mode:                ModeSimple,
			Graph:               GraphConfig{Database: "kosmos"},
			SimilarityThreshold: 0.85,
		},
		Server:   ServerConfig{ListenAddr: ":8080"},
		LogLevel: LogLevelInfo,
	}
}
