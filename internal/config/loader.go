package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over §6's documented defaults
// (so a key absent from the YAML keeps its default, while a key set
// explicitly, even to a zero value, overrides it), and validates the result.
// Unknown keys are
// rejected outright, matching the teacher's strict decoding discipline.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that cfg contains a coherent set of values. Structural
// problems that would make the config unusable are collected and returned as
// a single joined error; softer concerns that a reasonable default can paper
// over are only logged, mirroring the teacher's mixed-severity pattern
// (internal/config/loader.go's Validate).
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	if !cfg.WorldModel.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("world_model.mode %q is invalid; valid values: simple, production", cfg.WorldModel.Mode))
	}

	if cfg.WorldModel.Enabled && cfg.WorldModel.Mode == ModeProduction && cfg.WorldModel.Graph.URI == "" {
		errs = append(errs, fmt.Errorf("world_model.graph.uri is required when world_model.mode is production"))
	}

	if cfg.WorldModel.SimilarityThreshold < 0 || cfg.WorldModel.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("world_model.similarity_threshold %.2f is out of range [0, 1]", cfg.WorldModel.SimilarityThreshold))
	}

	if cfg.Relational.URL == "" {
		errs = append(errs, fmt.Errorf("relational.url is required"))
	}

	// Sandbox caps absent entirely is a soft warning, not a hard failure —
	// an Executor implementation may supply its own conservative defaults.
	if cfg.Sandbox.WallClockSeconds == 0 {
		slog.Warn("sandbox.wall_clock_s is not set; the executor's own default applies")
	}
	if cfg.Sandbox.MemoryMB == 0 {
		slog.Warn("sandbox.memory_mb is not set; the executor's own default applies")
	}
	if cfg.Sandbox.WallClockSeconds < 0 {
		errs = append(errs, fmt.Errorf("sandbox.wall_clock_s %d must not be negative", cfg.Sandbox.WallClockSeconds))
	}
	if cfg.Sandbox.MemoryMB < 0 {
		errs = append(errs, fmt.Errorf("sandbox.memory_mb %d must not be negative", cfg.Sandbox.MemoryMB))
	}
	if cfg.Sandbox.CPUCores < 0 {
		errs = append(errs, fmt.Errorf("sandbox.cpu_cores %.2f must not be negative", cfg.Sandbox.CPUCores))
	}

	if !cfg.WorldModel.Enabled {
		slog.Warn("world_model.enabled is false; the research director will run with a degraded graph backend and no provenance is recorded")
	}

	return errors.Join(errs...)
}
