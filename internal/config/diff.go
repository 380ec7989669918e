package config

// ConfigDiff describes what changed between two configs, restricted to
// fields it is safe to apply without restarting the process (the director's
// in-flight research loop and any live graph backend connection survive all
// of these).
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	SandboxChanged bool
	NewSandbox     SandboxConfig

	// SimilarityThresholdChanged is tracked separately from the rest of
	// WorldModelConfig because it is the only world_model.* field safe to
	// change live; Mode, Project, and Graph require re-acquiring the
	// facade singleton via [facade.ResetWorldModel] and are reported
	// instead as RequiresRestart.
	SimilarityThresholdChanged bool
	NewSimilarityThreshold     float64

	// RequiresRestart lists the dotted keys that changed but cannot be
	// hot-applied.
	RequiresRestart []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.LogLevel
	}

	if old.Sandbox != new.Sandbox {
		d.SandboxChanged = true
		d.NewSandbox = new.Sandbox
	}

	if old.WorldModel.SimilarityThreshold != new.WorldModel.SimilarityThreshold {
		d.SimilarityThresholdChanged = true
		d.NewSimilarityThreshold = new.WorldModel.SimilarityThreshold
	}

	if old.WorldModel.Enabled != new.WorldModel.Enabled {
		d.RequiresRestart = append(d.RequiresRestart, "world_model.enabled")
	}
	if old.WorldModel.Mode != new.WorldModel.Mode {
		d.RequiresRestart = append(d.RequiresRestart, "world_model.mode")
	}
	if old.WorldModel.Project != new.WorldModel.Project {
		d.RequiresRestart = append(d.RequiresRestart, "world_model.project")
	}
	if old.WorldModel.Graph != new.WorldModel.Graph {
		d.RequiresRestart = append(d.RequiresRestart, "world_model.graph")
	}
	if old.Relational.URL != new.Relational.URL {
		d.RequiresRestart = append(d.RequiresRestart, "relational.url")
	}
	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RequiresRestart = append(d.RequiresRestart, "server.listen_addr")
	}

	return d
}

// Empty reports whether d describes no change at all, hot-appliable or not.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.SandboxChanged && !d.SimilarityThresholdChanged && len(d.RequiresRestart) == 0
}
