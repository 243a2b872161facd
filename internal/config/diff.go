package config

// ConfigDiff describes what changed between two configs. Only fields that
// can be safely hot-reloaded — queue/heartbeat/extraction tuning and log
// level — are tracked; provider selection requires a restart.
type ConfigDiff struct {
	LogLevelChanged  bool
	NewLogLevel      string
	QueuesChanged    bool
	NewQueues        QueuesConfig
	HeartbeatChanged bool
	NewHeartbeat     HeartbeatConfig
	ExtractionChanged bool
	NewExtraction    ExtractionConfig
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Queues != new.Queues {
		d.QueuesChanged = true
		d.NewQueues = new.Queues
	}

	if old.Heartbeat != new.Heartbeat {
		d.HeartbeatChanged = true
		d.NewHeartbeat = new.Heartbeat
	}

	if old.Extraction != new.Extraction {
		d.ExtractionChanged = true
		d.NewExtraction = new.Extraction
	}

	return d
}
