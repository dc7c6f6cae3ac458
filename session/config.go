package session

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the optional on-disk override for a session's storage and
// checkpoint knobs. Every field is optional; a zero value means "use the
// environment-variable or built-in default instead" (see LoadConfig).
type Config struct {
	PageSize      int `yaml:"page_size"`
	MaxCachePages int `yaml:"max_cache_pages"`

	CheckpointTxThreshold    uint64 `yaml:"checkpoint_tx_threshold"`
	CheckpointWALBytesThresh int64  `yaml:"checkpoint_wal_bytes_threshold"`
	CheckpointIntervalMillis int64  `yaml:"checkpoint_interval_ms"`
}

// LoadConfig reads a YAML config file at path. A missing file is not an
// error: it returns a zero-valued Config so every field falls back to its
// environment-variable or built-in default.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("session: read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("session: parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyTo overlays non-zero fields of cfg onto a CheckpointPolicy already
// seeded from the environment, so an explicit YAML value always wins over
// both the env var and the built-in default.
func (cfg Config) applyTo(policy *CheckpointPolicy) {
	if cfg.CheckpointTxThreshold != 0 {
		policy.TxThreshold = cfg.CheckpointTxThreshold
	}
	if cfg.CheckpointWALBytesThresh != 0 {
		policy.WALBytesThresh = cfg.CheckpointWALBytesThresh
	}
	if cfg.CheckpointIntervalMillis != 0 {
		policy.Interval = time.Duration(cfg.CheckpointIntervalMillis) * time.Millisecond
	}
}
