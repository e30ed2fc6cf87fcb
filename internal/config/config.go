// Package config defines all configuration for the trading core. Config is
// loaded from a YAML file (default: configs/config.yaml) with sensitive and
// deployment-specific fields overridable via CORE_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"qaultra-core/internal/broadcast"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure.
type Config struct {
	Environment string          `mapstructure:"environment"`
	Matching    MatchingConfig  `mapstructure:"matching"`
	Broadcast   BroadcastConfig `mapstructure:"broadcast"`
	Presets     PresetsConfig   `mapstructure:"presets"`
	Snapshot    SnapshotConfig  `mapstructure:"snapshot"`
	Logging     LoggingConfig   `mapstructure:"logging"`
}

// MatchingConfig tunes the order matching engine's shard pool.
type MatchingConfig struct {
	Workers int `mapstructure:"workers"`
}

// BroadcastConfig selects the Market-Data Broadcast Hub's preset and
// stream naming. Preset is one of "default", "high_performance",
// "low_latency", "massive_scale"; individual fields below override
// whatever the preset sets, when non-zero.
type BroadcastConfig struct {
	Preset           string `mapstructure:"preset"`
	MaxSubscribers   int    `mapstructure:"max_subscribers"`
	BatchSize        int    `mapstructure:"batch_size"`
	BufferDepth      int    `mapstructure:"buffer_depth"`
	MemoryPoolSizeMB int    `mapstructure:"memory_pool_size_mb"`
	QueueCapacity    int    `mapstructure:"queue_capacity"`
	ServiceName      string `mapstructure:"service_name"`
	InstanceName     string `mapstructure:"instance_name"`
	StreamName       string `mapstructure:"stream_name"`
	WSListenAddr     string `mapstructure:"ws_listen_addr"`
}

// Resolve builds the broadcast.Config this section describes: start from
// the named preset, then apply any non-zero override field.
func (b BroadcastConfig) Resolve() broadcast.Config {
	var cfg broadcast.Config
	switch b.Preset {
	case "high_performance":
		cfg = broadcast.HighPerformanceConfig()
	case "low_latency":
		cfg = broadcast.LowLatencyConfig()
	case "massive_scale":
		cfg = broadcast.MassiveScaleConfig()
	default:
		cfg = broadcast.DefaultConfig()
	}

	if b.MaxSubscribers != 0 {
		cfg.MaxSubscribers = b.MaxSubscribers
	}
	if b.BatchSize != 0 {
		cfg.BatchSize = b.BatchSize
	}
	if b.BufferDepth != 0 {
		cfg.BufferDepth = b.BufferDepth
	}
	if b.MemoryPoolSizeMB != 0 {
		cfg.MemoryPoolSizeMB = b.MemoryPoolSizeMB
	}
	if b.QueueCapacity != 0 {
		cfg.QueueCapacity = b.QueueCapacity
	}
	if b.ServiceName != "" {
		cfg.ServiceName = b.ServiceName
	}
	if b.InstanceName != "" {
		cfg.InstanceName = b.InstanceName
	}
	return cfg
}

// PresetsConfig optionally points at a JSON file of preset overrides,
// loaded on top of the built-in defaults via preset.Table.LoadFromFile.
// An empty Path means defaults only.
type PresetsConfig struct {
	Path string `mapstructure:"path"`
}

// SnapshotConfig sets where account QIFI snapshots are persisted.
type SnapshotConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
// Deployment fields use env vars prefixed CORE_, e.g. CORE_MATCHING_WORKERS,
// CORE_BROADCAST_PRESET, CORE_PRESETS_PATH, CORE_ENVIRONMENT.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("CORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("matching.workers", 4)
	v.SetDefault("broadcast.preset", "default")
	v.SetDefault("broadcast.stream_name", "market_data")
	v.SetDefault("snapshot.data_dir", "./data/snapshots")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("environment", "simulation")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if env := os.Getenv("CORE_ENVIRONMENT"); env != "" {
		cfg.Environment = env
	}
	if path := os.Getenv("CORE_PRESETS_PATH"); path != "" {
		cfg.Presets.Path = path
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	switch c.Environment {
	case "simulation", "live", "backtest":
	default:
		return fmt.Errorf("environment must be one of: simulation, live, backtest")
	}
	if c.Matching.Workers <= 0 {
		return fmt.Errorf("matching.workers must be > 0")
	}
	switch c.Broadcast.Preset {
	case "default", "high_performance", "low_latency", "massive_scale":
	default:
		return fmt.Errorf("broadcast.preset must be one of: default, high_performance, low_latency, massive_scale")
	}
	if c.Snapshot.DataDir == "" {
		return fmt.Errorf("snapshot.data_dir is required")
	}
	return nil
}
