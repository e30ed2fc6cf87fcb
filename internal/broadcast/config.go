package broadcast

import "qaultra-core/internal/qerrors"

// Config tunes a stream's subscriber capacity, queue depth, and reporting
// cadence. Zero-value Config is invalid; use DefaultConfig or a preset and
// override fields as needed.
type Config struct {
	MaxSubscribers     int
	BatchSize          int
	BufferDepth        int
	MemoryPoolSizeMB   int
	ZeroCopyEnabled    bool
	CompressionEnabled bool
	HeartbeatInterval  int // milliseconds
	StatsEnabled       bool
	NUMAAware          bool
	ServiceName        string
	InstanceName       string
	QueueCapacity      int
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		MaxSubscribers:    1000,
		BatchSize:         10000,
		BufferDepth:       500,
		MemoryPoolSizeMB:  1024,
		ZeroCopyEnabled:   true,
		HeartbeatInterval: 1000,
		StatsEnabled:      true,
		ServiceName:       "QAULTRA",
		InstanceName:      "Broadcast",
		QueueCapacity:     1000,
	}
}

// HighPerformanceConfig trades memory for subscriber and queue headroom.
func HighPerformanceConfig() Config {
	c := DefaultConfig()
	c.MaxSubscribers = 1500
	c.BatchSize = 20000
	c.BufferDepth = 1000
	c.MemoryPoolSizeMB = 2048
	c.QueueCapacity = 2000
	return c
}

// LowLatencyConfig trims every buffer to minimize time-to-delivery.
func LowLatencyConfig() Config {
	c := DefaultConfig()
	c.MaxSubscribers = 100
	c.BatchSize = 1000
	c.BufferDepth = 100
	c.MemoryPoolSizeMB = 512
	c.QueueCapacity = 200
	return c
}

// MassiveScaleConfig maximizes subscriber and queue capacity for
// many-consumer fan-out.
func MassiveScaleConfig() Config {
	c := DefaultConfig()
	c.MaxSubscribers = 2000
	c.BatchSize = 50000
	c.BufferDepth = 2000
	c.MemoryPoolSizeMB = 4096
	c.QueueCapacity = 5000
	return c
}

// Validate rejects configurations outside the documented bounds.
func (c Config) Validate() error {
	switch {
	case c.MaxSubscribers <= 0 || c.MaxSubscribers > 10000:
		return &qerrors.ConfigurationError{Field: "max_subscribers", Reason: "must be in 1..10000"}
	case c.BatchSize <= 0 || c.BatchSize > 1_000_000:
		return &qerrors.ConfigurationError{Field: "batch_size", Reason: "must be in 1..1000000"}
	case c.BufferDepth <= 0 || c.BufferDepth > 10000:
		return &qerrors.ConfigurationError{Field: "buffer_depth", Reason: "must be in 1..10000"}
	case c.MemoryPoolSizeMB <= 0 || c.MemoryPoolSizeMB > 65536:
		return &qerrors.ConfigurationError{Field: "memory_pool_size_mb", Reason: "must be in 1..65536"}
	case c.QueueCapacity <= 0:
		return &qerrors.ConfigurationError{Field: "queue_capacity", Reason: "must be > 0"}
	}
	return nil
}

// Stats reports publisher and subscriber-side counters for one stream.
type Stats struct {
	BlocksSent        uint64
	RecordsSent       uint64
	BytesSent         uint64
	Errors            uint64
	ActiveSubscribers int
	TotalSubscribers  int
	AvgLatencyNs      uint64
	MaxLatencyNs      uint64
	MinLatencyNs      uint64
	BlocksDropped     uint64
	StartTimeNs       uint64
	ElapsedTimeNs     uint64
}

// SuccessRate returns the publish success percentage, 100 when nothing
// has been attempted yet.
func (s Stats) SuccessRate() float64 {
	total := s.BlocksSent + s.Errors
	if total == 0 {
		return 100.0
	}
	return float64(s.BlocksSent) * 100.0 / float64(total)
}

// ThroughputRecordsPerSec returns records sent per second over the
// stream's lifetime so far, 0 before any time has elapsed.
func (s Stats) ThroughputRecordsPerSec() float64 {
	if s.ElapsedTimeNs == 0 {
		return 0
	}
	return float64(s.RecordsSent) * 1e9 / float64(s.ElapsedTimeNs)
}

// ThroughputMBPerSec returns megabytes sent per second over the stream's
// lifetime so far, 0 before any time has elapsed.
func (s Stats) ThroughputMBPerSec() float64 {
	if s.ElapsedTimeNs == 0 {
		return 0
	}
	const mb = 1024 * 1024
	return float64(s.BytesSent) / mb * 1e9 / float64(s.ElapsedTimeNs)
}
