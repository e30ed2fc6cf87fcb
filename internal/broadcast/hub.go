package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"qaultra-core/pkg/qtypes"
)

// DefaultStreamName is used when a caller does not name a stream.
const DefaultStreamName = "market_data"

// Manager owns every named stream's transport and exposes Publish/
// Subscribe keyed by stream name. Two transport kinds satisfy the same
// contract: in-process (Mem) and cross-process (WS); a stream's
// publishers and subscribers must agree on which one it uses.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	logger  *slog.Logger
	streams map[string]*MemHub
}

// NewManager builds a Manager over the in-process transport. cfg must
// pass Validate.
func NewManager(cfg Config, logger *slog.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		cfg:     cfg,
		logger:  logger.With("component", "broadcast-manager"),
		streams: make(map[string]*MemHub),
	}, nil
}

func (m *Manager) stream(name string) *MemHub {
	if name == "" {
		name = DefaultStreamName
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.streams[name]
	if !ok {
		h = NewMemHub(name, m.cfg, m.logger)
		m.streams[name] = h
	}
	return h
}

// Publish copies payload into a fresh block tagged with dataType and
// recordCount, assigns the next sequence number for streamName, and fans
// it out to every subscriber. Returns an OverflowError if payload exceeds
// PayloadSize (8160 bytes); the publisher's error counter is incremented
// and nothing is sent.
func (m *Manager) Publish(streamName string, payload []byte, recordCount uint64, dataType qtypes.MarketDataType, now time.Time) error {
	h := m.stream(streamName)

	block := &Block{DataType: dataType, RecordCount: recordCount}
	if err := block.SetPayload(payload); err != nil {
		h.statsMu.Lock()
		h.stats.Errors++
		h.statsMu.Unlock()
		return err
	}

	h.PublishBlock(block, now)
	return nil
}

// Subscribe attaches a new subscriber to streamName. A late subscriber
// only sees blocks published after this call returns.
func (m *Manager) Subscribe(streamName string) (*Subscription, error) {
	return m.stream(streamName).Subscribe()
}

// Stats returns the named stream's counters, or the zero value if the
// stream has never been published to or subscribed.
func (m *Manager) Stats(streamName string) Stats {
	if streamName == "" {
		streamName = DefaultStreamName
	}
	m.mu.Lock()
	h, ok := m.streams[streamName]
	m.mu.Unlock()
	if !ok {
		return Stats{}
	}
	return h.Stats()
}

// CloseStream shuts a stream's transport down, disconnecting every
// subscriber.
func (m *Manager) CloseStream(streamName string) {
	if streamName == "" {
		streamName = DefaultStreamName
	}
	m.mu.Lock()
	h, ok := m.streams[streamName]
	delete(m.streams, streamName)
	m.mu.Unlock()
	if ok {
		h.Close()
	}
}

// CloseAll shuts every stream down.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	streams := m.streams
	m.streams = make(map[string]*MemHub)
	m.mu.Unlock()
	for _, h := range streams {
		h.Close()
	}
}

// ReceiveWithTimeout blocks on sub until a block arrives or timeout
// elapses, returning (nil, false) on expiry.
func ReceiveWithTimeout(sub *Subscription, timeout time.Duration) (*Block, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return sub.Receive(ctx)
}
