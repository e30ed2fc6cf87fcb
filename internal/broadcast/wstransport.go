package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSHub is the cross-process counterpart to MemHub: it publishes blocks
// to subscribers connected over a websocket instead of an in-process
// channel. Wire format is the normative 8192-byte binary layout
// (Block.MarshalBinary), sent as a single binary message per block.
type WSHub struct {
	name   string
	logger *slog.Logger

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*wsClient]bool

	sequence uint64
	statsMu  sync.Mutex
	stats    Stats
}

type wsClient struct {
	conn *websocket.Conn
	send chan *Block
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// NewWSHub builds a publisher-side hub for stream name.
func NewWSHub(name string, logger *slog.Logger) *WSHub {
	return &WSHub{
		name:     name,
		logger:   logger.With("component", "broadcast-ws", "stream", name),
		upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: BlockSize},
		clients:  make(map[*wsClient]bool),
	}
}

// ServeHTTP upgrades an incoming connection and registers it as a
// subscriber; the client's write pump runs until the connection drops.
func (h *WSHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan *Block, 256)}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	h.statsMu.Lock()
	h.stats.TotalSubscribers++
	h.statsMu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

func (h *WSHub) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case block, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := block.MarshalBinary()
			if err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WSHub) readPump(c *wsClient) {
	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[c]; ok {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
	}()

	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		// Subscribers are read-only; inbound messages are ignored.
	}
}

// PublishBlock stamps sequence_number and timestamp_ns and fans the block
// out to every connected client, dropping it for any client whose send
// queue is full rather than blocking the publisher.
func (h *WSHub) PublishBlock(block *Block, now time.Time) {
	h.sequence++
	block.SequenceNumber = h.sequence
	block.TimestampNs = uint64(now.UnixNano())

	h.statsMu.Lock()
	h.stats.BlocksSent++
	h.stats.RecordsSent += block.RecordCount
	h.stats.BytesSent += uint64(HeaderSize + len(block.Payload()))
	h.statsMu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- block:
		default:
			h.statsMu.Lock()
			h.stats.BlocksDropped++
			h.statsMu.Unlock()
		}
	}
}

// Stats returns this stream's counters.
func (h *WSHub) Stats() Stats {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	st := h.stats
	h.mu.RLock()
	st.ActiveSubscribers = len(h.clients)
	h.mu.RUnlock()
	return st
}

const (
	wsMaxReconnectWait = 30 * time.Second
	wsReadTimeout      = 90 * time.Second
)

// WSSubscriber dials a publisher's websocket endpoint and decodes the
// binary block stream, auto-reconnecting with exponential backoff
// (1s -> 30s max) on any read or dial failure.
type WSSubscriber struct {
	url    string
	logger *slog.Logger
	blocks chan *Block
}

// NewWSSubscriber builds a subscriber for a publisher listening at url.
func NewWSSubscriber(url string, logger *slog.Logger) *WSSubscriber {
	return &WSSubscriber{
		url:    url,
		logger: logger.With("component", "broadcast-ws-sub"),
		blocks: make(chan *Block, 500),
	}
}

// Blocks returns the channel of decoded blocks in arrival order.
func (s *WSSubscriber) Blocks() <-chan *Block { return s.blocks }

// Run connects and maintains the connection until ctx is cancelled.
func (s *WSSubscriber) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := s.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.logger.Warn("broadcast websocket disconnected, reconnecting",
			"error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > wsMaxReconnectWait {
			backoff = wsMaxReconnectWait
		}
	}
}

func (s *WSSubscriber) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		block := &Block{}
		if err := block.UnmarshalBinary(data); err != nil {
			s.logger.Warn("dropping malformed block", "error", err)
			continue
		}

		select {
		case s.blocks <- block:
		default:
			s.logger.Warn("subscriber channel full, dropping block", "sequence", block.SequenceNumber)
		}
	}
}
