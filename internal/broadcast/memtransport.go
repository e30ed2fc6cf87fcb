package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"qaultra-core/internal/qerrors"
)

// memSubscriber is one subscriber's bounded block queue. Publish drops the
// oldest undelivered block on overflow rather than blocking the publisher.
type memSubscriber struct {
	id uint64
	ch chan *Block
}

// memOp is a control-plane or data-plane operation submitted to the hub's
// single serializing goroutine. Routing register/unregister/publish
// through one channel (rather than three separate ones) guarantees they
// are applied in the exact order callers submitted them — a subscriber
// registered before a publish call returns is guaranteed to see that
// block; one registered after is not.
type memOp struct {
	kind    opKind
	sub     *memSubscriber
	block   *Block
	replyCh chan struct{}
}

type opKind int

const (
	opRegister opKind = iota
	opUnregister
	opPublish
)

// MemHub is the in-process transport for one named stream: a publisher
// side that assigns sequence numbers and fans blocks out to every
// registered subscriber.
type MemHub struct {
	name   string
	cfg    Config
	logger *slog.Logger

	ops chan memOp

	mu          sync.RWMutex
	subscribers map[uint64]*memSubscriber
	nextSubID   uint64

	sequence uint64
	stats    Stats
	statsMu  sync.Mutex

	done chan struct{}
}

// NewMemHub starts a hub for stream name and returns it. The serializing
// goroutine is started internally; callers do not need to drive it.
func NewMemHub(name string, cfg Config, logger *slog.Logger) *MemHub {
	h := &MemHub{
		name:        name,
		cfg:         cfg,
		logger:      logger.With("component", "broadcast", "stream", name),
		ops:         make(chan memOp, cfg.BufferDepth),
		subscribers: make(map[uint64]*memSubscriber),
		done:        make(chan struct{}),
	}
	h.stats.StartTimeNs = uint64(time.Now().UnixNano())
	go h.run()
	return h
}

func (h *MemHub) run() {
	for {
		select {
		case op := <-h.ops:
			h.apply(op)
		case <-h.done:
			h.mu.Lock()
			for id, sub := range h.subscribers {
				close(sub.ch)
				delete(h.subscribers, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *MemHub) apply(op memOp) {
	switch op.kind {
	case opRegister:
		h.mu.Lock()
		h.subscribers[op.sub.id] = op.sub
		h.mu.Unlock()
		close(op.replyCh)

	case opUnregister:
		h.mu.Lock()
		if _, ok := h.subscribers[op.sub.id]; ok {
			delete(h.subscribers, op.sub.id)
			close(op.sub.ch)
		}
		h.mu.Unlock()

	case opPublish:
		block := op.block
		h.mu.RLock()
		for _, sub := range h.subscribers {
			select {
			case sub.ch <- block:
			default:
				// Queue full: drop the oldest undelivered block, then push
				// the new one. Never block the publisher.
				select {
				case <-sub.ch:
				default:
				}
				select {
				case sub.ch <- block:
				default:
				}
				h.bumpDropped()
			}
		}
		h.mu.RUnlock()
	}
}

// PublishBlock stamps sequence_number and timestamp_ns on block (payload
// and data_type are expected to already be set by the caller), enqueues
// it for delivery in submission order, and returns without waiting for
// subscribers to receive it. Drop-oldest back-pressure means Publish
// never blocks regardless of subscriber queue depth.
func (h *MemHub) PublishBlock(block *Block, now time.Time) {
	block.SequenceNumber = atomic.AddUint64(&h.sequence, 1)
	block.TimestampNs = uint64(now.UnixNano())

	h.statsMu.Lock()
	h.stats.BlocksSent++
	h.stats.RecordsSent += block.RecordCount
	h.stats.BytesSent += uint64(HeaderSize + len(block.Payload()))
	h.statsMu.Unlock()

	select {
	case h.ops <- memOp{kind: opPublish, block: block}:
	case <-h.done:
	}
}

func (h *MemHub) bumpDropped() {
	h.statsMu.Lock()
	h.stats.BlocksDropped++
	h.statsMu.Unlock()
}

// Subscription is a live handle a subscriber uses to receive blocks from
// one stream.
type Subscription struct {
	hub *MemHub
	sub *memSubscriber
}

// Subscribe registers a new subscriber and returns its handle, blocking
// until registration has been applied. A late subscriber only observes
// blocks published after this call returns.
func (h *MemHub) Subscribe() (*Subscription, error) {
	h.mu.RLock()
	active := len(h.subscribers)
	h.mu.RUnlock()
	if active >= h.cfg.MaxSubscribers {
		return nil, &qerrors.TransportError{Op: "subscribe", Err: errTooManySubscribers}
	}

	id := atomic.AddUint64(&h.nextSubID, 1)
	sub := &memSubscriber{id: id, ch: make(chan *Block, h.cfg.QueueCapacity)}
	reply := make(chan struct{})

	select {
	case h.ops <- memOp{kind: opRegister, sub: sub, replyCh: reply}:
	case <-h.done:
		return nil, &qerrors.TransportError{Op: "subscribe", Err: errHubClosed}
	}

	select {
	case <-reply:
	case <-h.done:
		return nil, &qerrors.TransportError{Op: "subscribe", Err: errHubClosed}
	}

	h.statsMu.Lock()
	h.stats.TotalSubscribers++
	h.statsMu.Unlock()

	return &Subscription{hub: h, sub: sub}, nil
}

// Receive blocks until a block arrives, ctx is cancelled, or the hub is
// closed. Returns (nil, false) on cancellation or closure.
func (s *Subscription) Receive(ctx context.Context) (*Block, bool) {
	select {
	case b, ok := <-s.sub.ch:
		return b, ok
	case <-ctx.Done():
		return nil, false
	}
}

// ReceiveNoWait returns immediately with (nil, false) if no block is
// queued.
func (s *Subscription) ReceiveNoWait() (*Block, bool) {
	select {
	case b, ok := <-s.sub.ch:
		return b, ok
	default:
		return nil, false
	}
}

// Close unregisters the subscription from its hub.
func (s *Subscription) Close() {
	select {
	case s.hub.ops <- memOp{kind: opUnregister, sub: s.sub}:
	case <-s.hub.done:
	}
}

// Stats returns a snapshot of this stream's counters.
func (h *MemHub) Stats() Stats {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	st := h.stats
	st.ElapsedTimeNs = uint64(time.Now().UnixNano()) - st.StartTimeNs
	h.mu.RLock()
	st.ActiveSubscribers = len(h.subscribers)
	h.mu.RUnlock()
	return st
}

// Close shuts the hub down, closing every subscriber channel.
func (h *MemHub) Close() {
	close(h.done)
}

type transportError string

func (e transportError) Error() string { return string(e) }

var (
	errTooManySubscribers = transportError("max_subscribers reached")
	errHubClosed          = transportError("hub closed")
)
