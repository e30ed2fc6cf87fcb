package matching

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"qaultra-core/internal/order"
	"qaultra-core/internal/qerrors"
	"qaultra-core/pkg/qtypes"
)

// TradeCallback is invoked once per executed trade, on the worker goroutine
// that processed the aggressing order. Callbacks must be non-blocking and
// must not call back into the engine for the same symbol synchronously —
// doing so would deadlock against that symbol's shard.
type TradeCallback func(Trade)

// OrderCallback is invoked whenever an order's status changes (accepted,
// partially filled, filled, rejected).
type OrderCallback func(*order.Order)

// EngineStats is a point-in-time snapshot of engine-wide counters.
type EngineStats struct {
	OrdersProcessed   uint64
	TradesExecuted    uint64
	OrdersRejected    uint64
	ActiveSymbols     int
	TotalOrdersInBook int
}

// submission is one order queued for matching, routed to the shard that
// owns its symbol and carried through that shard's channel to its worker
// goroutine. done is closed once the worker has finished processing it, so
// SubmitOrder can return only after the book reflects the fill.
type submission struct {
	order *order.Order
	now   time.Time
	done  chan struct{}
}

// Engine is the multi-symbol matching engine. Symbols are routed by hash to
// a fixed set of shards, each served by one worker goroutine draining its
// own channel — the sharded-worker concurrency model: no per-book lock is
// needed for ordering since a symbol always lands on the same shard, and a
// shard's channel preserves submission order for every symbol it owns.
// OrderBook still carries its own mutex so GetOrderBook/Depth readers never
// race a concurrent shard writer.
type Engine struct {
	logger *slog.Logger

	booksMu sync.RWMutex
	books   map[string]*OrderBook

	tradeCallbacksMu sync.RWMutex
	tradeCallbacks   []TradeCallback

	orderCallbacksMu sync.RWMutex
	orderCallbacks   []OrderCallback

	shards []chan submission

	ordersProcessed uint64
	tradesExecuted  uint64
	ordersRejected  uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an Engine with the given number of shards/worker goroutines.
// workers defaults to 4 if workers <= 0.
func New(workers int, logger *slog.Logger) *Engine {
	if workers <= 0 {
		workers = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		logger: logger.With("component", "matching"),
		books:  make(map[string]*OrderBook),
		shards: make([]chan submission, workers),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := range e.shards {
		e.shards[i] = make(chan submission, 1024)
		e.wg.Add(1)
		go e.processShard(e.shards[i])
	}
	return e
}

// AddTradeCallback registers a callback invoked for every executed trade.
func (e *Engine) AddTradeCallback(cb TradeCallback) {
	e.tradeCallbacksMu.Lock()
	defer e.tradeCallbacksMu.Unlock()
	e.tradeCallbacks = append(e.tradeCallbacks, cb)
}

// AddOrderCallback registers a callback invoked on every order status change.
func (e *Engine) AddOrderCallback(cb OrderCallback) {
	e.orderCallbacksMu.Lock()
	defer e.orderCallbacksMu.Unlock()
	e.orderCallbacks = append(e.orderCallbacks, cb)
}

func (e *Engine) shardFor(symbol string) chan submission {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return e.shards[h.Sum32()%uint32(len(e.shards))]
}

func (e *Engine) getOrCreateBook(symbol string) *OrderBook {
	e.booksMu.RLock()
	b, ok := e.books[symbol]
	e.booksMu.RUnlock()
	if ok {
		return b
	}

	e.booksMu.Lock()
	defer e.booksMu.Unlock()
	if b, ok = e.books[symbol]; ok {
		return b
	}
	b = NewOrderBook(symbol)
	e.books[symbol] = b
	return b
}

// GetOrderBook returns the book for a symbol, or nil if no order has ever
// touched it.
func (e *Engine) GetOrderBook(symbol string) *OrderBook {
	e.booksMu.RLock()
	defer e.booksMu.RUnlock()
	return e.books[symbol]
}

func validateOrder(o *order.Order) error {
	if o.InstrumentID == "" {
		return &qerrors.ValidationError{Field: "symbol", Reason: "empty"}
	}
	if !o.VolumeOriginal.IsPositive() {
		return &qerrors.ValidationError{Field: "volume", Reason: "must be > 0"}
	}
	if o.PriceType == qtypes.Limit && !o.PriceOrder.IsPositive() {
		return &qerrors.ValidationError{Field: "price", Reason: "must be > 0 for a limit order"}
	}
	return nil
}

// SubmitOrder validates, routes the order to its symbol's shard, and blocks
// until that shard's worker has matched it and the book reflects the
// result. It returns an error immediately for malformed input without ever
// reaching a shard.
func (e *Engine) SubmitOrder(o *order.Order, now time.Time) error {
	if err := validateOrder(o); err != nil {
		atomic.AddUint64(&e.ordersRejected, 1)
		o.Reject(err.Error(), now)
		e.notifyOrder(o)
		return err
	}

	done := make(chan struct{})
	sub := submission{order: o, now: now, done: done}

	select {
	case e.shardFor(o.InstrumentID) <- sub:
	case <-e.ctx.Done():
		return fmt.Errorf("matching: engine stopped")
	}

	select {
	case <-done:
		return nil
	case <-e.ctx.Done():
		return fmt.Errorf("matching: engine stopped")
	}
}

// CancelOrder removes a resting order from its book.
func (e *Engine) CancelOrder(symbol, orderID string, now time.Time) error {
	b := e.GetOrderBook(symbol)
	if b == nil {
		return &qerrors.UnknownOrderError{OrderID: orderID}
	}
	o, ok := b.Cancel(orderID)
	if !ok {
		return &qerrors.UnknownOrderError{OrderID: orderID}
	}
	o.Cancel(now)
	e.notifyOrder(o)
	return nil
}

// ModifyOrder cancels the resting order and re-submits it with the new
// price/volume, losing time priority.
func (e *Engine) ModifyOrder(symbol, orderID string, newPrice, newVolume decimal.Decimal, now time.Time) error {
	b := e.GetOrderBook(symbol)
	if b == nil {
		return &qerrors.UnknownOrderError{OrderID: orderID}
	}
	o, ok := b.Cancel(orderID)
	if !ok {
		return &qerrors.UnknownOrderError{OrderID: orderID}
	}
	o.PriceOrder = newPrice
	o.VolumeOriginal = newVolume
	o.VolumeLeft = newVolume
	o.VolumeFilled = decimal.Zero
	o.AverageFillPrice = decimal.Zero
	o.Status = qtypes.StatusAccepted
	return e.SubmitOrder(o, now)
}

// processShard is one shard's worker loop: dequeue, locate/create the
// book, match, notify callbacks, signal completion, repeat.
func (e *Engine) processShard(ch chan submission) {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case sub := <-ch:
			e.handle(sub)
			close(sub.done)
		}
	}
}

func (e *Engine) handle(sub submission) {
	o := sub.order
	o.Accept(sub.now)

	book := e.getOrCreateBook(o.InstrumentID)
	trades := book.Submit(o, sub.now)

	atomic.AddUint64(&e.ordersProcessed, 1)
	atomic.AddUint64(&e.tradesExecuted, uint64(len(trades)))

	for _, tr := range trades {
		e.notifyTrade(tr)
		e.notifyOrder(tr.Passive)
	}
	e.notifyOrder(o)
}

func (e *Engine) notifyTrade(tr Trade) {
	e.tradeCallbacksMu.RLock()
	cbs := e.tradeCallbacks
	e.tradeCallbacksMu.RUnlock()
	for _, cb := range cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("trade callback panicked", "recover", r)
				}
			}()
			cb(tr)
		}()
	}
}

func (e *Engine) notifyOrder(o *order.Order) {
	e.orderCallbacksMu.RLock()
	cbs := e.orderCallbacks
	e.orderCallbacksMu.RUnlock()
	for _, cb := range cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("order callback panicked", "recover", r)
				}
			}()
			cb(o)
		}()
	}
}

// Statistics returns a point-in-time snapshot of engine-wide counters.
func (e *Engine) Statistics() EngineStats {
	e.booksMu.RLock()
	defer e.booksMu.RUnlock()

	total := 0
	for _, b := range e.books {
		total += b.TotalOrders()
	}

	return EngineStats{
		OrdersProcessed:   atomic.LoadUint64(&e.ordersProcessed),
		TradesExecuted:    atomic.LoadUint64(&e.tradesExecuted),
		OrdersRejected:    atomic.LoadUint64(&e.ordersRejected),
		ActiveSymbols:     len(e.books),
		TotalOrdersInBook: total,
	}
}

// ClearAll removes every resting order from every book.
func (e *Engine) ClearAll() {
	e.booksMu.RLock()
	defer e.booksMu.RUnlock()
	for _, b := range e.books {
		b.Clear()
	}
}

// Stop cancels the worker context and waits for all shards to drain.
func (e *Engine) Stop() {
	e.cancel()
	e.wg.Wait()
}
