// Package matching implements the Order Matching Engine (component E): a
// price-time priority limit order book per symbol, a multi-symbol router
// that serializes mutation per book, and trade emission via callbacks.
package matching

import (
	"container/heap"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"qaultra-core/internal/order"
	"qaultra-core/pkg/qtypes"
)

// priceKey canonicalizes a price into a stable map key. Prices that arrive
// with different decimal scales but the same value (e.g. "10" vs "10.00")
// must collide in the level map, so the key is rounded to a fixed exponent
// rather than taken from Decimal.String() directly.
func priceKey(price decimal.Decimal) string {
	return price.Round(8).String()
}

// level is a FIFO of resting orders at one price, plus a cached running
// volume so Volume() doesn't have to walk the queue.
type level struct {
	price  decimal.Decimal
	orders []*order.Order
	volume decimal.Decimal
}

func newLevel(price decimal.Decimal) *level {
	return &level{price: price, volume: decimal.Zero}
}

func (l *level) push(o *order.Order) {
	l.orders = append(l.orders, o)
	l.volume = l.volume.Add(o.VolumeLeft)
}

// popFront removes and returns the order at the head of the FIFO.
func (l *level) popFront() *order.Order {
	o := l.orders[0]
	l.orders = l.orders[1:]
	return o
}

func (l *level) removeByID(orderID string) bool {
	for i, o := range l.orders {
		if o.OrderID == orderID {
			l.volume = l.volume.Sub(o.VolumeLeft)
			l.orders = append(l.orders[:i], l.orders[i+1:]...)
			return true
		}
	}
	return false
}

func (l *level) empty() bool {
	return len(l.orders) == 0
}

// priceHeap is a container/heap index over the price keys of one side of a
// book. desc=true gives a max-heap (bids, best = highest price); desc=false
// gives a min-heap (asks, best = lowest price).
type priceHeap struct {
	prices []decimal.Decimal
	desc   bool
}

func (h priceHeap) Len() int { return len(h.prices) }
func (h priceHeap) Less(i, j int) bool {
	if h.desc {
		return h.prices[i].GreaterThan(h.prices[j])
	}
	return h.prices[i].LessThan(h.prices[j])
}
func (h priceHeap) Swap(i, j int) { h.prices[i], h.prices[j] = h.prices[j], h.prices[i] }
func (h *priceHeap) Push(x any)   { h.prices = append(h.prices, x.(decimal.Decimal)) }
func (h *priceHeap) Pop() any {
	old := h.prices
	n := len(old)
	v := old[n-1]
	h.prices = old[:n-1]
	return v
}

// DepthLevel is one row of a market depth snapshot.
type DepthLevel struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
	Count  int
}

type orderLocation struct {
	side  qtypes.Side
	price decimal.Decimal
}

// OrderBook is the per-symbol limit order book: two price→level maps (bid,
// ask) with a heap index over each side's price keys for O(log n) best-price
// access, and an order-id lookup for O(1) cancel.
type OrderBook struct {
	mu sync.Mutex

	symbol string

	bidLevels map[string]*level
	askLevels map[string]*level
	bidHeap   *priceHeap
	askHeap   *priceHeap

	lookup map[string]orderLocation

	totalOrders     int
	totalVolume     decimal.Decimal
	lastTradePrice  decimal.Decimal
	lastTradeVolume decimal.Decimal
}

// NewOrderBook creates an empty book for one symbol.
func NewOrderBook(symbol string) *OrderBook {
	return &OrderBook{
		symbol:      symbol,
		bidLevels:   make(map[string]*level),
		askLevels:   make(map[string]*level),
		bidHeap:     &priceHeap{desc: true},
		askHeap:     &priceHeap{desc: false},
		lookup:      make(map[string]orderLocation),
		totalVolume: decimal.Zero,
	}
}

func (b *OrderBook) levelsAndHeap(side qtypes.Side) (map[string]*level, *priceHeap) {
	if side == qtypes.Buy {
		return b.bidLevels, b.bidHeap
	}
	return b.askLevels, b.askHeap
}

// rest appends the order to its side's FIFO at its stated price, creating
// the level (and indexing it in the heap) if this is the first order there.
func (b *OrderBook) rest(o *order.Order) {
	levels, h := b.levelsAndHeap(o.Direction)
	key := priceKey(o.PriceOrder)
	lv, ok := levels[key]
	if !ok {
		lv = newLevel(o.PriceOrder)
		levels[key] = lv
		heap.Push(h, o.PriceOrder)
	}
	lv.push(o)
	b.lookup[o.OrderID] = orderLocation{side: o.Direction, price: o.PriceOrder}
	b.totalOrders++
	b.totalVolume = b.totalVolume.Add(o.VolumeLeft)
}

// removeLevelIfEmpty drops a level from its map once its FIFO is empty. Its
// heap entry is left in place and skipped lazily by bestLevel's stale-entry
// check on the next lookup, rather than rebuilding the heap eagerly here.
func (b *OrderBook) removeLevelIfEmpty(side qtypes.Side, key string) {
	levels, _ := b.levelsAndHeap(side)
	lv, ok := levels[key]
	if !ok || !lv.empty() {
		return
	}
	delete(levels, key)
}

// bestLevel pops stale heap entries (levels already removed from the map)
// until it finds one still present, returning nil if the side is empty.
func bestLevel(levels map[string]*level, h *priceHeap) *level {
	for h.Len() > 0 {
		price := h.prices[0]
		key := priceKey(price)
		if lv, ok := levels[key]; ok {
			return lv
		}
		heap.Pop(h)
	}
	return nil
}

// removeOrder removes a resting order from its level by id, used by Cancel
// and by Modify (cancel-then-add).
func (b *OrderBook) removeOrder(orderID string) (*order.Order, bool) {
	loc, ok := b.lookup[orderID]
	if !ok {
		return nil, false
	}
	levels, _ := b.levelsAndHeap(loc.side)
	key := priceKey(loc.price)
	lv, ok := levels[key]
	if !ok {
		delete(b.lookup, orderID)
		return nil, false
	}
	var removed *order.Order
	for _, o := range lv.orders {
		if o.OrderID == orderID {
			removed = o
			break
		}
	}
	if removed == nil {
		delete(b.lookup, orderID)
		return nil, false
	}
	lv.removeByID(orderID)
	b.removeLevelIfEmpty(loc.side, key)
	delete(b.lookup, orderID)
	b.totalOrders--
	b.totalVolume = b.totalVolume.Sub(removed.VolumeLeft)
	return removed, true
}

// BestBid returns the best (highest) resting bid price and its total
// volume. ok is false if the bid side is empty.
func (b *OrderBook) BestBid() (price, volume decimal.Decimal, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lv := bestLevel(b.bidLevels, b.bidHeap)
	if lv == nil {
		return decimal.Zero, decimal.Zero, false
	}
	return lv.price, lv.volume, true
}

// BestAsk returns the best (lowest) resting ask price and its total volume.
func (b *OrderBook) BestAsk() (price, volume decimal.Decimal, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lv := bestLevel(b.askLevels, b.askHeap)
	if lv == nil {
		return decimal.Zero, decimal.Zero, false
	}
	return lv.price, lv.volume, true
}

// Spread returns BestAsk - BestBid; ok is false unless both sides are set.
func (b *OrderBook) Spread() (decimal.Decimal, bool) {
	bid, _, okBid := b.BestBid()
	ask, _, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero, false
	}
	return ask.Sub(bid), true
}

// MidPrice returns (BestBid+BestAsk)/2.
func (b *OrderBook) MidPrice() (decimal.Decimal, bool) {
	bid, _, okBid := b.BestBid()
	ask, _, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero, false
	}
	return bid.Add(ask).Div(decimal.NewFromInt(2)), true
}

// LastTrade returns the price and volume of the most recent trade executed
// against this book.
func (b *OrderBook) LastTrade() (decimal.Decimal, decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastTradePrice, b.lastTradeVolume
}

// DepthBids returns up to n bid levels ordered best-first. It does not
// mutate the book's heap state (copies the heap to walk it).
func (b *OrderBook) DepthBids(n int) []DepthLevel {
	b.mu.Lock()
	defer b.mu.Unlock()
	return depthFor(b.bidLevels, b.bidHeap, n)
}

// DepthAsks returns up to n ask levels ordered best-first.
func (b *OrderBook) DepthAsks(n int) []DepthLevel {
	b.mu.Lock()
	defer b.mu.Unlock()
	return depthFor(b.askLevels, b.askHeap, n)
}

func depthFor(levels map[string]*level, h *priceHeap, n int) []DepthLevel {
	cp := &priceHeap{desc: h.desc, prices: append([]decimal.Decimal(nil), h.prices...)}
	out := make([]DepthLevel, 0, n)
	seen := make(map[string]bool)
	for cp.Len() > 0 && len(out) < n {
		price := heap.Pop(cp).(decimal.Decimal)
		key := priceKey(price)
		lv, ok := levels[key]
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, DepthLevel{Price: lv.price, Volume: lv.volume, Count: len(lv.orders)})
	}
	return out
}

// TotalOrders reports the book-wide resting-order count used by EngineStats.
func (b *OrderBook) TotalOrders() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalOrders
}

func (b *OrderBook) IsEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalOrders == 0
}

// Clear removes every resting order from both sides.
func (b *OrderBook) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bidLevels = make(map[string]*level)
	b.askLevels = make(map[string]*level)
	b.bidHeap = &priceHeap{desc: true}
	b.askHeap = &priceHeap{desc: false}
	b.lookup = make(map[string]orderLocation)
	b.totalOrders = 0
	b.totalVolume = decimal.Zero
}

// Trade is one match produced while walking the opposite side of the book.
// The price is always the resting (passive) order's price.
type Trade struct {
	TradeID    string
	Aggressive *order.Order
	Passive    *order.Order
	Price      decimal.Decimal
	Volume     decimal.Decimal
	At         time.Time
}

// match walks the opposite side of the book in price priority against the
// incoming order until it is exhausted, the book side is exhausted, or the
// next level no longer crosses. It mutates both the incoming order and any
// resting orders it trades against, and returns the trades produced.
//
// Caller holds b.mu.
func (b *OrderBook) match(o *order.Order, now time.Time) []Trade {
	var oppLevels map[string]*level
	var oppHeap *priceHeap
	var oppSide qtypes.Side
	if o.Direction == qtypes.Buy {
		oppLevels, oppHeap, oppSide = b.askLevels, b.askHeap, qtypes.Sell
	} else {
		oppLevels, oppHeap, oppSide = b.bidLevels, b.bidHeap, qtypes.Buy
	}

	isMarket := o.PriceType == qtypes.Market

	var trades []Trade
	for o.VolumeLeft.GreaterThan(decimal.Zero) {
		lv := bestLevel(oppLevels, oppHeap)
		if lv == nil {
			break
		}
		if !isMarket {
			if o.Direction == qtypes.Buy && lv.price.GreaterThan(o.PriceOrder) {
				break
			}
			if o.Direction == qtypes.Sell && lv.price.LessThan(o.PriceOrder) {
				break
			}
		}

		for o.VolumeLeft.GreaterThan(decimal.Zero) && !lv.empty() {
			resting := lv.orders[0]
			tradeVol := decimal.Min(o.VolumeLeft, resting.VolumeLeft)
			tradePrice := lv.price

			o.PartialFill(tradeVol, tradePrice, now)
			resting.PartialFill(tradeVol, tradePrice, now)
			lv.volume = lv.volume.Sub(tradeVol)
			b.totalVolume = b.totalVolume.Sub(tradeVol)

			trades = append(trades, Trade{
				TradeID:    uuid.NewString(),
				Aggressive: o,
				Passive:    resting,
				Price:      tradePrice,
				Volume:     tradeVol,
				At:         now,
			})
			b.lastTradePrice = tradePrice
			b.lastTradeVolume = tradeVol

			if resting.VolumeLeft.IsZero() {
				lv.popFront()
				delete(b.lookup, resting.OrderID)
				b.totalOrders--
			}
		}

		key := priceKey(lv.price)
		b.removeLevelIfEmpty(oppSide, key)
	}

	return trades
}

// Submit matches the incoming order against the opposite side and rests
// any residual volume on its own side. Market orders never rest: residual
// volume is simply left unfilled (the caller sees it via VolumeLeft).
func (b *OrderBook) Submit(o *order.Order, now time.Time) []Trade {
	b.mu.Lock()
	defer b.mu.Unlock()

	trades := b.match(o, now)

	if o.VolumeLeft.GreaterThan(decimal.Zero) && o.PriceType != qtypes.Market {
		b.rest(o)
	}

	return trades
}

// Cancel removes a resting order from the book by id. Modification is
// cancel-then-add, which loses time priority by design.
func (b *OrderBook) Cancel(orderID string) (*order.Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeOrder(orderID)
}

// GetOrder returns the resting order for an id, if it is still in the book.
func (b *OrderBook) GetOrder(orderID string) (*order.Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	loc, ok := b.lookup[orderID]
	if !ok {
		return nil, false
	}
	levels, _ := b.levelsAndHeap(loc.side)
	lv, ok := levels[priceKey(loc.price)]
	if !ok {
		return nil, false
	}
	for _, o := range lv.orders {
		if o.OrderID == orderID {
			return o, true
		}
	}
	return nil, false
}
