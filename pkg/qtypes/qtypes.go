// Package qtypes defines the shared vocabulary used across every package in
// the core — sides, offsets, order/plan status enums, and the towards code
// that drives internal dispatch. It has no dependency on any other internal
// package, so it can be imported by any layer.
package qtypes

import "github.com/shopspring/decimal"

// Decimal is the exact-arithmetic numeric type used for every monetary and
// quantity field in the core. Every package shares this single
// representation so that mixing never happens within an Account.
type Decimal = decimal.Decimal

// Zero is the canonical zero value, exported so callers don't need to reach
// for decimal.Zero directly.
var Zero = decimal.Zero

// Side is the direction of an order: BUY or SELL.
type Side int

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Offset qualifies a trade as opening a new position or closing an existing
// one, with the close split between today's and prior days' holdings —
// the distinction that drives futures fee schedules and close-today limits.
type Offset int

const (
	Open Offset = iota + 1
	Close
	CloseToday
)

func (o Offset) String() string {
	switch o {
	case Open:
		return "OPEN"
	case Close:
		return "CLOSE"
	case CloseToday:
		return "CLOSETODAY"
	default:
		return "UNKNOWN"
	}
}

// Towards is the signed integer encoding of Side×Offset used for internal
// dispatch:
//
//	+1 BUY generic (stock buy)       -1 SELL generic (stock sell)
//	+2 BUY OPEN (futures long open)  -2 SELL OPEN (futures short open)
//	+3 BUY CLOSE (close short)       -3 SELL CLOSE (close long)
//	+4 BUY CLOSETODAY                -4 SELL CLOSETODAY
type Towards int

const (
	TowardsBuy         Towards = 1
	TowardsSell        Towards = -1
	TowardsBuyOpen     Towards = 2
	TowardsSellOpen    Towards = -2
	TowardsBuyClose    Towards = 3
	TowardsSellClose   Towards = -3
	TowardsBuyToday    Towards = 4
	TowardsSellToday   Towards = -4
)

// Side returns the Side implied by a towards code.
func (t Towards) Side() Side {
	if t > 0 {
		return Buy
	}
	return Sell
}

// Offset returns the Offset implied by a towards code. Generic stock buy
// (+1) behaves as an OPEN for ledger purposes (stock has no short side to
// close); generic stock sell (−1) behaves as a CLOSE.
func (t Towards) Offset() Offset {
	switch abs(int(t)) {
	case 1:
		if t > 0 {
			return Open
		}
		return Close
	case 2:
		return Open
	case 3:
		return Close
	case 4:
		return CloseToday
	default:
		return 0
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// PriceType distinguishes limit from market orders.
type PriceType int

const (
	Limit PriceType = iota + 1
	Market
)

// OrderStatus is the lifecycle state of an Order. Ranks are monotonic:
// a status never regresses, and terminal states never transition further.
type OrderStatus int

const (
	StatusNew OrderStatus = iota + 1
	StatusAccepted
	StatusPartialFilled
	StatusFilled
	StatusCancelled
	StatusRejected
)

func (s OrderStatus) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusAccepted:
		return "ACCEPTED"
	case StatusPartialFilled:
		return "PARTIAL_FILLED"
	case StatusFilled:
		return "FILLED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Rank gives the monotonic ordering used to enforce status invariants.
// Terminal states (FILLED, CANCELLED, REJECTED) all share the terminal
// rank — none of them can transition to another.
func (s OrderStatus) Rank() int {
	switch s {
	case StatusNew:
		return 0
	case StatusAccepted:
		return 1
	case StatusPartialFilled:
		return 2
	case StatusFilled, StatusCancelled, StatusRejected:
		return 3
	default:
		return -1
	}
}

// IsTerminal reports whether no further transition is legal.
func (s OrderStatus) IsTerminal() bool {
	return s.Rank() == 3
}

// Environment distinguishes deployment context. It affects only downstream
// reporting — every trading operation must compute the same result
// regardless of environment.
type Environment int

const (
	Backtest Environment = iota + 1
	Sim
	Real
)

func (e Environment) String() string {
	switch e {
	case Backtest:
		return "backtest"
	case Sim:
		return "sim"
	case Real:
		return "real"
	default:
		return "unknown"
	}
}

// ExchangeCode enumerates the venues the Instrument Preset Table recognizes.
type ExchangeCode string

const (
	SHFE  ExchangeCode = "SHFE"
	DCE   ExchangeCode = "DCE"
	CZCE  ExchangeCode = "CZCE"
	CFFEX ExchangeCode = "CFFEX"
	INE   ExchangeCode = "INE"
	GFEX  ExchangeCode = "GFEX"
	STOCK ExchangeCode = "STOCK"
)

// SplitAlgorithm tags the order-splitting strategy a plan uses.
type SplitAlgorithm int

const (
	TWAP SplitAlgorithm = iota + 1
	VWAP
	Iceberg
	Custom
)

func (a SplitAlgorithm) String() string {
	switch a {
	case TWAP:
		return "TWAP"
	case VWAP:
		return "VWAP"
	case Iceberg:
		return "Iceberg"
	case Custom:
		return "Custom"
	default:
		return "Unknown"
	}
}

// ChunkStatus is the lifecycle state of one child chunk of a split plan.
type ChunkStatus int

const (
	ChunkPending ChunkStatus = iota + 1
	ChunkSent
	ChunkPartiallyFilled
	ChunkFilled
	ChunkFailed
	ChunkCancelled
)

func (s ChunkStatus) String() string {
	switch s {
	case ChunkPending:
		return "PENDING"
	case ChunkSent:
		return "SENT"
	case ChunkPartiallyFilled:
		return "PARTIALLY_FILLED"
	case ChunkFilled:
		return "FILLED"
	case ChunkFailed:
		return "FAILED"
	case ChunkCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether a chunk will never be dispatched again.
func (s ChunkStatus) IsTerminal() bool {
	switch s {
	case ChunkFilled, ChunkFailed, ChunkCancelled:
		return true
	default:
		return false
	}
}

// MarketDataType tags the payload layout of a broadcast block; the hub
// itself never interprets the payload, only this tag.
type MarketDataType uint8

const (
	Tick MarketDataType = iota
	Bar
	Kline
	OrderBook
	Trade
	Unknown MarketDataType = 255
)

func (t MarketDataType) String() string {
	switch t {
	case Tick:
		return "Tick"
	case Bar:
		return "Bar"
	case Kline:
		return "Kline"
	case OrderBook:
		return "OrderBook"
	case Trade:
		return "Trade"
	default:
		return "Unknown"
	}
}
