// Package account implements the Account Aggregate (component D): cash,
// positions, open orders, executed trades, frozen funds, and the derived
// totals that make up the ledger equation.
package account

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"qaultra-core/internal/order"
	"qaultra-core/internal/position"
	"qaultra-core/internal/preset"
	"qaultra-core/internal/qerrors"
	"qaultra-core/pkg/qtypes"
)

// Trade is one executed fill, retained in DailyTrades until Settle clears
// it.
type Trade struct {
	TradeID      string
	OrderID      string
	AccountID    string
	ExchangeID   string
	InstrumentID string
	Price        decimal.Decimal
	Volume       decimal.Decimal
	TradeTime    time.Time
	Direction    qtypes.Side
	Offset       qtypes.Offset
	Commission   decimal.Decimal
	Tax          decimal.Decimal
}

// FrozenEntry reserves cash against an open order until it fills or is
// cancelled.
type FrozenEntry struct {
	OrderID  string
	Symbol   string
	Amount   decimal.Decimal
	Datetime time.Time
}

// ProcessingStats is an advisory counter set, not part of the ledger
// equation.
type ProcessingStats struct {
	OrdersProcessed int64
	TradesProcessed int64
	PriceUpdates    int64
	StartTime       time.Time
}

// Account is the single-writer aggregate for one trading account. Every
// exported method takes mu itself, so callers need no lock of their own.
type Account struct {
	mu sync.Mutex

	AccountCookie   string
	PortfolioCookie string
	UserCookie      string
	Environment     qtypes.Environment

	AllowT0       bool
	AllowSellopen bool
	AllowMargin   bool

	InitialCash decimal.Decimal
	Cash        decimal.Decimal
	CloseProfit decimal.Decimal
	Frozen      map[string]FrozenEntry

	Positions   map[string]*position.Position
	DailyOrders map[string]*order.Order
	DailyTrades map[string]*Trade

	EventID int64
	Time    time.Time

	Presets *preset.Table
	logger  *slog.Logger
	stats   ProcessingStats
}

// New constructs an Account with the given starting cash.
func New(accountCookie, portfolioCookie, userCookie string, env qtypes.Environment, initialCash decimal.Decimal, presets *preset.Table, logger *slog.Logger) *Account {
	if logger == nil {
		logger = slog.Default()
	}
	return &Account{
		AccountCookie:   accountCookie,
		PortfolioCookie: portfolioCookie,
		UserCookie:      userCookie,
		Environment:     env,
		InitialCash:     initialCash,
		Cash:            initialCash,
		Frozen:          make(map[string]FrozenEntry),
		Positions:       make(map[string]*position.Position),
		DailyOrders:     make(map[string]*order.Order),
		DailyTrades:     make(map[string]*Trade),
		Presets:         presets,
		logger:          logger.With("component", "account", "account_cookie", accountCookie),
		stats:           ProcessingStats{StartTime: time.Now()},
	}
}

// requiredFundsForOpen computes the cash/margin a new OPEN order must
// reserve: full notional for stock buys, the
// direction-appropriate margin coefficient for futures.
func requiredFundsForOpen(p preset.Preset, direction qtypes.Side, price, vol decimal.Decimal) decimal.Decimal {
	if p.Exchange == qtypes.STOCK {
		return vol.Mul(price).Add(p.Commission(price, vol))
	}
	if direction == qtypes.Sell {
		return p.SellOpenMargin(price, vol).Add(p.Commission(price, vol))
	}
	return p.FrozenMoney(price, vol).Add(p.Commission(price, vol))
}

// frozenSum totals every reserved cash entry.
func (a *Account) frozenSum() decimal.Decimal {
	sum := decimal.Zero
	for _, f := range a.Frozen {
		sum = sum.Add(f.Amount)
	}
	return sum
}

func (a *Account) positionOrCreate(symbol string) *position.Position {
	if p, ok := a.Positions[symbol]; ok {
		return p
	}
	p := position.New(symbol, a.Presets.Get(symbol))
	a.Positions[symbol] = p
	return p
}

// Balance, Margin, Available, RiskRatio implement the ledger equation.
// Callers should hold no external lock; these acquire it.
func (a *Account) Balance() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balanceLocked()
}

func (a *Account) balanceLocked() decimal.Decimal {
	total := a.Cash
	for _, p := range a.Positions {
		total = total.Add(p.PositionProfit()).Add(p.FloatProfit())
	}
	return total
}

func (a *Account) Margin() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.marginLocked()
}

func (a *Account) marginLocked() decimal.Decimal {
	total := decimal.Zero
	for _, p := range a.Positions {
		total = total.Add(p.MarginLong).Add(p.MarginShort)
	}
	return total
}

func (a *Account) Available() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Cash.Sub(a.frozenSum())
}

func (a *Account) RiskRatio() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	balance := a.balanceLocked()
	if balance.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return a.marginLocked().Div(balance)
}

func (a *Account) Stats() ProcessingStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// nextOrderID generates "<ns_epoch>-<event_id>".
func (a *Account) nextOrderID(now time.Time) string {
	a.EventID++
	return fmt.Sprintf("%d-%d", now.UnixNano(), a.EventID)
}

// Buy, Sell, and the offset-specific wrappers select a towards code and
// delegate to SendOrder.
func (a *Account) Buy(symbol string, vol decimal.Decimal, at time.Time, price decimal.Decimal) (*order.Order, error) {
	return a.SendOrder(symbol, vol, at, qtypes.TowardsBuy, price, qtypes.Limit)
}

func (a *Account) Sell(symbol string, vol decimal.Decimal, at time.Time, price decimal.Decimal) (*order.Order, error) {
	return a.SendOrder(symbol, vol, at, qtypes.TowardsSell, price, qtypes.Limit)
}

func (a *Account) BuyOpen(symbol string, vol decimal.Decimal, at time.Time, price decimal.Decimal) (*order.Order, error) {
	return a.SendOrder(symbol, vol, at, qtypes.TowardsBuyOpen, price, qtypes.Limit)
}

func (a *Account) SellOpen(symbol string, vol decimal.Decimal, at time.Time, price decimal.Decimal) (*order.Order, error) {
	return a.SendOrder(symbol, vol, at, qtypes.TowardsSellOpen, price, qtypes.Limit)
}

func (a *Account) BuyClose(symbol string, vol decimal.Decimal, at time.Time, price decimal.Decimal) (*order.Order, error) {
	return a.SendOrder(symbol, vol, at, qtypes.TowardsBuyClose, price, qtypes.Limit)
}

func (a *Account) SellClose(symbol string, vol decimal.Decimal, at time.Time, price decimal.Decimal) (*order.Order, error) {
	return a.SendOrder(symbol, vol, at, qtypes.TowardsSellClose, price, qtypes.Limit)
}

func (a *Account) BuyCloseToday(symbol string, vol decimal.Decimal, at time.Time, price decimal.Decimal) (*order.Order, error) {
	return a.SendOrder(symbol, vol, at, qtypes.TowardsBuyToday, price, qtypes.Limit)
}

func (a *Account) SellCloseToday(symbol string, vol decimal.Decimal, at time.Time, price decimal.Decimal) (*order.Order, error) {
	return a.SendOrder(symbol, vol, at, qtypes.TowardsSellToday, price, qtypes.Limit)
}

// SmartBuy inspects the current position and picks close/open/both so the
// caller doesn't need to track the opposite side itself.
func (a *Account) SmartBuy(symbol string, vol decimal.Decimal, at time.Time, price decimal.Decimal) (*order.Order, error) {
	a.mu.Lock()
	pos, exists := a.Positions[symbol]
	var short decimal.Decimal
	if exists {
		short = pos.AvailableShort()
	}
	p := a.Presets.Get(symbol)
	a.mu.Unlock()

	switch {
	case short.GreaterThanOrEqual(vol):
		return a.BuyClose(symbol, vol, at, price)
	case short.IsZero():
		if a.AllowSellopen || p.Exchange != qtypes.STOCK {
			return a.BuyOpen(symbol, vol, at, price)
		}
		return a.Buy(symbol, vol, at, price)
	default:
		if _, err := a.BuyClose(symbol, short, at, price); err != nil {
			return nil, err
		}
		return a.BuyOpen(symbol, vol.Sub(short), at, price)
	}
}

// SmartSell is the mirror of SmartBuy against the long side.
func (a *Account) SmartSell(symbol string, vol decimal.Decimal, at time.Time, price decimal.Decimal) (*order.Order, error) {
	a.mu.Lock()
	pos, exists := a.Positions[symbol]
	var long decimal.Decimal
	if exists {
		long = pos.AvailableLong()
	}
	p := a.Presets.Get(symbol)
	a.mu.Unlock()

	switch {
	case long.GreaterThanOrEqual(vol):
		return a.SellClose(symbol, vol, at, price)
	case long.IsZero():
		if a.AllowSellopen || p.Exchange != qtypes.STOCK {
			return a.SellOpen(symbol, vol, at, price)
		}
		return a.Sell(symbol, vol, at, price)
	default:
		if _, err := a.SellClose(symbol, long, at, price); err != nil {
			return nil, err
		}
		return a.SellOpen(symbol, vol.Sub(long), at, price)
	}
}

// SendOrder is the canonical entry point: validate, freeze,
// create and retain the Order, or return a typed error and leave the
// Account unmodified.
func (a *Account) SendOrder(symbol string, vol decimal.Decimal, at time.Time, towards qtypes.Towards, price decimal.Decimal, priceType qtypes.PriceType) (*order.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.Time = at

	if err := a.orderCheck(symbol, vol, price, towards); err != nil {
		return nil, err
	}

	orderID := a.nextOrderID(at)
	p := a.Presets.Get(symbol)
	ord := order.New(orderID, a.AccountCookie, symbol, string(p.Exchange), towards, priceType, vol, price, at)
	a.DailyOrders[orderID] = ord

	pos := a.positionOrCreate(symbol)
	offset := towards.Offset()
	direction := towards.Side()

	switch {
	case offset == qtypes.Open:
		required := requiredFundsForOpen(p, direction, price, vol)
		a.Frozen[orderID] = FrozenEntry{OrderID: orderID, Symbol: symbol, Amount: required, Datetime: at}
	case offset == qtypes.Close || offset == qtypes.CloseToday:
		if err := pos.Freeze(direction, offset, vol); err != nil {
			delete(a.DailyOrders, orderID)
			return nil, err
		}
	}

	a.stats.OrdersProcessed++
	ord.Accept(at)
	return ord, nil
}

// orderCheck validates volume, market rules, and funds before an order is accepted.
func (a *Account) orderCheck(symbol string, vol, price decimal.Decimal, towards qtypes.Towards) error {
	if vol.LessThanOrEqual(decimal.Zero) {
		return &qerrors.ValidationError{Field: "volume", Reason: "must be > 0"}
	}

	p := a.Presets.Get(symbol)
	offset := towards.Offset()
	direction := towards.Side()

	if p.Exchange == qtypes.STOCK && strings.HasPrefix(symbol, "688") && vol.LessThan(decimal.NewFromInt(200)) {
		return &qerrors.MarketRuleError{Rule: "STAR_BOARD_MIN_SIZE", Detail: "STAR board orders require volume >= 200"}
	}

	pos := a.Positions[symbol]

	switch offset {
	case qtypes.Close:
		var available decimal.Decimal
		if pos != nil {
			if direction == qtypes.Buy {
				available = pos.AvailableShort()
			} else {
				available = pos.AvailableLong()
			}
		}
		if vol.GreaterThan(available) {
			return &qerrors.InsufficientPositionError{Symbol: symbol, Requested: vol, Available: available}
		}
	case qtypes.CloseToday:
		var available decimal.Decimal
		if pos != nil {
			if direction == qtypes.Buy {
				available = pos.AvailableShortToday()
			} else {
				available = pos.AvailableLongToday()
			}
		}
		if vol.GreaterThan(available) {
			return &qerrors.InsufficientPositionError{Symbol: symbol, Requested: vol, Available: available}
		}
	case qtypes.Open:
		required := requiredFundsForOpen(p, direction, price, vol)
		available := a.Cash.Sub(a.frozenSum())
		if required.GreaterThan(available) {
			return &qerrors.InsufficientFundsError{Required: required, Available: available}
		}
	}
	return nil
}

// ReceiveDeal is the settlement callback invoked by the Matching Engine on
// a fill. Unknown or terminal orders are rejected for
// idempotency — the caller should log and drop, never replay.
func (a *Account) ReceiveDeal(tradeID, orderID, symbol string, price, vol decimal.Decimal, at time.Time, direction qtypes.Side, offset qtypes.Offset) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	ord, ok := a.DailyOrders[orderID]
	if !ok || !ord.IsActive() {
		return &qerrors.UnknownOrderError{OrderID: orderID}
	}

	pos := a.positionOrCreate(symbol)
	unit := decimal.NewFromInt(pos.Preset.UnitTable)

	// realized is the P&L relative to cost basis, tracked for every close
	// regardless of exchange (it feeds close_profit). marginReleased is the
	// margin committed at the average open price for the volume being
	// closed — for futures it must be returned to cash alongside realized
	// P&L, since only the margin (not the full notional) was debited when
	// the position was opened. Both must be read before ApplyTrade reduces
	// the position's cost basis.
	var realized, marginReleased decimal.Decimal
	if offset == qtypes.Close || offset == qtypes.CloseToday {
		if direction == qtypes.Buy {
			avg := pos.AvgPriceShort()
			realized = avg.Sub(price).Mul(vol).Mul(unit)
			marginReleased = pos.Preset.SellOpenMargin(avg, vol)
		} else {
			avg := pos.AvgPriceLong()
			realized = price.Sub(avg).Mul(vol).Mul(unit)
			marginReleased = pos.Preset.FrozenMoney(avg, vol)
		}
		a.CloseProfit = a.CloseProfit.Add(realized)
	}

	if err := pos.ApplyTrade(direction, offset, vol, price, at); err != nil {
		return err
	}

	var commission decimal.Decimal
	if offset == qtypes.CloseToday {
		commission = pos.Preset.CommissionToday(price, vol)
	} else {
		commission = pos.Preset.Commission(price, vol)
	}
	tax := pos.Preset.Tax(price, vol, towardsFrom(direction, offset))

	switch {
	case offset == qtypes.Open && direction == qtypes.Buy:
		a.Cash = a.Cash.Sub(pos.Preset.FrozenMoney(price, vol)).Sub(commission)
		a.unfreezeCashForFill(orderID, ord, vol)
	case offset == qtypes.Open && direction == qtypes.Sell:
		a.Cash = a.Cash.Sub(pos.Preset.SellOpenMargin(price, vol)).Sub(commission)
		a.unfreezeCashForFill(orderID, ord, vol)
	case (offset == qtypes.Close || offset == qtypes.CloseToday) && pos.Preset.Exchange == qtypes.STOCK:
		a.Cash = a.Cash.Add(vol.Mul(price)).Sub(commission).Sub(tax)
		pos.Unfreeze(direction, offset, vol)
	case offset == qtypes.Close || offset == qtypes.CloseToday:
		a.Cash = a.Cash.Add(marginReleased).Add(realized).Sub(commission).Sub(tax)
		pos.Unfreeze(direction, offset, vol)
	}

	ord.PartialFill(vol, price, at)
	ord.RecomputeFees(ord.Commission.Add(commission), ord.Tax.Add(tax))

	a.DailyTrades[tradeID] = &Trade{
		TradeID:      tradeID,
		OrderID:      orderID,
		AccountID:    a.AccountCookie,
		ExchangeID:   string(pos.Preset.Exchange),
		InstrumentID: symbol,
		Price:        price,
		Volume:       vol,
		TradeTime:    at,
		Direction:    direction,
		Offset:       offset,
		Commission:   commission,
		Tax:          tax,
	}
	a.EventID++
	a.stats.TradesProcessed++

	if !ord.IsActive() {
		delete(a.Frozen, orderID)
	}
	return nil
}

// unfreezeCashForFill releases the proportional share of a frozen OPEN
// order's reserved cash as it fills, deleting the entry once the order is
// fully done.
func (a *Account) unfreezeCashForFill(orderID string, ord *order.Order, filledVol decimal.Decimal) {
	entry, ok := a.Frozen[orderID]
	if !ok {
		return
	}
	if ord.VolumeOriginal.IsZero() {
		return
	}
	ratio := filledVol.Div(ord.VolumeOriginal)
	release := entry.Amount.Mul(ratio)
	entry.Amount = entry.Amount.Sub(release)
	if entry.Amount.LessThanOrEqual(decimal.Zero) || !ord.IsActive() {
		delete(a.Frozen, orderID)
		return
	}
	a.Frozen[orderID] = entry
}

// towardsFrom reconstructs a signed towards code from (direction, offset)
// for fee-schedule lookups that key on the original signed towards encoding.
func towardsFrom(direction qtypes.Side, offset qtypes.Offset) qtypes.Towards {
	sign := qtypes.Towards(1)
	if direction == qtypes.Sell {
		sign = -1
	}
	switch offset {
	case qtypes.Open:
		return sign * 2
	case qtypes.Close:
		return sign * 3
	case qtypes.CloseToday:
		return sign * 4
	default:
		return sign
	}
}

// OnPriceChange forwards the new mark price to the position and
// recomputes derived margin.
func (a *Account) OnPriceChange(symbol string, price decimal.Decimal, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if pos, ok := a.Positions[symbol]; ok {
		pos.OnPriceChange(price, at)
		a.stats.PriceUpdates++
	}
	a.Time = at
}

// OnBar is shorthand over a bar's close price.
func (a *Account) OnBar(symbol string, close decimal.Decimal, at time.Time) {
	a.OnPriceChange(symbol, close, at)
}

// TransferEvent adjusts the historical bucket directly for a corporate
// action and writes a zero-price, zero-commission trade record.
func (a *Account) TransferEvent(symbol string, amount decimal.Decimal, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	pos := a.positionOrCreate(symbol)
	pos.VolumeLongHis = pos.VolumeLongHis.Add(amount)

	a.EventID++
	tradeID := fmt.Sprintf("transfer-%d", a.EventID)
	a.DailyTrades[tradeID] = &Trade{
		TradeID:      tradeID,
		AccountID:    a.AccountCookie,
		InstrumentID: symbol,
		Price:        decimal.Zero,
		Volume:       amount,
		TradeTime:    at,
		Commission:   decimal.Zero,
		Tax:          decimal.Zero,
	}
}

// DividendEvent credits cash proportional to net position held.
func (a *Account) DividendEvent(symbol string, ratio decimal.Decimal, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	pos, ok := a.Positions[symbol]
	if !ok {
		return
	}
	a.Cash = a.Cash.Add(pos.VolumeNet().Mul(ratio))
	a.Time = at
}

// Settle rolls every position's today buckets into historical and clears
// the daily order/trade logs.
func (a *Account) Settle() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, pos := range a.Positions {
		pos.RollTodayToHistorical()
	}
	a.DailyOrders = make(map[string]*order.Order)
	a.DailyTrades = make(map[string]*Trade)
}
