package account

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"qaultra-core/internal/order"
	"qaultra-core/internal/position"
	"qaultra-core/internal/preset"
	"qaultra-core/pkg/qtypes"
)

// Snapshot is the portable account record ("QIFI"). Field
// names are normative across implementations, not just this one.
type Snapshot struct {
	AccountCookie   string `json:"account_cookie"`
	PortfolioCookie string `json:"portfolio_cookie"`
	InvestorName    string `json:"investor_name"`
	BrokerName      string `json:"broker_name"`
	Money           string `json:"money"`
	UpdateTime      string `json:"updatetime"`
	TradingDay      string `json:"trading_day"`

	Accounts  SnapshotTotals              `json:"accounts"`
	Positions map[string]PositionSnapshot `json:"positions"`
	Orders    map[string]OrderSnapshot    `json:"orders"`
	Trades    map[string]TradeSnapshot    `json:"trades"`
	Frozen    map[string]FrozenSnapshot   `json:"frozen"`
}

// SnapshotTotals is the derived-totals block of a Snapshot.
type SnapshotTotals struct {
	Balance          string `json:"balance"`
	Margin           string `json:"margin"`
	Available        string `json:"available"`
	RiskRatio        string `json:"risk_ratio"`
	PositionProfit   string `json:"position_profit"`
	FloatProfit      string `json:"float_profit"`
	CloseProfit      string `json:"close_profit"`
	Commission       string `json:"commission"`
	PreBalance       string `json:"pre_balance"`
	StaticBalance    string `json:"static_balance"`
	FrozenMargin     string `json:"frozen_margin"`
	FrozenCommission string `json:"frozen_commission"`
	FrozenPremium    string `json:"frozen_premium"`
	Currency         string `json:"currency"`
}

// PositionSnapshot carries a position's fields under the names positions
// use in the wire record.
type PositionSnapshot struct {
	InstrumentID     string `json:"instrument_id"`
	VolumeLongToday  string `json:"volume_long_today"`
	VolumeLongHis    string `json:"volume_long_his"`
	VolumeShortToday string `json:"volume_short_today"`
	VolumeShortHis   string `json:"volume_short_his"`
	VolumeLongFrozenToday  string `json:"volume_long_frozen_today"`
	VolumeLongFrozenHis    string `json:"volume_long_frozen_his"`
	VolumeShortFrozenToday string `json:"volume_short_frozen_today"`
	VolumeShortFrozenHis   string `json:"volume_short_frozen_his"`
	OpenCostLong      string `json:"open_cost_long"`
	PositionCostLong  string `json:"position_cost_long"`
	OpenPriceLong     string `json:"open_price_long"`
	OpenCostShort     string `json:"open_cost_short"`
	PositionCostShort string `json:"position_cost_short"`
	OpenPriceShort    string `json:"open_price_short"`
	MarginLong     string `json:"margin_long"`
	MarginShort    string `json:"margin_short"`
	LatestPrice    string `json:"latest_price"`
	LatestDatetime string `json:"latest_datetime"`
}

// OrderSnapshot carries an order's fields under the wire record's names.
type OrderSnapshot struct {
	OrderID          string `json:"order_id"`
	AccountCookie    string `json:"account_cookie"`
	InstrumentID     string `json:"instrument_id"`
	ExchangeID       string `json:"exchange_id"`
	Direction        string `json:"direction"`
	Offset           string `json:"offset"`
	Towards          int    `json:"towards"`
	PriceType        string `json:"price_type"`
	VolumeOriginal   string `json:"volume_original"`
	PriceOrder       string `json:"price_order"`
	VolumeLeft       string `json:"volume_left"`
	VolumeFilled     string `json:"volume_filled"`
	AverageFillPrice string `json:"average_fill_price"`
	Commission       string `json:"commission"`
	Tax              string `json:"tax"`
	Status           string `json:"status"`
	InsertTime       string `json:"insert_time"`
	LastUpdateTime   string `json:"last_update_time"`
	CancelTime       string `json:"cancel_time,omitempty"`
	ErrorMessage     string `json:"error_message,omitempty"`
}

// TradeSnapshot carries one executed fill.
type TradeSnapshot struct {
	TradeID      string `json:"trade_id"`
	OrderID      string `json:"order_id"`
	AccountID    string `json:"account_id"`
	ExchangeID   string `json:"exchange_id"`
	InstrumentID string `json:"instrument_id"`
	Price        string `json:"price"`
	Volume       string `json:"volume"`
	TradeTime    string `json:"trade_time"`
	Direction    string `json:"direction"`
	Offset       string `json:"offset"`
	Commission   string `json:"commission"`
	Tax          string `json:"tax"`
}

// FrozenSnapshot is one reserved-cash entry keyed by order_id.
type FrozenSnapshot struct {
	Money    string `json:"money"`
	Code     string `json:"code"`
	Datetime string `json:"datetime"`
}

// ToQIFI materializes a portable snapshot of the Account's full state. Only
// non-zero positions are included,.
func (a *Account) ToQIFI() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	balance := a.balanceLocked()
	margin := a.marginLocked()
	riskRatio := decimal.Zero
	if balance.GreaterThan(decimal.Zero) {
		riskRatio = margin.Div(balance)
	}

	var positionProfit, floatProfit, commission, frozenMargin, frozenCommission decimal.Decimal
	positions := make(map[string]PositionSnapshot, len(a.Positions))
	for symbol, pos := range a.Positions {
		if pos.IsFlat() {
			continue
		}
		positionProfit = positionProfit.Add(pos.PositionProfit())
		floatProfit = floatProfit.Add(pos.FloatProfit())
		frozenMargin = frozenMargin.Add(pos.MarginLong).Add(pos.MarginShort)
		positions[symbol] = positionSnapshotOf(symbol, pos)
	}
	for _, ord := range a.DailyOrders {
		commission = commission.Add(ord.Commission)
	}

	orders := make(map[string]OrderSnapshot, len(a.DailyOrders))
	for id, ord := range a.DailyOrders {
		orders[id] = orderSnapshotOf(ord)
	}

	trades := make(map[string]TradeSnapshot, len(a.DailyTrades))
	for id, tr := range a.DailyTrades {
		trades[id] = tradeSnapshotOf(tr)
	}

	frozen := make(map[string]FrozenSnapshot, len(a.Frozen))
	for id, f := range a.Frozen {
		frozen[id] = FrozenSnapshot{
			Money:    f.Amount.String(),
			Code:     f.Symbol,
			Datetime: f.Datetime.Format(time.RFC3339Nano),
		}
	}

	return Snapshot{
		AccountCookie:   a.AccountCookie,
		PortfolioCookie: a.PortfolioCookie,
		InvestorName:    a.UserCookie,
		BrokerName:      "qaultra-core",
		Money:           a.Cash.String(),
		UpdateTime:      a.Time.Format(time.RFC3339Nano),
		TradingDay:      tradingDayOf(a.Time),
		Accounts: SnapshotTotals{
			Balance:          balance.String(),
			Margin:           margin.String(),
			Available:        a.Cash.Sub(a.frozenSum()).String(),
			RiskRatio:        riskRatio.String(),
			PositionProfit:   positionProfit.String(),
			FloatProfit:      floatProfit.String(),
			CloseProfit:      a.CloseProfit.String(),
			Commission:       commission.String(),
			PreBalance:       a.InitialCash.String(),
			StaticBalance:    a.InitialCash.String(),
			FrozenMargin:     frozenMargin.String(),
			FrozenCommission: frozenCommission.String(),
			FrozenPremium:    decimal.Zero.String(),
			Currency:         "CNY",
		},
		Positions: positions,
		Orders:    orders,
		Trades:    trades,
		Frozen:    frozen,
	}
}

// FromQIFISnapshot reconstructs an Account from a portable Snapshot,
// restoring identity, cash, positions, orders, trades, and frozen entries.
// Round-trip with ToQIFI is exact on every field in Snapshot.
func FromQIFISnapshot(snap Snapshot, presets *preset.Table) (*Account, error) {
	a := New(snap.AccountCookie, snap.PortfolioCookie, snap.InvestorName, qtypes.Real, decimal.Zero, presets, nil)

	initial, err := decimal.NewFromString(snap.Accounts.PreBalance)
	if err != nil {
		return nil, err
	}
	cash, err := decimal.NewFromString(snap.Money)
	if err != nil {
		return nil, err
	}
	closeProfit, err := decimal.NewFromString(snap.Accounts.CloseProfit)
	if err != nil {
		return nil, err
	}
	a.InitialCash = initial
	a.Cash = cash
	a.CloseProfit = closeProfit

	if snap.UpdateTime != "" {
		t, err := time.Parse(time.RFC3339Nano, snap.UpdateTime)
		if err != nil {
			return nil, err
		}
		a.Time = t
	}

	for symbol, ps := range snap.Positions {
		pos, err := positionFromSnapshot(symbol, ps, presets.Get(symbol))
		if err != nil {
			return nil, err
		}
		a.Positions[symbol] = pos
	}

	for id, os := range snap.Orders {
		ord, err := orderFromSnapshot(os)
		if err != nil {
			return nil, err
		}
		a.DailyOrders[id] = ord
	}

	for id, ts := range snap.Trades {
		tr, err := tradeFromSnapshot(ts)
		if err != nil {
			return nil, err
		}
		a.DailyTrades[id] = tr
	}

	for id, fs := range snap.Frozen {
		amount, err := decimal.NewFromString(fs.Money)
		if err != nil {
			return nil, err
		}
		datetime, err := time.Parse(time.RFC3339Nano, fs.Datetime)
		if err != nil {
			return nil, err
		}
		a.Frozen[id] = FrozenEntry{OrderID: id, Symbol: fs.Code, Amount: amount, Datetime: datetime}
	}

	return a, nil
}

func tradingDayOf(t time.Time) string {
	return strings.ReplaceAll(t.Format("2006-01-02"), "-", "")
}

func positionSnapshotOf(symbol string, pos *position.Position) PositionSnapshot {
	return PositionSnapshot{
		InstrumentID:           symbol,
		VolumeLongToday:        pos.VolumeLongToday.String(),
		VolumeLongHis:          pos.VolumeLongHis.String(),
		VolumeShortToday:       pos.VolumeShortToday.String(),
		VolumeShortHis:         pos.VolumeShortHis.String(),
		VolumeLongFrozenToday:  pos.FrozenLongToday.String(),
		VolumeLongFrozenHis:    pos.FrozenLongHis.String(),
		VolumeShortFrozenToday: pos.FrozenShortToday.String(),
		VolumeShortFrozenHis:   pos.FrozenShortHis.String(),
		OpenCostLong:           pos.OpenCostLong.String(),
		PositionCostLong:       pos.PositionCostLong.String(),
		OpenPriceLong:          pos.OpenPriceLong.String(),
		OpenCostShort:          pos.OpenCostShort.String(),
		PositionCostShort:      pos.PositionCostShort.String(),
		OpenPriceShort:         pos.OpenPriceShort.String(),
		MarginLong:             pos.MarginLong.String(),
		MarginShort:            pos.MarginShort.String(),
		LatestPrice:            pos.LatestPrice.String(),
		LatestDatetime:         pos.LatestDatetime.Format(time.RFC3339Nano),
	}
}

func positionFromSnapshot(symbol string, ps PositionSnapshot, p preset.Preset) (*position.Position, error) {
	pos := position.New(symbol, p)
	fields := []struct {
		dst *decimal.Decimal
		src string
	}{
		{&pos.VolumeLongToday, ps.VolumeLongToday},
		{&pos.VolumeLongHis, ps.VolumeLongHis},
		{&pos.VolumeShortToday, ps.VolumeShortToday},
		{&pos.VolumeShortHis, ps.VolumeShortHis},
		{&pos.FrozenLongToday, ps.VolumeLongFrozenToday},
		{&pos.FrozenLongHis, ps.VolumeLongFrozenHis},
		{&pos.FrozenShortToday, ps.VolumeShortFrozenToday},
		{&pos.FrozenShortHis, ps.VolumeShortFrozenHis},
		{&pos.OpenCostLong, ps.OpenCostLong},
		{&pos.PositionCostLong, ps.PositionCostLong},
		{&pos.OpenPriceLong, ps.OpenPriceLong},
		{&pos.OpenCostShort, ps.OpenCostShort},
		{&pos.PositionCostShort, ps.PositionCostShort},
		{&pos.OpenPriceShort, ps.OpenPriceShort},
		{&pos.MarginLong, ps.MarginLong},
		{&pos.MarginShort, ps.MarginShort},
		{&pos.LatestPrice, ps.LatestPrice},
	}
	for _, f := range fields {
		v, err := decimal.NewFromString(f.src)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}
	if ps.LatestDatetime != "" {
		t, err := time.Parse(time.RFC3339Nano, ps.LatestDatetime)
		if err != nil {
			return nil, err
		}
		pos.LatestDatetime = t
	}
	return pos, nil
}

func orderSnapshotOf(ord *order.Order) OrderSnapshot {
	var cancelTime string
	if !ord.CancelTime.IsZero() {
		cancelTime = ord.CancelTime.Format(time.RFC3339Nano)
	}
	return OrderSnapshot{
		OrderID:          ord.OrderID,
		AccountCookie:    ord.AccountCookie,
		InstrumentID:     ord.InstrumentID,
		ExchangeID:       ord.ExchangeID,
		Direction:        ord.Direction.String(),
		Offset:           ord.Offset.String(),
		Towards:          int(ord.Towards),
		PriceType:        priceTypeString(ord.PriceType),
		VolumeOriginal:   ord.VolumeOriginal.String(),
		PriceOrder:       ord.PriceOrder.String(),
		VolumeLeft:       ord.VolumeLeft.String(),
		VolumeFilled:     ord.VolumeFilled.String(),
		AverageFillPrice: ord.AverageFillPrice.String(),
		Commission:       ord.Commission.String(),
		Tax:              ord.Tax.String(),
		Status:           ord.Status.String(),
		InsertTime:       ord.InsertTime.Format(time.RFC3339Nano),
		LastUpdateTime:   ord.LastUpdateTime.Format(time.RFC3339Nano),
		CancelTime:       cancelTime,
		ErrorMessage:     ord.ErrorMessage,
	}
}

func orderFromSnapshot(os OrderSnapshot) (*order.Order, error) {
	vol, err := decimal.NewFromString(os.VolumeOriginal)
	if err != nil {
		return nil, err
	}
	price, err := decimal.NewFromString(os.PriceOrder)
	if err != nil {
		return nil, err
	}
	insertTime, err := time.Parse(time.RFC3339Nano, os.InsertTime)
	if err != nil {
		return nil, err
	}

	ord := order.New(os.OrderID, os.AccountCookie, os.InstrumentID, os.ExchangeID,
		qtypes.Towards(os.Towards), priceTypeFromString(os.PriceType), vol, price, insertTime)

	volLeft, err := decimal.NewFromString(os.VolumeLeft)
	if err != nil {
		return nil, err
	}
	volFilled, err := decimal.NewFromString(os.VolumeFilled)
	if err != nil {
		return nil, err
	}
	avgFill, err := decimal.NewFromString(os.AverageFillPrice)
	if err != nil {
		return nil, err
	}
	commission, err := decimal.NewFromString(os.Commission)
	if err != nil {
		return nil, err
	}
	tax, err := decimal.NewFromString(os.Tax)
	if err != nil {
		return nil, err
	}

	ord.VolumeLeft = volLeft
	ord.VolumeFilled = volFilled
	ord.AverageFillPrice = avgFill
	ord.Commission = commission
	ord.Tax = tax
	ord.Status = statusFromString(os.Status)
	ord.ErrorMessage = os.ErrorMessage
	if lut, err := time.Parse(time.RFC3339Nano, os.LastUpdateTime); err == nil {
		ord.LastUpdateTime = lut
	}
	if os.CancelTime != "" {
		if ct, err := time.Parse(time.RFC3339Nano, os.CancelTime); err == nil {
			ord.CancelTime = ct
		}
	}
	return ord, nil
}

func tradeSnapshotOf(tr *Trade) TradeSnapshot {
	return TradeSnapshot{
		TradeID:      tr.TradeID,
		OrderID:      tr.OrderID,
		AccountID:    tr.AccountID,
		ExchangeID:   tr.ExchangeID,
		InstrumentID: tr.InstrumentID,
		Price:        tr.Price.String(),
		Volume:       tr.Volume.String(),
		TradeTime:    tr.TradeTime.Format(time.RFC3339Nano),
		Direction:    tr.Direction.String(),
		Offset:       tr.Offset.String(),
		Commission:   tr.Commission.String(),
		Tax:          tr.Tax.String(),
	}
}

func tradeFromSnapshot(ts TradeSnapshot) (*Trade, error) {
	price, err := decimal.NewFromString(ts.Price)
	if err != nil {
		return nil, err
	}
	vol, err := decimal.NewFromString(ts.Volume)
	if err != nil {
		return nil, err
	}
	commission, err := decimal.NewFromString(ts.Commission)
	if err != nil {
		return nil, err
	}
	tax, err := decimal.NewFromString(ts.Tax)
	if err != nil {
		return nil, err
	}
	tradeTime, err := time.Parse(time.RFC3339Nano, ts.TradeTime)
	if err != nil {
		return nil, err
	}
	return &Trade{
		TradeID:      ts.TradeID,
		OrderID:      ts.OrderID,
		AccountID:    ts.AccountID,
		ExchangeID:   ts.ExchangeID,
		InstrumentID: ts.InstrumentID,
		Price:        price,
		Volume:       vol,
		TradeTime:    tradeTime,
		Direction:    sideFromString(ts.Direction),
		Offset:       offsetFromString(ts.Offset),
		Commission:   commission,
		Tax:          tax,
	}, nil
}

func priceTypeString(p qtypes.PriceType) string {
	if p == qtypes.Market {
		return "MARKET"
	}
	return "LIMIT"
}

func priceTypeFromString(s string) qtypes.PriceType {
	if s == "MARKET" {
		return qtypes.Market
	}
	return qtypes.Limit
}

func sideFromString(s string) qtypes.Side {
	if s == "SELL" {
		return qtypes.Sell
	}
	return qtypes.Buy
}

func offsetFromString(s string) qtypes.Offset {
	switch s {
	case "CLOSE":
		return qtypes.Close
	case "CLOSETODAY":
		return qtypes.CloseToday
	default:
		return qtypes.Open
	}
}

func statusFromString(s string) qtypes.OrderStatus {
	switch s {
	case "ACCEPTED":
		return qtypes.StatusAccepted
	case "PARTIAL_FILLED":
		return qtypes.StatusPartialFilled
	case "FILLED":
		return qtypes.StatusFilled
	case "CANCELLED":
		return qtypes.StatusCancelled
	case "REJECTED":
		return qtypes.StatusRejected
	default:
		return qtypes.StatusNew
	}
}
