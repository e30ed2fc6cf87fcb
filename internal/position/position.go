// Package position implements the Position Ledger Entry (component C): the
// per-symbol, per-account record of long/short volume, split into today and
// historical buckets, with cost bases, frozen counters, and derived P&L.
package position

import (
	"time"

	"github.com/shopspring/decimal"

	"qaultra-core/internal/preset"
	"qaultra-core/internal/qerrors"
	"qaultra-core/pkg/qtypes"
)

// Position is the full ledger entry for one symbol. Mutated only through
// ApplyTrade, Freeze/Unfreeze, and RollTodayToHistorical — callers hold
// the owning Account's lock while calling any of these.
type Position struct {
	Symbol  string
	Preset  preset.Preset

	VolumeLongToday  decimal.Decimal
	VolumeLongHis    decimal.Decimal
	VolumeShortToday decimal.Decimal
	VolumeShortHis   decimal.Decimal

	FrozenLongToday  decimal.Decimal
	FrozenLongHis    decimal.Decimal
	FrozenShortToday decimal.Decimal
	FrozenShortHis   decimal.Decimal

	OpenCostLong      decimal.Decimal
	PositionCostLong  decimal.Decimal
	OpenPriceLong     decimal.Decimal
	OpenCostShort     decimal.Decimal
	PositionCostShort decimal.Decimal
	OpenPriceShort    decimal.Decimal

	MarginLong  decimal.Decimal
	MarginShort decimal.Decimal

	LatestPrice    decimal.Decimal
	LatestDatetime time.Time
}

// New creates a fresh, flat position for symbol under the given preset
// (created on first use).
func New(symbol string, p preset.Preset) *Position {
	return &Position{
		Symbol:           symbol,
		Preset:           p,
		VolumeLongToday:  decimal.Zero,
		VolumeLongHis:    decimal.Zero,
		VolumeShortToday: decimal.Zero,
		VolumeShortHis:   decimal.Zero,
		FrozenLongToday:  decimal.Zero,
		FrozenLongHis:    decimal.Zero,
		FrozenShortToday: decimal.Zero,
		FrozenShortHis:   decimal.Zero,
		OpenCostLong:     decimal.Zero,
		PositionCostLong: decimal.Zero,
		OpenPriceLong:    decimal.Zero,
		OpenCostShort:    decimal.Zero,
		PositionCostShort: decimal.Zero,
		OpenPriceShort:    decimal.Zero,
		MarginLong:        decimal.Zero,
		MarginShort:       decimal.Zero,
		LatestPrice:       decimal.Zero,
	}
}

func (p *Position) VolumeLong() decimal.Decimal {
	return p.VolumeLongToday.Add(p.VolumeLongHis)
}

func (p *Position) VolumeShort() decimal.Decimal {
	return p.VolumeShortToday.Add(p.VolumeShortHis)
}

func (p *Position) VolumeNet() decimal.Decimal {
	return p.VolumeLong().Sub(p.VolumeShort())
}

func (p *Position) AvailableLong() decimal.Decimal {
	return p.VolumeLong().Sub(p.FrozenLongToday).Sub(p.FrozenLongHis)
}

func (p *Position) AvailableLongToday() decimal.Decimal {
	return p.VolumeLongToday.Sub(p.FrozenLongToday)
}

func (p *Position) AvailableShort() decimal.Decimal {
	return p.VolumeShort().Sub(p.FrozenShortToday).Sub(p.FrozenShortHis)
}

func (p *Position) AvailableShortToday() decimal.Decimal {
	return p.VolumeShortToday.Sub(p.FrozenShortToday)
}

// isFutures reports whether margin accounting applies (non-stock).
func (p *Position) isFutures() bool {
	return p.Preset.Exchange != qtypes.STOCK
}

// MarketValue is the preset market-value formula applied to net volume
//.
func (p *Position) MarketValue() decimal.Decimal {
	net := p.VolumeNet()
	if net.IsZero() {
		return decimal.Zero
	}
	return p.Preset.MarketValue(p.LatestPrice, net.Abs())
}

func (p *Position) FloatProfitLong() decimal.Decimal {
	vl := p.VolumeLong()
	if vl.IsZero() {
		return decimal.Zero
	}
	return p.LatestPrice.Sub(p.OpenPriceLong).Mul(vl).Mul(decimal.NewFromInt(p.Preset.UnitTable))
}

func (p *Position) FloatProfitShort() decimal.Decimal {
	vs := p.VolumeShort()
	if vs.IsZero() {
		return decimal.Zero
	}
	return p.OpenPriceShort.Sub(p.LatestPrice).Mul(vs).Mul(decimal.NewFromInt(p.Preset.UnitTable))
}

func (p *Position) FloatProfit() decimal.Decimal {
	return p.FloatProfitLong().Add(p.FloatProfitShort())
}

func (p *Position) positionPriceLong() decimal.Decimal {
	vl := p.VolumeLong()
	if vl.IsZero() {
		return decimal.Zero
	}
	return p.PositionCostLong.Div(vl.Mul(decimal.NewFromInt(p.Preset.UnitTable)))
}

func (p *Position) positionPriceShort() decimal.Decimal {
	vs := p.VolumeShort()
	if vs.IsZero() {
		return decimal.Zero
	}
	return p.PositionCostShort.Div(vs.Mul(decimal.NewFromInt(p.Preset.UnitTable)))
}

func (p *Position) PositionProfitLong() decimal.Decimal {
	vl := p.VolumeLong()
	if vl.IsZero() {
		return decimal.Zero
	}
	return p.LatestPrice.Sub(p.positionPriceLong()).Mul(vl).Mul(decimal.NewFromInt(p.Preset.UnitTable))
}

func (p *Position) PositionProfitShort() decimal.Decimal {
	vs := p.VolumeShort()
	if vs.IsZero() {
		return decimal.Zero
	}
	return p.positionPriceShort().Sub(p.LatestPrice).Mul(vs).Mul(decimal.NewFromInt(p.Preset.UnitTable))
}

func (p *Position) PositionProfit() decimal.Decimal {
	return p.PositionProfitLong().Add(p.PositionProfitShort())
}

func (p *Position) AvgPriceLong() decimal.Decimal {
	vl := p.VolumeLong()
	if vl.IsZero() {
		return decimal.Zero
	}
	return p.PositionCostLong.Div(vl.Mul(decimal.NewFromInt(p.Preset.UnitTable)))
}

func (p *Position) AvgPriceShort() decimal.Decimal {
	vs := p.VolumeShort()
	if vs.IsZero() {
		return decimal.Zero
	}
	return p.PositionCostShort.Div(vs.Mul(decimal.NewFromInt(p.Preset.UnitTable)))
}

// recomputeMargin applies the margin formula for futures-style instruments
// only.
func (p *Position) recomputeMargin() {
	if !p.isFutures() {
		p.MarginLong = decimal.Zero
		p.MarginShort = decimal.Zero
		return
	}
	unit := decimal.NewFromInt(p.Preset.UnitTable)
	p.MarginLong = p.VolumeLong().Mul(unit).Mul(p.LatestPrice).Mul(p.Preset.BuyFrozenCoeff)
	p.MarginShort = p.VolumeShort().Mul(unit).Mul(p.LatestPrice).Mul(p.Preset.SellFrozenCoeff)
}

// OnPriceChange updates the mark price and re-derives margin.
func (p *Position) OnPriceChange(price decimal.Decimal, at time.Time) {
	p.LatestPrice = price
	p.LatestDatetime = at
	p.recomputeMargin()
}

// ApplyTrade is the central mutator. direction×offset select
// one of six effects; volume consumption is always history-first.
func (p *Position) ApplyTrade(direction qtypes.Side, offset qtypes.Offset, volume, price decimal.Decimal, at time.Time) error {
	unit := decimal.NewFromInt(p.Preset.UnitTable)

	switch {
	case direction == qtypes.Buy && offset == qtypes.Open:
		p.VolumeLongToday = p.VolumeLongToday.Add(volume)
		delta := volume.Mul(price).Mul(unit)
		p.OpenCostLong = p.OpenCostLong.Add(delta)
		p.PositionCostLong = p.PositionCostLong.Add(delta)
		vl := p.VolumeLong()
		if vl.GreaterThan(decimal.Zero) {
			p.OpenPriceLong = p.OpenCostLong.Div(vl.Mul(unit))
		}

	case direction == qtypes.Sell && offset == qtypes.Open:
		p.VolumeShortToday = p.VolumeShortToday.Add(volume)
		delta := volume.Mul(price).Mul(unit)
		p.OpenCostShort = p.OpenCostShort.Add(delta)
		p.PositionCostShort = p.PositionCostShort.Add(delta)
		vs := p.VolumeShort()
		if vs.GreaterThan(decimal.Zero) {
			p.OpenPriceShort = p.OpenCostShort.Div(vs.Mul(unit))
		}

	case direction == qtypes.Buy && offset == qtypes.Close:
		if err := p.reduceShort(volume, true); err != nil {
			return err
		}

	case direction == qtypes.Buy && offset == qtypes.CloseToday:
		if volume.GreaterThan(p.VolumeShortToday) {
			return &qerrors.InsufficientPositionError{Symbol: p.Symbol, Requested: volume, Available: p.VolumeShortToday}
		}
		p.reduceShortBucket(volume, decimal.Zero)

	case direction == qtypes.Sell && offset == qtypes.Close:
		if err := p.reduceLong(volume, true); err != nil {
			return err
		}

	case direction == qtypes.Sell && offset == qtypes.CloseToday:
		if volume.GreaterThan(p.VolumeLongToday) {
			return &qerrors.InsufficientPositionError{Symbol: p.Symbol, Requested: volume, Available: p.VolumeLongToday}
		}
		p.reduceLongBucket(volume, decimal.Zero)

	default:
		return &qerrors.ValidationError{Field: "towards", Reason: "unsupported direction/offset combination"}
	}

	p.LatestPrice = price
	p.LatestDatetime = at
	p.recomputeMargin()
	return nil
}

// reduceShort consumes volume from the short side, historical bucket
// first, then today's (history-first accounting).
// historyFirst is always true for CLOSE; kept as a parameter name for
// clarity at call sites.
func (p *Position) reduceShort(volume decimal.Decimal, historyFirst bool) error {
	_ = historyFirst
	if volume.GreaterThan(p.VolumeShort()) {
		return &qerrors.InsufficientPositionError{Symbol: p.Symbol, Requested: volume, Available: p.VolumeShort()}
	}
	fromHis := decimal.Min(volume, p.VolumeShortHis)
	fromToday := volume.Sub(fromHis)
	p.reduceShortBucket(fromToday, fromHis)
	return nil
}

func (p *Position) reduceLong(volume decimal.Decimal, historyFirst bool) error {
	_ = historyFirst
	if volume.GreaterThan(p.VolumeLong()) {
		return &qerrors.InsufficientPositionError{Symbol: p.Symbol, Requested: volume, Available: p.VolumeLong()}
	}
	fromHis := decimal.Min(volume, p.VolumeLongHis)
	fromToday := volume.Sub(fromHis)
	p.reduceLongBucket(fromToday, fromHis)
	return nil
}

// reduceShortBucket reduces volume_short_today by fromToday and
// volume_short_his by fromHis, scaling position_cost_short
// proportionally; zeroes all short cost fields once the side is flat.
func (p *Position) reduceShortBucket(fromToday, fromHis decimal.Decimal) {
	total := fromToday.Add(fromHis)
	if total.IsZero() {
		return
	}
	before := p.VolumeShort()
	if before.GreaterThan(decimal.Zero) {
		remainingRatio := before.Sub(total).Div(before)
		p.PositionCostShort = p.PositionCostShort.Mul(remainingRatio)
	}
	p.VolumeShortToday = p.VolumeShortToday.Sub(fromToday)
	p.VolumeShortHis = p.VolumeShortHis.Sub(fromHis)
	if p.VolumeShort().IsZero() {
		p.OpenCostShort = decimal.Zero
		p.PositionCostShort = decimal.Zero
		p.OpenPriceShort = decimal.Zero
	}
}

func (p *Position) reduceLongBucket(fromToday, fromHis decimal.Decimal) {
	total := fromToday.Add(fromHis)
	if total.IsZero() {
		return
	}
	before := p.VolumeLong()
	if before.GreaterThan(decimal.Zero) {
		remainingRatio := before.Sub(total).Div(before)
		p.PositionCostLong = p.PositionCostLong.Mul(remainingRatio)
	}
	p.VolumeLongToday = p.VolumeLongToday.Sub(fromToday)
	p.VolumeLongHis = p.VolumeLongHis.Sub(fromHis)
	if p.VolumeLong().IsZero() {
		p.OpenCostLong = decimal.Zero
		p.PositionCostLong = decimal.Zero
		p.OpenPriceLong = decimal.Zero
	}
}

// Freeze reserves volume against future CLOSE/CLOSETODAY execution,
// history-first, mirroring ApplyTrade's consumption order so a freeze
// always corresponds to the bucket a subsequent close will draw down.
func (p *Position) Freeze(direction qtypes.Side, offset qtypes.Offset, volume decimal.Decimal) error {
	switch {
	case direction == qtypes.Buy && offset == qtypes.Close:
		if volume.GreaterThan(p.AvailableShort()) {
			return &qerrors.InsufficientPositionError{Symbol: p.Symbol, Requested: volume, Available: p.AvailableShort()}
		}
		availHis := p.VolumeShortHis.Sub(p.FrozenShortHis)
		fromHis := decimal.Min(volume, availHis)
		p.FrozenShortHis = p.FrozenShortHis.Add(fromHis)
		p.FrozenShortToday = p.FrozenShortToday.Add(volume.Sub(fromHis))

	case direction == qtypes.Buy && offset == qtypes.CloseToday:
		if volume.GreaterThan(p.AvailableShortToday()) {
			return &qerrors.InsufficientPositionError{Symbol: p.Symbol, Requested: volume, Available: p.AvailableShortToday()}
		}
		p.FrozenShortToday = p.FrozenShortToday.Add(volume)

	case direction == qtypes.Sell && offset == qtypes.Close:
		if volume.GreaterThan(p.AvailableLong()) {
			return &qerrors.InsufficientPositionError{Symbol: p.Symbol, Requested: volume, Available: p.AvailableLong()}
		}
		availHis := p.VolumeLongHis.Sub(p.FrozenLongHis)
		fromHis := decimal.Min(volume, availHis)
		p.FrozenLongHis = p.FrozenLongHis.Add(fromHis)
		p.FrozenLongToday = p.FrozenLongToday.Add(volume.Sub(fromHis))

	case direction == qtypes.Sell && offset == qtypes.CloseToday:
		if volume.GreaterThan(p.AvailableLongToday()) {
			return &qerrors.InsufficientPositionError{Symbol: p.Symbol, Requested: volume, Available: p.AvailableLongToday()}
		}
		p.FrozenLongToday = p.FrozenLongToday.Add(volume)

	default:
		return nil
	}
	return nil
}

// Unfreeze releases a previously frozen volume, in the same bucket
// proportions Freeze reserved it in (called once a fill settles, or a
// close order is cancelled).
func (p *Position) Unfreeze(direction qtypes.Side, offset qtypes.Offset, volume decimal.Decimal) {
	switch {
	case direction == qtypes.Buy && offset == qtypes.CloseToday:
		p.FrozenShortToday = decimal.Max(decimal.Zero, p.FrozenShortToday.Sub(volume))

	case direction == qtypes.Sell && offset == qtypes.CloseToday:
		p.FrozenLongToday = decimal.Max(decimal.Zero, p.FrozenLongToday.Sub(volume))

	case direction == qtypes.Buy && offset == qtypes.Close:
		fromHis := decimal.Min(volume, p.FrozenShortHis)
		p.FrozenShortHis = p.FrozenShortHis.Sub(fromHis)
		remainder := volume.Sub(fromHis)
		p.FrozenShortToday = decimal.Max(decimal.Zero, p.FrozenShortToday.Sub(remainder))

	case direction == qtypes.Sell && offset == qtypes.Close:
		fromHis := decimal.Min(volume, p.FrozenLongHis)
		p.FrozenLongHis = p.FrozenLongHis.Sub(fromHis)
		remainder := volume.Sub(fromHis)
		p.FrozenLongToday = decimal.Max(decimal.Zero, p.FrozenLongToday.Sub(remainder))
	}
}

// RollTodayToHistorical folds today's buckets into historical ones and
// clears today and today-frozen counters (daily settlement).
func (p *Position) RollTodayToHistorical() {
	p.VolumeLongHis = p.VolumeLongHis.Add(p.VolumeLongToday)
	p.VolumeLongToday = decimal.Zero
	p.VolumeShortHis = p.VolumeShortHis.Add(p.VolumeShortToday)
	p.VolumeShortToday = decimal.Zero
	p.FrozenLongToday = decimal.Zero
	p.FrozenShortToday = decimal.Zero
}

// IsFlat reports whether the position carries no volume on either side.
func (p *Position) IsFlat() bool {
	return p.VolumeLong().IsZero() && p.VolumeShort().IsZero()
}
