// Package order implements the Order value object (component B): immutable
// identity plus mutable execution state for one order.
package order

import (
	"time"

	"github.com/shopspring/decimal"

	"qaultra-core/internal/qerrors"
	"qaultra-core/pkg/qtypes"
)

// Order tracks one order from acceptance through its terminal state.
// Not safe for concurrent use without external synchronization — callers
// hold the owning Account's lock while mutating an Order.
type Order struct {
	OrderID        string
	AccountCookie  string
	InstrumentID   string
	ExchangeID     string
	Direction      qtypes.Side
	Offset         qtypes.Offset
	Towards        qtypes.Towards
	PriceType      qtypes.PriceType

	VolumeOriginal   decimal.Decimal
	PriceOrder       decimal.Decimal
	VolumeLeft       decimal.Decimal
	VolumeFilled     decimal.Decimal
	AverageFillPrice decimal.Decimal
	Commission       decimal.Decimal
	Tax              decimal.Decimal

	Status qtypes.OrderStatus

	InsertTime     time.Time
	LastUpdateTime time.Time
	CancelTime     time.Time
	ErrorMessage   string
}

// New constructs an order in status NEW with volume_left = volume_original.
func New(orderID, accountCookie, instrumentID, exchangeID string, towards qtypes.Towards, priceType qtypes.PriceType, volume, price decimal.Decimal, now time.Time) *Order {
	return &Order{
		OrderID:          orderID,
		AccountCookie:    accountCookie,
		InstrumentID:     instrumentID,
		ExchangeID:       exchangeID,
		Direction:        towards.Side(),
		Offset:           towards.Offset(),
		Towards:          towards,
		PriceType:        priceType,
		VolumeOriginal:   volume,
		PriceOrder:       price,
		VolumeLeft:       volume,
		VolumeFilled:     decimal.Zero,
		AverageFillPrice: decimal.Zero,
		Commission:       decimal.Zero,
		Tax:              decimal.Zero,
		Status:           qtypes.StatusNew,
		InsertTime:       now,
		LastUpdateTime:   now,
	}
}

// transition enforces the monotonic rank invariant:
// status never moves to an earlier rank, and a terminal status is final.
func (o *Order) transition(next qtypes.OrderStatus, now time.Time) bool {
	if o.Status.IsTerminal() {
		return false
	}
	if next.Rank() < o.Status.Rank() {
		return false
	}
	o.Status = next
	o.LastUpdateTime = now
	return true
}

// Accept moves NEW -> ACCEPTED.
func (o *Order) Accept(now time.Time) bool {
	if o.Status != qtypes.StatusNew {
		return false
	}
	return o.transition(qtypes.StatusAccepted, now)
}

// PartialFill records one fill, recomputing average_fill_price as the
// volume-weighted average of all cumulative fills.
func (o *Order) PartialFill(vol, price decimal.Decimal, now time.Time) {
	if o.Status.IsTerminal() {
		return
	}
	totalCost := o.AverageFillPrice.Mul(o.VolumeFilled).Add(price.Mul(vol))
	o.VolumeFilled = o.VolumeFilled.Add(vol)
	o.VolumeLeft = o.VolumeLeft.Sub(vol)
	if o.VolumeFilled.GreaterThan(decimal.Zero) {
		o.AverageFillPrice = totalCost.Div(o.VolumeFilled)
	}
	if o.VolumeLeft.LessThanOrEqual(decimal.Zero) {
		o.VolumeLeft = decimal.Zero
		o.transition(qtypes.StatusFilled, now)
	} else {
		o.transition(qtypes.StatusPartialFilled, now)
	}
}

// CompleteFill forces the terminal FILLED state, used when a caller knows
// the order is fully done without replaying individual fills.
func (o *Order) CompleteFill(now time.Time) {
	o.VolumeFilled = o.VolumeOriginal
	o.VolumeLeft = decimal.Zero
	o.transition(qtypes.StatusFilled, now)
}

// Cancel is valid from NEW, ACCEPTED, or PARTIAL_FILLED; otherwise it is a
// no-op returning false.
func (o *Order) Cancel(now time.Time) bool {
	switch o.Status {
	case qtypes.StatusNew, qtypes.StatusAccepted, qtypes.StatusPartialFilled:
		o.Status = qtypes.StatusCancelled
		o.CancelTime = now
		o.LastUpdateTime = now
		return true
	default:
		return false
	}
}

// Reject transitions to REJECTED with a reason, valid only before any fill.
func (o *Order) Reject(reason string, now time.Time) bool {
	if o.Status.IsTerminal() || o.VolumeFilled.IsPositive() {
		return false
	}
	o.Status = qtypes.StatusRejected
	o.ErrorMessage = reason
	o.LastUpdateTime = now
	return true
}

// RecomputeFees stores the order's cumulative commission and tax. The
// caller derives them from the preset on each fill and passes the totals.
func (o *Order) RecomputeFees(commission, tax decimal.Decimal) {
	o.Commission = commission
	o.Tax = tax
}

// IsActive reports whether the order can still receive fills or be
// cancelled.
func (o *Order) IsActive() bool {
	return !o.Status.IsTerminal()
}

// UnknownOrderErrorFor is a convenience constructor used by callers
// that look an order up by id and fail to find it.
func UnknownOrderErrorFor(orderID string) error {
	return &qerrors.UnknownOrderError{OrderID: orderID}
}
