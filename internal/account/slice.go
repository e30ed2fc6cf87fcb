package account

import (
	"github.com/shopspring/decimal"

	"qaultra-core/internal/position"
)

// AccountSlice is a point-in-time snapshot of an account for historical
// tracking: the full QIFI export plus the datetime it was taken at.
type AccountSlice struct {
	Datetime  string
	Cash      decimal.Decimal
	Accounts  Snapshot
	Positions map[string]*position.Position
}

// Slice captures the account's current state tagged with datetime. The
// returned Positions map shares the account's live *position.Position
// values; callers must not mutate them.
func (a *Account) Slice(datetime string) AccountSlice {
	snap := a.ToQIFI()

	a.mu.Lock()
	defer a.mu.Unlock()

	positions := make(map[string]*position.Position, len(a.Positions))
	for symbol, pos := range a.Positions {
		positions[symbol] = pos
	}

	return AccountSlice{
		Datetime:  datetime,
		Cash:      a.Cash,
		Accounts:  snap,
		Positions: positions,
	}
}

// MOMSlice is a market-on-market snapshot of derived account totals,
// lighter than AccountSlice when only the aggregate numbers matter.
type MOMSlice struct {
	Datetime       string
	UserID         string
	PreBalance     decimal.Decimal
	CloseProfit    decimal.Decimal
	Commission     decimal.Decimal
	PositionProfit decimal.Decimal
	FloatProfit    decimal.Decimal
	Balance        decimal.Decimal
	Margin         decimal.Decimal
	Available      decimal.Decimal
	RiskRatio      decimal.Decimal
}

// MOMSlice captures the account's derived totals tagged with datetime.
func (a *Account) MOMSlice(datetime string) MOMSlice {
	balance := a.Balance()
	margin := a.Margin()
	available := a.Available()
	riskRatio := a.RiskRatio()

	a.mu.Lock()
	defer a.mu.Unlock()

	var positionProfit, floatProfit, commission decimal.Decimal
	for _, pos := range a.Positions {
		positionProfit = positionProfit.Add(pos.PositionProfit())
		floatProfit = floatProfit.Add(pos.FloatProfit())
	}
	for _, ord := range a.DailyOrders {
		commission = commission.Add(ord.Commission)
	}

	return MOMSlice{
		Datetime:       datetime,
		UserID:         a.UserCookie,
		PreBalance:     a.InitialCash,
		CloseProfit:    a.CloseProfit,
		Commission:     commission,
		PositionProfit: positionProfit,
		FloatProfit:    floatProfit,
		Balance:        balance,
		Margin:         margin,
		Available:      available,
		RiskRatio:      riskRatio,
	}
}
