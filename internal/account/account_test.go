package account

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"qaultra-core/internal/order"
	"qaultra-core/internal/preset"
	"qaultra-core/pkg/qtypes"
)

var baseTime = time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)

func stockTable() *preset.Table {
	t := preset.NewTable()
	t.Add("SH", preset.Preset{
		Name:                "Test Stock",
		Exchange:            qtypes.STOCK,
		UnitTable:           1,
		BuyFrozenCoeff:      decimal.NewFromFloat(1.0),
		SellFrozenCoeff:     decimal.NewFromFloat(1.0),
		CommissionPerAmount: decimal.NewFromFloat(2.5e-4),
	})
	return t
}

func futuresTable() *preset.Table {
	t := preset.NewTable()
	t.Add("IF", preset.Preset{
		Name:                "Test Index Future",
		Exchange:            qtypes.CFFEX,
		UnitTable:           10,
		BuyFrozenCoeff:      decimal.NewFromFloat(0.1),
		SellFrozenCoeff:     decimal.NewFromFloat(0.1),
		CommissionPerVolume: decimal.NewFromFloat(2.0),
	})
	return t
}

func fillOrder(t *testing.T, a *Account, ord *order.Order, price, vol decimal.Decimal, direction qtypes.Side, offset qtypes.Offset, at time.Time) {
	t.Helper()
	tradeID := ord.OrderID + "-t"
	if err := a.ReceiveDeal(tradeID, ord.OrderID, ord.InstrumentID, price, vol, at, direction, offset); err != nil {
		t.Fatalf("ReceiveDeal failed: %v", err)
	}
}

func TestStockBuyThenPartialSell(t *testing.T) {
	t.Parallel()
	a := New("acct-1", "pf-1", "user-1", qtypes.Backtest, decimal.NewFromInt(1000000), stockTable(), nil)

	ord, err := a.Buy("SH000001", decimal.NewFromInt(1000), baseTime, decimal.NewFromFloat(10.0))
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	fillOrder(t, a, ord, decimal.NewFromFloat(10.0), decimal.NewFromInt(1000), qtypes.Buy, qtypes.Open, baseTime)

	wantCashAfterBuy := decimal.NewFromFloat(1000000 - 10000 - 2.5)
	if !a.Cash.Equal(wantCashAfterBuy) {
		t.Fatalf("cash after buy = %s, want %s", a.Cash, wantCashAfterBuy)
	}
	if vl := a.Positions["SH000001"].VolumeLong(); !vl.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("volume_long = %s, want 1000", vl)
	}

	a.OnPriceChange("SH000001", decimal.NewFromFloat(10.5), baseTime.Add(time.Hour))
	wantFloatProfit := decimal.NewFromInt(500)
	if fp := a.Positions["SH000001"].FloatProfit(); !fp.Equal(wantFloatProfit) {
		t.Fatalf("float_profit = %s, want %s", fp, wantFloatProfit)
	}

	sellOrd, err := a.Sell("SH000001", decimal.NewFromInt(400), baseTime.Add(2*time.Hour), decimal.NewFromFloat(10.6))
	if err != nil {
		t.Fatalf("Sell failed: %v", err)
	}
	cashBeforeSell := a.Cash
	fillOrder(t, a, sellOrd, decimal.NewFromFloat(10.6), decimal.NewFromInt(400), qtypes.Sell, qtypes.Close, baseTime.Add(2*time.Hour))

	notional := decimal.NewFromInt(400).Mul(decimal.NewFromFloat(10.6))
	commission := notional.Mul(decimal.NewFromFloat(2.5e-4))
	tax := notional.Mul(decimal.NewFromFloat(0.001))
	wantCredit := notional.Sub(commission).Sub(tax)
	if got := a.Cash.Sub(cashBeforeSell); !got.Equal(wantCredit) {
		t.Fatalf("cash credited on sell = %s, want %s", got, wantCredit)
	}
	if vl := a.Positions["SH000001"].VolumeLong(); !vl.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("volume_long after sell = %s, want 600", vl)
	}
}

func TestFuturesOpenCloseWithMargin(t *testing.T) {
	t.Parallel()
	a := New("acct-2", "pf-1", "user-1", qtypes.Backtest, decimal.NewFromInt(1000000), futuresTable(), nil)
	cashStart := a.Cash

	openOrd, err := a.BuyOpen("IF2401", decimal.NewFromInt(2), baseTime, decimal.NewFromInt(4000))
	if err != nil {
		t.Fatalf("BuyOpen failed: %v", err)
	}
	fillOrder(t, a, openOrd, decimal.NewFromInt(4000), decimal.NewFromInt(2), qtypes.Buy, qtypes.Open, baseTime)

	wantMargin := decimal.NewFromInt(8000)
	pos := a.Positions["IF2401"]
	if !pos.MarginLong.Equal(wantMargin) {
		t.Fatalf("margin_long = %s, want %s", pos.MarginLong, wantMargin)
	}
	wantCashAfterOpen := cashStart.Sub(decimal.NewFromInt(8000)).Sub(decimal.NewFromInt(4))
	if !a.Cash.Equal(wantCashAfterOpen) {
		t.Fatalf("cash after open = %s, want %s", a.Cash, wantCashAfterOpen)
	}

	a.OnPriceChange("IF2401", decimal.NewFromInt(4010), baseTime.Add(time.Minute))
	if pp := pos.PositionProfitLong(); !pp.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("position_profit_long = %s, want 200", pp)
	}

	closeOrd, err := a.SellClose("IF2401", decimal.NewFromInt(2), baseTime.Add(2*time.Minute), decimal.NewFromInt(4010))
	if err != nil {
		t.Fatalf("SellClose failed: %v", err)
	}
	cashBeforeClose := a.Cash
	fillOrder(t, a, closeOrd, decimal.NewFromInt(4010), decimal.NewFromInt(2), qtypes.Sell, qtypes.Close, baseTime.Add(2*time.Minute))

	// The close returns the 8000 margin plus the 200 realized P&L, less the
	// 4 commission; over the whole round trip cash ends up +192.
	wantCloseChange := decimal.NewFromInt(8000 + 200 - 4)
	if got := a.Cash.Sub(cashBeforeClose); !got.Equal(wantCloseChange) {
		t.Fatalf("cash change on close = %s, want %s", got, wantCloseChange)
	}
	if vl := pos.VolumeLong(); !vl.IsZero() {
		t.Fatalf("volume_long after close = %s, want 0", vl)
	}

	wantOverall := cashStart.Add(decimal.NewFromInt(192))
	if !a.Cash.Equal(wantOverall) {
		t.Fatalf("overall cash = %s, want %s", a.Cash, wantOverall)
	}
}

func TestLedgerEquationHoldsAfterEveryOperation(t *testing.T) {
	t.Parallel()
	a := New("acct-3", "pf-1", "user-1", qtypes.Backtest, decimal.NewFromInt(1000000), futuresTable(), nil)

	check := func(label string) {
		balance := a.Balance()
		var derived decimal.Decimal
		derived = a.Cash
		for _, p := range a.Positions {
			derived = derived.Add(p.PositionProfit()).Add(p.FloatProfit())
		}
		if !balance.Equal(derived) {
			t.Fatalf("%s: ledger equation violated: balance=%s, cash+profits=%s", label, balance, derived)
		}
	}

	check("initial")
	ord, err := a.BuyOpen("IF2401", decimal.NewFromInt(3), baseTime, decimal.NewFromInt(4000))
	if err != nil {
		t.Fatalf("BuyOpen failed: %v", err)
	}
	check("after submit")
	fillOrder(t, a, ord, decimal.NewFromInt(4000), decimal.NewFromInt(3), qtypes.Buy, qtypes.Open, baseTime)
	check("after fill")

	a.OnPriceChange("IF2401", decimal.NewFromInt(4050), baseTime.Add(time.Minute))
	check("after price change")

	closeOrd, err := a.SellClose("IF2401", decimal.NewFromInt(3), baseTime.Add(2*time.Minute), decimal.NewFromInt(4050))
	if err != nil {
		t.Fatalf("SellClose failed: %v", err)
	}
	fillOrder(t, a, closeOrd, decimal.NewFromInt(4050), decimal.NewFromInt(3), qtypes.Sell, qtypes.Close, baseTime.Add(2*time.Minute))
	check("after close")
}

func TestInsufficientFundsRejectsOpenAndLeavesAccountUnmodified(t *testing.T) {
	t.Parallel()
	a := New("acct-4", "pf-1", "user-1", qtypes.Backtest, decimal.NewFromInt(100), futuresTable(), nil)
	cashBefore := a.Cash

	_, err := a.BuyOpen("IF2401", decimal.NewFromInt(10), baseTime, decimal.NewFromInt(4000))
	if err == nil {
		t.Fatal("expected InsufficientFundsError")
	}
	if !a.Cash.Equal(cashBefore) {
		t.Fatalf("cash changed on rejected order: %s vs %s", a.Cash, cashBefore)
	}
	if len(a.DailyOrders) != 0 {
		t.Fatal("rejected order must not be retained")
	}
}

func TestReceiveDealOnUnknownOrderIsRejected(t *testing.T) {
	t.Parallel()
	a := New("acct-5", "pf-1", "user-1", qtypes.Backtest, decimal.NewFromInt(1000000), stockTable(), nil)

	err := a.ReceiveDeal("t1", "no-such-order", "SH000001", decimal.NewFromInt(10), decimal.NewFromInt(100), baseTime, qtypes.Buy, qtypes.Open)
	if err == nil {
		t.Fatal("expected UnknownOrderError")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()
	table := stockTable()
	a := New("acct-6", "pf-1", "user-1", qtypes.Backtest, decimal.NewFromInt(1000000), table, nil)

	ord, err := a.Buy("SH000001", decimal.NewFromInt(500), baseTime, decimal.NewFromFloat(12.0))
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	fillOrder(t, a, ord, decimal.NewFromFloat(12.0), decimal.NewFromInt(500), qtypes.Buy, qtypes.Open, baseTime)

	snap := a.ToQIFI()
	restored, err := FromQIFISnapshot(snap, table)
	if err != nil {
		t.Fatalf("FromQIFISnapshot failed: %v", err)
	}

	if !restored.Cash.Equal(a.Cash) {
		t.Fatalf("restored cash = %s, want %s", restored.Cash, a.Cash)
	}
	if !restored.Positions["SH000001"].VolumeLongToday.Equal(a.Positions["SH000001"].VolumeLongToday) {
		t.Fatal("restored position volume mismatch")
	}
	if len(restored.DailyOrders) != len(a.DailyOrders) {
		t.Fatalf("restored order count = %d, want %d", len(restored.DailyOrders), len(a.DailyOrders))
	}
	if len(restored.DailyTrades) != len(a.DailyTrades) {
		t.Fatalf("restored trade count = %d, want %d", len(restored.DailyTrades), len(a.DailyTrades))
	}
}

func TestSettleRollsPositionsAndClearsDailyLogs(t *testing.T) {
	t.Parallel()
	a := New("acct-7", "pf-1", "user-1", qtypes.Backtest, decimal.NewFromInt(1000000), stockTable(), nil)

	ord, err := a.Buy("SH000001", decimal.NewFromInt(200), baseTime, decimal.NewFromFloat(10.0))
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	fillOrder(t, a, ord, decimal.NewFromFloat(10.0), decimal.NewFromInt(200), qtypes.Buy, qtypes.Open, baseTime)

	a.Settle()

	if len(a.DailyOrders) != 0 || len(a.DailyTrades) != 0 {
		t.Fatal("expected daily logs cleared after settle")
	}
	pos := a.Positions["SH000001"]
	if !pos.VolumeLongHis.Equal(decimal.NewFromInt(200)) || !pos.VolumeLongToday.IsZero() {
		t.Fatalf("expected today volume rolled into historical, got today=%s his=%s", pos.VolumeLongToday, pos.VolumeLongHis)
	}
}
