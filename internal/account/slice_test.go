package account

import (
	"testing"

	"github.com/shopspring/decimal"

	"qaultra-core/pkg/qtypes"
)

func TestSliceReflectsDatetimeCashAndPositions(t *testing.T) {
	t.Parallel()
	a := New("acct-1", "pf-1", "user-1", qtypes.Backtest, decimal.NewFromInt(1000000), stockTable(), nil)

	ord, err := a.Buy("SH000001", decimal.NewFromInt(1000), baseTime, decimal.NewFromFloat(10.0))
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	fillOrder(t, a, ord, decimal.NewFromFloat(10.0), decimal.NewFromInt(1000), qtypes.Buy, qtypes.Open, baseTime)

	slice := a.Slice("2026-01-02 09:30:00")

	if slice.Datetime != "2026-01-02 09:30:00" {
		t.Fatalf("Datetime = %q, want the passed-in datetime", slice.Datetime)
	}
	if !slice.Cash.Equal(a.Cash) {
		t.Fatalf("Cash = %s, want %s", slice.Cash, a.Cash)
	}
	if len(slice.Positions) != 1 {
		t.Fatalf("Positions count = %d, want 1", len(slice.Positions))
	}
	if _, ok := slice.Positions["SH000001"]; !ok {
		t.Fatal("expected SH000001 in Positions")
	}
	if slice.Accounts.AccountCookie != "acct-1" {
		t.Fatalf("Accounts.AccountCookie = %q, want acct-1", slice.Accounts.AccountCookie)
	}
}

func TestMOMSliceMatchesIndependentDerivedTotals(t *testing.T) {
	t.Parallel()
	a := New("acct-2", "pf-1", "user-2", qtypes.Backtest, decimal.NewFromInt(1000000), futuresTable(), nil)

	ord, err := a.BuyOpen("IF2401", decimal.NewFromInt(2), baseTime, decimal.NewFromFloat(3500.0))
	if err != nil {
		t.Fatalf("BuyOpen failed: %v", err)
	}
	fillOrder(t, a, ord, decimal.NewFromFloat(3500.0), decimal.NewFromInt(2), qtypes.Buy, qtypes.Open, baseTime)

	wantBalance := a.Balance()
	wantMargin := a.Margin()
	wantAvailable := a.Available()
	wantRiskRatio := a.RiskRatio()

	mom := a.MOMSlice("2026-01-02 09:30:00")

	if mom.UserID != "user-2" {
		t.Fatalf("UserID = %q, want user-2", mom.UserID)
	}
	if !mom.PreBalance.Equal(a.InitialCash) {
		t.Fatalf("PreBalance = %s, want %s", mom.PreBalance, a.InitialCash)
	}
	if !mom.Balance.Equal(wantBalance) {
		t.Fatalf("Balance = %s, want %s", mom.Balance, wantBalance)
	}
	if !mom.Margin.Equal(wantMargin) {
		t.Fatalf("Margin = %s, want %s", mom.Margin, wantMargin)
	}
	if !mom.Available.Equal(wantAvailable) {
		t.Fatalf("Available = %s, want %s", mom.Available, wantAvailable)
	}
	if !mom.RiskRatio.Equal(wantRiskRatio) {
		t.Fatalf("RiskRatio = %s, want %s", mom.RiskRatio, wantRiskRatio)
	}
	wantCommission := decimal.Zero
	for _, o := range a.DailyOrders {
		wantCommission = wantCommission.Add(o.Commission)
	}
	if !mom.Commission.Equal(wantCommission) {
		t.Fatalf("Commission = %s, want %s", mom.Commission, wantCommission)
	}
}

func TestMOMSliceZeroForFreshAccount(t *testing.T) {
	t.Parallel()
	a := New("acct-3", "pf-1", "user-3", qtypes.Backtest, decimal.NewFromInt(500000), stockTable(), nil)

	mom := a.MOMSlice("2026-01-02 09:30:00")

	if !mom.Commission.IsZero() {
		t.Fatalf("Commission = %s, want 0 for an account with no orders", mom.Commission)
	}
	if !mom.PositionProfit.IsZero() || !mom.FloatProfit.IsZero() {
		t.Fatal("expected zero position/float profit for an account with no positions")
	}
	if !mom.Balance.Equal(a.InitialCash) {
		t.Fatalf("Balance = %s, want %s", mom.Balance, a.InitialCash)
	}
}
