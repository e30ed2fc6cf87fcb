package snapshot

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"qaultra-core/internal/account"
	"qaultra-core/internal/preset"
	"qaultra-core/pkg/qtypes"
)

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

func TestSaveThenLoadRestoresAccountState(t *testing.T) {
	t.Parallel()
	presets := stockTable()
	acct := account.New("acct-1", "portfolio-1", "tester", qtypes.Sim, decimal.NewFromInt(100000), presets, nil)

	now := time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)
	ord, err := acct.Buy("SH000001", decimal.NewFromInt(100), now, decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if err := acct.ReceiveDeal(ord.OrderID+"-t", ord.OrderID, "SH000001", decimal.NewFromInt(10), decimal.NewFromInt(100), now, qtypes.Buy, qtypes.Open); err != nil {
		t.Fatalf("ReceiveDeal failed: %v", err)
	}

	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.Save(acct); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	restored, err := store.Load("acct-1", presets)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if restored == nil {
		t.Fatal("Load returned nil for a saved account")
	}
	if !restored.Balance().Equal(acct.Balance()) {
		t.Fatalf("restored balance = %s, want %s", restored.Balance(), acct.Balance())
	}
	if len(restored.Positions) != len(acct.Positions) {
		t.Fatalf("restored position count = %d, want %d", len(restored.Positions), len(acct.Positions))
	}
}

func TestLoadMissingAccountReturnsNilNil(t *testing.T) {
	t.Parallel()
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	acct, err := store.Load("does-not-exist", stockTable())
	if err != nil {
		t.Fatalf("Load returned an error for a missing account: %v", err)
	}
	if acct != nil {
		t.Fatal("expected nil account for a missing snapshot")
	}
}

func TestListReturnsAllSavedCookies(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	presets := stockTable()

	for _, cookie := range []string{"acct-a", "acct-b", "acct-c"} {
		acct := account.New(cookie, "portfolio", "tester", qtypes.Sim, decimal.NewFromInt(1000), presets, nil)
		if err := store.Save(acct); err != nil {
			t.Fatalf("Save(%s) failed: %v", cookie, err)
		}
	}

	got, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("List returned %d cookies, want 3: %v", len(got), got)
	}

	seen := map[string]bool{}
	for _, c := range got {
		seen[c] = true
	}
	for _, want := range []string{"acct-a", "acct-b", "acct-c"} {
		if !seen[want] {
			t.Fatalf("List missing cookie %q, got %v", want, got)
		}
	}
}
