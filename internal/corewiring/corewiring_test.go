package corewiring

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"qaultra-core/internal/account"
	"qaultra-core/internal/config"
	"qaultra-core/internal/preset"
	"qaultra-core/internal/splitter"
	"qaultra-core/pkg/qtypes"
)

func newFuturesAccount(t *testing.T, cookie string, presets *preset.Table) *account.Account {
	t.Helper()
	return account.New(cookie, "portfolio", "tester", qtypes.Sim, decimal.NewFromInt(1000000), presets, nil)
}

func splitParams() splitter.SplitParams {
	return splitter.SplitParams{Chunks: 4, Interval: time.Minute}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPresets() *preset.Table {
	t := preset.NewTable()
	t.Add("RB", preset.Preset{
		Name:                "Test Rebar",
		Exchange:            qtypes.SHFE,
		UnitTable:           10,
		BuyFrozenCoeff:      decimal.NewFromFloat(0.1),
		SellFrozenCoeff:     decimal.NewFromFloat(0.1),
		CommissionPerVolume: decimal.NewFromFloat(2.0),
	})
	return t
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "simulation",
		Matching:    config.MatchingConfig{Workers: 2},
		Broadcast:   config.BroadcastConfig{Preset: "default"},
		Snapshot:    config.SnapshotConfig{DataDir: t.TempDir()},
		Logging:     config.LoggingConfig{Level: "info", Format: "text"},
	}
}

func newTestSystem(t *testing.T) *System {
	t.Helper()
	sys, err := New(testConfig(t), testPresets(), testLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return sys
}

func TestSubmitOrderRejectsUnknownAccount(t *testing.T) {
	t.Parallel()
	sys := newTestSystem(t)
	_, err := sys.SubmitOrder("ghost", "RB2405", decimal.NewFromInt(10), qtypes.TowardsBuyOpen, decimal.NewFromInt(100), qtypes.Limit, time.Now())
	if err == nil {
		t.Fatal("expected an error for an unregistered account")
	}
}

func TestMatchedTradeSettlesBothAccountsAndBroadcasts(t *testing.T) {
	t.Parallel()
	sys := newTestSystem(t)

	presets := testPresets()
	seller := newFuturesAccount(t, "acct-seller", presets)
	buyer := newFuturesAccount(t, "acct-buyer", presets)
	sys.RegisterAccount(seller)
	sys.RegisterAccount(buyer)

	sub, err := sys.broadcast.Subscribe("")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	now := time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)

	if _, err := sys.SubmitOrder("acct-seller", "RB2405", decimal.NewFromInt(10), qtypes.TowardsSellOpen, decimal.NewFromInt(3600), qtypes.Limit, now); err != nil {
		t.Fatalf("resting sell submit failed: %v", err)
	}
	if _, err := sys.SubmitOrder("acct-buyer", "RB2405", decimal.NewFromInt(10), qtypes.TowardsBuyOpen, decimal.NewFromInt(3600), qtypes.Limit, now.Add(time.Second)); err != nil {
		t.Fatalf("aggressing buy submit failed: %v", err)
	}

	if pos := seller.Positions["RB2405"]; pos == nil || !pos.VolumeShort().Equal(decimal.NewFromInt(10)) {
		t.Fatal("seller's short position not settled after a matched trade")
	}
	if pos := buyer.Positions["RB2405"]; pos == nil || !pos.VolumeLong().Equal(decimal.NewFromInt(10)) {
		t.Fatal("buyer's long position not settled after a matched trade")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	block, ok := sub.Receive(ctx)
	if !ok {
		t.Fatal("expected a broadcast block for the executed trade")
	}
	if block.DataType != qtypes.Trade {
		t.Fatalf("block data_type = %v, want Trade", block.DataType)
	}
}

func TestCreateSplitPlanRejectsUnknownAccount(t *testing.T) {
	t.Parallel()
	sys := newTestSystem(t)
	_, err := sys.CreateSplitPlan("ghost", "RB2405", decimal.NewFromInt(100), decimal.NewFromInt(3600), qtypes.Buy, qtypes.TWAP, splitParams(), time.Now(), nil)
	if err == nil {
		t.Fatal("expected an error for an unregistered account")
	}
}

func TestTickPlansDispatchesDueChunksForOwningAccount(t *testing.T) {
	t.Parallel()
	sys := newTestSystem(t)
	presets := testPresets()
	buyer := newFuturesAccount(t, "acct-buyer", presets)
	sys.RegisterAccount(buyer)

	now := time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)
	planID, err := sys.CreateSplitPlan("acct-buyer", "RB2405", decimal.NewFromInt(40), decimal.NewFromInt(3600), qtypes.Buy, qtypes.TWAP, splitParams(), now, nil)
	if err != nil {
		t.Fatalf("CreateSplitPlan failed: %v", err)
	}

	sys.TickPlans(now)

	plan, err := sys.SplitPlans().GetPlan(planID)
	if err != nil {
		t.Fatalf("GetPlan failed: %v", err)
	}
	if plan.Chunks[0].Status != qtypes.ChunkSent {
		t.Fatalf("first chunk status = %v, want SENT", plan.Chunks[0].Status)
	}
	if len(buyer.DailyOrders) != 1 {
		t.Fatalf("buyer has %d orders, want 1 after the first chunk dispatched", len(buyer.DailyOrders))
	}

	sys.TickPlans(now.Add(-time.Hour))
	if plan.Chunks[1].Status != qtypes.ChunkPending {
		t.Fatal("second chunk dispatched before its scheduled time")
	}
}
