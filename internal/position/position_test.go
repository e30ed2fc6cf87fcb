package position

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"qaultra-core/internal/preset"
	"qaultra-core/pkg/qtypes"
)

var baseTime = time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)

func futuresPreset() preset.Preset {
	return preset.Preset{
		Name:                     "IF2401",
		Exchange:                 qtypes.CFFEX,
		UnitTable:                10,
		PriceTick:                decimal.NewFromFloat(0.2),
		BuyFrozenCoeff:           decimal.NewFromFloat(0.1),
		SellFrozenCoeff:          decimal.NewFromFloat(0.1),
		CommissionPerVolume:      decimal.NewFromFloat(2.0),
		CommissionPerAmount:      decimal.Zero,
		CommissionTodayPerVolume: decimal.NewFromFloat(2.0),
		CommissionTodayPerAmount: decimal.Zero,
	}
}

func TestApplyTradeBuyOpen(t *testing.T) {
	t.Parallel()
	pos := New("IF2401", futuresPreset())

	err := pos.ApplyTrade(qtypes.Buy, qtypes.Open, decimal.NewFromInt(2), decimal.NewFromInt(4000), baseTime)
	if err != nil {
		t.Fatalf("ApplyTrade failed: %v", err)
	}
	if !pos.VolumeLongToday.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("volume_long_today = %s, want 2", pos.VolumeLongToday)
	}

	pos.OnPriceChange(decimal.NewFromInt(4010), baseTime.Add(time.Minute))

	wantMargin := decimal.NewFromInt(2).Mul(decimal.NewFromInt(10)).Mul(decimal.NewFromInt(4010)).Mul(decimal.NewFromFloat(0.1))
	if !pos.MarginLong.Equal(wantMargin) {
		t.Fatalf("margin_long = %s, want %s", pos.MarginLong, wantMargin)
	}

	wantPositionProfit := decimal.NewFromInt(4010 - 4000).Mul(decimal.NewFromInt(2)).Mul(decimal.NewFromInt(10))
	if !pos.PositionProfitLong().Equal(wantPositionProfit) {
		t.Fatalf("position_profit_long = %s, want %s", pos.PositionProfitLong(), wantPositionProfit)
	}
}

func TestHistoryFirstClose(t *testing.T) {
	t.Parallel()
	pos := New("IF2401", futuresPreset())
	pos.VolumeLongHis = decimal.NewFromInt(3)
	pos.VolumeLongToday = decimal.NewFromInt(5)
	pos.PositionCostLong = decimal.NewFromInt(8).Mul(decimal.NewFromInt(4000)).Mul(decimal.NewFromInt(10))

	if err := pos.ApplyTrade(qtypes.Sell, qtypes.Close, decimal.NewFromInt(4), decimal.NewFromInt(4010), baseTime); err != nil {
		t.Fatalf("ApplyTrade failed: %v", err)
	}

	if !pos.VolumeLongHis.IsZero() {
		t.Fatalf("volume_long_his = %s, want 0 (history consumed first)", pos.VolumeLongHis)
	}
	if !pos.VolumeLongToday.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("volume_long_today = %s, want 4", pos.VolumeLongToday)
	}
}

func TestCloseTodayCapsAtTodayBucket(t *testing.T) {
	t.Parallel()
	pos := New("IF2401", futuresPreset())
	pos.VolumeLongToday = decimal.NewFromInt(3)

	err := pos.ApplyTrade(qtypes.Sell, qtypes.CloseToday, decimal.NewFromInt(5), decimal.NewFromInt(4000), baseTime)
	if err == nil {
		t.Fatal("expected InsufficientPositionError when closing more than today's bucket")
	}
}

func TestVolumesNeverNegative(t *testing.T) {
	t.Parallel()
	pos := New("IF2401", futuresPreset())
	pos.VolumeShortHis = decimal.NewFromInt(2)

	if err := pos.ApplyTrade(qtypes.Buy, qtypes.Close, decimal.NewFromInt(2), decimal.NewFromInt(4000), baseTime); err != nil {
		t.Fatalf("ApplyTrade failed: %v", err)
	}
	if pos.VolumeShort().IsNegative() {
		t.Fatalf("volume_short went negative: %s", pos.VolumeShort())
	}
	if !pos.OpenCostShort.IsZero() || !pos.PositionCostShort.IsZero() {
		t.Fatal("cost fields should zero out once the short side is flat")
	}
}

func TestFreezeHistoryFirstThenUnfreeze(t *testing.T) {
	t.Parallel()
	pos := New("IF2401", futuresPreset())
	pos.VolumeLongHis = decimal.NewFromInt(2)
	pos.VolumeLongToday = decimal.NewFromInt(3)

	if err := pos.Freeze(qtypes.Sell, qtypes.Close, decimal.NewFromInt(4)); err != nil {
		t.Fatalf("Freeze failed: %v", err)
	}
	if !pos.FrozenLongHis.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("frozen_long_his = %s, want 2 (history exhausted first)", pos.FrozenLongHis)
	}
	if !pos.FrozenLongToday.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("frozen_long_today = %s, want 2", pos.FrozenLongToday)
	}

	pos.Unfreeze(qtypes.Sell, qtypes.Close, decimal.NewFromInt(4))
	if !pos.FrozenLongHis.IsZero() || !pos.FrozenLongToday.IsZero() {
		t.Fatal("expected all frozen volume released")
	}
}

func TestRollTodayToHistorical(t *testing.T) {
	t.Parallel()
	pos := New("IF2401", futuresPreset())
	pos.VolumeLongToday = decimal.NewFromInt(5)
	pos.FrozenLongToday = decimal.NewFromInt(1)

	pos.RollTodayToHistorical()

	if !pos.VolumeLongHis.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("volume_long_his = %s, want 5", pos.VolumeLongHis)
	}
	if !pos.VolumeLongToday.IsZero() {
		t.Fatal("volume_long_today should be zeroed after roll")
	}
	if !pos.FrozenLongToday.IsZero() {
		t.Fatal("frozen_long_today should be cleared after roll")
	}
}
