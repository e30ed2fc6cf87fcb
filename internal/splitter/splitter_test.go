package splitter

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"qaultra-core/pkg/qtypes"
)

var baseTime = time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)

func TestTWAPPlanGeneration(t *testing.T) {
	t.Parallel()
	m := NewAlgoOrderManager()

	planID, err := m.CreatePlan("RB2405", decimal.NewFromInt(1000), decimal.NewFromInt(100), qtypes.Buy, qtypes.TWAP,
		SplitParams{Chunks: 5, Interval: 60 * time.Second}, baseTime, nil)
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}

	plan, err := m.GetPlan(planID)
	if err != nil {
		t.Fatalf("GetPlan failed: %v", err)
	}
	if len(plan.Chunks) != 5 {
		t.Fatalf("got %d chunks, want 5", len(plan.Chunks))
	}

	want := decimal.NewFromInt(200)
	for i, c := range plan.Chunks {
		if !c.Volume.Equal(want) {
			t.Fatalf("chunk %d volume = %s, want %s", i, c.Volume, want)
		}
		if !c.TargetPrice.Equal(decimal.NewFromInt(100)) {
			t.Fatalf("chunk %d target_price = %s, want 100", i, c.TargetPrice)
		}
		wantScheduled := baseTime.Add(time.Duration(i) * 60 * time.Second)
		if !c.ScheduledTime.Equal(wantScheduled) {
			t.Fatalf("chunk %d scheduled_time = %s, want %s", i, c.ScheduledTime, wantScheduled)
		}
		if c.Status != qtypes.ChunkPending {
			t.Fatalf("chunk %d status = %v, want PENDING", i, c.Status)
		}
	}
}

func TestExecuteNextChunkAdvancesInOrder(t *testing.T) {
	t.Parallel()
	m := NewAlgoOrderManager()
	planID, _ := m.CreatePlan("RB2405", decimal.NewFromInt(300), decimal.NewFromInt(100), qtypes.Buy, qtypes.TWAP,
		SplitParams{Chunks: 3, Interval: time.Minute}, baseTime, nil)

	var dispatched []decimal.Decimal
	dispatch := func(symbol string, vol decimal.Decimal, now time.Time, targetPrice decimal.Decimal, direction qtypes.Side) (string, bool) {
		dispatched = append(dispatched, vol)
		return "child-" + vol.String(), true
	}

	c1, err := m.ExecuteNextChunk(planID, baseTime, dispatch)
	if err != nil {
		t.Fatalf("ExecuteNextChunk failed: %v", err)
	}
	if c1.Status != qtypes.ChunkSent || c1.ChildOrderID == "" {
		t.Fatalf("chunk 1 = %+v, want SENT with a child order id", c1)
	}

	c2, _ := m.ExecuteNextChunk(planID, baseTime.Add(time.Minute), dispatch)
	if c2.ChunkID == c1.ChunkID {
		t.Fatal("ExecuteNextChunk returned the same chunk twice")
	}

	if len(dispatched) != 2 {
		t.Fatalf("dispatched %d chunks, want 2", len(dispatched))
	}
}

func TestUpdateChunkStatusRecomputesAverage(t *testing.T) {
	t.Parallel()
	m := NewAlgoOrderManager()
	planID, _ := m.CreatePlan("RB2405", decimal.NewFromInt(200), decimal.NewFromInt(100), qtypes.Buy, qtypes.TWAP,
		SplitParams{Chunks: 2, Interval: time.Minute}, baseTime, nil)

	plan, _ := m.GetPlan(planID)
	dispatch := func(symbol string, vol decimal.Decimal, now time.Time, targetPrice decimal.Decimal, direction qtypes.Side) (string, bool) {
		return "child-1", true
	}
	m.ExecuteNextChunk(planID, baseTime, dispatch)
	m.ExecuteNextChunk(planID, baseTime.Add(time.Minute), dispatch)

	if err := m.UpdateChunkStatus(planID, plan.Chunks[0].ChunkID, qtypes.ChunkFilled, decimal.NewFromFloat(99.5), ""); err != nil {
		t.Fatalf("UpdateChunkStatus failed: %v", err)
	}
	if err := m.UpdateChunkStatus(planID, plan.Chunks[1].ChunkID, qtypes.ChunkFilled, decimal.NewFromFloat(100.5), ""); err != nil {
		t.Fatalf("UpdateChunkStatus failed: %v", err)
	}

	wantAvg := decimal.NewFromFloat(99.5).Add(decimal.NewFromFloat(100.5)).Div(decimal.NewFromInt(2))
	if !plan.AvgExecutedPrice.Equal(wantAvg) {
		t.Fatalf("avg_executed_price = %s, want %s", plan.AvgExecutedPrice, wantAvg)
	}
	if !plan.Completed {
		t.Fatal("expected plan completed once every chunk reaches a terminal state")
	}
	if !plan.ExecutedVolume.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("executed_volume = %s, want 200", plan.ExecutedVolume)
	}
}

func TestCancelPlanMarksRemainingChunksCancelled(t *testing.T) {
	t.Parallel()
	m := NewAlgoOrderManager()
	planID, _ := m.CreatePlan("RB2405", decimal.NewFromInt(500), decimal.NewFromInt(100), qtypes.Buy, qtypes.TWAP,
		SplitParams{Chunks: 5, Interval: time.Minute}, baseTime, nil)

	dispatch := func(symbol string, vol decimal.Decimal, now time.Time, targetPrice decimal.Decimal, direction qtypes.Side) (string, bool) {
		return "child-1", true
	}
	m.ExecuteNextChunk(planID, baseTime, dispatch)

	if err := m.CancelPlan(planID); err != nil {
		t.Fatalf("CancelPlan failed: %v", err)
	}

	plan, _ := m.GetPlan(planID)
	if !plan.Cancelled {
		t.Fatal("expected plan.Cancelled true")
	}
	for i, c := range plan.Chunks {
		if i == 0 {
			continue
		}
		if c.Status != qtypes.ChunkCancelled {
			t.Fatalf("chunk %d status = %v, want CANCELLED", i, c.Status)
		}
	}
}

func TestUpdateAllPlansOnlyAdvancesDueChunks(t *testing.T) {
	t.Parallel()
	m := NewAlgoOrderManager()
	planID, _ := m.CreatePlan("RB2405", decimal.NewFromInt(300), decimal.NewFromInt(100), qtypes.Buy, qtypes.TWAP,
		SplitParams{Chunks: 3, Interval: time.Minute}, baseTime, nil)

	var calls int
	dispatch := func(symbol string, vol decimal.Decimal, now time.Time, targetPrice decimal.Decimal, direction qtypes.Side) (string, bool) {
		calls++
		return "child", true
	}

	m.UpdateAllPlans(baseTime, dispatch)
	if calls != 1 {
		t.Fatalf("calls = %d after first tick, want 1", calls)
	}

	m.UpdateAllPlans(baseTime.Add(30*time.Second), dispatch)
	if calls != 1 {
		t.Fatalf("calls = %d after a tick before the next chunk is due, want 1", calls)
	}

	m.UpdateAllPlans(baseTime.Add(time.Minute), dispatch)
	if calls != 2 {
		t.Fatalf("calls = %d after the second chunk's due time, want 2", calls)
	}
}

func TestIcebergChunksSumToTotal(t *testing.T) {
	t.Parallel()
	m := NewAlgoOrderManager()
	planID, err := m.CreatePlan("RB2405", decimal.NewFromInt(1000), decimal.NewFromInt(100), qtypes.Sell, qtypes.Iceberg,
		SplitParams{
			MinChunkSize: decimal.NewFromInt(50),
			RandomFactor: decimal.NewFromFloat(0.5),
			Interval:     30 * time.Second,
			RandomSource: rand.New(rand.NewSource(42)),
		}, baseTime, nil)
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}

	plan, _ := m.GetPlan(planID)
	sum := decimal.Zero
	for _, c := range plan.Chunks {
		sum = sum.Add(c.Volume)
	}
	if !sum.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("chunk volumes sum to %s, want 1000", sum)
	}
}

func TestVWAPChunksSumToTotal(t *testing.T) {
	t.Parallel()
	m := NewAlgoOrderManager()
	planID, err := m.CreatePlan("RB2405", decimal.NewFromInt(777), decimal.NewFromInt(100), qtypes.Buy, qtypes.VWAP,
		SplitParams{Chunks: 6, Interval: time.Minute}, baseTime, nil)
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}

	plan, _ := m.GetPlan(planID)
	sum := decimal.Zero
	for _, c := range plan.Chunks {
		sum = sum.Add(c.Volume)
	}
	if !sum.Equal(decimal.NewFromInt(777)) {
		t.Fatalf("chunk volumes sum to %s, want 777", sum)
	}
}

func TestCustomAlgorithmFallsBackToTWAPWithoutGenerator(t *testing.T) {
	t.Parallel()
	m := NewAlgoOrderManager()
	planID, err := m.CreatePlan("RB2405", decimal.NewFromInt(400), decimal.NewFromInt(100), qtypes.Buy, qtypes.Custom,
		SplitParams{Chunks: 4, Interval: time.Minute}, baseTime, nil)
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}

	plan, _ := m.GetPlan(planID)
	if len(plan.Chunks) != 4 {
		t.Fatalf("got %d chunks, want 4 (TWAP fallback)", len(plan.Chunks))
	}
	for _, c := range plan.Chunks {
		if !c.Volume.Equal(decimal.NewFromInt(100)) {
			t.Fatalf("chunk volume = %s, want 100", c.Volume)
		}
	}
}
