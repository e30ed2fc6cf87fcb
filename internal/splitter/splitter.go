// Package splitter implements the Algorithmic Order Splitter (component F):
// TWAP/VWAP/Iceberg/Custom plan generation, chunk dispatch, and the
// AlgoOrderManager that owns every in-flight plan.
package splitter

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"qaultra-core/internal/qerrors"
	"qaultra-core/pkg/qtypes"
)

// SplitParams configures chunk generation for one plan. Fields not used by
// the chosen algorithm are ignored (e.g. RandomFactor only applies to
// Iceberg).
type SplitParams struct {
	Chunks        int
	Interval      time.Duration
	PriceStrategy int
	MaxDeviation  decimal.Decimal
	MinChunkSize  decimal.Decimal
	RandomFactor  decimal.Decimal
	ExtraParams   map[string]decimal.Decimal

	// RandomSource lets callers (tests) pin Iceberg's randomized sizing to a
	// deterministic sequence. Nil means use the default global source.
	RandomSource *rand.Rand
}

// DispatchFunc sends one chunk's child order to its destination (typically
// the Matching Engine or an Account's trading operation) and reports the
// resulting order id, or ok=false if dispatch failed.
type DispatchFunc func(symbol string, volume decimal.Decimal, now time.Time, targetPrice decimal.Decimal, direction qtypes.Side) (childOrderID string, ok bool)

// ChunkGenerator produces the full chunk list for a Custom plan. Falls back
// to TWAP when a Custom plan is created without one.
type ChunkGenerator func(plan *SplitOrderPlan) []*SplitOrderChunk

// SplitOrderChunk is one child slice of a parent plan.
type SplitOrderChunk struct {
	ChunkID               string
	ChildOrderID          string
	Volume                decimal.Decimal
	TargetPrice           decimal.Decimal
	ExecutedPrice         decimal.Decimal
	ScheduledTime         time.Time
	ExecutionTime         time.Time
	Status                qtypes.ChunkStatus
	FailureReason         string
	PartiallyFilledAmount decimal.Decimal
}

// SplitOrderPlan is the parent split order: its target volume, the
// algorithm used to slice it, and the generated chunk list with running
// execution aggregates.
type SplitOrderPlan struct {
	PlanID    string
	Symbol    string
	Total     decimal.Decimal
	BasePrice decimal.Decimal
	Direction qtypes.Side
	Algorithm qtypes.SplitAlgorithm
	Params    SplitParams
	StartTime time.Time

	Chunks         []*SplitOrderChunk
	ExecutedChunks int
	ExecutedVolume decimal.Decimal
	AvgExecutedPrice decimal.Decimal
	Completed      bool
	Cancelled      bool
}

// newPlan allocates an empty plan and generates its chunks per algorithm.
func newPlan(symbol string, total, basePrice decimal.Decimal, direction qtypes.Side, algo qtypes.SplitAlgorithm, params SplitParams, startTime time.Time, customGen ChunkGenerator) *SplitOrderPlan {
	p := &SplitOrderPlan{
		PlanID:         uuid.NewString(),
		Symbol:         symbol,
		Total:          total,
		BasePrice:      basePrice,
		Direction:      direction,
		Algorithm:      algo,
		Params:         params,
		StartTime:      startTime,
		ExecutedVolume: decimal.Zero,
	}

	switch algo {
	case qtypes.VWAP:
		p.Chunks = generateVWAPPlan(p)
	case qtypes.Iceberg:
		p.Chunks = generateIcebergPlan(p)
	case qtypes.Custom:
		if customGen != nil {
			p.Chunks = customGen(p)
		} else {
			p.Chunks = generateTWAPPlan(p)
		}
	default:
		p.Chunks = generateTWAPPlan(p)
	}

	return p
}

func newChunk(volume, targetPrice decimal.Decimal, scheduledTime time.Time) *SplitOrderChunk {
	return &SplitOrderChunk{
		ChunkID:               uuid.NewString(),
		Volume:                volume,
		TargetPrice:           targetPrice,
		ScheduledTime:         scheduledTime,
		Status:                qtypes.ChunkPending,
		PartiallyFilledAmount: decimal.Zero,
	}
}

// generateTWAPPlan splits Total into Params.Chunks equal child volumes at
// Params.Interval spacing; the last chunk absorbs any rounding remainder.
func generateTWAPPlan(p *SplitOrderPlan) []*SplitOrderChunk {
	n := p.Params.Chunks
	if n <= 0 {
		n = 1
	}
	each := p.Total.Div(decimal.NewFromInt(int64(n)))

	chunks := make([]*SplitOrderChunk, 0, n)
	running := decimal.Zero
	for i := 0; i < n; i++ {
		vol := each
		if i == n-1 {
			vol = p.Total.Sub(running)
		}
		scheduled := p.StartTime.Add(time.Duration(i) * p.Params.Interval)
		chunks = append(chunks, newChunk(vol, p.BasePrice, scheduled))
		running = running.Add(vol)
	}
	return chunks
}

// generateVWAPPlan distributes Total according to a centre-weighted
// triangular intraday volume profile — a reasonable default shape when no
// empirical volume curve is supplied — then normalizes so chunk volumes sum
// to exactly Total.
func generateVWAPPlan(p *SplitOrderPlan) []*SplitOrderChunk {
	n := p.Params.Chunks
	if n <= 0 {
		n = 1
	}

	weights := make([]decimal.Decimal, n)
	weightSum := decimal.Zero
	mid := decimal.NewFromFloat(float64(n-1) / 2.0)
	for i := 0; i < n; i++ {
		dist := decimal.NewFromFloat(float64(i)).Sub(mid).Abs()
		w := mid.Add(decimal.NewFromInt(1)).Sub(dist)
		if w.IsNegative() {
			w = decimal.NewFromFloat(0.1)
		}
		weights[i] = w
		weightSum = weightSum.Add(w)
	}

	chunks := make([]*SplitOrderChunk, 0, n)
	running := decimal.Zero
	for i := 0; i < n; i++ {
		var vol decimal.Decimal
		if i == n-1 {
			vol = p.Total.Sub(running)
		} else {
			vol = p.Total.Mul(weights[i]).Div(weightSum)
		}
		scheduled := p.StartTime.Add(time.Duration(i) * p.Params.Interval)
		chunks = append(chunks, newChunk(vol, p.BasePrice, scheduled))
		running = running.Add(vol)
	}
	return chunks
}

// generateIcebergPlan produces randomized chunk sizes in
// [MinChunkSize, MinChunkSize*(1+RandomFactor)] until Total is exhausted;
// the final chunk absorbs the remainder so the sum always equals Total.
func generateIcebergPlan(p *SplitOrderPlan) []*SplitOrderChunk {
	rng := p.Params.RandomSource
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	minChunk := p.Params.MinChunkSize
	if !minChunk.IsPositive() {
		minChunk = decimal.NewFromInt(1)
	}
	randomFactor := p.Params.RandomFactor

	var chunks []*SplitOrderChunk
	remaining := p.Total
	i := 0
	for remaining.GreaterThan(decimal.Zero) {
		size := minChunk
		if randomFactor.IsPositive() {
			spread := minChunk.Mul(randomFactor).Mul(decimal.NewFromFloat(rng.Float64()))
			size = size.Add(spread)
		}
		if size.GreaterThanOrEqual(remaining) || size.LessThan(minChunk) {
			size = remaining
		}
		scheduled := p.StartTime.Add(time.Duration(i) * p.Params.Interval)
		chunks = append(chunks, newChunk(size, p.BasePrice, scheduled))
		remaining = remaining.Sub(size)
		i++
	}
	return chunks
}

// ExecuteNextChunk finds the first PENDING chunk and dispatches it. On
// success the chunk moves to SENT with its child order id and execution
// time recorded; on failure it moves to FAILED with a reason. Returns the
// chunk acted on, or nil if the plan has no pending chunk left (including
// when it is already completed or cancelled).
func (p *SplitOrderPlan) ExecuteNextChunk(now time.Time, dispatch DispatchFunc) *SplitOrderChunk {
	if p.Completed || p.Cancelled {
		return nil
	}

	var next *SplitOrderChunk
	for _, c := range p.Chunks {
		if c.Status == qtypes.ChunkPending {
			next = c
			break
		}
	}
	if next == nil {
		return nil
	}

	childID, ok := dispatch(p.Symbol, next.Volume, now, next.TargetPrice, p.Direction)
	if ok {
		next.ChildOrderID = childID
		next.Status = qtypes.ChunkSent
		next.ExecutionTime = now
	} else {
		next.Status = qtypes.ChunkFailed
		next.FailureReason = "dispatch failed"
	}

	p.updateAggregates()
	return next
}

// UpdateChunkStatus applies a status transition reported back from a fill
// (typically the trade callback the chunk's child order was routed
// through), recomputing the plan's executed volume and running VWAP.
func (p *SplitOrderPlan) UpdateChunkStatus(chunkID string, status qtypes.ChunkStatus, executedPrice decimal.Decimal, failureReason string) error {
	for _, c := range p.Chunks {
		if c.ChunkID != chunkID {
			continue
		}
		c.Status = status
		if status == qtypes.ChunkFilled || status == qtypes.ChunkPartiallyFilled {
			c.ExecutedPrice = executedPrice
		}
		if status == qtypes.ChunkFailed {
			c.FailureReason = failureReason
		}
		p.updateAggregates()
		return nil
	}
	return &qerrors.UnknownOrderError{OrderID: chunkID}
}

// updateAggregates recomputes ExecutedChunks, ExecutedVolume,
// AvgExecutedPrice, and the Completed flag from current chunk state.
func (p *SplitOrderPlan) updateAggregates() {
	executedChunks := 0
	executedVolume := decimal.Zero
	weightedPrice := decimal.Zero
	allTerminal := true

	for _, c := range p.Chunks {
		if c.Status == qtypes.ChunkFilled {
			executedChunks++
			executedVolume = executedVolume.Add(c.Volume)
			weightedPrice = weightedPrice.Add(c.Volume.Mul(c.ExecutedPrice))
		}
		if !c.Status.IsTerminal() {
			allTerminal = false
		}
	}

	p.ExecutedChunks = executedChunks
	p.ExecutedVolume = executedVolume
	if executedVolume.IsPositive() {
		p.AvgExecutedPrice = weightedPrice.Div(executedVolume)
	}
	if allTerminal && !p.Cancelled {
		p.Completed = true
	}
}

// CancelRemaining marks every PENDING/SENT chunk CANCELLED and flips the
// plan's Cancelled flag. Completion is never also set by a cancel.
func (p *SplitOrderPlan) CancelRemaining() {
	for _, c := range p.Chunks {
		if c.Status == qtypes.ChunkPending || c.Status == qtypes.ChunkSent {
			c.Status = qtypes.ChunkCancelled
		}
	}
	p.Cancelled = true
}

// Progress returns executed volume as a fraction of total, in [0, 1].
func (p *SplitOrderPlan) Progress() decimal.Decimal {
	if !p.Total.IsPositive() {
		return decimal.Zero
	}
	return p.ExecutedVolume.Div(p.Total)
}
