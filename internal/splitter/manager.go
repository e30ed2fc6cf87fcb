package splitter

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"qaultra-core/internal/qerrors"
	"qaultra-core/pkg/qtypes"
)

// AlgoOrderManager owns every in-flight split plan, keyed by plan id.
// The manager's lock guards the plan map only: each call holds it for the
// plan lookup, and the plan itself is then read or mutated outside it, so
// concurrent calls on the same plan are not serialized by the manager.
type AlgoOrderManager struct {
	mu    sync.Mutex
	plans map[string]*SplitOrderPlan
}

// NewAlgoOrderManager returns an empty manager.
func NewAlgoOrderManager() *AlgoOrderManager {
	return &AlgoOrderManager{plans: make(map[string]*SplitOrderPlan)}
}

// CreatePlan builds a new split plan and generates its chunks, returning
// the plan id. customGen is only consulted for algo == Custom; pass nil to
// fall back to TWAP.
func (m *AlgoOrderManager) CreatePlan(symbol string, total, basePrice decimal.Decimal, direction qtypes.Side, algo qtypes.SplitAlgorithm, params SplitParams, startTime time.Time, customGen ChunkGenerator) (string, error) {
	if symbol == "" {
		return "", &qerrors.ValidationError{Field: "symbol", Reason: "empty"}
	}
	if !total.IsPositive() {
		return "", &qerrors.ValidationError{Field: "total", Reason: "must be > 0"}
	}

	plan := newPlan(symbol, total, basePrice, direction, algo, params, startTime, customGen)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[plan.PlanID] = plan
	return plan.PlanID, nil
}

// ExecuteNextChunk dispatches the next pending chunk of the named plan.
func (m *AlgoOrderManager) ExecuteNextChunk(planID string, now time.Time, dispatch DispatchFunc) (*SplitOrderChunk, error) {
	plan, err := m.getPlan(planID)
	if err != nil {
		return nil, err
	}
	return plan.ExecuteNextChunk(now, dispatch), nil
}

// UpdateChunkStatus routes a fill/failure notification to the right plan
// and chunk.
func (m *AlgoOrderManager) UpdateChunkStatus(planID, chunkID string, status qtypes.ChunkStatus, executedPrice decimal.Decimal, failureReason string) error {
	plan, err := m.getPlan(planID)
	if err != nil {
		return err
	}
	return plan.UpdateChunkStatus(chunkID, status, executedPrice, failureReason)
}

// CancelPlan cancels every PENDING or SENT chunk of a plan.
func (m *AlgoOrderManager) CancelPlan(planID string) error {
	plan, err := m.getPlan(planID)
	if err != nil {
		return err
	}
	plan.CancelRemaining()
	return nil
}

// GetPlan returns the plan for an id.
func (m *AlgoOrderManager) GetPlan(planID string) (*SplitOrderPlan, error) {
	return m.getPlan(planID)
}

func (m *AlgoOrderManager) getPlan(planID string) (*SplitOrderPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	plan, ok := m.plans[planID]
	if !ok {
		return nil, &qerrors.UnknownOrderError{OrderID: planID}
	}
	return plan, nil
}

// AllPlanIDs returns every tracked plan id, in no particular order.
func (m *AlgoOrderManager) AllPlanIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.plans))
	for id := range m.plans {
		ids = append(ids, id)
	}
	return ids
}

// ActivePlanCount returns the number of plans not yet completed or
// cancelled.
func (m *AlgoOrderManager) ActivePlanCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.plans {
		if !p.Completed && !p.Cancelled {
			n++
		}
	}
	return n
}

// CleanupCompletedPlans removes every plan that is completed or cancelled.
func (m *AlgoOrderManager) CleanupCompletedPlans() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.plans {
		if p.Completed || p.Cancelled {
			delete(m.plans, id)
		}
	}
}

// UpdateAllPlans advances every active plan whose next pending chunk is due
// (ScheduledTime <= now), driving the splitter without any notion of real
// time of its own — the caller supplies now on every tick.
func (m *AlgoOrderManager) UpdateAllPlans(now time.Time, dispatch DispatchFunc) {
	m.mu.Lock()
	plans := make([]*SplitOrderPlan, 0, len(m.plans))
	for _, p := range m.plans {
		plans = append(plans, p)
	}
	m.mu.Unlock()

	for _, p := range plans {
		if p.Completed || p.Cancelled {
			continue
		}
		for _, c := range p.Chunks {
			if c.Status != qtypes.ChunkPending {
				continue
			}
			if !c.ScheduledTime.After(now) {
				p.ExecuteNextChunk(now, dispatch)
			}
			break
		}
	}
}
