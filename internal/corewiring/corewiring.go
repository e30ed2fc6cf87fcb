// Package corewiring wires the Account Aggregate, the Order Matching
// Engine, the Algorithmic Order Splitter, and the Market-Data Broadcast
// Hub into one running service. The matching engine holds no account
// back-pointer by design, so this package plays the "caller" role: it
// settles executed trades into the owning accounts, broadcasts them as
// market-data blocks, and advances split plans on a tick, dispatching
// each plan's chunks through the account that created it.
//
// Lifecycle: New() → Start() → [runs until Stop()] → Stop()
package corewiring

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"qaultra-core/internal/account"
	"qaultra-core/internal/broadcast"
	"qaultra-core/internal/config"
	"qaultra-core/internal/matching"
	"qaultra-core/internal/order"
	"qaultra-core/internal/preset"
	"qaultra-core/internal/snapshot"
	"qaultra-core/internal/splitter"
	"qaultra-core/pkg/qtypes"
)

// tradePayload is the JSON shape broadcast for every executed trade.
type tradePayload struct {
	TradeID  string `json:"trade_id"`
	Symbol   string `json:"symbol"`
	Price    string `json:"price"`
	Volume   string `json:"volume"`
	AtUnixNs int64  `json:"at_unix_ns"`
}

// planOwner records which account a split plan's chunks dispatch orders
// for.
type planOwner struct {
	accountCookie string
}

// System is the assembled, running core: one matching engine, one
// broadcast manager, one splitter manager, and any number of registered
// accounts.
type System struct {
	cfg       *config.Config
	presets   *preset.Table
	logger    *slog.Logger
	matching  *matching.Engine
	splitter  *splitter.AlgoOrderManager
	broadcast *broadcast.Manager
	snapshots *snapshot.Store

	mu         sync.RWMutex
	accounts   map[string]*account.Account
	planOwners map[string]planOwner

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	tickInterval     time.Duration
	snapshotInterval time.Duration
}

// New wires all components from cfg and keeps presets on the System.
// Accounts passed to RegisterAccount keep the preset table they were
// built with.
func New(cfg *config.Config, presets *preset.Table, logger *slog.Logger) (*System, error) {
	if logger == nil {
		logger = slog.Default()
	}

	matchEngine := matching.New(cfg.Matching.Workers, logger)

	broadcastMgr, err := broadcast.NewManager(cfg.Broadcast.Resolve(), logger)
	if err != nil {
		return nil, fmt.Errorf("corewiring: broadcast manager: %w", err)
	}

	store, err := snapshot.Open(cfg.Snapshot.DataDir)
	if err != nil {
		return nil, fmt.Errorf("corewiring: snapshot store: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &System{
		cfg:              cfg,
		presets:          presets,
		logger:           logger.With("component", "corewiring"),
		matching:         matchEngine,
		splitter:         splitter.NewAlgoOrderManager(),
		broadcast:        broadcastMgr,
		snapshots:        store,
		accounts:         make(map[string]*account.Account),
		planOwners:       make(map[string]planOwner),
		ctx:              ctx,
		cancel:           cancel,
		tickInterval:     time.Second,
		snapshotInterval: 30 * time.Second,
	}
	matchEngine.AddTradeCallback(s.onTrade)
	return s, nil
}

// RegisterAccount makes acct eligible to submit orders and receive fills
// through this system.
func (s *System) RegisterAccount(acct *account.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acct.AccountCookie] = acct
}

func (s *System) account(cookie string) *account.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[cookie]
}

// SubmitOrder routes an order through the owning account's pre-trade
// checks and into the matching engine.
func (s *System) SubmitOrder(accountCookie, symbol string, vol decimal.Decimal, towards qtypes.Towards, price decimal.Decimal, priceType qtypes.PriceType, now time.Time) (*order.Order, error) {
	acct := s.account(accountCookie)
	if acct == nil {
		return nil, fmt.Errorf("corewiring: unknown account %q", accountCookie)
	}
	ord, err := acct.SendOrder(symbol, vol, now, towards, price, priceType)
	if err != nil {
		return nil, err
	}
	// The engine advances the status of the order it matches; it gets a
	// copy so the account's own order stays active until ReceiveDeal
	// settles each fill against it.
	engineOrd := *ord
	if err := s.matching.SubmitOrder(&engineOrd, now); err != nil {
		return nil, err
	}
	return ord, nil
}

// CreateSplitPlan builds a split plan whose chunks dispatch as orders
// owned by accountCookie.
func (s *System) CreateSplitPlan(accountCookie, symbol string, total, basePrice decimal.Decimal, direction qtypes.Side, algo qtypes.SplitAlgorithm, params splitter.SplitParams, startTime time.Time, customGen splitter.ChunkGenerator) (string, error) {
	if s.account(accountCookie) == nil {
		return "", fmt.Errorf("corewiring: unknown account %q", accountCookie)
	}
	planID, err := s.splitter.CreatePlan(symbol, total, basePrice, direction, algo, params, startTime, customGen)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.planOwners[planID] = planOwner{accountCookie: accountCookie}
	s.mu.Unlock()
	return planID, nil
}

// SplitPlans exposes the underlying manager for status queries
// (GetPlan, Progress, CancelPlan) that don't need account ownership.
func (s *System) SplitPlans() *splitter.AlgoOrderManager {
	return s.splitter
}

func (s *System) dispatchFor(planID string) splitter.DispatchFunc {
	return func(symbol string, volume decimal.Decimal, now time.Time, targetPrice decimal.Decimal, direction qtypes.Side) (string, bool) {
		s.mu.RLock()
		owner, ok := s.planOwners[planID]
		s.mu.RUnlock()
		if !ok {
			return "", false
		}

		towards := qtypes.TowardsBuy
		if direction == qtypes.Sell {
			towards = qtypes.TowardsSell
		}
		ord, err := s.SubmitOrder(owner.accountCookie, symbol, volume, towards, targetPrice, qtypes.Limit, now)
		if err != nil {
			s.logger.Warn("split chunk dispatch failed", "plan", planID, "symbol", symbol, "error", err)
			return "", false
		}
		return ord.OrderID, true
	}
}

// TickPlans advances every in-flight split plan whose next chunk is due,
// dispatching each through its owning account.
func (s *System) TickPlans(now time.Time) {
	for _, id := range s.splitter.AllPlanIDs() {
		plan, err := s.splitter.GetPlan(id)
		if err != nil {
			continue
		}
		if plan.Completed || plan.Cancelled {
			continue
		}
		for _, c := range plan.Chunks {
			if c.Status != qtypes.ChunkPending {
				continue
			}
			if !c.ScheduledTime.After(now) {
				if _, err := s.splitter.ExecuteNextChunk(id, now, s.dispatchFor(id)); err != nil {
					s.logger.Warn("execute chunk failed", "plan", id, "error", err)
				}
			}
			break
		}
	}
}

// onTrade settles an executed trade into both sides' accounts (when
// registered) and broadcasts it as a market-data block. Runs on the
// matching engine's worker goroutine for the trade's shard, so it must
// not block or submit a new order for the same symbol.
func (s *System) onTrade(tr matching.Trade) {
	if tr.Aggressive != nil {
		s.settle(tr, tr.Aggressive)
	}
	if tr.Passive != nil {
		s.settle(tr, tr.Passive)
	}

	payload, err := json.Marshal(tradePayload{
		TradeID:  tr.TradeID,
		Symbol:   symbolOf(tr),
		Price:    tr.Price.String(),
		Volume:   tr.Volume.String(),
		AtUnixNs: tr.At.UnixNano(),
	})
	if err != nil {
		s.logger.Error("marshal trade payload failed", "trade", tr.TradeID, "error", err)
		return
	}
	if err := s.broadcast.Publish("", payload, 1, qtypes.Trade, tr.At); err != nil {
		s.logger.Error("broadcast trade failed", "trade", tr.TradeID, "error", err)
	}
}

func symbolOf(tr matching.Trade) string {
	if tr.Aggressive != nil {
		return tr.Aggressive.InstrumentID
	}
	if tr.Passive != nil {
		return tr.Passive.InstrumentID
	}
	return ""
}

func (s *System) settle(tr matching.Trade, ord *order.Order) {
	acct := s.account(ord.AccountCookie)
	if acct == nil {
		return
	}
	if err := acct.ReceiveDeal(tr.TradeID, ord.OrderID, ord.InstrumentID, tr.Price, tr.Volume, tr.At, ord.Direction, ord.Offset); err != nil {
		s.logger.Error("settle trade failed", "trade", tr.TradeID, "account", ord.AccountCookie, "error", err)
	}
}

// Start launches the plan-advancement and snapshot-persistence loops.
func (s *System) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runTicks()
	}()
}

func (s *System) runTicks() {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	snapTicker := time.NewTicker(s.snapshotInterval)
	defer snapTicker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			s.TickPlans(now)
		case <-snapTicker.C:
			s.saveAllSnapshots()
		}
	}
}

func (s *System) saveAllSnapshots() {
	s.mu.RLock()
	accts := make([]*account.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		accts = append(accts, a)
	}
	s.mu.RUnlock()

	for _, a := range accts {
		if err := s.snapshots.Save(a); err != nil {
			s.logger.Error("save snapshot failed", "account", a.AccountCookie, "error", err)
		}
	}
}

// Stop cancels the background loops, persists a final snapshot of every
// registered account, and waits for goroutines to exit.
func (s *System) Stop() {
	s.cancel()
	s.wg.Wait()
	s.saveAllSnapshots()
}
