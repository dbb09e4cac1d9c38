// orchestrator.go
package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"riskgate/config"
	"riskgate/exchange"
	"riskgate/journal"
	"riskgate/logs"
	"riskgate/market"
	"riskgate/monitor"
	"riskgate/portfolio"
	"riskgate/profit"
	"riskgate/proposer"
	"riskgate/risk"
	"riskgate/state"

	"github.com/google/uuid"
)

// Components are the collaborators the orchestrator drives. NewOrchestrator
// builds them from config; tests hand them in directly.
type Components struct {
	Client    exchange.Client
	Proposer  proposer.Proposer
	Journal   journal.Journal
	Decisions monitor.DecisionSource
	State     state.StateManagerInterface
}

// CycleReport is the outcome of one RunCycle call.
type CycleReport struct {
	CycleID   string
	Skipped   bool
	Proposals []risk.ProposedTrade
	Decisions []risk.Decision
	Entries   []journal.Entry
	Executed  int
}

type Orchestrator struct {
	cfg          *config.Config
	client       exchange.Client
	mock         *exchange.MockClient
	engine       *risk.Engine
	portfolio    *portfolio.Manager
	volatility   *market.VolatilityProvider
	proposer     proposer.Proposer
	journal      journal.Journal
	decisions    monitor.DecisionSource
	stateManager state.StateManagerInterface
	ledger       *profit.Ledger
	ownsLedger   bool
	server       *monitor.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	status monitor.Status
}

// limitsFromConfig maps the YAML risk section onto engine limits.
func limitsFromConfig(r *config.RiskConfig) risk.Limits {
	return risk.Limits{
		MinNotional:         r.MinNotional,
		MaxNotional:         r.MaxNotional,
		MaxPositionFraction: r.MaxPositionPct,
		CooldownWindow:      r.CooldownWindow(),
		MaxTradesPerCycle:   r.MaxTradesPerCycle,
		RiskPerTrade:        r.RiskPerTrade,
		ATRStopMultiple:     r.ATRStopMultiple,
	}
}

// NewOrchestrator builds every component from config. With dryRun set no
// journal sink is opened and the state file is only read, for one-shot
// evaluation from the CLI.
func NewOrchestrator(cfg *config.Config, envCfg *config.EnvConfig, stateFilePath string, dryRun bool) (*Orchestrator, error) {
	var comps Components
	if cfg.UseSimulation {
		mockClient := exchange.NewMockClient(cfg.Universe.StartingCash, cfg.Universe.Prices)
		comps.Client = mockClient
		logs.Warnf("<<<<<<<<<< WARNING: Running in simulation mode >>>>>>>>>>")
	} else {
		if envCfg.ApiKey == "" || envCfg.ApiSecret == "" {
			return nil, fmt.Errorf("ALPACA_API_KEY and ALPACA_SECRET_KEY are required outside simulation mode")
		}
		alpaca := exchange.NewAlpacaClient(envCfg.ApiKey, envCfg.ApiSecret, envCfg.BaseURL, envCfg.DataURL, cfg.Normal.HTTPTimeoutSeconds)
		alpaca.SetFeed(envCfg.DataFeed)
		comps.Client = alpaca
	}

	if dryRun {
		saved, err := state.Load(stateFilePath)
		if err != nil {
			return nil, err
		}
		comps.Journal = journal.NewMulti()
		o, err := newOrchestratorWith(cfg, comps)
		if err != nil {
			return nil, err
		}
		o.restore(saved)
		return o, nil
	}

	stateManager, err := state.NewStateManager(stateFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state manager: %w", err)
	}
	comps.State = stateManager
	logs.Infof("State manager initialized successfully, state will be persisted to: %s", stateFilePath)

	fileProposer, err := proposer.NewFileProposer(cfg.Proposals.InboxDirectory)
	if err != nil {
		return nil, err
	}
	comps.Proposer = fileProposer

	sqliteJournal, err := journal.NewSQLiteJournal(cfg.Journal.SQLitePath)
	if err != nil {
		return nil, err
	}
	comps.Decisions = sqliteJournal
	sinks := []journal.Journal{sqliteJournal}
	if cfg.Journal.KafkaEnabled {
		kafkaJournal, err := journal.NewKafkaJournal(envCfg.KafkaBrokers, cfg.Journal.KafkaTopic)
		if err != nil {
			sqliteJournal.Close()
			return nil, err
		}
		sinks = append(sinks, kafkaJournal)
		logs.Infof("Decisions will also be published to kafka topic %s via %s", cfg.Journal.KafkaTopic, strings.Join(envCfg.KafkaBrokers, ","))
	}
	comps.Journal = journal.NewMulti(sinks...)

	return newOrchestratorWith(cfg, comps)
}

func newOrchestratorWith(cfg *config.Config, comps Components) (*Orchestrator, error) {
	cooldowns := risk.NewCooldownTracker()
	engine, err := risk.NewEngine(limitsFromConfig(cfg.Risk), cooldowns, risk.NewCycleLimiter(cfg.Risk.MaxTradesPerCycle))
	if err != nil {
		return nil, fmt.Errorf("failed to create risk engine: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:          cfg,
		client:       comps.Client,
		engine:       engine,
		portfolio:    portfolio.NewManager(comps.Client),
		volatility:   market.NewVolatilityProvider(comps.Client, cfg.Risk.ATRPeriod, risk.Timeframe(cfg.Risk.VolatilityTimeframe)),
		proposer:     comps.Proposer,
		journal:      comps.Journal,
		decisions:    comps.Decisions,
		stateManager: comps.State,
		ctx:          ctx,
		cancel:       cancel,
	}
	if o.journal == nil {
		o.journal = journal.NewMulti()
	}

	mode := "live"
	if mockClient, ok := comps.Client.(*exchange.MockClient); ok {
		o.mock = mockClient
		o.ledger = mockClient.Ledger()
		mode = "simulation"
	} else {
		o.ledger = profit.NewLedger()
		o.ownsLedger = true
	}
	o.status = monitor.Status{Mode: mode, MaxTradesPerCycle: cfg.Risk.MaxTradesPerCycle}

	if err := o.reconcileState(); err != nil {
		cancel()
		return nil, err
	}
	return o, nil
}

// reconcileState restores cooldowns and cycle bookkeeping from the state file,
// and seeds the live cost-basis ledger from the broker's open positions.
func (o *Orchestrator) reconcileState() error {
	if o.stateManager != nil {
		o.restore(o.stateManager.GetFullState())
	}

	if o.ownsLedger {
		positions, err := o.client.GetPositions(context.Background())
		if err != nil {
			return fmt.Errorf("failed to load positions at startup: %w", err)
		}
		for _, p := range positions {
			o.ledger.Restore(p.Ticker, p.Shares, p.AvgEntryPrice)
		}
		logs.Infof("[Orchestrator] Seeded cost basis for %d open positions", len(positions))
	}
	logs.Info("[Orchestrator] State reconciliation complete.")
	return nil
}

func (o *Orchestrator) restore(st state.AppState) {
	o.engine.Cooldowns().Restore(st.Cooldowns)
	o.status.LastCycleID = st.LastCycleID
	o.status.LastCycleAt = st.LastCycleAt
	o.status.CyclesCompleted = st.CyclesCompleted
	o.status.RealizedPNL = st.RealizedPNL
	logs.Infof("[Orchestrator] Restored %d cooldown entries, %d cycles completed, realized PnL %.2f",
		len(st.Cooldowns), st.CyclesCompleted, st.RealizedPNL)
}

// Evaluate runs proposals through the engine against a fresh snapshot without
// placing orders or journaling. Used by the evaluate command.
func (o *Orchestrator) Evaluate(ctx context.Context, proposals []risk.ProposedTrade) ([]risk.Decision, error) {
	snapshot, err := o.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return o.evaluateAgainst(ctx, snapshot, proposals), nil
}

func (o *Orchestrator) snapshot(ctx context.Context) (risk.PortfolioSnapshot, error) {
	snapshot, err := o.portfolio.Snapshot(ctx)
	if err != nil {
		monitor.RecordError("snapshot")
		return risk.PortfolioSnapshot{}, fmt.Errorf("failed to build portfolio snapshot: %w", err)
	}
	if o.portfolio.IsAccountImpaired() {
		logs.Warnf("[Orchestrator] Account equity is not positive, every buy will be rejected by the exposure guard")
	}
	return snapshot, nil
}

func (o *Orchestrator) evaluateAgainst(ctx context.Context, snapshot risk.PortfolioSnapshot, proposals []risk.ProposedTrade) []risk.Decision {
	tickers := make([]string, 0, len(proposals))
	for _, p := range proposals {
		tickers = append(tickers, risk.NormalizeTicker(p.Ticker))
	}
	vols := o.volatility.Contexts(ctx, tickers)
	return o.engine.EvaluateCycle(proposals, snapshot, vols)
}

type confirmedSell struct {
	ticker string
	at     time.Time
}

// RunCycle pulls proposals, evaluates them as one batch and submits the executable ones.
// The account snapshot is taken before any proposal is consumed, so a broker outage
// leaves the inbox untouched. Once proposals are consumed every decision is journaled,
// even if ctx is cancelled part way through; cancellation only stops new submissions.
func (o *Orchestrator) RunCycle(ctx context.Context) (*CycleReport, error) {
	start := time.Now()
	report := &CycleReport{CycleID: uuid.NewString()}

	open, err := o.client.IsMarketOpen(ctx)
	if err != nil {
		monitor.RecordError("market_clock")
		logs.Warnf("[Orchestrator] Failed to read market clock: %v", err)
	}
	o.mu.Lock()
	o.status.MarketOpen = open
	o.mu.Unlock()
	if o.cfg.Normal.RespectMarketHours && !open {
		logs.Info("[Orchestrator] Market closed, skipping cycle.")
		report.Skipped = true
		return report, nil
	}

	if o.proposer == nil {
		return nil, errors.New("no proposer configured")
	}
	snapshot, err := o.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	proposals, err := o.proposer.Propose(ctx)
	if err != nil {
		monitor.RecordError("proposer")
		if len(proposals) == 0 {
			return nil, fmt.Errorf("failed to collect proposals: %w", err)
		}
		// Files already consumed must not be dropped.
		logs.Errorf("[Orchestrator] Proposer stopped after %d trades, evaluating those: %v", len(proposals), err)
	}
	report.Proposals = proposals
	if len(proposals) == 0 {
		logs.Debug("[Orchestrator] No proposals this cycle.")
		o.finishCycle(report, start)
		return report, nil
	}

	decisions := o.evaluateAgainst(ctx, snapshot, proposals)
	report.Decisions = decisions

	recordCtx := context.WithoutCancel(ctx)
	realizedBefore := o.ledger.RealizedPNL()
	var sells []confirmedSell
	for i, d := range decisions {
		entry := journal.NewEntry(report.CycleID, time.Now(), proposals[i], d)
		monitor.RecordDecision(d)

		if d.Executable() {
			if ctx.Err() != nil {
				entry.OrderStatus = "not_submitted"
				entry.Detail = strings.TrimSpace(entry.Detail + " cycle cancelled before submission")
			} else if filled, at := o.execute(ctx, d, &entry); filled {
				report.Executed++
				if d.Side == risk.Sell {
					sells = append(sells, confirmedSell{ticker: d.Ticker, at: at})
				}
			}
		}

		if err := o.journal.Record(recordCtx, entry); err != nil {
			monitor.RecordError("journal")
			logs.Errorf("[Orchestrator] Failed to journal decision %s: %v", entry.ID, err)
		}
		report.Entries = append(report.Entries, entry)
	}

	// Sells only gate later cycles; this batch was evaluated against the opening state.
	for _, s := range sells {
		o.engine.Cooldowns().RecordSell(s.ticker, s.at)
		if o.stateManager != nil {
			if err := o.stateManager.RecordSell(s.ticker, s.at); err != nil {
				monitor.RecordError("state")
				logs.Errorf("[Orchestrator] Failed to persist cooldown for %s: %v", s.ticker, err)
			}
		}
	}
	if pnl := o.ledger.RealizedPNL() - realizedBefore; pnl != 0 && o.stateManager != nil {
		if err := o.stateManager.UpdateRealizedPNL(pnl); err != nil {
			monitor.RecordError("state")
			logs.Errorf("[Orchestrator] Failed to persist realized PnL: %v", err)
		}
	}

	o.finishCycle(report, start)
	return report, nil
}

// execute submits one market order and stamps the outcome on the entry.
// An order the broker accepted counts as executed even before it fills.
func (o *Orchestrator) execute(ctx context.Context, d risk.Decision, entry *journal.Entry) (bool, time.Time) {
	side := exchange.Buy
	if d.Side == risk.Sell {
		side = exchange.Sell
	}
	order, err := o.client.PlaceOrder(ctx, &exchange.Order{
		ClientOrderID: entry.ID,
		Ticker:        d.Ticker,
		Side:          side,
		Type:          exchange.Market,
		TimeInForce:   "day",
		Shares:        d.Shares,
	})
	if err != nil {
		monitor.RecordError("order")
		logs.Errorf("[Orchestrator] Order for %s %d %s failed: %v", d.Side, d.Shares, d.Ticker, err)
		entry.OrderStatus = "failed"
		entry.Detail = strings.TrimSpace(entry.Detail + " order failed: " + err.Error())
		return false, time.Time{}
	}

	entry.OrderID = order.ID
	entry.OrderStatus = string(order.Status)
	entry.FillPrice = order.FilledAvgPrice
	logs.WithFields(logs.Fields{
		"ticker": d.Ticker, "side": d.Side, "shares": d.Shares, "order_id": order.ID, "status": order.Status,
	}).Info("[Orchestrator] Order submitted")

	if order.Status == exchange.Rejected || order.Status == exchange.Canceled {
		return false, time.Time{}
	}
	at := order.SubmittedAt
	if at.IsZero() {
		at = time.Now()
	}
	if o.ownsLedger && order.IsFilled() {
		o.ledger.RecordFill(profit.Fill{
			Ticker:    d.Ticker,
			Side:      string(d.Side),
			Price:     order.FilledAvgPrice,
			Shares:    order.FilledShares,
			Timestamp: at,
			OrderID:   order.ID,
		})
	}
	return true, at
}

func (o *Orchestrator) finishCycle(report *CycleReport, start time.Time) {
	if o.stateManager != nil {
		if err := o.stateManager.RecordCycle(report.CycleID); err != nil {
			monitor.RecordError("state")
			logs.Errorf("[Orchestrator] Failed to persist cycle %s: %v", report.CycleID, err)
		}
	}
	now := time.Now()
	active := o.engine.Cooldowns().ActiveCount(o.engine.Now(), o.engine.Limits().CooldownWindow)
	monitor.ObserveCycle(now.Sub(start), report.Executed)
	monitor.SetActiveCooldowns(active)

	o.mu.Lock()
	o.status.LastCycleID = report.CycleID
	o.status.LastCycleAt = now
	o.status.CyclesCompleted++
	o.status.LastExecuted = report.Executed
	if o.stateManager != nil {
		o.status.RealizedPNL = o.stateManager.GetFullState().RealizedPNL
	}
	o.mu.Unlock()

	logs.Infof("[Orchestrator] Cycle %s done in %s: %d proposals, %d executed, %d active cooldowns",
		report.CycleID, now.Sub(start).Round(time.Millisecond), len(report.Proposals), report.Executed, active)
}

// Status implements monitor.StatusProvider.
func (o *Orchestrator) Status() monitor.Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}

func (o *Orchestrator) Start() {
	o.mu.Lock()
	o.status.Running = true
	mode := o.status.Mode
	o.mu.Unlock()

	if o.mock != nil {
		o.mock.Start(time.Second)
	}
	if addr := o.cfg.Monitor.ListenAddr; addr != "" {
		o.server = monitor.NewServer(o, o.decisions, o.engine.Cooldowns(), o.engine.Limits().CooldownWindow)
		o.server.Start(addr)
	}

	interval := time.Duration(o.cfg.Normal.CycleIntervalSeconds) * time.Second
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if _, err := o.RunCycle(o.ctx); err != nil && !errors.Is(err, context.Canceled) {
				logs.Errorf("[Orchestrator] Cycle failed: %v", err)
			}
			select {
			case <-o.ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	logs.Infof("Risk gate started in %s mode, cycle every %s, press Ctrl+C to exit.", mode, interval)
}

func (o *Orchestrator) Stop() {
	logs.Info("Received close signal, starting graceful shutdown...")

	// Send cancellation signal to all goroutines
	o.cancel()
	// Wait for the cycle loop to complete
	o.wg.Wait()

	o.mu.Lock()
	o.status.Running = false
	o.mu.Unlock()

	if o.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := o.server.Shutdown(ctx); err != nil {
			logs.Errorf("Failed to shut down status server: %v", err)
		}
		cancel()
	}
	if o.mock != nil {
		o.mock.Stop()
	}

	o.printFinalSummary()

	if err := o.journal.Close(); err != nil {
		logs.Errorf("Failed to close decision journal: %v", err)
	}
	logs.Info("All services stopped successfully.")
}

func (o *Orchestrator) printFinalSummary() {
	logs.Info("\n--- Final Summary ---")
	st := o.Status()
	logs.Infof("Cycles completed: %d, last cycle %s", st.CyclesCompleted, st.LastCycleID)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, ticker := range o.ledger.Tickers() {
		if price, err := o.client.GetLatestPrice(ctx, ticker); err == nil {
			o.ledger.Mark(ticker, price)
		}
		pos := o.ledger.Position(ticker)
		logs.Infof("%-6s shares %6d  avg cost %10.2f  realized %10.2f  unrealized %10.2f",
			ticker, pos.Shares, pos.AverageCost, pos.RealizedProfit, pos.UnrealizedProfit)
	}
	logs.Info("--------------------")
	logs.Infof("Realized PnL (all sessions): %.2f", st.RealizedPNL)
	logs.Info("--------------------")
}

// stateFilePath places the state file inside the configured state directory.
func stateFilePath(cfg *config.Config) string {
	return filepath.Join(cfg.Normal.StateDirectory, "riskgate_state.json")
}
