// Package engine implements the Orchestrator of §4.11: the single-threaded
// cooperative event loop that owns every subsystem and is the only caller of
// the strategy's callbacks. Generalizes the teacher's bot.Bot run loop
// (internal/engine's deleted predecessor drove a live WebSocket reconnect
// loop calling into risk/strategy/exchange) into a deterministic replay loop
// driven entirely by a recorded dataset and a min-heap EventQueue.
package engine

import (
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"sort"

	"backtestv2/internal/book"
	"backtestv2/internal/clock"
	"backtestv2/internal/config"
	"backtestv2/internal/errs"
	"backtestv2/internal/fillgate"
	"backtestv2/internal/fingerprint"
	"backtestv2/internal/fixedpoint"
	"backtestv2/internal/gate"
	"backtestv2/internal/hermetic"
	"backtestv2/internal/integrity"
	"backtestv2/internal/invariant"
	"backtestv2/internal/ledger"
	"backtestv2/internal/oms"
	"backtestv2/internal/sensitivity"
	"backtestv2/internal/settlement"
	"backtestv2/internal/strategy"
	"backtestv2/internal/trust"
	"backtestv2/pkg/types"
)

// Orchestrator owns every subsystem for one run and is never reused across
// runs — §5 requires a fresh instance per sensitivity-sweep point so
// concurrent sweep points share no mutable state.
type Orchestrator struct {
	cfg    *config.Config
	logger *slog.Logger

	eventQueue *clock.EventQueue
	watermark  *clock.Watermark
	book       *book.Manager
	queueModel *book.QueueModel
	oms        *oms.OMS
	ledger     *ledger.Ledger
	settlement *settlement.Engine
	invariants *invariant.Enforcer
	fillGate   *fillgate.Gate
	guard      *integrity.Guard
	fp         *fingerprint.Collector
	hermeticEnforcer *hermetic.Enforcer
	strategyCtx      *hermetic.StrategyContext
	strategy         strategy.Strategy

	nextTimerId     uint64
	cancelledTimers map[uint64]struct{}

	eventsProcessed int64
	aborted         bool
	abortReason     string

	resolvedMarketIds []types.MarketId

	fillIdSeq      uint64
	makerFillCount int64
	takerFillCount int64

	equityCurve []EquityPoint
	windowPnL   []WindowPnL

	recentEvents []string
	datasetHash  string
}

// New constructs a fresh Orchestrator from a validated config. Callers must
// have already called cfg.Validate() and confirmed it returned no errors.
func New(cfg *config.Config, strat strategy.Strategy, logger *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		cfg:             cfg,
		logger:          logger,
		eventQueue:      clock.NewEventQueue(),
		watermark:       clock.NewWatermark(cfg.StrictMode),
		book:            book.NewManager(),
		queueModel:      book.NewQueueModel(),
		oms:             oms.New(cfg.VenueConstraintsValue()),
		ledger:          ledger.New(!cfg.StrictAccounting, false),
		settlement:      settlement.New(settlement.Spec{WindowLengthNs: types.Nanos(cfg.Settlement.WindowLengthSeconds * 1_000_000_000), ReferenceRule: cfg.SettlementReferenceRule(), TieRule: settlement.TieNoWins, FeedId: cfg.Settlement.FeedId, ProductionGrade: cfg.ProductionGrade}),
		invariants:      invariant.New(cfg.InvariantMode(), nil),
		fillGate:        fillgate.New(cfg.MakerFillModelValue(), cfg.ProductionGrade),
		guard:           integrity.NewGuard(cfg.IntegrityPolicy()),
		fp:              fingerprint.NewCollector(),
		hermeticEnforcer: hermetic.New(cfg.Hermetic.Enabled),
		strategy:        strat,
		cancelledTimers: make(map[uint64]struct{}),
	}
	o.strategyCtx = hermetic.NewStrategyContext(cfg.Seed, "strategy", &orderSender{o: o}, nil)
	return o
}

// Queue exposes the EventQueue for dataset loaders (internal/replay) to push
// historical events onto directly, without requiring every payload kind to
// grow its own PushXxx wrapper on Orchestrator.
func (o *Orchestrator) Queue() *clock.EventQueue { return o.eventQueue }

// SetDatasetHash records the hash of the dataset manifest (from
// store.Dataset.Manifest) this run replayed, so it can be bound into the
// composite fingerprint. Optional: a run that never calls this reports an
// empty DatasetHash component rather than failing.
func (o *Orchestrator) SetDatasetHash(hash string) { o.datasetHash = hash }

// OpenMarket registers a 15-minute settlement window and marks its market as
// one the oracle-round dispatch loop should attempt to resolve. Must be
// called before Run for every market present in the dataset being replayed.
func (o *Orchestrator) OpenMarket(market types.MarketId, startNs, endNs types.Nanos) {
	o.settlement.OpenWindow(market, startNs, endNs)
	o.resolvedMarketIds = append(o.resolvedMarketIds, market)
}

// Run drives the event loop to completion (§4.11 step 5) or to the first
// Hard-mode / production abort, then runs the gate suite and builds the final
// Result. No sensitivity sweep is run: Result.Sensitivity is left as an empty
// FragilityReport.
func (o *Orchestrator) Run() Result {
	proof := hermetic.NewDecisionProof()
	o.strategy.OnStart(o.strategyCtx, proof)
	if err := o.hermeticEnforcer.CheckProof(proof); err != nil {
		return o.abortResult(err)
	}

	for o.eventQueue.Len() > 0 && o.eventsProcessed < o.cfg.MaxEvents {
		e := o.eventQueue.Pop()
		if e == nil {
			break
		}

		o.watermark.Advance(e.ArrivalTime)

		if err := o.dispatch(e); err != nil {
			return o.abortResult(err)
		}
		o.eventsProcessed++
	}

	stopProof := hermetic.NewDecisionProof()
	o.strategy.OnStop(o.strategyCtx, stopProof)
	if err := o.hermeticEnforcer.CheckProof(stopProof); err != nil {
		return o.abortResult(err)
	}

	return o.buildResult()
}

// causalDumpSize bounds the ring buffers abortResult attaches to a failed
// run's Result — enough trailing context to diagnose the abort without
// carrying the whole run's history into every Result.
const causalDumpSize = 32

func (o *Orchestrator) recordRecentEvent(e *clock.Event) {
	desc := fmt.Sprintf("t=%d pri=%d src=%s kind=%v", e.ArrivalTime, e.Priority, e.SourceTag, e.Kind)
	o.recentEvents = append(o.recentEvents, desc)
	if len(o.recentEvents) > causalDumpSize {
		o.recentEvents = o.recentEvents[len(o.recentEvents)-causalDumpSize:]
	}
}

func (o *Orchestrator) dispatch(e *clock.Event) error {
	o.fp.Absorb(canonicalizeEvent(e))
	o.recordRecentEvent(e)

	switch e.Kind {
	case types.PayloadL2BookSnapshot:
		return o.dispatchSnapshot(e)
	case types.PayloadL2BookDelta:
		return o.dispatchDelta(e)
	case types.PayloadTradePrint:
		return o.dispatchTrade(e)
	case types.PayloadOrderAck:
		return o.dispatchOrderAck(e)
	case types.PayloadOrderReject:
		return o.dispatchOrderReject(e)
	case types.PayloadFill:
		return o.dispatchFill(e)
	case types.PayloadCancelAck:
		return o.dispatchCancelAck(e)
	case types.PayloadTimer:
		return o.dispatchTimer(e)
	case types.PayloadOracleRound:
		return o.dispatchOracleRound(e)
	default:
		return errs.New(errs.KindBookViolation, fmt.Sprintf("unrecognized payload kind %v", e.Kind))
	}
}

func (o *Orchestrator) dispatchSnapshot(e *clock.Event) error {
	snap := e.Payload.(types.L2BookSnapshot)
	key := integrity.StreamKey{StreamKind: "book_snapshot", Token: string(snap.TokenId)}
	drop, err := o.guard.Check(key, snap.ExchangeSeq, "")
	if err != nil {
		return err
	}
	if drop {
		return nil
	}
	if err := o.book.ApplySnapshot(snap); err != nil {
		if chkErr := o.invariants.Check(invariant.CategoryBook, false, errs.KindBookViolation, err.Error()); chkErr != nil {
			return chkErr
		}
		return nil
	}
	proof := hermetic.NewDecisionProof()
	s, _ := o.book.Get(snap.TokenId)
	o.strategy.OnBookUpdate(o.strategyCtx, proof, toBookView(s))
	return o.hermeticEnforcer.CheckProof(proof)
}

func (o *Orchestrator) dispatchDelta(e *clock.Event) error {
	d := e.Payload.(types.L2BookDelta)
	key := integrity.StreamKey{StreamKind: "book_delta", Token: string(d.TokenId)}
	drop, err := o.guard.Check(key, int64(e.Seq), d.SeqHash)
	if err != nil {
		return err
	}
	if drop {
		return nil
	}
	before, _ := o.book.Get(d.TokenId)
	var beforeSize float64
	if before != nil {
		beforeSize = levelSize(before, d.Side, d.Price)
	}
	if err := o.book.ApplyDelta(d); err != nil {
		if chkErr := o.invariants.Check(invariant.CategoryBook, false, errs.KindBookViolation, err.Error()); chkErr != nil {
			return chkErr
		}
		return nil
	}
	if beforeSize > d.NewSize {
		remainder := o.queueModel.OnLevelDecrement(d.Price, d.Side, beforeSize-d.NewSize)
		for id, r := range remainder {
			o.oms.ReduceLeaves(id, r)
		}
	}
	proof := hermetic.NewDecisionProof()
	s, _ := o.book.Get(d.TokenId)
	o.strategy.OnBookUpdate(o.strategyCtx, proof, toBookView(s))
	return o.hermeticEnforcer.CheckProof(proof)
}

func levelSize(s *book.Snapshot, side types.Side, price float64) float64 {
	levels := s.Asks
	if side == types.Buy {
		levels = s.Bids
	}
	for _, lv := range levels {
		if lv.Price == price {
			return lv.Size
		}
	}
	return 0
}

func (o *Orchestrator) dispatchTrade(e *clock.Event) error {
	print := e.Payload.(types.TradePrint)
	key := integrity.StreamKey{StreamKind: "trade_print", Token: string(print.TokenId)}
	drop, err := o.guard.Check(key, int64(e.Seq), print.ExchangeTradeId)
	if err != nil {
		return err
	}
	if drop {
		return nil
	}

	if err := o.matchMakerFillsAgainstTrade(e.ArrivalTime, print); err != nil {
		return err
	}

	proof := hermetic.NewDecisionProof()
	o.strategy.OnTrade(o.strategyCtx, proof, print)
	return o.hermeticEnforcer.CheckProof(proof)
}

// matchMakerFillsAgainstTrade consumes queue position for every resting
// order at the trade's price and, once a consumed order is Eligible,
// submits it to the MakerFillGate before it may credit the ledger (§4.6).
func (o *Orchestrator) matchMakerFillsAgainstTrade(arrival types.Nanos, print types.TradePrint) error {
	open := o.oms.AllOpenOrders()
	ids := make([]types.OrderId, 0, len(open))
	for id := range open {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		ord := open[id]
		if ord.TokenId != print.TokenId || ord.LimitPrice != print.Price {
			continue
		}
		entry, ok := o.queueModel.Get(id)
		if !ok {
			continue
		}
		o.queueModel.OnTradeConsume(id, print.Size)
		if !entry.Eligible() {
			continue
		}
		candidate := fillgate.Candidate{
			OrderId: id,
			Size:    ord.Leaves(),
			QueueProof: fillgate.QueueProof{
				QueueAheadAtAdmission: entry.OriginalQueueAhead,
				ConsumedTotal:         entry.OriginalQueueAhead - entry.QueueAhead,
			},
			CancelProof: fillgate.CancelRaceProof{HasCancelRequest: ord.State == oms.StatePendingCancel},
		}
		admitted, err := o.fillGate.Admit(candidate)
		if err != nil {
			return err
		}
		if !admitted {
			continue
		}
		if err := o.applyFill(arrival, id, ord, ord.Leaves(), true); err != nil {
			return err
		}
		o.queueModel.Remove(id)
	}
	return nil
}

// applyFill is the single path by which a fill (maker or taker) credits the
// ledger, transitions the OMS order, and notifies the strategy (§4.6's "sole
// mutator" guarantee).
func (o *Orchestrator) applyFill(arrival types.Nanos, orderId types.OrderId, ord *oms.Order, size float64, isMaker bool) error {
	market := types.MarketId(ord.TokenId)
	outcome := types.OutcomeYes
	price := fixedpoint.FromFloat(ord.LimitPrice)
	qty := int64(size)
	notional := price.MulInt(qty)
	fee := notional.MulInt(int64(o.cfg.VenueConstraints.FeeRateBps)).DivInt(10_000)

	var err error
	if ord.Side == types.Buy {
		_, err = o.ledger.PostBuyFill(o.watermark.DecisionTime(), arrival, types.FillId(o.nextFillId()), market, outcome, qty, price, fee)
	} else {
		avgCost := o.ledger.AvgCost(market, outcome)
		_, err = o.ledger.PostSellFill(o.watermark.DecisionTime(), arrival, types.FillId(o.nextFillId()), market, outcome, qty, price, avgCost, fee)
	}
	if err != nil {
		return err
	}
	o.oms.ApplyFill(orderId, size)
	if isMaker {
		o.makerFillCount++
	} else {
		o.takerFillCount++
	}

	fillEvt := types.Fill{OrderId: orderId, TokenId: ord.TokenId, MarketId: market, Side: ord.Side, Price: ord.LimitPrice, Size: size, FeeRateBps: o.cfg.VenueConstraints.FeeRateBps, IsMaker: isMaker}
	proof := hermetic.NewDecisionProof()
	o.strategy.OnFill(o.strategyCtx, proof, fillEvt)
	return o.hermeticEnforcer.CheckProof(proof)
}

func (o *Orchestrator) nextFillId() uint64 {
	o.fillIdSeq++
	return o.fillIdSeq
}

func (o *Orchestrator) dispatchOrderAck(e *clock.Event) error {
	ack := e.Payload.(types.OrderAck)
	if !o.oms.Ack(ack.OrderId) {
		return o.invariants.Check(invariant.CategoryOMS, false, errs.KindOmsViolation, "ack for order not in PendingAck")
	}
	proof := hermetic.NewDecisionProof()
	o.strategy.OnOrderAck(o.strategyCtx, proof, ack)
	return o.hermeticEnforcer.CheckProof(proof)
}

func (o *Orchestrator) dispatchOrderReject(e *clock.Event) error {
	reject := e.Payload.(types.OrderReject)
	proof := hermetic.NewDecisionProof()
	o.strategy.OnOrderReject(o.strategyCtx, proof, reject)
	return o.hermeticEnforcer.CheckProof(proof)
}

// dispatchFill handles a synthetic taker fill scheduled by handleSendOrder
// (an order that crossed the book on arrival never goes through the
// MakerFillGate — it fills immediately at its own limit price).
func (o *Orchestrator) dispatchFill(e *clock.Event) error {
	fill := e.Payload.(types.Fill)
	ord, ok := o.oms.Get(fill.OrderId)
	if !ok {
		return nil
	}
	return o.applyFill(e.ArrivalTime, fill.OrderId, ord, fill.Size, false)
}

func (o *Orchestrator) dispatchCancelAck(e *clock.Event) error {
	ack := e.Payload.(types.CancelAck)
	o.oms.CancelAck(ack.OrderId)
	o.queueModel.Remove(ack.OrderId)
	proof := hermetic.NewDecisionProof()
	o.strategy.OnCancelAck(o.strategyCtx, proof, ack)
	return o.hermeticEnforcer.CheckProof(proof)
}

func (o *Orchestrator) dispatchTimer(e *clock.Event) error {
	timer := e.Payload.(types.TimerEvent)
	if _, cancelled := o.cancelledTimers[timer.TimerId]; cancelled {
		return nil
	}
	proof := hermetic.NewDecisionProof()
	o.strategy.OnTimer(o.strategyCtx, proof, timer)
	return o.hermeticEnforcer.CheckProof(proof)
}

func (o *Orchestrator) dispatchOracleRound(e *clock.Event) error {
	round := e.Payload.(types.OracleRound)
	o.settlement.ObserveRound(round, e.ArrivalTime)
	for _, market := range o.resolvedMarketIds {
		w, err := o.settlement.TryResolve(market, o.watermark.DecisionTime(), e.ArrivalTime)
		if err != nil {
			return err
		}
		if w != nil && w.Status == settlement.StatusResolved {
			if err := o.settleMarket(e.ArrivalTime, w); err != nil {
				return err
			}
		}
	}
	return nil
}

// settleMarket writes off the market's entire Yes position (every fill is
// booked under OutcomeYes in applyFill, whichever side traded it) at the
// window's resolved outcome: full payout when the window resolved Yes, zero
// payout — the held position's whole cost basis realized as a loss — when it
// resolved No. Either way Position(market, Yes) goes to 0. Only windows with
// StatusResolved are passed here (an Invalid window leaves the position
// open), and a market with no Yes position is skipped.
func (o *Orchestrator) settleMarket(arrival types.Nanos, w *settlement.Window) error {
	outcome := types.OutcomeYes
	qty := o.ledger.Position(w.MarketId, outcome)
	if qty == 0 {
		return nil
	}
	payout := fixedpoint.Zero()
	if w.Outcome == types.OutcomeYes {
		payout = fixedpoint.FromInt(1).MulInt(qty)
	}
	costBasis := o.ledger.AvgCost(w.MarketId, outcome).MulInt(qty)
	_, err := o.ledger.PostSettlement(o.watermark.DecisionTime(), arrival, fmt.Sprintf("%s-%d", w.MarketId, w.EndNs), w.MarketId, outcome, payout, costBasis)
	if err != nil {
		return err
	}

	o.windowPnL = append(o.windowPnL, WindowPnL{MarketId: string(w.MarketId), PnL: payout.Sub(costBasis)})
	o.equityCurve = append(o.equityCurve, EquityPoint{
		SimTimeNs: int64(arrival),
		Equity:    o.ledger.Balance(ledgerCashAccount()),
	})
	return nil
}

func (o *Orchestrator) handleSendOrder(clientOrderId string, tokenId types.TokenId, side types.Side, price, size float64) {
	isMaker := o.isPassive(tokenId, side, price)
	ord, reject := o.oms.SendOrder(int64(o.watermark.DecisionTime()), clientOrderId, tokenId, side, price, size, isMaker)
	if reject != nil {
		o.eventQueue.Push(&clock.Event{
			ArrivalTime: o.watermark.DecisionTime() + types.Nanos(o.cfg.Latency.OrderToAckNs),
			Priority:    types.PrioritySystem,
			SourceTag:   "oms",
			Kind:        types.PayloadOrderReject,
			Payload:     *reject,
		})
		return
	}
	ackArrival := o.watermark.DecisionTime() + types.Nanos(o.cfg.Latency.OrderToAckNs)
	o.eventQueue.Push(&clock.Event{
		ArrivalTime: ackArrival,
		Priority:    types.PrioritySystem,
		SourceTag:   "oms",
		Kind:        types.PayloadOrderAck,
		Payload:     types.OrderAck{OrderId: ord.OrderId, ClientOrderId: clientOrderId},
	})
	if isMaker {
		o.queueModel.Admit(ord.OrderId, price, side, o.externalSizeAtLevel(tokenId, side, price))
	} else {
		o.eventQueue.Push(&clock.Event{
			ArrivalTime: ackArrival,
			Priority:    types.PrioritySystem,
			SourceTag:   "oms",
			Kind:        types.PayloadFill,
			Payload:     types.Fill{OrderId: ord.OrderId, TokenId: tokenId, MarketId: types.MarketId(tokenId), Side: side, Price: price, Size: size, IsMaker: false},
		})
	}
}

func (o *Orchestrator) handleSendCancel(orderId types.OrderId) {
	reject := o.oms.RequestCancel(int64(o.watermark.DecisionTime()), orderId)
	if reject != nil {
		return
	}
	o.eventQueue.Push(&clock.Event{
		ArrivalTime: o.watermark.DecisionTime() + types.Nanos(o.cfg.Latency.CancelToAckNs),
		Priority:    types.PrioritySystem,
		SourceTag:   "oms",
		Kind:        types.PayloadCancelAck,
		Payload:     types.CancelAck{OrderId: orderId},
	})
}

// isPassive reports whether an order at (side, price) would rest rather than
// cross the book immediately: a buy below best ask, or a sell above best
// bid, is passive.
func (o *Orchestrator) isPassive(tokenId types.TokenId, side types.Side, price float64) bool {
	s, ok := o.book.Get(tokenId)
	if !ok {
		return true
	}
	if side == types.Buy {
		ask, hasAsk := s.BestAsk()
		return !hasAsk || price < ask.Price
	}
	bid, hasBid := s.BestBid()
	return !hasBid || price > bid.Price
}

func (o *Orchestrator) externalSizeAtLevel(tokenId types.TokenId, side types.Side, price float64) float64 {
	s, ok := o.book.Get(tokenId)
	if !ok {
		return 0
	}
	return levelSize(s, side, price)
}

func toBookView(s *book.Snapshot) strategy.BookView {
	if s == nil {
		return strategy.BookView{}
	}
	return strategy.BookView{TokenId: s.TokenId, Bids: s.Bids, Asks: s.Asks}
}

// canonicalizeEvent produces the rolling-hash input for one event: the
// ordering quadruple plus the payload rendered with fmt's %v verb. Float
// prices and sizes appear as fmt prints them; they are not converted to
// round(x*1e8) integers first.
func canonicalizeEvent(e *clock.Event) []byte {
	return []byte(fmt.Sprintf("%d|%d|%s|%d|%v", e.ArrivalTime, e.Priority, e.SourceTag, e.Kind, e.Payload))
}

func (o *Orchestrator) abortResult(err error) Result {
	o.aborted = true
	o.abortReason = err.Error()
	return o.buildResult()
}

// causalDump snapshots the trailing event and ledger context at abort time.
func (o *Orchestrator) causalDump() *CausalDump {
	entries := o.ledger.Entries()
	start := 0
	if len(entries) > causalDumpSize {
		start = len(entries) - causalDumpSize
	}
	ledgerLines := make([]string, 0, len(entries)-start)
	for _, e := range entries[start:] {
		ledgerLines = append(ledgerLines, fmt.Sprintf("entry=%d sim_t=%d ref=%s postings=%d", e.EntryId, e.SimTime, refKeyString(e.EventRef), len(e.Postings)))
	}
	return &CausalDump{
		RecentEvents:        append([]string(nil), o.recentEvents...),
		RecentLedgerEntries: ledgerLines,
	}
}

func refKeyString(ref ledger.EventRef) string {
	return fmt.Sprintf("%d:%s", ref.Kind, ref.SourceId)
}

func (o *Orchestrator) buildResult() Result {
	builder := trust.NewBuilder()
	if o.aborted {
		builder.MarkHardAbort()
	}
	if !o.invariants.AllClean() {
		builder.MarkSoftModeViolations()
	}
	if o.cfg.MakerFillModelValue() == fillgate.Optimistic {
		builder.MarkOptimisticMakerFillModel()
	}

	gateMode := gateModeFromString(o.cfg.GateMode)
	var gateRes gate.Result
	if gateMode != gate.Disabled {
		var gateAbort bool
		gateRes, gateAbort = gate.NewSuite(gateMode).Run(gate.DefaultZeroEdgeConfig())
		if gateAbort {
			builder.MarkGateSuiteFailed()
			o.aborted = true
		} else if !gateRes.Passed {
			builder.MarkGateSuiteFailed()
		}
	}

	cert := builder.Build()

	finalCash := o.ledger.Balance(ledgerCashAccount())
	realized := o.ledger.Balance(ledgerRealizedPnLAccount())
	fees := o.ledger.Balance(ledgerFeesPaidAccount())

	return Result{
		OperatingMode: operatingModeLabel(o.cfg),
		Counters: Counters{
			EventsProcessed:   o.eventsProcessed,
			MakerFills:        o.makerFillCount,
			TakerFills:        o.takerFillCount,
			OMSStats:          o.oms.Stats(),
			FillGateStats:     o.fillGate.Stats(),
			IntegrityCounters: o.guard.Counters(),
			InvariantCounters: o.invariants.Counters(),
		},
		Economics: EconomicOutputs{
			FinalCash:       finalCash,
			RealizedPnL:     realized,
			UnrealizedPnL:   o.unrealizedPnL(),
			TotalFees:       fees,
			EquityCurve:     o.equityCurve,
			WindowPnLSeries: o.windowPnL,
			MaxDrawdown:     maxDrawdown(o.equityCurve),
			Sharpe:          sharpeRatio(o.windowPnL),
		},
		Integrity: IntegrityOutputs{
			DatasetClassification: datasetClassification(o.guard.Counters(), o.aborted),
			DatasetReady:          !o.aborted,
			Certificate:           cert,
			Disclaimers:           disclaimersFor(cert),
		},
		Fingerprint: buildFingerprint(o),
		GateResult:  gateRes,
		Sensitivity: sensitivity.FragilityReport{},
		Aborted:     o.aborted,
		AbortReason: o.abortReason,
		CausalDump:  causalDumpIfAborted(o),
	}
}

// buildFingerprint binds code, config, dataset, seed, and observed behavior
// into the composite hash of §9: changing the reference rule, tie rule, or
// any oracle setting changes ConfigHash and therefore CompositeHash even
// when doing so happens not to alter the dispatched event stream itself.
func buildFingerprint(o *Orchestrator) RunFingerprint {
	rolling := o.fp.RollingHash()
	code := codeVersion()
	configHash := o.cfg.Hash()
	return RunFingerprint{
		RollingHash: rolling,
		CodeVersion: code,
		ConfigHash:  configHash,
		DatasetHash: o.datasetHash,
		CompositeHash: fingerprint.Composite(fingerprint.CompositeInputs{
			CodeVersion: code,
			ConfigHash:  configHash,
			DatasetHash: o.datasetHash,
			Seed:        o.cfg.Seed,
			RollingHash: rolling,
		}),
	}
}

// codeVersion reports the module's VCS revision when the binary was built
// from one (Go embeds this in build info automatically), falling back to
// the module version string, and finally "unknown" when neither is present
// (e.g. `go run` against an un-vendored, un-tagged tree).
func codeVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	if info.Main.Version != "" {
		return info.Main.Version
	}
	return "unknown"
}

func causalDumpIfAborted(o *Orchestrator) *CausalDump {
	if !o.aborted {
		return nil
	}
	return o.causalDump()
}

func gateModeFromString(s string) gate.Mode {
	switch s {
	case "skip":
		return gate.Disabled
	case "advisory":
		return gate.Permissive
	default:
		return gate.Strict
	}
}

// datasetClassification summarizes the StreamIntegrityGuard's counters into
// the single label the §6 integrity-outputs block reports: clean (no
// duplicates, gaps, or reordering seen), degraded (some seen but the guard
// never halted), or halted (the guard's policy forced a stop, or the run
// aborted for any other reason).
func datasetClassification(c integrity.Counters, aborted bool) string {
	if c.Halted || aborted {
		return "halted"
	}
	if c.DuplicatesDropped > 0 || c.GapsDetected > 0 || c.OutOfOrderDetected > 0 {
		return "degraded"
	}
	return "clean"
}

func disclaimersFor(cert trust.Certificate) trust.Disclaimers {
	notes := make([]string, 0, len(cert.Reasons))
	for _, r := range cert.Reasons {
		switch r {
		case trust.ReasonOptimisticMakerFillModel:
			notes = append(notes, "maker fills were granted optimistically; fill rates are not venue-realistic")
		case trust.ReasonSoftModeViolations:
			notes = append(notes, "one or more invariants were violated in soft mode and logged rather than aborting")
		case trust.ReasonGateSuiteFailed:
			notes = append(notes, "the zero-edge gate suite found an exploitable timing or lookahead artifact")
		case trust.ReasonSensitivityFragile:
			notes = append(notes, "results are sensitive to latency jitter or sampling perturbation within the tested bounds")
		case trust.ReasonDatasetIncomplete:
			notes = append(notes, "the dataset did not cover the full requested window")
		case trust.ReasonHardAbort:
			notes = append(notes, "the run aborted before completion; reported numbers reflect a partial run")
		}
	}
	return trust.Disclaimers{Notes: notes}
}

// unrealizedPnL marks every still-open position to the current best bid
// (the price it could actually be exited at), falling back to its average
// cost — zero mark-to-market — when the book has no bid yet.
func (o *Orchestrator) unrealizedPnL() fixedpoint.Amount {
	total := fixedpoint.Zero()
	for _, p := range o.ledger.OpenPositions() {
		avgCost := o.ledger.AvgCost(p.Market, p.Outcome)
		mark := avgCost
		if snap, ok := o.book.Get(types.TokenId(p.Market)); ok {
			if bid, hasBid := snap.BestBid(); hasBid {
				mark = fixedpoint.FromFloat(bid.Price)
			}
		}
		total = total.Add(mark.Sub(avgCost).MulInt(p.Qty))
	}
	return total
}

// maxDrawdown walks the equity curve once, tracking peak-to-date equity and
// the largest peak-to-current shortfall seen.
func maxDrawdown(curve []EquityPoint) fixedpoint.Amount {
	if len(curve) == 0 {
		return fixedpoint.Zero()
	}
	peak := curve[0].Equity
	worst := fixedpoint.Zero()
	for _, p := range curve {
		if p.Equity.Cmp(peak) > 0 {
			peak = p.Equity
		}
		dd := peak.Sub(p.Equity)
		if dd.Cmp(worst) > 0 {
			worst = dd
		}
	}
	return worst
}

// sharpeRatio computes the per-window-return Sharpe ratio (mean over sample
// stddev, annualization left to the reader since window length is config-
// defined) from the window-PnL series. Needs at least two windows to define
// a sample variance; fewer yields 0 rather than a divide-by-zero.
func sharpeRatio(series []WindowPnL) float64 {
	n := len(series)
	if n < 2 {
		return 0
	}
	var sum float64
	for _, w := range series {
		sum += w.PnL.Float64()
	}
	mean := sum / float64(n)

	var sqDiff float64
	for _, w := range series {
		d := w.PnL.Float64() - mean
		sqDiff += d * d
	}
	stddev := math.Sqrt(sqDiff / float64(n-1))
	if stddev == 0 {
		return 0
	}
	return mean / stddev
}

func operatingModeLabel(cfg *config.Config) string {
	if cfg.ProductionGrade {
		return "production"
	}
	return "research"
}

func ledgerCashAccount() ledger.Account       { return ledger.Cash() }
func ledgerRealizedPnLAccount() ledger.Account { return ledger.RealizedPnL() }
func ledgerFeesPaidAccount() ledger.Account    { return ledger.FeesPaid() }
