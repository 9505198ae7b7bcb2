// Package settlement implements the SettlementEngine of §4.8: binding
// 15-minute windows to a discrete oracle-round series via a configurable
// reference rule, enriched with the "price to beat" capture pattern from
// web3guy0-polybot's database.WindowPrice (SPEC_FULL.md §12).
package settlement

import (
	"sort"

	"backtestv2/internal/errs"
	"backtestv2/pkg/types"
)

// ReferenceRule selects which oracle round represents a cutoff instant.
type ReferenceRule int

const (
	LastUpdateAtOrBeforeCutoff ReferenceRule = iota
	FirstUpdateAfterCutoff
	ClosestToCutoff
	ClosestToCutoffTieAfter
)

// TieRule governs an equal start/end reference price.
type TieRule int

const (
	TieNoWins TieRule = iota // equality invalidates the window
)

// WindowStatus is the SettlementWindow lifecycle enum of §3.
type WindowStatus int

const (
	StatusOpen WindowStatus = iota
	StatusObserving
	StatusResolved
	StatusInvalid
)

// Window is the SettlementWindow entity of §3.
type Window struct {
	MarketId       types.MarketId
	StartNs        types.Nanos
	EndNs          types.Nanos
	Status         WindowStatus
	Outcome        types.Outcome
	ReferencePrice int64 // "price to beat": the selected start-of-window oracle answer
	ResolutionTime types.Nanos
}

// Spec is the SettlementSpec of §4.8.
type Spec struct {
	WindowLengthNs types.Nanos
	ReferenceRule  ReferenceRule
	TieRule        TieRule
	FeedId         string
	ProductionGrade bool
}

// Engine owns the in-flight settlement windows for one feed's market. Owned
// exclusively by the Orchestrator.
type Engine struct {
	spec     Spec
	windows  map[types.MarketId]*Window
	rounds   []types.OracleRound // all rounds observed so far, ascending by arrival
}

func New(spec Spec) *Engine {
	return &Engine{spec: spec, windows: make(map[types.MarketId]*Window)}
}

// OpenWindow registers a new window to be observed and eventually resolved.
func (e *Engine) OpenWindow(market types.MarketId, startNs, endNs types.Nanos) {
	e.windows[market] = &Window{MarketId: market, StartNs: startNs, EndNs: endNs, Status: StatusOpen}
}

func (e *Engine) Window(market types.MarketId) (*Window, bool) {
	w, ok := e.windows[market]
	return w, ok
}

// ObserveRound ingests one oracle round. Rounds must be appended in arrival
// order (the caller dispatches them off the EventQueue, which already
// guarantees this).
func (e *Engine) ObserveRound(round types.OracleRound, arrivalTime types.Nanos) {
	e.rounds = append(e.rounds, round)
	_ = arrivalTime // arrival carried on the enclosing TimestampedEvent; rounds here are kept in arrival order by construction
}

// selectRound applies the configured reference rule to find the round
// representing cutoff, considering only rounds knowable by decisionTime
// (arrival_time <= decisionTime — the chosen round's own arrival gates
// knowability per §4.8, tracked by caller passing only already-dispatched
// rounds into ObserveRound).
func (e *Engine) selectRound(cutoff types.Nanos) (types.OracleRound, bool) {
	switch e.spec.ReferenceRule {
	case LastUpdateAtOrBeforeCutoff:
		var best *types.OracleRound
		for i := range e.rounds {
			r := &e.rounds[i]
			if r.SourceTimeNs <= cutoff {
				if best == nil || r.SourceTimeNs > best.SourceTimeNs {
					best = r
				}
			}
		}
		if best == nil {
			return types.OracleRound{}, false
		}
		return *best, true
	case FirstUpdateAfterCutoff:
		var best *types.OracleRound
		for i := range e.rounds {
			r := &e.rounds[i]
			if r.SourceTimeNs > cutoff {
				if best == nil || r.SourceTimeNs < best.SourceTimeNs {
					best = r
				}
			}
		}
		if best == nil {
			return types.OracleRound{}, false
		}
		return *best, true
	case ClosestToCutoff, ClosestToCutoffTieAfter:
		if len(e.rounds) == 0 {
			return types.OracleRound{}, false
		}
		sorted := append([]types.OracleRound(nil), e.rounds...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].SourceTimeNs < sorted[j].SourceTimeNs })
		var best *types.OracleRound
		bestDist := int64(-1)
		for i := range sorted {
			r := &sorted[i]
			dist := int64(r.SourceTimeNs - cutoff)
			if dist < 0 {
				dist = -dist
			}
			if bestDist == -1 || dist < bestDist {
				bestDist = dist
				best = r
			} else if dist == bestDist {
				// tie: ClosestToCutoff favors before, ClosestToCutoffTieAfter favors after
				if e.spec.ReferenceRule == ClosestToCutoffTieAfter && r.SourceTimeNs > best.SourceTimeNs {
					best = r
				}
				if e.spec.ReferenceRule == ClosestToCutoff && r.SourceTimeNs < best.SourceTimeNs {
					best = r
				}
			}
		}
		return *best, true
	}
	return types.OracleRound{}, false
}

// TryResolve resolves a window once knowable: decision_time must be >= the
// chosen end-round's arrival_time (passed in as endRoundArrival, since the
// engine itself does not track per-round arrival separately from the
// enclosing event). In production mode, a missing round aborts; in research
// mode the window is marked Invalid.
func (e *Engine) TryResolve(market types.MarketId, decisionTime types.Nanos, endRoundArrival types.Nanos) (*Window, error) {
	w, ok := e.windows[market]
	if !ok || w.Status == StatusResolved || w.Status == StatusInvalid {
		return w, nil
	}
	if decisionTime < w.EndNs {
		return w, nil // window not yet observing
	}
	w.Status = StatusObserving

	startRound, startOk := e.selectRound(w.StartNs)
	endRound, endOk := e.selectRound(w.EndNs)
	if !startOk || !endOk {
		if e.spec.ProductionGrade {
			return w, errs.New(errs.KindOracleMissing, "no oracle round satisfies the reference rule for window bounds")
		}
		w.Status = StatusInvalid
		return w, nil
	}
	if decisionTime < endRoundArrival {
		return w, nil // not yet knowable
	}

	w.ReferencePrice = startRound.Answer
	switch {
	case endRound.Answer > startRound.Answer:
		w.Outcome = types.OutcomeYes
		w.Status = StatusResolved
	case endRound.Answer < startRound.Answer:
		w.Outcome = types.OutcomeNo
		w.Status = StatusResolved
	default:
		switch e.spec.TieRule {
		case TieNoWins:
			w.Outcome = types.OutcomeInvalid
			w.Status = StatusInvalid
		}
	}
	w.ResolutionTime = decisionTime
	return w, nil
}
