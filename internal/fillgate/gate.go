// Package fillgate implements the MakerFillGate of §4.6 — the single choke
// point through which a maker fill may credit the ledger. Taker fills never
// pass through this package; they flow straight from OMS to the ledger.
package fillgate

import (
	"backtestv2/internal/errs"
	"backtestv2/pkg/types"
)

// QueueProof is the order's queue entry at fill arrival, per §4.6.
type QueueProof struct {
	QueueAheadAtAdmission float64
	ConsumedTotal         float64
}

// Satisfied reports queue_ahead_at_admission - sum(consumed) <= 0.
func (p QueueProof) Satisfied() bool {
	return p.QueueAheadAtAdmission-p.ConsumedTotal <= 0
}

// CancelRaceProof captures the order state and any outstanding cancel
// request at the moment the fill arrives.
type CancelRaceProof struct {
	OrderStateAtFillArrival   string
	HasCancelRequest          bool
	CancelRequestArrival      types.Nanos
	FillArrival               types.Nanos
	CancelLatencyNs           types.Nanos
}

// CancelWinsRace reports whether a pending cancel would have beaten the fill
// given the configured cancel latency: the fill is denied when
// cancel_request_arrival + cancel_latency <= fill_arrival_time.
func (p CancelRaceProof) CancelWinsRace() bool {
	if !p.HasCancelRequest {
		return false
	}
	effectiveCancelAck := p.CancelRequestArrival + p.CancelLatencyNs
	return effectiveCancelAck <= p.FillArrival
}

// MakerFillModel is the §4.6 operating-mode knob.
type MakerFillModel int

const (
	ExplicitQueue MakerFillModel = iota
	MakerDisabled
	Optimistic
)

// Stats mirrors MakerFillGateStats of §3.
type Stats struct {
	MakerFillsAdmitted      int64
	MakerFillsBlocked       int64
	CancelFillRaces         int64
	CancelFillRacesCancelWon int64
	CancelFillRacesFillWon  int64
}

// Gate is the MakerFillGate.
type Gate struct {
	model         MakerFillModel
	productionGrade bool
	stats         Stats
}

func New(model MakerFillModel, productionGrade bool) *Gate {
	return &Gate{model: model, productionGrade: productionGrade}
}

func (g *Gate) Stats() Stats { return g.stats }

// Candidate is a proposed maker fill awaiting admission.
type Candidate struct {
	OrderId    types.OrderId
	Size       float64
	QueueProof QueueProof
	CancelProof CancelRaceProof
}

// Admit evaluates a maker-fill candidate. On MakerDisabled every candidate is
// blocked. On Optimistic, candidates are admitted unconditionally (research
// mode only — BacktestConfig.Validate rejects Optimistic when
// production_grade is true, per SPEC_FULL.md §9). On ExplicitQueue both
// proofs must be present and valid.
func (g *Gate) Admit(c Candidate) (admitted bool, err error) {
	switch g.model {
	case MakerDisabled:
		g.stats.MakerFillsBlocked++
		return false, nil
	case Optimistic:
		g.stats.MakerFillsAdmitted++
		return true, nil
	}

	if c.CancelProof.HasCancelRequest {
		g.stats.CancelFillRaces++
		if c.CancelProof.CancelWinsRace() {
			g.stats.CancelFillRacesCancelWon++
			g.stats.MakerFillsBlocked++
			return false, nil
		}
		g.stats.CancelFillRacesFillWon++
	}

	if !c.QueueProof.Satisfied() {
		g.stats.MakerFillsBlocked++
		if g.productionGrade {
			return false, errs.New(errs.KindMakerFillViolation, "queue not consumed: missing or invalid QueueProof")
		}
		return false, nil
	}

	g.stats.MakerFillsAdmitted++
	return true, nil
}
