package engine

import (
	"backtestv2/internal/fillgate"
	"backtestv2/internal/fixedpoint"
	"backtestv2/internal/gate"
	"backtestv2/internal/integrity"
	"backtestv2/internal/invariant"
	"backtestv2/internal/oms"
	"backtestv2/internal/sensitivity"
	"backtestv2/internal/trust"
)

// EquityPoint is one fixed observation of the equity curve (§6).
type EquityPoint struct {
	SimTimeNs int64
	Equity    fixedpoint.Amount
}

// WindowPnL is one resolved settlement window's realized contribution.
type WindowPnL struct {
	MarketId string
	PnL      fixedpoint.Amount
}

// Counters aggregates every counter the Result object must report (§6).
type Counters struct {
	EventsProcessed int64
	MakerFills      int64
	TakerFills      int64
	OMSStats        oms.Stats
	FillGateStats   fillgate.Stats
	IntegrityCounters integrity.Counters
	InvariantCounters invariant.Counters
}

// EconomicOutputs is the §6 economic-outputs block.
type EconomicOutputs struct {
	FinalCash      fixedpoint.Amount
	RealizedPnL    fixedpoint.Amount
	UnrealizedPnL  fixedpoint.Amount
	TotalFees      fixedpoint.Amount
	EquityCurve    []EquityPoint
	WindowPnLSeries []WindowPnL
	MaxDrawdown    fixedpoint.Amount
	Sharpe         float64
}

// IntegrityOutputs is the §6 integrity-outputs block.
type IntegrityOutputs struct {
	DatasetClassification string
	DatasetReady           bool
	Certificate            trust.Certificate
	Disclaimers            trust.Disclaimers
}

// CausalDump is the bounded trailing-context block attached to an aborted
// run: the last few dispatched events and the last few ledger postings, in
// dispatch order, to diagnose why the run stopped without replaying the
// whole thing.
type CausalDump struct {
	RecentEvents        []string
	RecentLedgerEntries []string
}

// RunFingerprint is the §6/§9 composite-plus-component hash block: the
// composite hash plus every component that feeds it, so a mismatch between
// two runs can be attributed to code, config, dataset, or observed behavior
// without recomputing anything.
type RunFingerprint struct {
	CompositeHash string
	RollingHash   string
	CodeVersion   string
	ConfigHash    string
	DatasetHash   string
}

// Result is the full §6 Result object returned by Orchestrator.Run.
type Result struct {
	OperatingMode string
	Counters      Counters
	Economics     EconomicOutputs
	Integrity     IntegrityOutputs
	Fingerprint   RunFingerprint
	GateResult    gate.Result
	Sensitivity   sensitivity.FragilityReport
	Aborted       bool
	AbortReason   string
	CausalDump    *CausalDump
}
