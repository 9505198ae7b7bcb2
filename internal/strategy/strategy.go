// Package strategy defines the Strategy interface of §6 — the boundary the
// Orchestrator drives with every dispatched event. Replaces the teacher's
// internal/strategy package (Avellaneda-Stoikov market-making quoting,
// internal/strategy/maker.go) entirely: this engine tests arbitrary
// strategies against recorded history rather than running one specific
// quoting model live.
package strategy

import (
	"backtestv2/internal/hermetic"
	"backtestv2/pkg/types"
)

// Strategy is implemented by anything under test. Every callback receives
// the restricted ctx and must finalize a *hermetic.DecisionProof before
// returning (§4.10).
type Strategy interface {
	OnStart(ctx *hermetic.StrategyContext, proof *hermetic.DecisionProof)
	OnBookUpdate(ctx *hermetic.StrategyContext, proof *hermetic.DecisionProof, snapshot BookView)
	OnTrade(ctx *hermetic.StrategyContext, proof *hermetic.DecisionProof, print types.TradePrint)
	OnOrderAck(ctx *hermetic.StrategyContext, proof *hermetic.DecisionProof, ack types.OrderAck)
	OnOrderReject(ctx *hermetic.StrategyContext, proof *hermetic.DecisionProof, reject types.OrderReject)
	OnFill(ctx *hermetic.StrategyContext, proof *hermetic.DecisionProof, fill types.Fill)
	OnCancelAck(ctx *hermetic.StrategyContext, proof *hermetic.DecisionProof, ack types.CancelAck)
	OnTimer(ctx *hermetic.StrategyContext, proof *hermetic.DecisionProof, timer types.TimerEvent)
	OnStop(ctx *hermetic.StrategyContext, proof *hermetic.DecisionProof)
}

// BookView is the read-only book snapshot a strategy observes; deliberately
// narrower than book.Snapshot (no internal pointers, no mutation surface).
type BookView struct {
	TokenId types.TokenId
	Bids    []types.BookLevel
	Asks    []types.BookLevel
}

// NullStrategy is a no-op Strategy useful as a base to embed, and as the
// strategy cmd/backtest runs by default. All callbacks finalize
// their proof immediately having taken no action.
type NullStrategy struct{}

func (NullStrategy) OnStart(_ *hermetic.StrategyContext, p *hermetic.DecisionProof)      { p.Finalize() }
func (NullStrategy) OnBookUpdate(_ *hermetic.StrategyContext, p *hermetic.DecisionProof, _ BookView) { p.Finalize() }
func (NullStrategy) OnTrade(_ *hermetic.StrategyContext, p *hermetic.DecisionProof, _ types.TradePrint) { p.Finalize() }
func (NullStrategy) OnOrderAck(_ *hermetic.StrategyContext, p *hermetic.DecisionProof, _ types.OrderAck) { p.Finalize() }
func (NullStrategy) OnOrderReject(_ *hermetic.StrategyContext, p *hermetic.DecisionProof, _ types.OrderReject) { p.Finalize() }
func (NullStrategy) OnFill(_ *hermetic.StrategyContext, p *hermetic.DecisionProof, _ types.Fill) { p.Finalize() }
func (NullStrategy) OnCancelAck(_ *hermetic.StrategyContext, p *hermetic.DecisionProof, _ types.CancelAck) { p.Finalize() }
func (NullStrategy) OnTimer(_ *hermetic.StrategyContext, p *hermetic.DecisionProof, _ types.TimerEvent) { p.Finalize() }
func (NullStrategy) OnStop(_ *hermetic.StrategyContext, p *hermetic.DecisionProof)       { p.Finalize() }
