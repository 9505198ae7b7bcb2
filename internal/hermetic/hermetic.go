// Package hermetic implements the HermeticEnforcer of §4.10: the sandbox
// that forbids strategy side effects (wall-clock, env reads, I/O, spawning,
// unseeded randomness, mutable globals) and the StrategyContext the
// orchestrator hands to callbacks.
package hermetic

import (
	"fmt"
	"math/rand"

	"backtestv2/pkg/types"
)

// DecisionProof describes what a strategy callback observed, computed, and
// did. A callback that returns without finalizing one is a structural error
// in production (§4.10).
type DecisionProof struct {
	InputsObserved []string
	SignalsComputed map[string]float64
	ActionsTaken    []string
	finalized       bool
}

func NewDecisionProof() *DecisionProof { return &DecisionProof{SignalsComputed: make(map[string]float64)} }

func (p *DecisionProof) ObserveInput(name string)             { p.InputsObserved = append(p.InputsObserved, name) }
func (p *DecisionProof) RecordSignal(name string, value float64) { p.SignalsComputed[name] = value }
func (p *DecisionProof) RecordAction(action string)            { p.ActionsTaken = append(p.ActionsTaken, action) }
func (p *DecisionProof) Finalize()                             { p.finalized = true }
func (p *DecisionProof) Finalized() bool                       { return p.finalized }

// OrderSender is the restricted order-placement interface exposed to
// strategies (§6). No raw events, no wall-clock.
type OrderSender interface {
	SendOrder(clientOrderId string, tokenId types.TokenId, side types.Side, price, size float64) error
	SendCancel(orderId types.OrderId) error
	CancelAll(tokenId types.TokenId) error
	GetPosition(market types.MarketId, outcome types.Outcome) int64
	GetAllPositions() map[string]int64
	GetOpenOrders() []types.OrderId
	Now() types.Nanos
	ScheduleTimer(delay types.Nanos, label string) uint64
	CancelTimer(timerId uint64)
}

// StrategyContext is the only window a strategy callback has into the
// simulation: simulated time, a deterministic seeded RNG, the OrderSender,
// and read-only configuration. Enforced by construction — there is no field
// or method here that reaches wall-clock, env, or raw events.
type StrategyContext struct {
	rng    *rand.Rand
	sender OrderSender
	config map[string]interface{}
}

// NewStrategyContext derives this subsystem's RNG deterministically from a
// root seed, per §9: "All randomness is threaded from a single seeded RNG
// tree with per-subsystem sub-seeds derived deterministically."
func NewStrategyContext(rootSeed int64, subsystemTag string, sender OrderSender, config map[string]interface{}) *StrategyContext {
	sub := deriveSeed(rootSeed, subsystemTag)
	return &StrategyContext{
		rng:    rand.New(rand.NewSource(sub)),
		sender: sender,
		config: config,
	}
}

func deriveSeed(rootSeed int64, tag string) int64 {
	h := int64(1469598103934665603) // FNV offset basis
	h ^= rootSeed
	h *= 1099511628211
	for _, c := range tag {
		h ^= int64(c)
		h *= 1099511628211
	}
	if h < 0 {
		h = -h
	}
	return h
}

func (c *StrategyContext) Now() types.Nanos     { return c.sender.Now() }
func (c *StrategyContext) Rand() *rand.Rand     { return c.rng }
func (c *StrategyContext) Orders() OrderSender  { return c.sender }
func (c *StrategyContext) Config(key string) interface{} { return c.config[key] }

// Enforcer is a lightweight runtime check: it does not sandbox the Go
// process (that would require a separate execution boundary outside the
// scope of this core), but it does enforce the one check practical at the
// language level — every callback invocation must produce a finalized
// DecisionProof before control returns to the orchestrator.
type Enforcer struct {
	enabled bool
}

func New(enabled bool) *Enforcer { return &Enforcer{enabled: enabled} }

// CheckProof validates that a just-returned callback finalized its proof.
func (e *Enforcer) CheckProof(proof *DecisionProof) error {
	if !e.enabled {
		return nil
	}
	if proof == nil || !proof.Finalized() {
		return fmt.Errorf("hermetic: strategy callback returned without finalizing its DecisionProof")
	}
	return nil
}
