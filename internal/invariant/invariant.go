// Package invariant implements the InvariantEnforcer of §4.9: continuous
// checks over five categories, with Hard/Soft/Off modes.
package invariant

import (
	"fmt"

	"backtestv2/internal/errs"
	"backtestv2/pkg/types"
)

// Mode is the enforcement mode. Off is forbidden in production (validated by
// internal/config).
type Mode int

const (
	ModeOff Mode = iota
	ModeSoft
	ModeHard
)

// Category is one of the five invariant categories of §4.9.
type Category int

const (
	CategoryTime Category = iota
	CategoryBook
	CategoryOMS
	CategoryFills
	CategoryAccounting
)

// Counters tracks violations seen per category, used by the
// TruthfulnessCertificate to classify Soft-mode runs as Untrusted unless all
// categories are clean.
type Counters struct {
	ViolationsByCategory map[Category]int64
}

func newCounters() Counters {
	return Counters{ViolationsByCategory: make(map[Category]int64)}
}

// CausalDump is the bounded diagnostic snapshot attached to a Hard-mode
// abort, per §7/§9 ("bounded causal dump"). Kept deliberately small: the
// caller (Orchestrator) is responsible for populating it from its own
// bounded ring buffers before calling Report.
type CausalDump struct {
	RecentEvents      []string
	RecentOmsTransitions []string
	RecentLedgerEntries []string
	Balances          map[string]string
}

// Enforcer evaluates invariant checks and decides whether to abort.
type Enforcer struct {
	mode     Mode
	enabled  map[Category]bool
	counters Counters
}

func New(mode Mode, enabledCategories map[Category]bool) *Enforcer {
	if enabledCategories == nil {
		enabledCategories = map[Category]bool{
			CategoryTime: true, CategoryBook: true, CategoryOMS: true, CategoryFills: true, CategoryAccounting: true,
		}
	}
	return &Enforcer{mode: mode, enabled: enabledCategories, counters: newCounters()}
}

func (e *Enforcer) Counters() Counters { return e.counters }

// AllClean reports whether every enabled category saw zero violations —
// required for a Soft-mode (or successful Hard-mode) run to be classified
// Trusted.
func (e *Enforcer) AllClean() bool {
	for _, n := range e.counters.ViolationsByCategory {
		if n > 0 {
			return false
		}
	}
	return true
}

// Check evaluates one violation condition for the given category. cond==true
// means the invariant HOLDS (no violation). When it is false: Off records
// nothing; Soft increments the counter and returns nil; Hard increments the
// counter and returns a *errs.ViolationError of the given kind.
func (e *Enforcer) Check(cat Category, cond bool, kind errs.Kind, detail string) error {
	if cond {
		return nil
	}
	if !e.enabled[cat] || e.mode == ModeOff {
		return nil
	}
	e.counters.ViolationsByCategory[cat]++
	if e.mode == ModeHard {
		return errs.New(kind, detail)
	}
	return nil
}

// CheckTimeMonotonic is a convenience wrapper for the Time category's core
// invariant: decision_time must never regress, and an observed event's
// arrival_time must never exceed it.
func (e *Enforcer) CheckTimeMonotonic(arrival, decisionTime types.Nanos) error {
	return e.Check(CategoryTime, arrival <= decisionTime, errs.KindLookAheadViolation,
		fmt.Sprintf("arrival_time=%d > decision_time=%d", arrival, decisionTime))
}
