// Package integrity implements the StreamIntegrityGuard of §4.3:
// per-(stream_kind, token) duplicate/gap/out-of-order detection with a
// configurable policy triple. Production mode forces {Drop, Halt, Halt} with
// gap_tolerance=0.
package integrity

import (
	"fmt"
	"sort"

	"backtestv2/internal/errs"
)

// DuplicatePolicy, GapPolicy, OutOfOrderPolicy are closed enums per §9's
// "categories use enums, not strings" note.
type DuplicatePolicy int

const (
	OnDuplicateDrop DuplicatePolicy = iota
	OnDuplicateHalt
)

type GapPolicy int

const (
	OnGapHalt GapPolicy = iota
	OnGapResync
)

type OutOfOrderPolicy int

const (
	OnOutOfOrderDrop OutOfOrderPolicy = iota
	OnOutOfOrderReorder
	OnOutOfOrderHalt
)

// Policy is the configuration triple of §4.3.
type Policy struct {
	OnDuplicate       DuplicatePolicy
	OnGap             GapPolicy
	OnOutOfOrder      OutOfOrderPolicy
	GapTolerance      int64
	ReorderBufferSize int
}

// ProductionPolicy is the policy forced on in production mode: {Drop, Halt,
// Halt} with gap_tolerance=0.
func ProductionPolicy() Policy {
	return Policy{
		OnDuplicate:  OnDuplicateDrop,
		OnGap:        OnGapHalt,
		OnOutOfOrder: OnOutOfOrderHalt,
		GapTolerance: 0,
	}
}

// StreamKey identifies one independent per-(stream_kind, token) integrity
// state machine; each token's sync state is wholly independent.
type StreamKey struct {
	StreamKind string
	Token      string
}

type streamState struct {
	lastSeq       int64
	haveSeq       bool
	dupHashes     map[string]struct{}
	needSnapshot  bool
	reorderBuffer []reorderEntry
}

type reorderEntry struct {
	seq  int64
	hash string
}

// Counters mirror the bounded-size accumulators named in §4.3.
type Counters struct {
	DuplicatesDropped       int64
	GapsDetected            int64
	TotalMissingSequences   int64
	OutOfOrderDetected      int64
	Reordered               int64
	ResyncCount             int64
	ReorderBufferOverflows  int64
	Halted                  bool
	TotalEventsProcessed    int64
}

// Guard is the StreamIntegrityGuard. Not safe for concurrent use.
type Guard struct {
	policy   Policy
	streams  map[StreamKey]*streamState
	counters Counters
}

func NewGuard(policy Policy) *Guard {
	return &Guard{policy: policy, streams: make(map[StreamKey]*streamState)}
}

func (g *Guard) Counters() Counters { return g.counters }

// NeedsSnapshot reports whether the given stream is waiting for a fresh
// snapshot after a Resync gap, per the Resync policy.
func (g *Guard) NeedsSnapshot(key StreamKey) bool {
	st := g.streams[key]
	return st != nil && st.needSnapshot
}

// ResolveSnapshot clears a stream's NeedSnapshot flag once a new full
// snapshot has been applied, and re-synchronizes the expected sequence at the
// snapshot's own sequence number.
func (g *Guard) ResolveSnapshot(key StreamKey, seq int64) {
	st := g.stream(key)
	st.needSnapshot = false
	st.lastSeq = seq
	st.haveSeq = true
}

func (g *Guard) stream(key StreamKey) *streamState {
	st, ok := g.streams[key]
	if !ok {
		st = &streamState{dupHashes: make(map[string]struct{})}
		g.streams[key] = st
	}
	return st
}

// Check processes one (seq, hash) pair for the given stream and returns an
// error if the policy dictates a halt. Drop decisions are signalled via the
// bool return: when drop==true the caller must discard the event without
// dispatching it, but the run continues.
func (g *Guard) Check(key StreamKey, seq int64, hash string) (drop bool, err error) {
	g.counters.TotalEventsProcessed++
	st := g.stream(key)

	if st.needSnapshot {
		// Resync: drop all deltas for this token until a snapshot arrives.
		return true, nil
	}

	if hash != "" {
		if _, dup := st.dupHashes[hash]; dup {
			g.counters.DuplicatesDropped++
			if g.policy.OnDuplicate == OnDuplicateHalt {
				g.counters.Halted = true
				return false, errs.New(errs.KindIntegrityPathology,
					fmt.Sprintf("duplicate event on stream %s/%s hash=%s", key.StreamKind, key.Token, hash))
			}
			return true, nil
		}
		st.dupHashes[hash] = struct{}{}
	}

	if !st.haveSeq {
		st.haveSeq = true
		st.lastSeq = seq
		return false, nil
	}

	expected := st.lastSeq + 1
	switch {
	case seq == expected:
		st.lastSeq = seq
		g.drainReorderBuffer(st)
		return false, nil
	case seq > expected:
		if g.policy.OnOutOfOrder == OnOutOfOrderReorder {
			// Early arrival: hold it until the missing sequence numbers
			// arrive and drainReorderBuffer advances past it. A full buffer
			// counts an overflow and drops the event.
			g.counters.OutOfOrderDetected++
			if len(st.reorderBuffer) >= g.policy.ReorderBufferSize {
				g.counters.ReorderBufferOverflows++
				return true, nil
			}
			st.reorderBuffer = append(st.reorderBuffer, reorderEntry{seq: seq, hash: hash})
			g.counters.Reordered++
			return true, nil
		}
		gap := seq - expected
		g.counters.GapsDetected++
		g.counters.TotalMissingSequences += gap
		if gap > g.policy.GapTolerance {
			switch g.policy.OnGap {
			case OnGapHalt:
				g.counters.Halted = true
				return false, errs.New(errs.KindIntegrityPathology,
					fmt.Sprintf("gap of %d on stream %s/%s at seq %d", gap, key.StreamKind, key.Token, seq))
			case OnGapResync:
				st.needSnapshot = true
				g.counters.ResyncCount++
				return true, nil
			}
		}
		st.lastSeq = seq
		return false, nil
	default: // seq < expected: out of order
		g.counters.OutOfOrderDetected++
		switch g.policy.OnOutOfOrder {
		case OnOutOfOrderDrop:
			return true, nil
		case OnOutOfOrderHalt:
			g.counters.Halted = true
			return false, errs.New(errs.KindIntegrityPathology,
				fmt.Sprintf("out-of-order event on stream %s/%s: seq=%d expected>=%d", key.StreamKind, key.Token, seq, expected))
		case OnOutOfOrderReorder:
			if len(st.reorderBuffer) >= g.policy.ReorderBufferSize {
				g.counters.ReorderBufferOverflows++
				return true, nil
			}
			st.reorderBuffer = append(st.reorderBuffer, reorderEntry{seq: seq, hash: hash})
			g.counters.Reordered++
			return true, nil
		}
	}
	return false, nil
}

func (g *Guard) drainReorderBuffer(st *streamState) {
	if len(st.reorderBuffer) == 0 {
		return
	}
	sort.Slice(st.reorderBuffer, func(i, j int) bool { return st.reorderBuffer[i].seq < st.reorderBuffer[j].seq })
	for len(st.reorderBuffer) > 0 && st.reorderBuffer[0].seq == st.lastSeq+1 {
		st.lastSeq = st.reorderBuffer[0].seq
		st.reorderBuffer = st.reorderBuffer[1:]
	}
}
