// Package book implements the BookManager and QueuePositionModel of §4.4,
// generalizing the teacher's internal/market/book.go (a single-token RWMutex
// map replace) into a real per-level L2 structure with delta application and
// the crossed-book/non-negative-size/price-domain invariants the teacher's
// ApplyPriceChange stub never enforced.
package book

import (
	"fmt"
	"sort"

	"backtestv2/internal/errs"
	"backtestv2/pkg/types"
)

// Snapshot is the authoritative per-token L2 state. Bids sorted descending,
// asks ascending, per §3.
type Snapshot struct {
	TokenId types.TokenId
	Bids    []types.BookLevel
	Asks    []types.BookLevel
	Seq     int64
}

// BestBid returns the top bid level; ok is false if the bid side is empty.
func (s *Snapshot) BestBid() (types.BookLevel, bool) {
	if len(s.Bids) == 0 {
		return types.BookLevel{}, false
	}
	return s.Bids[0], true
}

func (s *Snapshot) BestAsk() (types.BookLevel, bool) {
	if len(s.Asks) == 0 {
		return types.BookLevel{}, false
	}
	return s.Asks[0], true
}

// Manager holds per-token books. Not safe for concurrent use — owned
// exclusively by the Orchestrator per §3's ownership rule.
type Manager struct {
	books map[types.TokenId]*Snapshot
}

func NewManager() *Manager {
	return &Manager{books: make(map[types.TokenId]*Snapshot)}
}

func (m *Manager) Get(token types.TokenId) (*Snapshot, bool) {
	s, ok := m.books[token]
	return s, ok
}

// ApplySnapshot replaces a token's book atomically (§4.4 first sentence).
func (m *Manager) ApplySnapshot(snap types.L2BookSnapshot) error {
	s := &Snapshot{
		TokenId: snap.TokenId,
		Bids:    append([]types.BookLevel(nil), snap.Bids...),
		Asks:    append([]types.BookLevel(nil), snap.Asks...),
		Seq:     snap.ExchangeSeq,
	}
	sort.Slice(s.Bids, func(i, j int) bool { return s.Bids[i].Price > s.Bids[j].Price })
	sort.Slice(s.Asks, func(i, j int) bool { return s.Asks[i].Price < s.Asks[j].Price })
	if err := validate(s); err != nil {
		return err
	}
	m.books[snap.TokenId] = s
	return nil
}

// ApplyDelta applies a single-level update. new_size=0 removes the level.
func (m *Manager) ApplyDelta(d types.L2BookDelta) error {
	s, ok := m.books[d.TokenId]
	if !ok {
		s = &Snapshot{TokenId: d.TokenId}
		m.books[d.TokenId] = s
	}
	switch d.Side {
	case types.Buy:
		s.Bids = applyLevel(s.Bids, d.Price, d.NewSize, true)
	case types.Sell:
		s.Asks = applyLevel(s.Asks, d.Price, d.NewSize, false)
	default:
		return errs.New(errs.KindBookViolation, fmt.Sprintf("unknown side %q in delta", d.Side))
	}
	return validate(s)
}

// applyLevel inserts/updates/removes a level, keeping the slice sorted
// (descending for bids, ascending for asks).
func applyLevel(levels []types.BookLevel, price, newSize float64, descending bool) []types.BookLevel {
	idx := sort.Search(len(levels), func(i int) bool {
		if descending {
			return levels[i].Price <= price
		}
		return levels[i].Price >= price
	})
	if idx < len(levels) && levels[idx].Price == price {
		if newSize <= 0 {
			return append(levels[:idx], levels[idx+1:]...)
		}
		levels[idx].Size = newSize
		return levels
	}
	if newSize <= 0 {
		return levels
	}
	levels = append(levels, types.BookLevel{})
	copy(levels[idx+1:], levels[idx:])
	levels[idx] = types.BookLevel{Price: price, Size: newSize}
	return levels
}

// validate enforces the §4.4 post-apply invariants: no crossed book,
// non-negative sizes, prices in (0,1), monotonic levels.
func validate(s *Snapshot) error {
	for _, lv := range s.Bids {
		if err := validateLevel(lv); err != nil {
			return err
		}
	}
	for _, lv := range s.Asks {
		if err := validateLevel(lv); err != nil {
			return err
		}
	}
	bb, hasBid := s.BestBid()
	ba, hasAsk := s.BestAsk()
	if hasBid && hasAsk && bb.Price >= ba.Price {
		return errs.New(errs.KindBookViolation,
			fmt.Sprintf("crossed book for %s: best_bid=%v best_ask=%v", s.TokenId, bb.Price, ba.Price))
	}
	for i := 1; i < len(s.Bids); i++ {
		if s.Bids[i].Price >= s.Bids[i-1].Price {
			return errs.New(errs.KindBookViolation, "bids not strictly descending")
		}
	}
	for i := 1; i < len(s.Asks); i++ {
		if s.Asks[i].Price <= s.Asks[i-1].Price {
			return errs.New(errs.KindBookViolation, "asks not strictly ascending")
		}
	}
	return nil
}

func validateLevel(lv types.BookLevel) error {
	if lv.Size < 0 {
		return errs.New(errs.KindBookViolation, fmt.Sprintf("negative size %v at price %v", lv.Size, lv.Price))
	}
	if lv.Price <= 0 || lv.Price >= 1 {
		return errs.New(errs.KindBookViolation, fmt.Sprintf("price %v out of domain (0,1)", lv.Price))
	}
	return nil
}
