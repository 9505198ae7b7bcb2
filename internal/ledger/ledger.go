// Package ledger implements the fixed-point double-entry Ledger of §4.7 — the
// sole mutator of cash, positions, PnL, and fees. Replaces the teacher's
// strategy.Inventory (float average-cost accumulation in
// internal/strategy/inventory.go) with balanced postings over
// fixedpoint.Amount, per the anti-pattern note in spec.md §9.
package ledger

import (
	"fmt"

	"backtestv2/internal/errs"
	"backtestv2/internal/fixedpoint"
	"backtestv2/pkg/types"
)

// AccountKind is the tagged LedgerAccount enum of §3.
type AccountKind int

const (
	AccountCash AccountKind = iota
	AccountCostBasis
	AccountFeesPaid
	AccountCapital
	AccountRealizedPnL
	AccountSettlementReceivable
)

// Account identifies one ledger account. CostBasis/SettlementReceivable are
// parameterized by (market, outcome); the others are singletons.
type Account struct {
	Kind    AccountKind
	Market  types.MarketId
	Outcome types.Outcome
}

func Cash() Account                    { return Account{Kind: AccountCash} }
func FeesPaid() Account                { return Account{Kind: AccountFeesPaid} }
func Capital() Account                 { return Account{Kind: AccountCapital} }
func RealizedPnL() Account             { return Account{Kind: AccountRealizedPnL} }
func CostBasis(m types.MarketId, o types.Outcome) Account {
	return Account{Kind: AccountCostBasis, Market: m, Outcome: o}
}
func SettlementReceivable(m types.MarketId, o types.Outcome) Account {
	return Account{Kind: AccountSettlementReceivable, Market: m, Outcome: o}
}

// normalDebit reports whether increasing this account's balance is a debit
// (positive) movement, per §3: Cash/CostBasis/FeesPaid normal debit;
// Capital/RealizedPnL normal credit.
func normalDebit(k AccountKind) bool {
	switch k {
	case AccountCash, AccountCostBasis, AccountFeesPaid, AccountSettlementReceivable:
		return true
	default:
		return false
	}
}

// Posting is one leg of a LedgerEntry. Amount is signed in "debit-positive"
// convention: a debit posting carries a positive Amount, a credit posting a
// negative one, so sum(postings)==0 is a literal zero check.
type Posting struct {
	Account Account
	Amount  fixedpoint.Amount // positive = debit, negative = credit
}

func debit(a Account, amt fixedpoint.Amount) Posting  { return Posting{Account: a, Amount: amt} }
func credit(a Account, amt fixedpoint.Amount) Posting { return Posting{Account: a, Amount: amt.Neg()} }

// EventRefKind tags what produced a LedgerEntry.
type EventRefKind int

const (
	RefFill EventRefKind = iota
	RefFee
	RefSettlement
	RefDeposit
	RefWithdrawal
)

type EventRef struct {
	Kind     EventRefKind
	SourceId string
}

// Entry is an immutable posted LedgerEntry (§3). Never mutated after Post.
type Entry struct {
	EntryId     uint64
	SimTime     types.Nanos
	ArrivalTime types.Nanos
	EventRef    EventRef
	Postings    []Posting
}

// Ledger owns all economic state. Owned exclusively by the Orchestrator; any
// other mutation path is a programming error (§4.7's strict-accounting
// mode).
type Ledger struct {
	balances        map[Account]fixedpoint.Amount
	positions       map[positionKey]int64 // signed share quantity, integer units
	entries         []Entry
	nextEntryId     uint64
	seenEventRefs   map[string]struct{}
	allowNegativeCash bool
	allowShorting     bool
}

type positionKey struct {
	Market  types.MarketId
	Outcome types.Outcome
}

func New(allowNegativeCash, allowShorting bool) *Ledger {
	return &Ledger{
		balances:      make(map[Account]fixedpoint.Amount),
		positions:     make(map[positionKey]int64),
		seenEventRefs: make(map[string]struct{}),
		allowNegativeCash: allowNegativeCash,
		allowShorting:     allowShorting,
	}
}

// Balance returns the account's balance in its normal-balance sign: stored
// debit-positive values for debit-normal accounts, negated for credit-normal
// ones (Capital, RealizedPnL), so a realized gain reads positive.
func (l *Ledger) Balance(a Account) fixedpoint.Amount {
	b := l.balances[a]
	if !normalDebit(a.Kind) {
		return b.Neg()
	}
	return b
}

func (l *Ledger) Position(market types.MarketId, outcome types.Outcome) int64 {
	return l.positions[positionKey{Market: market, Outcome: outcome}]
}

// AvgCost returns the current average cost per unit for (market, outcome):
// the CostBasis account balance divided by the open position size. Zero
// position returns zero.
func (l *Ledger) AvgCost(market types.MarketId, outcome types.Outcome) fixedpoint.Amount {
	qty := l.Position(market, outcome)
	if qty == 0 {
		return fixedpoint.Zero()
	}
	basis := l.balances[CostBasis(market, outcome)]
	return basis.DivInt(qty)
}

func (l *Ledger) Entries() []Entry { return l.entries }

// PositionEntry is one open (market, outcome) position with its typed
// identity intact, for callers that need to look the position back up
// against a book or settlement window rather than just display it.
type PositionEntry struct {
	Market  types.MarketId
	Outcome types.Outcome
	Qty     int64
}

// OpenPositions returns every non-zero position as typed entries.
func (l *Ledger) OpenPositions() []PositionEntry {
	out := make([]PositionEntry, 0, len(l.positions))
	for k, qty := range l.positions {
		if qty != 0 {
			out = append(out, PositionEntry{Market: k.Market, Outcome: k.Outcome, Qty: qty})
		}
	}
	return out
}

// AllPositions returns every non-zero position keyed by "market:outcome",
// exposed to strategies through OrderSender.GetAllPositions (§6) without
// leaking the unexported positionKey type.
func (l *Ledger) AllPositions() map[string]int64 {
	out := make(map[string]int64, len(l.positions))
	for k, qty := range l.positions {
		if qty != 0 {
			out[fmt.Sprintf("%s:%s", k.Market, k.Outcome)] = qty
		}
	}
	return out
}

func refKey(ref EventRef) string { return fmt.Sprintf("%d:%s", ref.Kind, ref.SourceId) }

// post validates and applies an entry; internal, called only by the typed
// posting-template methods below so no caller can bypass balance checking.
func (l *Ledger) post(simTime, arrivalTime types.Nanos, ref EventRef, postings []Posting) (*Entry, error) {
	key := refKey(ref)
	if _, dup := l.seenEventRefs[key]; dup {
		return nil, errs.New(errs.KindAccountingViolation, fmt.Sprintf("duplicate event_ref %s", key))
	}

	sum := fixedpoint.Zero()
	for _, p := range postings {
		sum = sum.Add(p.Amount)
	}
	if !sum.IsZero() {
		return nil, errs.New(errs.KindAccountingViolation, fmt.Sprintf("unbalanced entry: sum=%s", sum.String()))
	}

	// Dry-run balance/position changes before committing, so a violation
	// never leaves partial state applied.
	newBalances := make(map[Account]fixedpoint.Amount, len(postings))
	for _, p := range postings {
		cur, seen := newBalances[p.Account]
		if !seen {
			cur = l.balances[p.Account]
		}
		newBalances[p.Account] = cur.Add(p.Amount)
	}
	for acct, bal := range newBalances {
		if acct.Kind == AccountCash && !l.allowNegativeCash && bal.Sign() < 0 {
			return nil, errs.New(errs.KindAccountingViolation, fmt.Sprintf("cash would go negative: %s", bal.String()))
		}
	}

	for acct, bal := range newBalances {
		l.balances[acct] = bal
	}
	l.nextEntryId++
	l.seenEventRefs[key] = struct{}{}
	entry := Entry{EntryId: l.nextEntryId, SimTime: simTime, ArrivalTime: arrivalTime, EventRef: ref, Postings: postings}
	l.entries = append(l.entries, entry)
	return &entry, nil
}

// PostBuyFill implements the "Buy fill" posting template of §4.7: DR
// CostBasis q*p, CR Cash q*p, DR FeesPaid f, CR Cash f. Position += q.
func (l *Ledger) PostBuyFill(simTime, arrivalTime types.Nanos, fillId types.FillId, market types.MarketId, outcome types.Outcome, qty int64, price, fee fixedpoint.Amount) (*Entry, error) {
	notional := price.MulInt(qty)
	cb := CostBasis(market, outcome)
	postings := []Posting{
		debit(cb, notional),
		credit(Cash(), notional),
		debit(FeesPaid(), fee),
		credit(Cash(), fee),
	}
	if !l.allowShorting && l.positions[positionKey{market, outcome}]+qty < 0 {
		return nil, errs.New(errs.KindAccountingViolation, "position would go short without allow_shorting")
	}
	entry, err := l.post(simTime, arrivalTime, EventRef{Kind: RefFill, SourceId: fmt.Sprintf("%d", fillId)}, postings)
	if err != nil {
		return nil, err
	}
	l.positions[positionKey{market, outcome}] += qty
	return entry, nil
}

// PostSellFill implements the "Sell fill" template: DR Cash q*p, CR CostBasis
// q*c, CR/DR RealizedPnL q*(p-c), DR FeesPaid f, CR Cash f. Position -= q.
// avgCost is the position's current average cost per unit.
func (l *Ledger) PostSellFill(simTime, arrivalTime types.Nanos, fillId types.FillId, market types.MarketId, outcome types.Outcome, qty int64, price, avgCost, fee fixedpoint.Amount) (*Entry, error) {
	proceeds := price.MulInt(qty)
	costRemoved := avgCost.MulInt(qty)
	pnl := proceeds.Sub(costRemoved)

	postings := []Posting{
		debit(Cash(), proceeds),
		credit(CostBasis(market, outcome), costRemoved),
		debit(FeesPaid(), fee),
		credit(Cash(), fee),
	}
	if pnl.Sign() >= 0 {
		postings = append(postings, credit(RealizedPnL(), pnl))
	} else {
		postings = append(postings, debit(RealizedPnL(), pnl.Neg()))
	}
	if !l.allowShorting && l.positions[positionKey{market, outcome}]-qty < 0 {
		return nil, errs.New(errs.KindAccountingViolation, "position would go negative without allow_shorting")
	}
	entry, err := l.post(simTime, arrivalTime, EventRef{Kind: RefFill, SourceId: fmt.Sprintf("%d", fillId)}, postings)
	if err != nil {
		return nil, err
	}
	l.positions[positionKey{market, outcome}] -= qty
	return entry, nil
}

// PostSettlement implements the "Settlement winner payout" template: DR Cash
// V, CR CostBasis B, CR RealizedPnL V-B. Position -> 0.
func (l *Ledger) PostSettlement(simTime, arrivalTime types.Nanos, windowId string, market types.MarketId, outcome types.Outcome, payout, costBasis fixedpoint.Amount) (*Entry, error) {
	pnl := payout.Sub(costBasis)
	postings := []Posting{
		debit(Cash(), payout),
		credit(CostBasis(market, outcome), costBasis),
		credit(RealizedPnL(), pnl),
	}
	entry, err := l.post(simTime, arrivalTime, EventRef{Kind: RefSettlement, SourceId: windowId}, postings)
	if err != nil {
		return nil, err
	}
	l.positions[positionKey{market, outcome}] = 0
	return entry, nil
}

// PostDeposit/PostWithdrawal implement the Capital movement template.
func (l *Ledger) PostDeposit(simTime, arrivalTime types.Nanos, id string, amount fixedpoint.Amount) (*Entry, error) {
	postings := []Posting{debit(Cash(), amount), credit(Capital(), amount)}
	return l.post(simTime, arrivalTime, EventRef{Kind: RefDeposit, SourceId: id}, postings)
}

func (l *Ledger) PostWithdrawal(simTime, arrivalTime types.Nanos, id string, amount fixedpoint.Amount) (*Entry, error) {
	postings := []Posting{credit(Cash(), amount), debit(Capital(), amount)}
	return l.post(simTime, arrivalTime, EventRef{Kind: RefWithdrawal, SourceId: id}, postings)
}

// Equity computes Cash + Σ(position*mark) − Σ open liabilities, per the
// InvariantEnforcer's accounting identity (§4.9). marks gives the current
// mark price per (market,outcome); absent entries are treated as zero
// exposure (no open position).
func (l *Ledger) Equity(marks map[positionKeyExport]fixedpoint.Amount) fixedpoint.Amount {
	eq := l.balances[Cash()]
	for k, qty := range l.positions {
		mark, ok := marks[positionKeyExport(k)]
		if !ok || qty == 0 {
			continue
		}
		eq = eq.Add(mark.MulInt(qty))
	}
	return eq
}

// positionKeyExport re-exports positionKey so callers outside the package can
// build a marks map without reaching into an unexported type.
type positionKeyExport = positionKey

func PositionKey(market types.MarketId, outcome types.Outcome) positionKeyExport {
	return positionKey{Market: market, Outcome: outcome}
}
