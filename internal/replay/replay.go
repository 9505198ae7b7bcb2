// Package replay turns a prerecorded internal/store.Dataset into the
// EventQueue pushes and settlement windows an internal/engine.Orchestrator
// needs to run one backtest. It is the deterministic counterpart to
// internal/feedloader: feedloader is the outer boundary that fetches a
// dataset artifact before a run starts, replay is what drives that
// artifact's rows into the core once the run is underway.
package replay

import (
	"encoding/json"
	"fmt"

	"backtestv2/internal/clock"
	"backtestv2/internal/store"
	"backtestv2/pkg/types"
)

// Window describes one grid-aligned settlement window derived from a
// market's observed data span.
type Window struct {
	MarketId types.MarketId
	StartNs  types.Nanos
	EndNs    types.Nanos
}

// AlignedWindows splits [minNs, maxNs] into consecutive windowLengthNs
// windows on a grid anchored at the epoch, per spec's "grid alignment"
// settlement knob: a window's bounds never depend on where this dataset
// happens to start, only on epoch-aligned multiples of windowLengthNs.
func AlignedWindows(market types.MarketId, minNs, maxNs, windowLengthNs int64) []Window {
	if windowLengthNs <= 0 {
		return nil
	}
	start := (minNs / windowLengthNs) * windowLengthNs
	var windows []Window
	for s := start; s < maxNs; s += windowLengthNs {
		windows = append(windows, Window{
			MarketId: market,
			StartNs:  types.Nanos(s),
			EndNs:    types.Nanos(s + windowLengthNs),
		})
	}
	return windows
}

// LoadToken pushes every snapshot, delta, and trade row for one token onto
// q, tagged with the appropriate priority and source tag per §4.1.
func LoadToken(q *clock.EventQueue, ds *store.Dataset, tokenId string) error {
	snaps, err := ds.BookSnapshots(tokenId)
	if err != nil {
		return fmt.Errorf("load snapshots for %s: %w", tokenId, err)
	}
	for _, row := range snaps {
		payload, err := snapshotPayload(row)
		if err != nil {
			return err
		}
		q.Push(&clock.Event{
			ArrivalTime: types.Nanos(row.ArrivalTimeNs),
			Priority:    types.PriorityMarketData,
			SourceTag:   "book_snapshot",
			SourceTime:  types.Nanos(row.SourceTimeNs),
			Kind:        types.PayloadL2BookSnapshot,
			Payload:     payload,
		})
	}

	deltas, err := ds.BookDeltas(tokenId)
	if err != nil {
		return fmt.Errorf("load deltas for %s: %w", tokenId, err)
	}
	for _, row := range deltas {
		q.Push(&clock.Event{
			ArrivalTime: types.Nanos(row.IngestArrivalTimeNs),
			Priority:    types.PriorityMarketData,
			SourceTag:   "book_delta",
			SourceTime:  types.Nanos(row.WsTimestampMs * 1_000_000),
			Kind:        types.PayloadL2BookDelta,
			Payload: types.L2BookDelta{
				MarketId: types.MarketId(row.MarketId),
				TokenId:  types.TokenId(row.TokenId),
				Side:     types.Side(row.Side),
				Price:    row.Price,
				NewSize:  row.NewSize,
				SeqHash:  row.SeqHash,
			},
		})
	}

	trades, err := ds.TradePrints(tokenId)
	if err != nil {
		return fmt.Errorf("load trades for %s: %w", tokenId, err)
	}
	for _, row := range trades {
		q.Push(&clock.Event{
			ArrivalTime: types.Nanos(row.ArrivalTimeNs),
			Priority:    types.PriorityMarketData,
			SourceTag:   "trade_print",
			SourceTime:  types.Nanos(row.SourceTimeNs),
			Kind:        types.PayloadTradePrint,
			Payload: types.TradePrint{
				TokenId:         types.TokenId(row.TokenId),
				MarketId:        types.MarketId(row.MarketId),
				Price:           row.Price,
				Size:            row.Size,
				AggressorSide:   types.Side(row.AggressorSide),
				FeeRateBps:      row.FeeRateBps,
				ExchangeTradeId: row.ExchangeTradeId,
			},
		})
	}
	return nil
}

// LoadOracleFeed pushes every oracle round for feedId onto q as
// PrioritySystem events, per §4.1's ordering of oracle advances ahead of
// market data at equal arrival_time.
func LoadOracleFeed(q *clock.EventQueue, ds *store.Dataset, feedId string) error {
	rounds, err := ds.ChainlinkRounds(feedId)
	if err != nil {
		return fmt.Errorf("load oracle rounds for feed %s: %w", feedId, err)
	}
	for _, row := range rounds {
		q.Push(&clock.Event{
			ArrivalTime: types.Nanos(row.IngestArrivalTimeNs),
			Priority:    types.PrioritySystem,
			SourceTag:   "oracle_round",
			SourceTime:  types.Nanos(row.StartedAt * 1_000_000_000),
			Kind:        types.PayloadOracleRound,
			Payload: types.OracleRound{
				FeedId:       row.FeedId,
				RoundId:      uint64(row.RoundId),
				Answer:       row.Answer,
				Decimals:     row.Decimals,
				Asset:        row.AssetSymbol,
				SourceTimeNs: types.Nanos(row.StartedAt * 1_000_000_000),
			},
		})
	}
	return nil
}

func snapshotPayload(row store.BookSnapshotRow) (types.L2BookSnapshot, error) {
	var bids, asks []types.BookLevel
	if row.BidsJson != "" {
		if err := json.Unmarshal([]byte(row.BidsJson), &bids); err != nil {
			return types.L2BookSnapshot{}, fmt.Errorf("decode bids for %s: %w", row.TokenId, err)
		}
	}
	if row.AsksJson != "" {
		if err := json.Unmarshal([]byte(row.AsksJson), &asks); err != nil {
			return types.L2BookSnapshot{}, fmt.Errorf("decode asks for %s: %w", row.TokenId, err)
		}
	}
	return types.L2BookSnapshot{
		TokenId:     types.TokenId(row.TokenId),
		Bids:        bids,
		Asks:        asks,
		ExchangeSeq: row.ExchangeSeq,
	}, nil
}
