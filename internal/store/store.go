// Package store is the read-only dataset reader of §6: GORM models over the
// four historical tables, opened via SQLite (the dataset is prerecorded, so
// there is no Postgres path, unlike the teacher's live-position store).
// Grounded on web3guy0-polybot's internal/database/database.go, which opens
// gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode
// (logger.Silent)}) and exposes its WindowPrice / GetWindowPriceByAssetAndTime
// "price to beat" lookup — the direct ancestor of this package's
// ChainlinkRound reference-price queries (SPEC_FULL.md §12).
package store

import (
	"fmt"
	"sort"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// BookSnapshotRow mirrors historical_book_snapshots.
type BookSnapshotRow struct {
	TokenId       string `gorm:"column:token_id;index"`
	ExchangeSeq   int64  `gorm:"column:exchange_seq"`
	SourceTimeNs  int64  `gorm:"column:source_time_ns"`
	ArrivalTimeNs int64  `gorm:"column:arrival_time_ns;not null;index"`
	LocalSeq      int64  `gorm:"column:local_seq;not null"`
	BidsJson      string `gorm:"column:bids_json"`
	AsksJson      string `gorm:"column:asks_json"`
}

func (BookSnapshotRow) TableName() string { return "historical_book_snapshots" }

// BookDeltaRow mirrors historical_book_deltas.
type BookDeltaRow struct {
	MarketId            string  `gorm:"column:market_id;index"`
	TokenId             string  `gorm:"column:token_id;index"`
	Side                string  `gorm:"column:side"` // BUY | SELL
	Price               float64 `gorm:"column:price"`
	NewSize             float64 `gorm:"column:new_size"`
	WsTimestampMs       int64   `gorm:"column:ws_timestamp_ms"`
	IngestArrivalTimeNs int64   `gorm:"column:ingest_arrival_time_ns;not null;index"`
	IngestSeq           int64   `gorm:"column:ingest_seq;not null"`
	SeqHash             string  `gorm:"column:seq_hash"`
	BestBid             float64 `gorm:"column:best_bid"`
	BestAsk             float64 `gorm:"column:best_ask"`
}

func (BookDeltaRow) TableName() string { return "historical_book_deltas" }

// TradePrintRow mirrors historical_trade_prints.
type TradePrintRow struct {
	TokenId         string  `gorm:"column:token_id;index"`
	MarketId        string  `gorm:"column:market_id;index"`
	Price           float64 `gorm:"column:price"`
	Size            float64 `gorm:"column:size"`
	AggressorSide   string  `gorm:"column:aggressor_side"`
	FeeRateBps      int     `gorm:"column:fee_rate_bps"`
	SourceTimeNs    int64   `gorm:"column:source_time_ns"`
	ArrivalTimeNs   int64   `gorm:"column:arrival_time_ns;not null;index"`
	LocalSeq        int64   `gorm:"column:local_seq;not null"`
	ExchangeTradeId string  `gorm:"column:exchange_trade_id"`
}

func (TradePrintRow) TableName() string { return "historical_trade_prints" }

// ChainlinkRoundRow mirrors chainlink_rounds.
type ChainlinkRoundRow struct {
	FeedId              string `gorm:"column:feed_id;uniqueIndex:idx_feed_round"`
	RoundId             int64  `gorm:"column:round_id;uniqueIndex:idx_feed_round"`
	Answer              int64  `gorm:"column:answer"`
	UpdatedAt           int64  `gorm:"column:updated_at"`
	AnsweredInRound     int64  `gorm:"column:answered_in_round"`
	StartedAt           int64  `gorm:"column:started_at"`
	IngestArrivalTimeNs int64  `gorm:"column:ingest_arrival_time_ns;not null;index"`
	IngestSeq           int64  `gorm:"column:ingest_seq;not null"`
	Decimals            int    `gorm:"column:decimals"`
	AssetSymbol         string `gorm:"column:asset_symbol"`
}

func (ChainlinkRoundRow) TableName() string { return "chainlink_rounds" }

// Dataset is the read-only handle over a prerecorded SQLite dataset.
type Dataset struct {
	db   *gorm.DB
	path string
}

// Open opens the dataset at path read-only. AutoMigrate is intentionally not
// called: a dataset's schema is produced upstream by the data pipeline, and
// this package never writes to it — calling AutoMigrate against a read-only
// artifact would be a silent schema mutation the spec forbids.
func Open(path string) (*Dataset, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open dataset %s: %w", path, err)
	}
	return &Dataset{db: db, path: path}, nil
}

// Manifest renders a deterministic description of the dataset's identity —
// its path, row counts, and the (market, token) pairs it covers — for the
// caller to hash into the run's composite fingerprint (§9), so replaying
// against a different or regenerated dataset is detectable even when the
// replayed window happens to dispatch an identical event stream.
func (d *Dataset) Manifest() (string, error) {
	counts, err := d.Counts()
	if err != nil {
		return "", err
	}
	markets, err := d.Markets()
	if err != nil {
		return "", err
	}
	sort.Slice(markets, func(i, j int) bool {
		if markets[i].MarketId != markets[j].MarketId {
			return markets[i].MarketId < markets[j].MarketId
		}
		return markets[i].TokenId < markets[j].TokenId
	})
	var sb strings.Builder
	fmt.Fprintf(&sb, "path=%s|snapshots=%d|deltas=%d|trades=%d|rounds=%d",
		d.path, counts.BookSnapshots, counts.BookDeltas, counts.TradePrints, counts.ChainlinkRounds)
	for _, m := range markets {
		fmt.Fprintf(&sb, "|market=%s:%s", m.MarketId, m.TokenId)
	}
	return sb.String(), nil
}

// BookSnapshots streams all snapshot rows for a token in replay order:
// ORDER BY (arrival_time_ns ASC, local_seq ASC), per §6.
func (d *Dataset) BookSnapshots(tokenId string) ([]BookSnapshotRow, error) {
	var rows []BookSnapshotRow
	err := d.db.Where("token_id = ?", tokenId).
		Order("arrival_time_ns ASC").Order("local_seq ASC").
		Find(&rows).Error
	return rows, err
}

// BookDeltas streams all delta rows for a token in replay order:
// ORDER BY (ingest_arrival_time_ns ASC, ingest_seq ASC), per §6.
func (d *Dataset) BookDeltas(tokenId string) ([]BookDeltaRow, error) {
	var rows []BookDeltaRow
	err := d.db.Where("token_id = ?", tokenId).
		Order("ingest_arrival_time_ns ASC").Order("ingest_seq ASC").
		Find(&rows).Error
	return rows, err
}

// TradePrints streams all trade-print rows for a token in replay order.
func (d *Dataset) TradePrints(tokenId string) ([]TradePrintRow, error) {
	var rows []TradePrintRow
	err := d.db.Where("token_id = ?", tokenId).
		Order("arrival_time_ns ASC").Order("local_seq ASC").
		Find(&rows).Error
	return rows, err
}

// ChainlinkRounds streams all oracle rounds for a feed in replay order.
func (d *Dataset) ChainlinkRounds(feedId string) ([]ChainlinkRoundRow, error) {
	var rows []ChainlinkRoundRow
	err := d.db.Where("feed_id = ?", feedId).
		Order("ingest_arrival_time_ns ASC").Order("ingest_seq ASC").
		Find(&rows).Error
	return rows, err
}

// MarketToken pairs a market with the token whose book represents it,
// discovered from the delta table rather than configured, since a dataset's
// market/token mapping is fixed by the upstream ingest pipeline.
type MarketToken struct {
	MarketId string
	TokenId  string
}

// Markets returns every distinct (market_id, token_id) pair present in the
// dataset, used by the replay driver to discover which settlement windows
// and book streams to load without requiring them to be hand-configured.
func (d *Dataset) Markets() ([]MarketToken, error) {
	var rows []MarketToken
	err := d.db.Model(&BookDeltaRow{}).
		Distinct("market_id", "token_id").
		Find(&rows).Error
	return rows, err
}

// TimeBounds returns the earliest and latest arrival_time_ns across a
// token's book snapshots and deltas, used to derive the grid-aligned
// settlement windows a market's data actually spans.
func (d *Dataset) TimeBounds(tokenId string) (minNs, maxNs int64, err error) {
	var snapMin, snapMax, deltaMin, deltaMax *int64
	row := d.db.Model(&BookSnapshotRow{}).Where("token_id = ?", tokenId).
		Select("MIN(arrival_time_ns)", "MAX(arrival_time_ns)").Row()
	if err = row.Scan(&snapMin, &snapMax); err != nil {
		return 0, 0, err
	}
	row = d.db.Model(&BookDeltaRow{}).Where("token_id = ?", tokenId).
		Select("MIN(ingest_arrival_time_ns)", "MAX(ingest_arrival_time_ns)").Row()
	if err = row.Scan(&deltaMin, &deltaMax); err != nil {
		return 0, 0, err
	}
	minNs, maxNs = -1, -1
	for _, v := range []*int64{snapMin, deltaMin} {
		if v != nil && (minNs == -1 || *v < minNs) {
			minNs = *v
		}
	}
	for _, v := range []*int64{snapMax, deltaMax} {
		if v != nil && (maxNs == -1 || *v > maxNs) {
			maxNs = *v
		}
	}
	if minNs == -1 {
		return 0, 0, fmt.Errorf("no book data for token %s", tokenId)
	}
	return minNs, maxNs, nil
}

// RowCounts reports table sizes, used by the dataset classifier (§4.1) to
// decide readiness before any event is dispatched.
type RowCounts struct {
	BookSnapshots int64
	BookDeltas    int64
	TradePrints   int64
	ChainlinkRounds int64
}

func (d *Dataset) Counts() (RowCounts, error) {
	var c RowCounts
	if err := d.db.Model(&BookSnapshotRow{}).Count(&c.BookSnapshots).Error; err != nil {
		return c, err
	}
	if err := d.db.Model(&BookDeltaRow{}).Count(&c.BookDeltas).Error; err != nil {
		return c, err
	}
	if err := d.db.Model(&TradePrintRow{}).Count(&c.TradePrints).Error; err != nil {
		return c, err
	}
	if err := d.db.Model(&ChainlinkRoundRow{}).Count(&c.ChainlinkRounds).Error; err != nil {
		return c, err
	}
	return c, nil
}
