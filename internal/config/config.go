// Package config defines all configuration for the backtest engine. Config
// is loaded from a YAML file (default: configs/config.yaml) with overrides
// via BACKTEST_* environment variables, generalizing the teacher's
// viper-based config.Load/Validate shape (internal/config/config.go) from a
// live market-making bot's surface to the §6 BacktestConfig surface.
package config

import (
	"fmt"
	"strings"

	"backtestv2/internal/fillgate"
	"backtestv2/internal/fingerprint"
	"backtestv2/internal/integrity"
	"backtestv2/internal/invariant"
	"backtestv2/internal/oms"
	"backtestv2/internal/settlement"

	"github.com/spf13/viper"
)

// Config is the top-level BacktestConfig of §6. Maps directly to the YAML
// file structure.
type Config struct {
	ProductionGrade   bool             `mapstructure:"production_grade"`
	StrictMode        bool             `mapstructure:"strict_mode"`
	StrictAccounting  bool             `mapstructure:"strict_accounting"`
	Seed              int64            `mapstructure:"seed"`
	AllowNonProduction bool            `mapstructure:"allow_non_production"`
	MaxEvents         int64            `mapstructure:"max_events"`

	MakerFillModel string `mapstructure:"maker_fill_model"` // explicit_queue | maker_disabled | optimistic
	OmsParityMode  bool   `mapstructure:"oms_parity_mode"`

	Integrity       IntegrityConfig       `mapstructure:"integrity_policy"`
	InvariantConfig InvariantConfigBlock  `mapstructure:"invariant_config"`
	Settlement      SettlementConfigBlock `mapstructure:"settlement_spec"`
	Oracle          OracleConfig          `mapstructure:"oracle_config"`
	VenueConstraints VenueConstraintsBlock `mapstructure:"venue_constraints"`
	Latency         LatencyConfig         `mapstructure:"latency"`
	Hermetic        HermeticConfigBlock   `mapstructure:"hermetic_config"`
	GateMode        string                `mapstructure:"gate_mode"`
	Sensitivity     SensitivityConfig     `mapstructure:"sensitivity"`

	Store   StoreConfig   `mapstructure:"store"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type IntegrityConfig struct {
	OnDuplicate       string `mapstructure:"on_duplicate"` // drop | halt
	OnGap             string `mapstructure:"on_gap"`       // halt | resync
	OnOutOfOrder      string `mapstructure:"on_out_of_order"` // drop | reorder | halt
	GapTolerance      int64  `mapstructure:"gap_tolerance"`
	ReorderBufferSize int    `mapstructure:"reorder_buffer_size"`
}

type InvariantConfigBlock struct {
	Mode     string   `mapstructure:"mode"` // off | soft | hard
	Enabled  []string `mapstructure:"enabled_categories"`
}

type SettlementConfigBlock struct {
	WindowLengthSeconds int64  `mapstructure:"window_length_seconds"`
	ReferenceRule       string `mapstructure:"reference_rule"`
	TieRule             string `mapstructure:"tie_rule"`
	FeedId              string `mapstructure:"feed_id"`
}

type OracleConfig struct {
	FeedId string `mapstructure:"feed_id"`
	Asset  string `mapstructure:"asset"`
}

type VenueConstraintsBlock struct {
	MinPrice      float64 `mapstructure:"min_price"`
	MaxPrice      float64 `mapstructure:"max_price"`
	TickSize      float64 `mapstructure:"tick_size"`
	MinSize       float64 `mapstructure:"min_size"`
	MaxSize       float64 `mapstructure:"max_size"`
	OrdersPerSec  int     `mapstructure:"orders_per_sec"`
	CancelsPerSec int     `mapstructure:"cancels_per_sec"`
	FeeRateBps    int     `mapstructure:"fee_rate_bps"`
}

type LatencyConfig struct {
	OrderToAckNs   int64 `mapstructure:"order_to_ack_ns"`
	CancelToAckNs  int64 `mapstructure:"cancel_to_ack_ns"`
	FeedToEngineNs int64 `mapstructure:"feed_to_engine_ns"`
}

type HermeticConfigBlock struct {
	Enabled bool `mapstructure:"enabled"`
}

type SensitivityConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	LatencyJitterPct float64 `mapstructure:"latency_jitter_pct"`
	SamplingDropPct  float64 `mapstructure:"sampling_drop_pct"`
}

type StoreConfig struct {
	DatasetPath string `mapstructure:"dataset_path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("BACKTEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks all required fields, value ranges, and the production-mode
// guardrails of §9: Optimistic maker-fill model and Off-mode invariants are
// both rejected when production_grade is true. Validate does not touch the
// integrity block; IntegrityPolicy is what forces {Drop, Halt, Halt} with
// gap_tolerance=0 in production mode regardless of what the file requests.
func (c *Config) Validate() []error {
	var errs []error

	if c.Seed == 0 && !c.AllowNonProduction {
		errs = append(errs, fmt.Errorf("seed must be explicitly set (0 is not a valid seed in production)"))
	}
	if c.MaxEvents <= 0 {
		errs = append(errs, fmt.Errorf("max_events must be > 0"))
	}

	switch c.MakerFillModel {
	case "explicit_queue", "maker_disabled", "optimistic":
	default:
		errs = append(errs, fmt.Errorf("maker_fill_model must be one of: explicit_queue, maker_disabled, optimistic"))
	}
	if c.ProductionGrade && c.MakerFillModel == "optimistic" {
		errs = append(errs, fmt.Errorf("maker_fill_model=optimistic is rejected when production_grade=true (research-grade only, always Untrusted)"))
	}

	switch c.InvariantConfig.Mode {
	case "off", "soft", "hard":
	default:
		errs = append(errs, fmt.Errorf("invariant_config.mode must be one of: off, soft, hard"))
	}
	if c.ProductionGrade && c.InvariantConfig.Mode == "off" {
		errs = append(errs, fmt.Errorf("invariant_config.mode=off is rejected when production_grade=true"))
	}

	if c.VenueConstraints.MinPrice < 0 || c.VenueConstraints.MaxPrice > 1 || c.VenueConstraints.MinPrice >= c.VenueConstraints.MaxPrice {
		errs = append(errs, fmt.Errorf("venue_constraints price domain must satisfy 0 <= min_price < max_price <= 1"))
	}
	if c.VenueConstraints.TickSize <= 0 {
		errs = append(errs, fmt.Errorf("venue_constraints.tick_size must be > 0"))
	}
	if c.VenueConstraints.MinSize <= 0 || c.VenueConstraints.MinSize > c.VenueConstraints.MaxSize {
		errs = append(errs, fmt.Errorf("venue_constraints size domain must satisfy 0 < min_size <= max_size"))
	}
	if c.VenueConstraints.OrdersPerSec <= 0 || c.VenueConstraints.CancelsPerSec <= 0 {
		errs = append(errs, fmt.Errorf("venue_constraints.orders_per_sec and cancels_per_sec must be > 0"))
	}

	if c.Settlement.WindowLengthSeconds <= 0 {
		errs = append(errs, fmt.Errorf("settlement_spec.window_length_seconds must be > 0"))
	}
	switch c.Settlement.ReferenceRule {
	case "last_update_at_or_before_cutoff", "first_update_after_cutoff", "closest_to_cutoff", "closest_to_cutoff_tie_after":
	default:
		errs = append(errs, fmt.Errorf("settlement_spec.reference_rule is not one of the four recognized rules"))
	}

	if c.Store.DatasetPath == "" {
		errs = append(errs, fmt.Errorf("store.dataset_path is required"))
	}

	switch c.GateMode {
	case "", "required", "advisory", "skip":
	default:
		errs = append(errs, fmt.Errorf("gate_mode must be one of: required, advisory, skip"))
	}
	if c.ProductionGrade && c.GateMode == "skip" {
		errs = append(errs, fmt.Errorf("gate_mode=skip is rejected when production_grade=true"))
	}

	return errs
}

// Hash computes a deterministic digest of the fully resolved config,
// including the oracle and settlement blocks whose values (reference rule,
// tie rule, feed_id, decimals' asset) can change a run's outcome without
// ever touching the dispatched event stream — the §8 oracle fingerprint
// sensitivity property requires the composite hash to move when these do,
// which it cannot if the composite only binds seed and rolling hash.
// %+v on Config is deterministic: every field is a scalar, string, or slice
// of scalars, never a map, so struct field order and slice order are the
// only sources of variation and both are fixed by the type definition.
func (c *Config) Hash() string {
	return fingerprint.HashBytes([]byte(fmt.Sprintf("%+v", *c)))
}

// VenueConstraints adapts the config block into oms.VenueConstraints.
func (c *Config) VenueConstraintsValue() oms.VenueConstraints {
	v := c.VenueConstraints
	return oms.VenueConstraints{
		MinPrice: v.MinPrice, MaxPrice: v.MaxPrice, TickSize: v.TickSize,
		MinSize: v.MinSize, MaxSize: v.MaxSize,
		OrdersPerSec: v.OrdersPerSec, CancelsPerSec: v.CancelsPerSec,
		FeeRateBps: v.FeeRateBps,
	}
}

// IntegrityPolicy adapts the config block into integrity.Policy, forcing the
// production policy whenever production_grade is true regardless of the
// file's requested values.
func (c *Config) IntegrityPolicy() integrity.Policy {
	if c.ProductionGrade {
		return integrity.ProductionPolicy()
	}
	p := integrity.Policy{GapTolerance: c.Integrity.GapTolerance, ReorderBufferSize: c.Integrity.ReorderBufferSize}
	switch c.Integrity.OnDuplicate {
	case "halt":
		p.OnDuplicate = integrity.OnDuplicateHalt
	default:
		p.OnDuplicate = integrity.OnDuplicateDrop
	}
	switch c.Integrity.OnGap {
	case "resync":
		p.OnGap = integrity.OnGapResync
	default:
		p.OnGap = integrity.OnGapHalt
	}
	switch c.Integrity.OnOutOfOrder {
	case "reorder":
		p.OnOutOfOrder = integrity.OnOutOfOrderReorder
	case "drop":
		p.OnOutOfOrder = integrity.OnOutOfOrderDrop
	default:
		p.OnOutOfOrder = integrity.OnOutOfOrderHalt
	}
	return p
}

// InvariantMode adapts the config block into invariant.Mode.
func (c *Config) InvariantMode() invariant.Mode {
	switch c.InvariantConfig.Mode {
	case "off":
		return invariant.ModeOff
	case "hard":
		return invariant.ModeHard
	default:
		return invariant.ModeSoft
	}
}

// MakerFillModelValue adapts the string knob into fillgate.MakerFillModel.
func (c *Config) MakerFillModelValue() fillgate.MakerFillModel {
	switch c.MakerFillModel {
	case "maker_disabled":
		return fillgate.MakerDisabled
	case "optimistic":
		return fillgate.Optimistic
	default:
		return fillgate.ExplicitQueue
	}
}

// SettlementReferenceRule adapts the string knob into settlement.ReferenceRule.
func (c *Config) SettlementReferenceRule() settlement.ReferenceRule {
	switch c.Settlement.ReferenceRule {
	case "first_update_after_cutoff":
		return settlement.FirstUpdateAfterCutoff
	case "closest_to_cutoff":
		return settlement.ClosestToCutoff
	case "closest_to_cutoff_tie_after":
		return settlement.ClosestToCutoffTieAfter
	default:
		return settlement.LastUpdateAtOrBeforeCutoff
	}
}
