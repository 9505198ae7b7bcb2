// Package sensitivity implements the SensitivitySweep of §4.11 step 7 and
// §6's sensitivity config block: independent perturbations of latency and
// sampling assumptions to check whether a strategy's reported edge survives
// small, plausible changes to execution assumptions. This package only
// computes the sweep grid and aggregates per-point results; it runs nothing
// itself, and the Orchestrator does not call it (its Result carries an empty
// FragilityReport).
package sensitivity

import "math"

// Config is the §6 sensitivity config block.
type Config struct {
	Enabled          bool
	LatencyJitterPct float64 // e.g. 0.20 sweeps latency at -20%/+20%
	SamplingDropPct  float64 // e.g. 0.05 sweeps dropping 5% of snapshots
}

// Point is one sweep coordinate: a named perturbation and its magnitude.
type Point struct {
	Dimension string // "latency" | "sampling"
	Delta     float64
}

// Grid builds the sweep points for a Config. Each dimension contributes two
// points (+delta, -delta) plus the unperturbed baseline is run separately by
// the caller and is not part of this grid.
func Grid(cfg Config) []Point {
	if !cfg.Enabled {
		return nil
	}
	var points []Point
	if cfg.LatencyJitterPct > 0 {
		points = append(points,
			Point{Dimension: "latency", Delta: cfg.LatencyJitterPct},
			Point{Dimension: "latency", Delta: -cfg.LatencyJitterPct},
		)
	}
	if cfg.SamplingDropPct > 0 {
		points = append(points,
			Point{Dimension: "sampling", Delta: cfg.SamplingDropPct},
			Point{Dimension: "sampling", Delta: -cfg.SamplingDropPct},
		)
	}
	return points
}

// PointResult is one sweep point's outcome: the final PnL of a run with the
// perturbation applied, supplied by the caller.
type PointResult struct {
	Point      Point
	FinalPnL   float64
}

// FragilityReport summarizes whether a strategy's PnL sign or magnitude
// flips under small perturbations — the "sensitivity fragility flag" of the
// Result object (§6).
type FragilityReport struct {
	BaselinePnL float64
	Results     []PointResult
	Fragile     bool
	MaxSwingPct float64
}

// Evaluate flags fragility when any sweep point's PnL sign differs from the
// baseline, or its magnitude differs from baseline by more than 50%.
func Evaluate(baselinePnL float64, results []PointResult) FragilityReport {
	report := FragilityReport{BaselinePnL: baselinePnL, Results: results}
	if len(results) == 0 {
		return report
	}
	baseAbs := math.Abs(baselinePnL)
	for _, r := range results {
		if (baselinePnL > 0) != (r.FinalPnL > 0) && baselinePnL != 0 && r.FinalPnL != 0 {
			report.Fragile = true
		}
		if baseAbs > 0 {
			swing := math.Abs(r.FinalPnL-baselinePnL) / baseAbs
			if swing > report.MaxSwingPct {
				report.MaxSwingPct = swing
			}
			if swing > 0.50 {
				report.Fragile = true
			}
		}
	}
	return report
}
