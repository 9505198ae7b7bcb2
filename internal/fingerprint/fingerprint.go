// Package fingerprint implements the rolling and composite hashing of §9:
// a deterministic digest over the processed event stream plus a composite
// hash of code/config/dataset/seed/behavior, so two runs can be compared for
// bit-for-bit reproducibility. Grounded on the teacher's use of
// github.com/ethereum/go-ethereum/crypto (internal/exchange/auth.go imports
// crypto for ECDSA signing over Keccak256-derived digests); this package
// reuses the same library's crypto.Keccak256 as the hash primitive instead
// of hashing order payloads for wallet signatures.
package fingerprint

import (
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// FormatVersion is prefixed into every composite hash input so that a future
// change to this package's hashing scheme cannot silently collide with an
// older run's fingerprint.
const FormatVersion = "backtest-fp-v1"

// Collector accumulates a rolling hash over the event stream as the
// Orchestrator dispatches events, one call per processed event.
type Collector struct {
	rolling common.Hash
	count   int64
}

func NewCollector() *Collector {
	return &Collector{rolling: crypto.Keccak256Hash([]byte(FormatVersion))}
}

// Absorb folds one event's canonical representation into the rolling hash.
// canonical must already be a stable serialization of the event (the caller
// is responsible for canonicalizing field order); this package only hashes.
func (c *Collector) Absorb(canonical []byte) {
	buf := append(append([]byte{}, c.rolling[:]...), canonical...)
	c.rolling = crypto.Keccak256Hash(buf)
	c.count++
}

// RollingHash returns the current rolling digest, hex-encoded.
func (c *Collector) RollingHash() string {
	return hex.EncodeToString(c.rolling[:])
}

func (c *Collector) EventsAbsorbed() int64 { return c.count }

// CompositeInputs is everything that must be identical across two runs for
// their composite hashes to match (§9).
type CompositeInputs struct {
	CodeVersion string // e.g. a build-embedded VCS revision
	ConfigHash  string // hash of the resolved BacktestConfig
	DatasetHash string // hash of the dataset manifest/content
	Seed        int64
	RollingHash string // the Collector's final rolling hash for this run
}

// Composite computes the final composite hash of §9, binding code, config,
// dataset, seed, and observed behavior (the rolling hash) into one digest.
func Composite(in CompositeInputs) string {
	payload := fmt.Sprintf("%s|code=%s|config=%s|dataset=%s|seed=%d|behavior=%s",
		FormatVersion, in.CodeVersion, in.ConfigHash, in.DatasetHash, in.Seed, in.RollingHash)
	digest := crypto.Keccak256Hash([]byte(payload))
	return hex.EncodeToString(digest[:])
}

// HashBytes is a small helper used by callers (e.g. config/dataset hashing)
// that need a Keccak256 digest of arbitrary bytes without standing up a full
// Collector.
func HashBytes(b []byte) string {
	digest := crypto.Keccak256Hash(b)
	return hex.EncodeToString(digest[:])
}
