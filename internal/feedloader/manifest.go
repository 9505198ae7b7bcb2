// Package feedloader is the outer boundary of the engine: the only code
// that legitimately touches wall-clock and network, never feeding a run's
// deterministic core and never reachable from the hermetic strategy sandbox
// (§4.10, SPEC_FULL.md §11). The manifest fetcher runs before a run starts;
// LiveTailer runs alongside a replay for operator visibility only.
package feedloader

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// Manifest describes one remote dataset artifact available for a backtest
// run — a SQLite file plus its content hash, fetched before the Orchestrator
// ever opens internal/store.
type Manifest struct {
	DatasetId   string `json:"dataset_id"`
	DownloadURL string `json:"download_url"`
	Sha256      string `json:"sha256"`
	SizeBytes   int64  `json:"size_bytes"`
}

// ManifestFetcher retrieves dataset manifests over HTTP, grounded on the
// teacher's exchange.Client resty construction (internal/exchange/client.go):
// base URL, timeout, bounded retry on 5xx, rate-limited via TokenBucket.
type ManifestFetcher struct {
	http   *resty.Client
	bucket *TokenBucket
	logger *slog.Logger
}

func NewManifestFetcher(baseURL string, logger *slog.Logger) *ManifestFetcher {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})
	return &ManifestFetcher{
		http:   httpClient,
		bucket: NewTokenBucket(5, 1), // 5 burst, 1/sec sustained — manifest fetches are infrequent and pre-run only
		logger: logger,
	}
}

// Fetch retrieves one dataset's manifest by id.
func (f *ManifestFetcher) Fetch(datasetId string) (*Manifest, error) {
	f.bucket.Wait()

	var m Manifest
	resp, err := f.http.R().
		SetResult(&m).
		Get(fmt.Sprintf("/datasets/%s/manifest.json", datasetId))
	if err != nil {
		return nil, fmt.Errorf("fetch manifest for %s: %w", datasetId, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch manifest for %s: status %d", datasetId, resp.StatusCode())
	}
	if f.logger != nil {
		f.logger.Info("fetched dataset manifest", "dataset_id", datasetId, "sha256", m.Sha256, "size_bytes", m.SizeBytes)
	}
	return &m, nil
}
