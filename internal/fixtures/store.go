package fixtures

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/gradeworks/grader-worker/internal/logging"
	"github.com/gradeworks/grader-worker/internal/metrics"
)

// Store fetches challenge fixtures from an upstream HTTP service, caching
// public fixtures on disk (never hidden ones).
type Store struct {
	client   *retryablehttp.Client
	baseURL  string
	cacheDir string
}

// NewStore builds a Store pointed at baseURL, caching under cacheDir.
func NewStore(baseURL, cacheDir string) *Store {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 50 * time.Millisecond
	client.RetryWaitMax = 500 * time.Millisecond
	client.Logger = nil // the zap logger below replaces retryablehttp's own
	return &Store{client: client, baseURL: baseURL, cacheDir: cacheDir}
}

// FetchPublic returns a challenge's public fixtures, preferring the on-disk
// cache. Any fetch error degrades to an empty list rather than propagating,
// per the store's best-effort contract.
func (s *Store) FetchPublic(challengeID string) []Fixture {
	if cached, ok := s.readCache(challengeID); ok {
		metrics.Get().FixtureCacheHitsTotal.Inc()
		return cached
	}
	metrics.Get().FixtureCacheMissesTotal.Inc()

	fixtures, err := s.fetch(fmt.Sprintf("%s/challenges/%s/fixtures", s.baseURL, challengeID))
	if err != nil {
		logging.S().Warnw("public fixture fetch failed, proceeding with empty list", "challengeId", challengeID, "error", err)
		return nil
	}
	if err := s.writeCache(challengeID, fixtures); err != nil {
		logging.S().Warnw("fixture cache write failed", "challengeId", challengeID, "error", err)
	}
	return fixtures
}

// FetchHidden always re-fetches from upstream; hidden fixtures are never
// written to disk.
func (s *Store) FetchHidden(challengeID string) []Fixture {
	fixtures, err := s.fetch(fmt.Sprintf("%s/challenges/%s/hidden-tests", s.baseURL, challengeID))
	if err != nil {
		logging.S().Warnw("hidden fixture fetch failed, proceeding with empty list", "challengeId", challengeID, "error", err)
		return nil
	}
	return fixtures
}

func (s *Store) fetch(url string) ([]Fixture, error) {
	resp, err := s.client.Get(url)
	if err != nil {
		metrics.Get().FixtureFetchErrors.WithLabelValues("transport").Inc()
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.Get().FixtureFetchErrors.WithLabelValues("status").Inc()
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", url, err)
	}
	return ParseFixtures(body)
}

func (s *Store) cachePath(challengeID string) string {
	return filepath.Join(s.cacheDir, fmt.Sprintf("fixtures_%s.json", challengeID))
}

func (s *Store) readCache(challengeID string) ([]Fixture, bool) {
	data, err := os.ReadFile(s.cachePath(challengeID))
	if err != nil {
		return nil, false
	}
	fixtures, err := ParseFixtures(data)
	if err != nil {
		logging.S().Warnw("fixture cache parse failed, falling back to remote", "challengeId", challengeID, "error", err)
		return nil, false
	}
	return fixtures, true
}

// writeCache writes atomically: write to a temp file in the same directory,
// then rename, so concurrent readers never observe a torn file.
func (s *Store) writeCache(challengeID string, fixtures []Fixture) error {
	if err := os.MkdirAll(s.cacheDir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	data, err := marshalFixtures(fixtures)
	if err != nil {
		return err
	}

	final := s.cachePath(challengeID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache temp file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}
