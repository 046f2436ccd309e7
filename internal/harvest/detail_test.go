package harvest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/user/listing-harvester/internal/domain"
)

const detailURL = "https://www.bayut.com/property/details-1.html"

func failingFetcher() *scriptedFetcher {
	return &scriptedFetcher{respond: func(url string, _ int) ([]byte, error) {
		return nil, &NetworkError{URL: url, StatusCode: 503}
	}}
}

func TestDetailFetcherRetryBound(t *testing.T) {
	logger, logs := observedLogger()
	m := testMetrics()
	f := failingFetcher()
	df := NewDetailFetcher(f, testExtractor(t, site), RetryPolicy{MaxRetries: 3, BackoffBase: time.Millisecond}, m, logger)

	d := df.Fetch(context.Background(), detailURL, false)

	assert.Equal(t, domain.MissingDetail(), d)
	assert.Equal(t, 3, f.count(detailURL))

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warnings, 1)
	fields := warnings[0].ContextMap()
	assert.Equal(t, "detail", fields["stage"])
	assert.Equal(t, detailURL, fields["url"])

	var logged error
	for _, field := range warnings[0].Context {
		if field.Key == "error" {
			logged, _ = field.Interface.(error)
		}
	}
	require.NotNil(t, logged)
	assert.True(t, errors.Is(logged, ErrRetryExhausted))
	assert.True(t, errors.Is(logged, ErrNetwork))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RetriesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DetailsTotal.WithLabelValues("exhausted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FailuresTotal.WithLabelValues("detail")))
}

func TestDetailFetcherBacksOffExponentially(t *testing.T) {
	f := failingFetcher()
	df := NewDetailFetcher(f, testExtractor(t, site), RetryPolicy{MaxRetries: 3, BackoffBase: 20 * time.Millisecond}, testMetrics(), zap.NewNop())

	start := time.Now()
	df.Fetch(context.Background(), detailURL, false)

	// 20ms after the first failure, 40ms after the second, none after the last
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
	assert.Less(t, elapsed, time.Second)

	p := RetryPolicy{BackoffBase: time.Second}
	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 4*time.Second, p.Backoff(3))
}

func TestDetailFetcherRecoversAfterTransientFailure(t *testing.T) {
	f := &scriptedFetcher{respond: func(url string, attempt int) ([]byte, error) {
		if attempt == 1 {
			return nil, &NetworkError{URL: url, Err: errors.New("connection reset")}
		}
		return detailPage("Renovated", []string{"Pool"}), nil
	}}
	logger, logs := observedLogger()
	df := NewDetailFetcher(f, testExtractor(t, site), RetryPolicy{MaxRetries: 3, BackoffBase: time.Millisecond}, testMetrics(), logger)

	d := df.Fetch(context.Background(), detailURL, false)

	assert.Equal(t, domain.Text("Renovated"), d.Description)
	assert.Equal(t, []string{"Pool"}, d.Amenities.Items)
	assert.Equal(t, 2, f.count(detailURL))
	assert.Zero(t, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestDetailFetcherFastModeMakesNoCalls(t *testing.T) {
	f := failingFetcher()
	df := NewDetailFetcher(f, testExtractor(t, site), RetryPolicy{MaxRetries: 3}, testMetrics(), zap.NewNop())

	assert.Equal(t, domain.MissingDetail(), df.Fetch(context.Background(), detailURL, true))
	assert.Equal(t, domain.MissingDetail(), df.Fetch(context.Background(), "", false))
	assert.Zero(t, f.total())
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]domain.Detail
	ttls    map[string]time.Duration
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]domain.Detail{}, ttls: map[string]time.Duration{}}
}

func (c *mapCache) GetDetail(_ context.Context, url string) (domain.Detail, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.entries[url]
	return d, ok, nil
}

func (c *mapCache) PutDetail(_ context.Context, url string, d domain.Detail, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = d
	c.ttls[url] = ttl
	return nil
}

func TestDetailFetcherUsesCache(t *testing.T) {
	f := &scriptedFetcher{respond: func(string, int) ([]byte, error) {
		return detailPage("Cached later", nil), nil
	}}
	cache := newMapCache()
	m := testMetrics()
	df := NewDetailFetcher(f, testExtractor(t, site), RetryPolicy{MaxRetries: 3}, m, zap.NewNop()).
		WithCache(cache, time.Hour)

	first := df.Fetch(context.Background(), detailURL, false)
	second := df.Fetch(context.Background(), detailURL, false)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.count(detailURL))
	assert.Equal(t, time.Hour, cache.ttls[detailURL])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DetailsTotal.WithLabelValues("cached")))
}

func TestDetailFetcherDoesNotCacheFailures(t *testing.T) {
	cache := newMapCache()
	df := NewDetailFetcher(failingFetcher(), testExtractor(t, site), RetryPolicy{MaxRetries: 1}, testMetrics(), zap.NewNop()).
		WithCache(cache, time.Hour)

	df.Fetch(context.Background(), detailURL, false)
	assert.Empty(t, cache.entries)
}
