package harvest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/user/listing-harvester/internal/domain"
	"github.com/user/listing-harvester/internal/monitoring"
)

// DetailCache stores parsed detail pages between runs.
type DetailCache interface {
	GetDetail(ctx context.Context, url string) (domain.Detail, bool, error)
	PutDetail(ctx context.Context, url string, d domain.Detail, ttl time.Duration) error
}

// RetryPolicy bounds the attempts made for one detail page.
type RetryPolicy struct {
	MaxRetries  int
	BackoffBase time.Duration
}

// Backoff returns the wait after the given failed attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	return p.BackoffBase << (attempt - 1)
}

// DetailFetcher fetches and parses one listing's own page. It absorbs every
// failure and returns sentinel fields instead.
type DetailFetcher struct {
	fetcher   Fetcher
	extractor *Extractor
	policy    RetryPolicy
	cache     DetailCache
	cacheTTL  time.Duration
	metrics   *monitoring.Metrics
	logger    *zap.Logger
}

func NewDetailFetcher(f Fetcher, ex *Extractor, policy RetryPolicy, m *monitoring.Metrics, l *zap.Logger) *DetailFetcher {
	if policy.MaxRetries < 1 {
		policy.MaxRetries = 1
	}
	return &DetailFetcher{fetcher: f, extractor: ex, policy: policy, metrics: m, logger: l}
}

// WithCache returns a copy of d that consults cache before the network.
func (d *DetailFetcher) WithCache(cache DetailCache, ttl time.Duration) *DetailFetcher {
	c := *d
	c.cache = cache
	c.cacheTTL = ttl
	return &c
}

func (d *DetailFetcher) Fetch(ctx context.Context, url string, fast bool) domain.Detail {
	if fast || url == "" {
		return domain.MissingDetail()
	}

	if d.cache != nil {
		detail, ok, err := d.cache.GetDetail(ctx, url)
		if err != nil {
			d.logger.Debug("detail cache lookup failed", zap.String("url", url), zap.Error(err))
		}
		if ok {
			d.metrics.IncDetail("cached")
			return detail
		}
	}

	var lastErr error
	for attempt := 1; attempt <= d.policy.MaxRetries; attempt++ {
		detail, err := d.attempt(ctx, url)
		if err == nil {
			d.metrics.IncDetail("ok")
			d.store(ctx, url, detail)
			return detail
		}
		lastErr = err

		if attempt == d.policy.MaxRetries {
			break
		}
		wait := d.policy.Backoff(attempt)
		d.logger.Debug("retrying detail page",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		d.metrics.IncRetry()
		if !sleep(ctx, wait) {
			break
		}
	}

	d.logger.Warn("detail fetch failed",
		zap.String("stage", "detail"),
		zap.String("url", url),
		zap.Error(&RetryExhaustedError{URL: url, Attempts: d.policy.MaxRetries, Err: lastErr}),
	)
	d.metrics.IncDetail("exhausted")
	d.metrics.IncFailure("detail")
	return domain.MissingDetail()
}

func (d *DetailFetcher) attempt(ctx context.Context, url string) (domain.Detail, error) {
	body, err := d.fetcher.Fetch(ctx, url)
	if err != nil {
		return domain.Detail{}, err
	}
	return d.extractor.ParseDetail(body)
}

func (d *DetailFetcher) store(ctx context.Context, url string, detail domain.Detail) {
	if d.cache == nil {
		return
	}
	if err := d.cache.PutDetail(ctx, url, detail, d.cacheTTL); err != nil {
		d.logger.Debug("detail cache write failed", zap.String("url", url), zap.Error(err))
	}
}

// sleep waits for d or until ctx is done, reporting whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
