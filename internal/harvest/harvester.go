package harvest

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/user/listing-harvester/internal/config"
	"github.com/user/listing-harvester/internal/domain"
	"github.com/user/listing-harvester/internal/insights"
	"github.com/user/listing-harvester/internal/monitoring"
	"github.com/user/listing-harvester/internal/sink"
)

// SinkFactory opens the sink for one region run.
type SinkFactory func(job domain.ScrapeJob) (sink.Sink, error)

// Harvester discovers a region's pages and fans page tasks out over a
// bounded pool. Each page task runs its own bounded detail pool.
type Harvester struct {
	config    *config.Config
	fetcher   Fetcher
	extractor *Extractor
	newSink   SinkFactory
	newMirror SinkFactory
	cache     DetailCache
	metrics   *monitoring.Metrics
	logger    *zap.Logger
	progress  ProgressFactory
}

func NewHarvester(cfg *config.Config, f Fetcher, ex *Extractor, ns SinkFactory, m *monitoring.Metrics, l *zap.Logger) *Harvester {
	return &Harvester{
		config:    cfg,
		fetcher:   f,
		extractor: ex,
		newSink:   ns,
		metrics:   m,
		logger:    l,
	}
}

// SetCache enables the detail page cache.
func (h *Harvester) SetCache(c DetailCache) { h.cache = c }

// SetMirror adds a best-effort copy of every written page. The sink from
// the main factory stays authoritative: a mirror failure never drops a page.
func (h *Harvester) SetMirror(f SinkFactory) { h.newMirror = f }

// SetProgress attaches an external progress display.
func (h *Harvester) SetProgress(p ProgressFactory) { h.progress = p }

// NewJob fills a ScrapeJob from the configured retry and pacing constants.
func (h *Harvester) NewJob(region domain.Region, filter domain.Filter, fast bool, maxWorkers int) domain.ScrapeJob {
	return domain.ScrapeJob{
		Region:       region,
		Filter:       filter,
		FastMode:     fast,
		MaxWorkers:   maxWorkers,
		MaxRetries:   h.config.MaxRetries,
		BackoffBase:  h.config.BackoffBase(),
		RequestDelay: h.config.RequestDelay(),
		PageSize:     h.config.PageSize,
	}
}

func validateJob(job domain.ScrapeJob) error {
	if r, ok := domain.ParseRegion(string(job.Region)); !ok || r != job.Region {
		return &ConfigurationError{Field: "region", Value: string(job.Region)}
	}
	if f, ok := domain.ParseFilter(string(job.Filter)); !ok || f != job.Filter {
		return &ConfigurationError{Field: "furnishing filter", Value: string(job.Filter)}
	}
	if job.MaxWorkers < 1 {
		return &ConfigurationError{Field: "worker limit", Value: strconv.Itoa(job.MaxWorkers)}
	}
	if job.PageSize < 1 {
		return &ConfigurationError{Field: "page size", Value: strconv.Itoa(job.PageSize)}
	}
	return nil
}

// Run harvests every page of one region. Page failures are logged and
// dropped; only configuration, sink and discovery failures are returned.
func (h *Harvester) Run(ctx context.Context, job domain.ScrapeJob) (domain.RunState, error) {
	state := domain.RunState{Region: job.Region}
	if err := validateJob(job); err != nil {
		return state, err
	}
	firstURL, err := BuildURL(h.config.BaseURL, job.Region, job.Filter, 1)
	if err != nil {
		return state, err
	}

	out, err := h.newSink(job)
	if err != nil {
		return state, fmt.Errorf("open sink: %w", err)
	}
	out = h.mirrored(job, out)
	defer func() {
		if err := out.Close(); err != nil {
			h.logger.Error("failed to close sink", zap.String("region", string(job.Region)), zap.Error(err))
		}
	}()
	if err := out.Prepare(ctx); err != nil {
		return state, fmt.Errorf("prepare sink: %w", err)
	}

	body, err := h.fetcher.Fetch(ctx, firstURL)
	if err != nil {
		return state, fmt.Errorf("discover pages: %w", err)
	}
	count, err := h.extractor.TotalCount(body)
	if err != nil {
		return state, fmt.Errorf("discover pages from %s: %w", firstURL, err)
	}
	state.TotalPages = TotalPages(count, job.PageSize)
	h.logger.Info("discovered listings",
		zap.String("region", string(job.Region)),
		zap.String("furnished", string(job.Filter)),
		zap.Int("listings", count),
		zap.Int("pages", state.TotalPages),
	)

	tracker := h.track(job.Region, state.TotalPages)
	defer tracker.Finish()

	// A deadline stops dispatching new pages. Started pages run to completion.
	dispatchCtx := ctx
	if d := h.config.RunDeadline(); d > 0 {
		var cancel context.CancelFunc
		dispatchCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	taskCtx := context.WithoutCancel(ctx)

	details := NewDetailFetcher(h.fetcher, h.extractor, RetryPolicy{
		MaxRetries:  job.MaxRetries,
		BackoffBase: job.BackoffBase,
	}, h.metrics, h.logger)
	if h.cache != nil {
		details = details.WithCache(h.cache, h.config.DetailCacheTTL())
	}
	stats := insights.NewCollector()

	sem := semaphore.NewWeighted(int64(job.MaxWorkers))
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		rows      atomic.Int64
	)
	for page := 1; page <= state.TotalPages; page++ {
		if err := sem.Acquire(dispatchCtx, 1); err != nil {
			h.logger.Warn("stopped dispatching pages",
				zap.String("stage", "page"),
				zap.String("region", string(job.Region)),
				zap.Int("next_page", page),
				zap.Error(err),
			)
			break
		}
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			defer sem.Release(1)

			res, err := h.harvestPage(taskCtx, job, details, out, stats, page)
			if err != nil {
				h.logger.Warn("page dropped",
					zap.String("stage", "page"),
					zap.String("region", string(job.Region)),
					zap.Int("page", page),
					zap.Error(err),
				)
				h.metrics.IncPage(string(job.Region), "failed")
				h.metrics.IncFailure("page")
			} else {
				succeeded.Add(1)
				rows.Add(int64(len(res.Records)))
				h.metrics.IncPage(string(job.Region), "ok")
				h.metrics.AddRows(string(job.Region), len(res.Records))
			}
			tracker.Advance(err == nil)
			sleep(taskCtx, job.RequestDelay)
		}(page)
	}
	wg.Wait()

	state.SuccessfulPages = int(succeeded.Load())
	state.Rows = int(rows.Load())

	summary := stats.Summary()
	h.logger.Info("region finished",
		zap.String("region", string(job.Region)),
		zap.Int("successful_pages", state.SuccessfulPages),
		zap.Int("total_pages", state.TotalPages),
		zap.Int("rows", state.Rows),
		zap.Any("missing_fields", summary.Missing),
		zap.Int("priced_rows", summary.PriceCount),
		zap.Float64("price_min", summary.PriceMin),
		zap.Float64("price_max", summary.PriceMax),
		zap.Float64("price_mean", summary.PriceMean),
	)
	return state, nil
}

// harvestPage fetches one catalog page, merges its detail pages by index
// and appends the rows as one block.
func (h *Harvester) harvestPage(ctx context.Context, job domain.ScrapeJob, details *DetailFetcher, out sink.Sink, stats *insights.Collector, page int) (domain.PageResult, error) {
	res := domain.PageResult{Page: page}
	pageURL, err := BuildURL(h.config.BaseURL, job.Region, job.Filter, page)
	if err != nil {
		return res, err
	}
	body, err := h.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return res, err
	}
	records, links, err := h.extractor.Extract(body, job.Filter, job.FastMode)
	if err != nil {
		return res, fmt.Errorf("%s: %w", pageURL, err)
	}

	if !job.FastMode {
		started := time.Now()
		merged := detailPool(ctx, details, links, job.FastMode, job.MaxWorkers)
		for i := range records {
			records[i].Detail = merged[i]
		}
		h.logger.Debug("details merged",
			zap.String("region", string(job.Region)),
			zap.Int("page", page),
			zap.Int("listings", len(records)),
			zap.Duration("elapsed", time.Since(started)),
		)
	}

	if err := out.Append(ctx, page, records); err != nil {
		return res, fmt.Errorf("append page %d: %w", page, err)
	}
	stats.Add(records)
	res.Records = records
	return res, nil
}

// mirrored wraps out with the configured mirror, if any. Mirror problems
// are logged and counted under stage=mirror.
func (h *Harvester) mirrored(job domain.ScrapeJob, out sink.Sink) sink.Sink {
	if h.newMirror == nil {
		return out
	}
	report := func(page int, err error) {
		h.logger.Warn("mirror write failed",
			zap.String("stage", "mirror"),
			zap.String("region", string(job.Region)),
			zap.Int("page", page),
			zap.Error(err),
		)
		h.metrics.IncFailure("mirror")
	}
	mirror, err := h.newMirror(job)
	if err != nil {
		report(0, err)
		return out
	}
	return &sink.Mirrored{Primary: out, Mirror: mirror, OnMirrorError: report}
}
