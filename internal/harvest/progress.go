package harvest

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/user/listing-harvester/internal/domain"
	"github.com/user/listing-harvester/internal/monitoring"
)

// Tracker receives one Advance per finished page of a region run.
type Tracker interface {
	Advance(ok bool)
	Finish()
}

// ProgressFactory creates a Tracker when a region's page count is known.
type ProgressFactory func(region domain.Region, totalPages int) Tracker

// progress always reports to the log and metrics and forwards to an
// optional external tracker such as a terminal bar.
type progress struct {
	region domain.Region
	total  int
	done   atomic.Int64
	ext    Tracker
	m      *monitoring.Metrics
	logger *zap.Logger
}

func (h *Harvester) track(region domain.Region, total int) *progress {
	p := &progress{region: region, total: total, m: h.metrics, logger: h.logger}
	if h.progress != nil {
		p.ext = h.progress(region, total)
	}
	h.metrics.StartRegion(string(region), total)
	return p
}

func (p *progress) Advance(ok bool) {
	done := p.done.Add(1)
	p.m.IncPagesDone(string(p.region))
	p.logger.Debug("page finished",
		zap.String("region", string(p.region)),
		zap.Bool("ok", ok),
		zap.Int64("done", done),
		zap.Int("total", p.total),
	)
	if p.ext != nil {
		p.ext.Advance(ok)
	}
}

func (p *progress) Finish() {
	if p.ext != nil {
		p.ext.Finish()
	}
}
