package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/user/listing-harvester/internal/domain"
	"github.com/user/listing-harvester/internal/harvest"
)

type barTracker struct {
	mu     sync.Mutex
	region domain.Region
	bar    *progressbar.ProgressBar
	failed int
}

func (t *barTracker) Advance(ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !ok {
		t.failed++
		t.bar.Describe(fmt.Sprintf("%s (%d failed)", t.region, t.failed))
	}
	_ = t.bar.Add(1)
}

func (t *barTracker) Finish() {
	_ = t.bar.Finish()
}

// progressBars draws one terminal bar per region on stderr.
func progressBars() harvest.ProgressFactory {
	return func(region domain.Region, total int) harvest.Tracker {
		bar := progressbar.NewOptions(total,
			progressbar.OptionSetDescription(string(region)),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("pages"),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
		)
		return &barTracker{region: region, bar: bar}
	}
}
