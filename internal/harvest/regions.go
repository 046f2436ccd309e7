package harvest

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/user/listing-harvester/internal/domain"
)

// RunRegion harvests one region and returns its successful page count.
func (h *Harvester) RunRegion(ctx context.Context, region, filter string, fast bool, maxWorkers int) (int, error) {
	r, f, err := parseTarget(region, filter)
	if err != nil {
		return 0, err
	}
	state, err := h.Run(ctx, h.NewJob(r, f, fast, maxWorkers))
	return state.SuccessfulPages, err
}

func parseTarget(region, filter string) (domain.Region, domain.Filter, error) {
	r, ok := domain.ParseRegion(region)
	if !ok {
		return "", "", &ConfigurationError{Field: "region", Value: region}
	}
	f, ok := domain.ParseFilter(filter)
	if !ok {
		return "", "", &ConfigurationError{Field: "furnishing filter", Value: filter}
	}
	return r, f, nil
}

// RunMany harvests several regions concurrently, splitting maxWorkers
// between them. Invalid input fails before any region starts; a region
// that fails afterwards is logged and reported as zero pages.
func (h *Harvester) RunMany(ctx context.Context, regions []string, filter string, fast bool, maxWorkers int) (map[domain.Region]int, error) {
	f, ok := domain.ParseFilter(filter)
	if !ok {
		return nil, &ConfigurationError{Field: "furnishing filter", Value: filter}
	}
	var targets []domain.Region
	seen := make(map[domain.Region]bool)
	for _, name := range regions {
		r, ok := domain.ParseRegion(name)
		if !ok {
			return nil, &ConfigurationError{Field: "region", Value: name}
		}
		if !seen[r] {
			seen[r] = true
			targets = append(targets, r)
		}
	}
	results := make(map[domain.Region]int, len(targets))
	if len(targets) == 0 {
		return results, nil
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	budget := max(1, maxWorkers/len(targets))
	workers := min(len(targets), maxWorkers)

	type regionResult struct {
		region domain.Region
		pages  int
	}
	jobs := make(chan domain.Region)
	out := make(chan regionResult, len(targets))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for region := range jobs {
				state, err := h.Run(ctx, h.NewJob(region, f, fast, budget))
				if err != nil {
					h.logger.Error("region failed",
						zap.String("stage", "region"),
						zap.String("region", string(region)),
						zap.Error(err),
					)
					h.metrics.IncFailure("region")
					out <- regionResult{region: region}
					continue
				}
				out <- regionResult{region: region, pages: state.SuccessfulPages}
			}
		}()
	}

	go func() {
		for _, r := range targets {
			jobs <- r
		}
		close(jobs)
		wg.Wait()
		close(out)
	}()

	for r := range out {
		results[r.region] = r.pages
	}
	return results, nil
}
