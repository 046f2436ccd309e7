package harvest

import (
	"context"
	"sync"

	"github.com/user/listing-harvester/internal/domain"
)

type detailResult struct {
	index  int
	detail domain.Detail
}

// detailPool fetches the detail pages of one listing page. The returned
// slice is aligned with urls by index; empty URLs keep sentinel details.
func detailPool(ctx context.Context, df *DetailFetcher, urls []string, fast bool, maxWorkers int) []domain.Detail {
	details := make([]domain.Detail, len(urls))
	for i := range details {
		details[i] = domain.MissingDetail()
	}
	if fast {
		return details
	}

	pending := make([]int, 0, len(urls))
	for i, u := range urls {
		if u != "" {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return details
	}

	workers := min(max(maxWorkers, 1), len(pending))
	jobs := make(chan int)
	results := make(chan detailResult, len(pending))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results <- detailResult{index: idx, detail: df.Fetch(ctx, urls[idx], fast)}
			}
		}()
	}

	go func() {
		for _, idx := range pending {
			jobs <- idx
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	for r := range results {
		details[r.index] = r.detail
	}
	return details
}
