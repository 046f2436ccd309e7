package harvest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/user/listing-harvester/internal/config"
	"github.com/user/listing-harvester/internal/monitoring"
)

type card struct {
	price, location, kind, title string
	specs                        []string // bedrooms, bathrooms, area
	href                         string
}

func (c card) html() string {
	var b strings.Builder
	b.WriteString(`<div class="d6e81fd0">`)
	if c.href != "" {
		fmt.Fprintf(&b, `<div class="_4041eb80"><a href="%s">open</a></div>`, c.href)
	}
	if c.price != "" {
		fmt.Fprintf(&b, `<span class="f343d9ce">%s</span>`, c.price)
	}
	if c.location != "" {
		fmt.Fprintf(&b, `<div class="_7afabd84">%s</div>`, c.location)
	}
	if c.kind != "" {
		fmt.Fprintf(&b, `<div class="_9a4e3964">%s</div>`, c.kind)
	}
	if c.title != "" {
		fmt.Fprintf(&b, `<h2 class="_7f17f34f">%s</h2>`, c.title)
	}
	if len(c.specs) > 0 {
		b.WriteString(`<div class="_22b2f6ed">`)
		for _, s := range c.specs {
			fmt.Fprintf(&b, `<span>%s</span>`, s)
		}
		b.WriteString(`</div>`)
	}
	b.WriteString(`</div>`)
	return b.String()
}

func fullCard(page, i int) card {
	return card{
		price:    "85,000",
		location: "Dubai Marina, Dubai",
		kind:     "Apartment",
		title:    fmt.Sprintf("p%d-i%d", page, i),
		specs:    []string{"2", "2", "1,200 sqft"},
		href:     fmt.Sprintf("/property/details-%d-%d.html", page, i),
	}
}

func listingPage(total int, cards []card) []byte {
	var b strings.Builder
	b.WriteString(`<html><body><header><span class="ca3976f7">`)
	fmt.Fprintf(&b, "1 - 24 of %s Properties", groupThousands(total))
	b.WriteString(`</span></header><main>`)
	for _, c := range cards {
		b.WriteString(c.html())
	}
	b.WriteString(`</main></body></html>`)
	return []byte(b.String())
}

func detailPage(description string, amenities []string) []byte {
	var b strings.Builder
	b.WriteString(`<html><body>`)
	if description != "" {
		fmt.Fprintf(&b, `<span class="_2a806e1e">%s</span>`, description)
	}
	if amenities != nil {
		b.WriteString(`<div class="e475b606">`)
		for _, a := range amenities {
			fmt.Fprintf(&b, `<div><span>%s</span></div>`, a)
		}
		b.WriteString(`</div>`)
	}
	b.WriteString(`</body></html>`)
	return []byte(b.String())
}

func groupThousands(n int) string {
	s := strconv.Itoa(n)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return s
}

// catalog serves synthetic listing and detail pages for several regions.
type catalog struct {
	total       map[string]int       // region -> listing count
	failPages   map[string]map[int]bool
	failRegions map[string]bool
	pageSize    int
	detailDelay time.Duration

	listingHits atomic.Int64
	detailHits  atomic.Int64
}

func (c *catalog) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if strings.HasPrefix(path, "/property/details-") {
		c.detailHits.Add(1)
		time.Sleep(c.detailDelay)
		_, _ = w.Write(detailPage("Detail of "+path, []string{"Balcony", "Gym"}))
		return
	}

	rest, ok := strings.CutPrefix(path, "/to-rent/property/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	c.listingHits.Add(1)
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	region, page := parts[0], 1
	if len(parts) > 1 {
		n, err := strconv.Atoi(strings.TrimPrefix(parts[1], "page-"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		page = n
	}

	total, known := c.total[region]
	if !known || c.failRegions[region] || c.failPages[region][page] {
		http.Error(w, "unavailable", http.StatusInternalServerError)
		return
	}

	first := (page - 1) * c.pageSize
	n := min(c.pageSize, total-first)
	cards := make([]card, 0, max(n, 0))
	for i := 0; i < n; i++ {
		cards = append(cards, fullCard(page, i))
	}
	_, _ = w.Write(listingPage(total, cards))
}

func newCatalogServer(t *testing.T, c *catalog) *httptest.Server {
	t.Helper()
	if c.pageSize == 0 {
		c.pageSize = 24
	}
	srv := httptest.NewServer(c)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		MaxWorkers:       4,
		MaxRetries:       3,
		BackoffBaseMS:    1,
		RequestDelayMS:   0,
		RequestTimeout:   5,
		PageSize:         24,
		BaseURL:          baseURL,
		FetchMode:        config.FetchHTTP,
		OutputDir:        "",
		DetailCacheHours: 1,
	}
}

func testMetrics() *monitoring.Metrics {
	return monitoring.NewMetrics(prometheus.NewRegistry())
}

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func testExtractor(t *testing.T, baseURL string) *Extractor {
	t.Helper()
	table, err := DefaultSelectorTable()
	require.NoError(t, err)
	ex, err := NewExtractor(table, baseURL)
	require.NoError(t, err)
	return ex
}

// scriptedFetcher answers from a function and records every call.
type scriptedFetcher struct {
	mu       sync.Mutex
	calls    map[string]int
	inFlight atomic.Int64
	peak     atomic.Int64
	delay    func(url string) time.Duration
	respond  func(url string, attempt int) ([]byte, error)
}

func (f *scriptedFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[url]++
	attempt := f.calls[url]
	f.mu.Unlock()

	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay != nil {
		time.Sleep(f.delay(url))
	}
	return f.respond(url, attempt)
}

func (f *scriptedFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *scriptedFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}
