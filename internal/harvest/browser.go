package harvest

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"

	"github.com/user/listing-harvester/internal/proxy"
)

// BrowserFetcher renders pages in headless Chrome for catalogs that build
// their listing cards client-side.
type BrowserFetcher struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	timeout  time.Duration
	agents   *proxy.Manager
}

func NewBrowserFetcher(timeout time.Duration, agents *proxy.Manager) *BrowserFetcher {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(agents.GetUserAgent()),
	)
	if p := agents.GetProxy(); p != nil {
		opts = append(opts, chromedp.ProxyServer(p.String()))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &BrowserFetcher{allocCtx: allocCtx, cancel: cancel, timeout: timeout, agents: agents}
}

func (b *BrowserFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	// Each fetch gets its own tab in the shared browser.
	taskCtx, cancelTab := chromedp.NewContext(b.allocCtx)
	defer cancelTab()
	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, b.timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	// The allocator fixes one UA for the process; rotate per tab.
	ua := b.agents.GetUserAgent()
	var html string
	err := chromedp.Run(taskCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetUserAgentOverride(ua).Do(ctx)
		}),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	return []byte(html), nil
}

// Close shuts the browser down.
func (b *BrowserFetcher) Close() {
	b.cancel()
}
