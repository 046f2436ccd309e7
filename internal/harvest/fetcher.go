package harvest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/user/listing-harvester/internal/proxy"
)

// Fetcher retrieves one document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// maxBodyBytes caps a single document read.
const maxBodyBytes = 16 << 20

// HTTPFetcher performs plain GET requests with a rotated User-Agent.
type HTTPFetcher struct {
	client  *http.Client
	agents  *proxy.Manager
	limiter *rate.Limiter
}

// NewHTTPFetcher builds a fetcher whose requests time out after timeout.
// A positive rps enables a token bucket (burst 1) shared by every request.
func NewHTTPFetcher(timeout time.Duration, rps float64, agents *proxy.Manager) *HTTPFetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = agents.ProxyFunc
	transport.MaxIdleConnsPerHost = 32

	f := &HTTPFetcher{
		client: &http.Client{Timeout: timeout, Transport: transport},
		agents: agents,
	}
	if rps > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return f
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, &NetworkError{URL: url, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", f.agents.GetUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &NetworkError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &NetworkError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}
