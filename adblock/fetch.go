package adblock

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/use-agent/shieldsup/browser"
)

const listUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"

// listClient downloads remote filter lists with retries.
type listClient struct {
	http *retryablehttp.Client
}

func newListClient() *listClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 10 * time.Second
	rc.Logger = slog.Default()

	// Some list mirrors sit behind CDNs that reject Go's default TLS
	// fingerprint.
	if transport, err := browser.NewChromeTransport(""); err == nil {
		rc.HTTPClient = &http.Client{Transport: transport, Timeout: 30 * time.Second}
	} else {
		rc.HTTPClient.Timeout = 30 * time.Second
	}
	return &listClient{http: rc}
}

func (c *listClient) fetch(ctx context.Context, src string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", listUserAgent)
	req.Header.Set("Accept", "text/plain,*/*;q=0.8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxListSize))
}
