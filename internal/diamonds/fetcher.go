package diamonds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultFeedTimeout  = 30 * time.Second
	defaultFeedMaxBytes = 32 << 20
	feedUserAgent       = "ananta-custom-diamond/1.0"
)

// FeedClient retrieves the raw feed document.
type FeedClient interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFeedClientConfig configures HTTPFeedClient.
type HTTPFeedClientConfig struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	MaxBytes   int64
}

// HTTPFeedClient fetches the feed with an unauthenticated GET.
type HTTPFeedClient struct {
	httpClient *http.Client
	timeout    time.Duration
	maxBytes   int64
}

// NewHTTPFeedClient constructs a client with defaults applied.
func NewHTTPFeedClient(cfg HTTPFeedClientConfig) *HTTPFeedClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultFeedTimeout
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultFeedMaxBytes
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPFeedClient{
		httpClient: httpClient,
		timeout:    timeout,
		maxBytes:   maxBytes,
	}
}

// Fetch returns the response body. Every failure is a *FetchError.
func (c *HTTPFeedClient) Fetch(ctx context.Context, url string) ([]byte, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, &FetchError{URL: url, Err: errMissingFeedURL}
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(requestCtx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", feedUserAgent)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, 4096))
		return nil, &FetchError{URL: url, StatusCode: response.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, c.maxBytes+1))
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	if int64(len(body)) > c.maxBytes {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("feed exceeds %d bytes", c.maxBytes)}
	}
	return body, nil
}
