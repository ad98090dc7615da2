package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

// ErrUnavailable covers every way a fetch can fail: transport errors, non-200
// responses and undecodable payloads. Callers treat all of them as "no
// positions this cycle".
var ErrUnavailable = errors.New("feed: unavailable")

// Fetcher retrieves and decodes the GTFS-realtime vehicle positions feed.
type Fetcher struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewFetcher creates a fetcher for the given feed URL. headers are sent with
// every request; some feeds require an API key header.
func NewFetcher(url string, headers map[string]string, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
	}
}

// Fetch downloads the feed and decodes it into a FeedMessage.
func (f *Fetcher) Fetch(ctx context.Context) (*gtfsrt.FeedMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	for key, value := range f.headers {
		req.Header.Set(key, value)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d from %s", ErrUnavailable, resp.StatusCode, f.url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	var fm gtfsrt.FeedMessage
	if err := proto.Unmarshal(body, &fm); err != nil {
		return nil, fmt.Errorf("%w: decode protobuf: %v", ErrUnavailable, err)
	}
	return &fm, nil
}

// HealthCheck reports whether the feed endpoint currently answers.
func (f *Fetcher) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return false
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
