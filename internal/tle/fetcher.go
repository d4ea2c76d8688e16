package tle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultSourceURL = "https://celestrak.org/NORAD/elements/gp.php?GROUP=stations&FORMAT=tle"
	maxBodyBytes     = 50 << 20
)

// Fetcher retrieves raw TLE data from a primary source and optional extra
// sources whose bodies are appended.
type Fetcher struct {
	sourceURL  string
	extraURLs  []string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher for the given source URL.
func NewFetcher(sourceURL string, logger *slog.Logger, extraURLs ...string) *Fetcher {
	if sourceURL == "" {
		sourceURL = defaultSourceURL
	}
	return &Fetcher{
		sourceURL: sourceURL,
		extraURLs: extraURLs,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// SourceURL returns the configured source URL.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

// Fetch retrieves the primary source and then each extra source. A failing
// extra source is logged and skipped.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	body, err := f.get(ctx, f.sourceURL)
	if err != nil {
		return nil, err
	}

	for _, u := range f.extraURLs {
		extra, err := f.get(ctx, u)
		if err != nil {
			f.logger.Warn("extra TLE source failed", "url", u, "error", err)
			continue
		}
		if len(body) > 0 && body[len(body)-1] != '\n' {
			body = append(body, '\n')
		}
		body = append(body, extra...)
	}

	return body, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching TLE data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("response from %s exceeds %d byte limit", url, maxBodyBytes)
	}

	return body, nil
}
