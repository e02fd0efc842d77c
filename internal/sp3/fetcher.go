package sp3

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxBodyBytes caps a single SP3 download. Daily multi-GNSS products are a few
// megabytes; anything near this limit is not an orbit file.
const maxBodyBytes = 50 << 20

// Fetcher retrieves raw SP3 texts from a primary URL and optional extra URLs.
type Fetcher struct {
	sourceURL string
	extraURLs []string
	client    *http.Client
	logger    *slog.Logger
}

// NewFetcher creates a Fetcher. extraURLs are fetched after the primary one;
// their failures are logged and skipped.
func NewFetcher(sourceURL string, logger *slog.Logger, extraURLs ...string) *Fetcher {
	return &Fetcher{
		sourceURL: sourceURL,
		extraURLs: extraURLs,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// SourceURL returns the primary source URL.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

// Fetch downloads every configured source. The primary source must succeed;
// the result holds one text per successful source, primary first.
func (f *Fetcher) Fetch(ctx context.Context) ([][]byte, error) {
	if f.sourceURL == "" {
		return nil, fmt.Errorf("no SP3 source URL configured")
	}

	primary, err := f.get(ctx, f.sourceURL)
	if err != nil {
		return nil, err
	}
	texts := [][]byte{primary}

	for _, u := range f.extraURLs {
		body, err := f.get(ctx, u)
		if err != nil {
			f.logger.Warn("extra SP3 source failed", "component", "sp3", "url", u, "error", err)
			continue
		}
		texts = append(texts, body)
	}
	return texts, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching SP3 data: %w", err)
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
