package builder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"productsearch/internal/retry"
)

// maxImageBytes caps a single downloaded image.
const maxImageBytes = 20 << 20

// Fetcher downloads images with bounded retries.
type Fetcher struct {
	client  *http.Client
	policy  retry.Policy
	timeout time.Duration
}

// NewFetcher creates a Fetcher. timeout bounds each attempt; attempts bounds the retries.
func NewFetcher(client *http.Client, attempts int, timeout time.Duration) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	policy := retry.DefaultPolicy
	if attempts > 0 {
		policy.Attempts = attempts
	}
	return &Fetcher{client: client, policy: policy, timeout: timeout}
}

// WithPolicy overrides the backoff policy.
func (f *Fetcher) WithPolicy(p retry.Policy) *Fetcher {
	f.policy = p
	return f
}

// Fetch downloads url. Client errors (4xx) are not retried.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var data []byte
	err := retry.Do(ctx, f.policy, func(ctx context.Context, _ int) error {
		var err error
		data, err = f.fetchOnce(ctx, url)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("invalid image url %s: %w", url, err))
	}
	req.Header.Set("User-Agent", "productsearch-indexer/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("bad status %d fetching %s", resp.StatusCode, url)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}
	if len(data) > maxImageBytes {
		return nil, retry.Permanent(fmt.Errorf("image %s exceeds %d bytes", url, maxImageBytes))
	}
	return data, nil
}
