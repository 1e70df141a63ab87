package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var ErrTooLarge = errors.New("network archive exceeds max size")

type FetchOptions struct {
	MaxSize  int
	Timeout  time.Duration
	Cache    bool
	CacheTTL time.Duration
}

// A downloaded network archive. Hash is the hex SHA-256 of Body, and
// identifies the network in stored runs.
type Archive struct {
	URL         string
	Body        []byte
	Hash        string
	RetrievedAt time.Time

	// Set if the archive was served from cache.
	Cached bool
}

func NewArchive(url string, body []byte, retrievedAt time.Time) *Archive {
	return &Archive{
		URL:         url,
		Body:        body,
		Hash:        HashBytes(body),
		RetrievedAt: retrievedAt,
	}
}

func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Fetches network archives, optionally caching them.
type Downloader interface {
	Fetch(ctx context.Context, url string, headers map[string]string, options FetchOptions) (*Archive, error)
}

// Downloads url. Doesn't cache. Bodies over options.MaxSize are
// rejected with ErrTooLarge.
func HTTPGet(ctx context.Context, url string, headers map[string]string, options FetchOptions) ([]byte, error) {
	client := &http.Client{Timeout: options.Timeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range headers {
		req.Header.Add(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d", url, resp.StatusCode)
	}
	if options.MaxSize > 0 && resp.ContentLength > int64(options.MaxSize) {
		return nil, fmt.Errorf("%s: %w (%d > %d bytes)", url, ErrTooLarge, resp.ContentLength, options.MaxSize)
	}

	// One byte past the limit tells a truncated body from one
	// that fits exactly.
	var reader io.Reader = resp.Body
	if options.MaxSize > 0 {
		reader = io.LimitReader(resp.Body, int64(options.MaxSize)+1)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	if options.MaxSize > 0 && len(body) > options.MaxSize {
		return nil, fmt.Errorf("%s: %w (%d bytes)", url, ErrTooLarge, options.MaxSize)
	}

	return body, nil
}
