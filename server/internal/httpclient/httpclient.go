package httpclient

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	DefaultUserAgent       = "drnu-downloader/1.0"

	// responses larger than this are truncated
	maxBodySize = 16 << 20
)

var defaultClient = &http.Client{
	Timeout: DefaultTimeout,
	Transport: &http.Transport{
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     DefaultIdleConnTimeout,
		// compression is negotiated by Get
		DisableCompression: true,
	},
}

// Default returns the shared client used for page and resource fetches.
func Default() *http.Client { return defaultClient }

// WithTimeout returns a client sharing a clone of the default transport.
func WithTimeout(timeout time.Duration) *http.Client {
	t, ok := defaultClient.Transport.(*http.Transport)
	if !ok {
		return &http.Client{Timeout: timeout}
	}
	return &http.Client{Timeout: timeout, Transport: t.Clone()}
}

type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

// Get fetches url and returns the decoded body. gzip and brotli
// encoded responses are transparently decompressed.
func Get(ctx context.Context, client *http.Client, url, userAgent string) ([]byte, error) {
	if client == nil {
		client = Default()
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Encoding", "br, gzip")

	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
		return nil, &StatusError{URL: url, Code: res.StatusCode}
	}

	body, err := decode(res)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}

	return io.ReadAll(io.LimitReader(body, maxBodySize))
}

func decode(res *http.Response) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(res.Header.Get("Content-Encoding"))) {
	case "br":
		return brotli.NewReader(res.Body), nil
	case "gzip", "x-gzip":
		return gzip.NewReader(res.Body)
	case "", "identity":
		return res.Body, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", res.Header.Get("Content-Encoding"))
	}
}
