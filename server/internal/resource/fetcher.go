package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/drnu/drnu-downloader/server/internal/httpclient"
)

// Fetcher retrieves and decodes resource descriptions over HTTP.
type Fetcher struct {
	Client    *http.Client
	UserAgent string
}

func NewFetcher(client *http.Client, userAgent string) *Fetcher {
	return &Fetcher{Client: client, UserAgent: userAgent}
}

func (f *Fetcher) Fetch(ctx context.Context, uri string) (*Resource, error) {
	body, err := httpclient.Get(ctx, f.Client, uri, f.UserAgent)
	if err != nil {
		return nil, err
	}

	var r Resource
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decoding resource %s: %w", uri, err)
	}

	return &r, nil
}
