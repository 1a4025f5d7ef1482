package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractResourceURI(t *testing.T) {
	tests := []struct {
		name    string
		page    string
		want    string
		wantErr error
	}{
		{
			name: "embedded literal",
			page: `<script>var player = { resource: "http://www.dr.dk/mu/bundle/123", autoplay: true };</script>`,
			want: "http://www.dr.dk/mu/bundle/123",
		},
		{
			name: "no whitespace",
			page: `resource:"http://x/y"`,
			want: "http://x/y",
		},
		{
			name: "first match wins",
			page: "resource: \"http://first\"\nresource: \"http://second\"",
			want: "http://first",
		},
		{
			name:    "case sensitive",
			page:    `Resource: "http://x"`,
			wantErr: ErrResourceNotFound,
		},
		{
			name:    "missing",
			page:    `<html><body>nothing here</body></html>`,
			wantErr: ErrResourceNotFound,
		},
		{
			name:    "empty literal",
			page:    `resource: ""`,
			wantErr: ErrResourceNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractResourceURI(tt.page)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractProgramID(t *testing.T) {
	tests := []struct {
		name    string
		page    string
		want    string
		wantErr error
	}{
		{
			name: "spot container",
			page: `<html><body>
				<article class="programSerieEpisodeChapterContainer" id="chapter-1"></article>
				<article class="programSerieSpotContainer" id="matador"></article>
			</body></html>`,
			want: "matador",
		},
		{
			name: "chapter container fallback",
			page: `<div><article class="other" id="x"></article>
				<article class="programSerieEpisodeChapterContainer" id="chapter-7"></article></div>`,
			want: "chapter-7",
		},
		{
			name:    "none",
			page:    `<article class="news" id="n1"></article>`,
			wantErr: ErrProgramNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractProgramID(tt.page)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScraperResourceURI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<script>resource: "http://example.test/resource.json"</script>`))
	}))
	defer srv.Close()

	got, err := New(srv.Client(), "").ResourceURI(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if got != "http://example.test/resource.json" {
		t.Fatalf("got %q", got)
	}
}
