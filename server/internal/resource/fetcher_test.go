package resource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const matadorJSON = `{
	"Title": "Matador",
	"Data": [{
		"Title": "Matador (1)",
		"Assets": [{
			"Kind": "VideoResource",
			"Links": [
				{"Target": "Streaming", "Bitrate": 500, "Uri": "rtmp://a"},
				{"Target": "Streaming", "Bitrate": 1200, "Uri": "rtmp://b"},
				{"Target": "Download", "Bitrate": 5000, "Uri": "http://c"}
			]
		}, {
			"type": "Image",
			"Links": [{"Target": "Streaming", "Bitrate": 9000, "Uri": "rtmp://img"}]
		}]
	}]
}`

func TestFetcherDecodesResource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(matadorJSON))
	}))
	defer srv.Close()

	r, err := NewFetcher(srv.Client(), "").Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	if r.Title != "Matador" || len(r.Data) != 1 {
		t.Fatalf("unexpected resource %+v", r)
	}

	assets := r.Data[0].Assets
	if len(assets) != 2 {
		t.Fatalf("got %d assets", len(assets))
	}
	if !assets[0].IsVideo() || len(assets[0].Links) != 3 {
		t.Fatalf("first asset decoded as %+v", assets[0])
	}
	if assets[1].IsVideo() || assets[1].Links != nil {
		t.Fatalf("non-video asset kept links: %+v", assets[1])
	}
	if assets[0].Links[2].Target != TargetDownload {
		t.Fatalf("target decoded as %v", assets[0].Links[2].Target)
	}

	best, err := SelectBestLink(r)
	if err != nil {
		t.Fatal(err)
	}
	if best.URI != "rtmp://b" {
		t.Fatalf("selected %q", best.URI)
	}
}

func TestFetcherRejectsMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Data": [`))
	}))
	defer srv.Close()

	if _, err := NewFetcher(srv.Client(), "").Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected a decode error")
	}
}

func TestDisplayTitle(t *testing.T) {
	tests := []struct {
		r    Resource
		want string
	}{
		{Resource{Title: " Matador "}, "Matador"},
		{Resource{Data: []DataItem{{Title: "Episode 1"}}}, "Episode 1"},
		{Resource{}, "untitled"},
	}
	for _, tt := range tests {
		if got := tt.r.DisplayTitle(); got != tt.want {
			t.Errorf("DisplayTitle() = %q, want %q", got, tt.want)
		}
	}
}
