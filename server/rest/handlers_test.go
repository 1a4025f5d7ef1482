package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/drnu/drnu-downloader/server/archive"
	"github.com/drnu/drnu-downloader/server/internal"
	"github.com/drnu/drnu-downloader/server/internal/downloaders"
	"github.com/drnu/drnu-downloader/server/internal/kv"
	"github.com/drnu/drnu-downloader/server/internal/queue"
)

type fakeDownloader struct {
	downloaders.DownloaderBase
	output  internal.DownloadOutput
	stopped bool
}

func (f *fakeDownloader) Start() error { return nil }

func (f *fakeDownloader) Stop() error {
	f.stopped = true
	return nil
}

func (f *fakeDownloader) Status() *internal.ProcessSnapshot {
	return &internal.ProcessSnapshot{
		Id:        f.Id,
		URL:       f.URL,
		Output:    f.output,
		CreatedAt: f.CreatedAt,
	}
}

func (f *fakeDownloader) SetOutput(o internal.DownloadOutput) { f.output = o }

func (f *fakeDownloader) SetProgress(internal.DownloadProgress) {}

func (f *fakeDownloader) UpdateSavedFilePath(string) {}

func (f *fakeDownloader) RestoreFromSnapshot(*internal.ProcessSnapshot) error { return nil }

func newTestRouter(t *testing.T) (http.Handler, *kv.Store, *archive.Repository) {
	t.Helper()

	db, err := archive.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	mq, err := queue.NewMessageQueue(1, 8)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mq.Stop)

	mdb := kv.NewStore(t.TempDir())
	repo := archive.NewRepository(db)

	n := 0
	h := &Handler{service: NewService(&ContainerArgs{
		Archive: repo,
		MDB:     mdb,
		MQ:      mq,
		NewDownloader: func(url string) downloaders.Downloader {
			n++
			d := &fakeDownloader{}
			d.Id = "dl-" + string(rune('0'+n))
			d.URL = url
			d.CreatedAt = time.Now()
			return d
		},
		DownloadPath: t.TempDir(),
	})}

	r := chi.NewRouter()
	r.Post("/exec", h.Exec())
	r.Get("/running", h.Running())
	r.Get("/progress/{id}", h.Progress())
	r.Delete("/{id}", h.Kill())
	r.Get("/archive", h.Archived())
	r.Delete("/archive/{id}", h.DeleteArchived())

	return r, mdb, repo
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestExec(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"episode page", `{"url":"https://www.dr.dk/nu/matador-1"}`, http.StatusAccepted},
		{"malformed json", `{"url":`, http.StatusBadRequest},
		{"not http", `{"url":"rtmp://vod.dr.dk/matador"}`, http.StatusBadRequest},
		{"relative", `{"url":"/nu/matador-1"}`, http.StatusBadRequest},
		{"path inside download dir", `{"url":"https://www.dr.dk/nu/matador-1","path":"tv/matador"}`, http.StatusAccepted},
		{"path escapes download dir", `{"url":"https://www.dr.dk/nu/matador-1","path":"../tv"}`, http.StatusBadRequest},
		{"absolute path elsewhere", `{"url":"https://www.dr.dk/nu/matador-1","path":"/etc"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := newTestRouter(t)

			rec := do(r, http.MethodPost, "/exec", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestExecThenRunningAndKill(t *testing.T) {
	r, mdb, _ := newTestRouter(t)

	rec := do(r, http.MethodPost, "/exec", `{"url":"https://www.dr.dk/nu/matador-1","path":"tv"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("exec: %d", rec.Code)
	}
	var id string
	if err := json.NewDecoder(rec.Body).Decode(&id); err != nil {
		t.Fatal(err)
	}

	rec = do(r, http.MethodGet, "/running", "")
	var running []internal.ProcessSnapshot
	if err := json.NewDecoder(rec.Body).Decode(&running); err != nil {
		t.Fatal(err)
	}
	if len(running) != 1 || running[0].Id != id {
		t.Fatalf("running = %+v", running)
	}
	if p := running[0].Output.Path; !filepath.IsAbs(p) || filepath.Base(p) != "tv" {
		t.Fatalf("output path = %q, want tv under the download dir", p)
	}

	if rec := do(r, http.MethodGet, "/progress/"+id, ""); rec.Code != http.StatusOK {
		t.Fatalf("progress: %d", rec.Code)
	}

	d, _ := mdb.Get(id)
	if rec := do(r, http.MethodDelete, "/"+id, ""); rec.Code != http.StatusOK {
		t.Fatalf("kill: %d", rec.Code)
	}
	if !d.(*fakeDownloader).stopped {
		t.Fatal("downloader not stopped")
	}
	if rec := do(r, http.MethodGet, "/progress/"+id, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("progress after kill: %d", rec.Code)
	}
}

func TestUnknownIdIsNotFound(t *testing.T) {
	r, _, _ := newTestRouter(t)

	for _, tc := range []struct{ method, target string }{
		{http.MethodGet, "/progress/missing"},
		{http.MethodDelete, "/missing"},
		{http.MethodDelete, "/archive/missing"},
	} {
		if rec := do(r, tc.method, tc.target, ""); rec.Code != http.StatusNotFound {
			t.Errorf("%s %s = %d, want 404", tc.method, tc.target, rec.Code)
		}
	}
}

func TestArchived(t *testing.T) {
	r, _, repo := newTestRouter(t)

	err := repo.Archive(context.Background(), &archive.Entity{
		Id:    "a",
		URL:   "https://www.dr.dk/nu/matador-1",
		Title: "Matador",
		Path:  "/srv/tv/Matador.flv",
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := do(r, http.MethodGet, "/archive?limit=10", "")
	var list []archive.Entity
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Title != "Matador" {
		t.Fatalf("archive = %+v", list)
	}

	if rec := do(r, http.MethodDelete, "/archive/a", ""); rec.Code != http.StatusOK {
		t.Fatalf("delete: %d", rec.Code)
	}
}
