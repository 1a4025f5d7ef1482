package kv

import (
	"testing"
	"time"

	"github.com/drnu/drnu-downloader/server/internal"
	"github.com/drnu/drnu-downloader/server/internal/downloaders"
	"github.com/drnu/drnu-downloader/server/internal/queue"
)

func newEpisode(t *testing.T, url string, status internal.DownloadStatus) downloaders.Downloader {
	t.Helper()

	d := downloaders.NewEpisodeDownloader(url, nil)
	snap := d.Status()
	snap.Progress.Status = status
	snap.Title = "Matador"
	if err := d.RestoreFromSnapshot(snap); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestStorePersistAndRestore(t *testing.T) {
	dir := t.TempDir()

	src := NewStore(dir)
	done := newEpisode(t, "http://example.test/done", internal.StatusCompleted)
	time.Sleep(time.Millisecond)
	pending := newEpisode(t, "http://example.test/pending", internal.StatusDownloading)
	src.Set(done)
	src.Set(pending)

	if err := src.Persist(); err != nil {
		t.Fatal(err)
	}

	mq, err := queue.NewMessageQueue(1, 4)
	if err != nil {
		t.Fatal(err)
	}
	defer mq.Stop()

	dst := NewStore(dir)
	dst.Restore(mq, func() downloaders.Downloader {
		return downloaders.NewEpisodeDownloader("", nil)
	})

	all := dst.All()
	if len(all) != 2 {
		t.Fatalf("restored %d downloads", len(all))
	}
	if all[0].Id != done.GetId() || all[1].Id != pending.GetId() {
		t.Fatalf("unexpected order %s, %s", all[0].Id, all[1].Id)
	}
	if all[0].Title != "Matador" {
		t.Fatalf("title lost: %+v", all[0])
	}

	restored, err := dst.Get(pending.GetId())
	if err != nil {
		t.Fatal(err)
	}
	if restored.IsCompleted() {
		t.Fatal("unfinished download restored as completed")
	}

	restoredDone, _ := dst.Get(done.GetId())
	if !restoredDone.IsCompleted() {
		t.Fatal("completed download restored as pending")
	}
}

func TestStoreGetMissing(t *testing.T) {
	s := NewStore(t.TempDir())
	if _, err := s.Get("nope"); err != ErrNotFound {
		t.Fatalf("got %v", err)
	}

	// no session file is not an error
	s.Restore(nil, nil)
	if len(s.Keys()) != 0 {
		t.Fatal("restored from nothing")
	}
}
