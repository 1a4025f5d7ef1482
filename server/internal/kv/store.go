package kv

import (
	"encoding/gob"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/drnu/drnu-downloader/server/internal"
	"github.com/drnu/drnu-downloader/server/internal/downloaders"
	"github.com/drnu/drnu-downloader/server/internal/queue"
)

const sessionFile = "session.dat"

var ErrNotFound = errors.New("no download found for the given key")

// In-Memory Thread-Safe Key-Value Storage with optional persistence
type Store struct {
	table      map[string]downloaders.Downloader
	sessionDir string
	mu         sync.RWMutex
}

func NewStore(sessionDir string) *Store {
	return &Store{
		table:      make(map[string]downloaders.Downloader),
		sessionDir: sessionDir,
	}
}

// Get a download given its id
func (m *Store) Get(id string) (downloaders.Downloader, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.table[id]
	if !ok {
		return nil, ErrNotFound
	}

	return entry, nil
}

// Store a download and return its id
func (m *Store) Set(d downloaders.Downloader) string {
	m.mu.Lock()
	m.table[d.GetId()] = d
	m.mu.Unlock()

	return d.GetId()
}

func (m *Store) Delete(id string) {
	m.mu.Lock()
	delete(m.table, id)
	m.mu.Unlock()
}

func (m *Store) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.table))
	for id := range m.table {
		keys = append(keys, id)
	}

	return keys
}

// All returns a snapshot of every stored download, oldest first.
func (m *Store) All() []internal.ProcessSnapshot {
	m.mu.RLock()
	all := make([]internal.ProcessSnapshot, 0, len(m.table))
	for _, v := range m.table {
		all = append(all, *v.Status())
	}
	m.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	return all
}

// Persist the store in a single file named "session.dat"
func (m *Store) Persist() error {
	session := Session{Processes: m.All()}

	fd, err := os.Create(filepath.Join(m.sessionDir, sessionFile))
	if err != nil {
		return errors.Join(errors.New("failed to persist session"), err)
	}
	defer fd.Close()

	if err := gob.NewEncoder(fd).Encode(session); err != nil {
		return errors.Join(errors.New("failed to persist session"), err)
	}

	return nil
}

// Restore a persisted state. Unfinished downloads are published again;
// newDownloader builds an empty downloader to restore a snapshot into.
func (m *Store) Restore(mq *queue.MessageQueue, newDownloader func() downloaders.Downloader) {
	fd, err := os.Open(filepath.Join(m.sessionDir, sessionFile))
	if err != nil {
		return
	}
	defer fd.Close()

	var session Session

	if err := gob.NewDecoder(fd).Decode(&session); err != nil {
		slog.Warn("discarding unreadable session", slog.Any("err", err))
		return
	}

	var requeue []downloaders.Downloader

	m.mu.Lock()
	for _, snap := range session.Processes {
		if snap.DownloaderName != downloaders.EpisodeDownloaderName {
			continue
		}

		d := newDownloader()
		if err := d.RestoreFromSnapshot(&snap); err != nil {
			continue
		}

		m.table[snap.Id] = d

		if !d.IsCompleted() {
			requeue = append(requeue, d)
		}
	}
	m.mu.Unlock()

	for _, d := range requeue {
		mq.Publish(d)
	}

	slog.Info("session restored",
		slog.Int("downloads", len(session.Processes)),
		slog.Int("requeued", len(requeue)),
	)
}
