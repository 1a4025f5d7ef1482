package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("archive entry not found")

// Entity is a finished download.
type Entity struct {
	Id         string    `json:"id"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	StreamURI  string    `json:"stream_uri"`
	Bitrate    int       `json:"bitrate"`
	Path       string    `json:"path"`
	Bytes      int64     `json:"bytes"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

type row struct {
	Id         string `db:"id"`
	URL        string `db:"url"`
	Title      string `db:"title"`
	StreamURI  string `db:"stream_uri"`
	Bitrate    int    `db:"bitrate"`
	Path       string `db:"path"`
	Bytes      int64  `db:"bytes"`
	DurationMs int64  `db:"duration_ms"`
	CreatedAt  int64  `db:"created_at"`
}

func (r row) entity() Entity {
	return Entity{
		Id:         r.Id,
		URL:        r.URL,
		Title:      r.Title,
		StreamURI:  r.StreamURI,
		Bitrate:    r.Bitrate,
		Path:       r.Path,
		Bytes:      r.Bytes,
		DurationMs: r.DurationMs,
		CreatedAt:  time.Unix(r.CreatedAt, 0),
	}
}

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Archive inserts e, replacing an entry with the same id.
func (r *Repository) Archive(ctx context.Context, e *Entity) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := r.db.NamedExecContext(ctx, `
		INSERT OR REPLACE INTO archive (id, url, title, stream_uri, bitrate, path, bytes, duration_ms, created_at)
		VALUES (:id, :url, :title, :stream_uri, :bitrate, :path, :bytes, :duration_ms, :created_at)
	`, row{
		Id:         e.Id,
		URL:        e.URL,
		Title:      e.Title,
		StreamURI:  e.StreamURI,
		Bitrate:    e.Bitrate,
		Path:       e.Path,
		Bytes:      e.Bytes,
		DurationMs: e.DurationMs,
		CreatedAt:  e.CreatedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("insert archive entry: %w", err)
	}
	return nil
}

// List returns entries newest first.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]Entity, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []row
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, url, title, stream_uri, bitrate, path, bytes, duration_ms, created_at
		FROM archive
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list archive: %w", err)
	}

	entities := make([]Entity, 0, len(rows))
	for _, r := range rows {
		entities = append(entities, r.entity())
	}
	return entities, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*Entity, error) {
	var rw row
	err := r.db.GetContext(ctx, &rw, `
		SELECT id, url, title, stream_uri, bitrate, path, bytes, duration_ms, created_at
		FROM archive WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get archive entry: %w", err)
	}

	e := rw.entity()
	return &e, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM archive WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete archive entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
