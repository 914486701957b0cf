package mirror

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"carousel/internal/domain"
)

const schema = `CREATE TABLE IF NOT EXISTS mirror_records (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	record     TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (collection, id)
);`

// SQLiteStore keeps one row per job id inside a named collection, so every
// write touches a single record. The last writer wins.
type SQLiteStore struct {
	db         *sql.DB
	collection string
	now        func() time.Time
}

// NewSQLiteStore opens (or creates) the mirror database at path. Use
// ":memory:" for an ephemeral mirror.
func NewSQLiteStore(path, collection string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("mirror path is required")
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return nil, fmt.Errorf("mirror collection is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create mirror directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open mirror: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	if path != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create mirror schema: %w", err)
	}
	return &SQLiteStore{db: db, collection: collection, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// All returns every mirrored job, newest first.
func (s *SQLiteStore) All(ctx context.Context) ([]domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM mirror_records WHERE collection = ?`, s.collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]domain.Job, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var job domain.Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return nil, fmt.Errorf("decode mirror record: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM mirror_records WHERE collection = ? AND id = ?`,
		s.collection, id,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var job domain.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("decode mirror record: %w", err)
	}
	return &job, nil
}

// Upsert replaces the whole record for job.ID.
func (s *SQLiteStore) Upsert(ctx context.Context, job *domain.Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("mirror: job id is required")
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode mirror record: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO mirror_records (collection, id, record, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(collection, id) DO UPDATE SET
			record = excluded.record,
			updated_at = excluded.updated_at`,
		s.collection, job.ID, string(raw), s.now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM mirror_records WHERE collection = ? AND id = ?`, s.collection, id)
	return err
}

var _ Store = (*SQLiteStore)(nil)
