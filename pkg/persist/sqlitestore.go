package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"pointer/pkg/llm"
	"pointer/pkg/transcript"
)

const sessionSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL,
	message_count INTEGER NOT NULL,
	messages      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at DESC);
`

// SQLiteStore keeps sessions in a single SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = "sessions.db"
	}
	if dsn != ":memory:" {
		if dir := filepath.Dir(dsn); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; also keeps ":memory:" on a single connection
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sessionSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, sess *transcript.Session) error {
	msgs, err := json.Marshal(sess.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, name, created_at, updated_at, message_count, messages)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			updated_at = excluded.updated_at,
			message_count = excluded.message_count,
			messages = excluded.messages`,
		sess.ID, sess.Name, sess.CreatedAt.UnixNano(), sess.UpdatedAt.UnixNano(), len(sess.Messages), string(msgs))
	if err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, id string) (*transcript.Session, error) {
	var (
		sess             transcript.Session
		created, updated int64
		msgs             string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at, messages FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &sess.Name, &created, &updated, &msgs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	sess.CreatedAt = time.Unix(0, created)
	sess.UpdatedAt = time.Unix(0, updated)
	if err := json.Unmarshal([]byte(msgs), &sess.Messages); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	if sess.Messages == nil {
		sess.Messages = []llm.Message{}
	}
	return &sess, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]transcript.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, updated_at, message_count
		FROM sessions WHERE message_count > 1
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []transcript.Summary
	for rows.Next() {
		var (
			sum              transcript.Summary
			created, updated int64
		)
		if err := rows.Scan(&sum.ID, &sum.Name, &created, &updated, &sum.MessageCount); err != nil {
			return nil, err
		}
		sum.CreatedAt = time.Unix(0, created)
		sum.UpdatedAt = time.Unix(0, updated)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
