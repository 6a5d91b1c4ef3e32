package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"router-agent/internal/domain"
)

// SQLiteStore keeps one row per session in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex // serializes writers to avoid SQLITE_BUSY
}

// NewSQLite opens (creating if needed) the database at dbPath.
func NewSQLite(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("repository: create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("repository: open sqlite: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	const query = `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id      TEXT PRIMARY KEY,
		messages_json   TEXT NOT NULL,
		category        TEXT NOT NULL DEFAULT '',
		owner           TEXT NOT NULL DEFAULT '',
		repo            TEXT NOT NULL DEFAULT '',
		total           INTEGER NOT NULL DEFAULT 0,
		user_count      INTEGER NOT NULL DEFAULT 0,
		assistant_count INTEGER NOT NULL DEFAULT 0,
		created_at      INTEGER NOT NULL,
		updated_at      INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("repository: create sqlite schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, sessionID string, state domain.ConversationState) error {
	if err := checkSessionID(sessionID); err != nil {
		return err
	}
	raw, err := encodeMessages(state.Messages)
	if err != nil {
		return err
	}
	st := state.Stats()
	now := time.Now().Unix()

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
	INSERT INTO sessions (session_id, messages_json, category, owner, repo, total, user_count, assistant_count, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		messages_json = excluded.messages_json,
		category = excluded.category,
		owner = excluded.owner,
		repo = excluded.repo,
		total = excluded.total,
		user_count = excluded.user_count,
		assistant_count = excluded.assistant_count,
		updated_at = excluded.updated_at`,
		sessionID, string(raw), string(state.Category), state.Owner, state.Repo,
		st.Total, st.UserCount, st.AssistantCount, now, now,
	)
	if err != nil {
		return fmt.Errorf("repository: save session %q: %w", sessionID, err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, sessionID string) (domain.ConversationState, bool, error) {
	if err := checkSessionID(sessionID); err != nil {
		return domain.ConversationState{}, false, err
	}
	var raw, category string
	var state domain.ConversationState
	err := s.db.QueryRowContext(ctx,
		`SELECT messages_json, category, owner, repo FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&raw, &category, &state.Owner, &state.Repo)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ConversationState{}, false, nil
	}
	if err != nil {
		return domain.ConversationState{}, false, fmt.Errorf("repository: load session %q: %w", sessionID, err)
	}
	msgs, err := decodeMessages([]byte(raw))
	if err != nil {
		return domain.ConversationState{}, false, err
	}
	state.Messages = msgs
	state.Category = domain.Category(category)
	return state, true, nil
}

func (s *SQLiteStore) Clear(ctx context.Context, sessionID string) error {
	if err := checkSessionID(sessionID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("repository: clear session %q: %w", sessionID, err)
	}
	return nil
}

func (s *SQLiteStore) Stats(ctx context.Context, sessionID string) (domain.SessionStats, bool, error) {
	if err := checkSessionID(sessionID); err != nil {
		return domain.SessionStats{}, false, err
	}
	var st domain.SessionStats
	err := s.db.QueryRowContext(ctx,
		`SELECT total, user_count, assistant_count FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&st.Total, &st.UserCount, &st.AssistantCount)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SessionStats{}, false, nil
	}
	if err != nil {
		return domain.SessionStats{}, false, fmt.Errorf("repository: stats for session %q: %w", sessionID, err)
	}
	return st, true, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
