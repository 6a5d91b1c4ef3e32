package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"router-agent/internal/domain"
)

// pgxAPI is the subset of *pgxpool.Pool used by PostgresStore.
type pgxAPI interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id      TEXT PRIMARY KEY,
	messages        JSONB NOT NULL DEFAULT '[]'::jsonb,
	category        TEXT NOT NULL DEFAULT '',
	owner           TEXT NOT NULL DEFAULT '',
	repo            TEXT NOT NULL DEFAULT '',
	total           INTEGER NOT NULL DEFAULT 0,
	user_count      INTEGER NOT NULL DEFAULT 0,
	assistant_count INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresStore keeps one row per session, with the message log as JSONB.
type PostgresStore struct {
	db    pgxAPI
	close func()
}

// NewPostgres connects a pool to databaseURL and ensures the schema exists.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("repository: create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("repository: ping postgres: %w", err)
	}
	s, err := newPostgres(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.close = pool.Close
	return s, nil
}

func newPostgres(ctx context.Context, db pgxAPI) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("repository: postgres db must not be nil")
	}
	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("repository: create postgres schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Save(ctx context.Context, sessionID string, state domain.ConversationState) error {
	if err := checkSessionID(sessionID); err != nil {
		return err
	}
	raw, err := encodeMessages(state.Messages)
	if err != nil {
		return err
	}
	st := state.Stats()
	_, err = s.db.Exec(ctx, `
		INSERT INTO sessions (session_id, messages, category, owner, repo, total, user_count, assistant_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id) DO UPDATE SET
			messages = EXCLUDED.messages,
			category = EXCLUDED.category,
			owner = EXCLUDED.owner,
			repo = EXCLUDED.repo,
			total = EXCLUDED.total,
			user_count = EXCLUDED.user_count,
			assistant_count = EXCLUDED.assistant_count,
			updated_at = NOW()`,
		sessionID, string(raw), string(state.Category), state.Owner, state.Repo,
		st.Total, st.UserCount, st.AssistantCount,
	)
	if err != nil {
		return fmt.Errorf("repository: save session %q: %w", sessionID, err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, sessionID string) (domain.ConversationState, bool, error) {
	if err := checkSessionID(sessionID); err != nil {
		return domain.ConversationState{}, false, err
	}
	var raw []byte
	var category string
	var state domain.ConversationState
	err := s.db.QueryRow(ctx,
		`SELECT messages, category, owner, repo FROM sessions WHERE session_id = $1`, sessionID,
	).Scan(&raw, &category, &state.Owner, &state.Repo)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ConversationState{}, false, nil
	}
	if err != nil {
		return domain.ConversationState{}, false, fmt.Errorf("repository: load session %q: %w", sessionID, err)
	}
	msgs, err := decodeMessages(raw)
	if err != nil {
		return domain.ConversationState{}, false, err
	}
	state.Messages = msgs
	state.Category = domain.Category(category)
	return state, true, nil
}

func (s *PostgresStore) Clear(ctx context.Context, sessionID string) error {
	if err := checkSessionID(sessionID); err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("repository: clear session %q: %w", sessionID, err)
	}
	return nil
}

func (s *PostgresStore) Stats(ctx context.Context, sessionID string) (domain.SessionStats, bool, error) {
	if err := checkSessionID(sessionID); err != nil {
		return domain.SessionStats{}, false, err
	}
	var st domain.SessionStats
	err := s.db.QueryRow(ctx,
		`SELECT total, user_count, assistant_count FROM sessions WHERE session_id = $1`, sessionID,
	).Scan(&st.Total, &st.UserCount, &st.AssistantCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SessionStats{}, false, nil
	}
	if err != nil {
		return domain.SessionStats{}, false, fmt.Errorf("repository: stats for session %q: %w", sessionID, err)
	}
	return st, true, nil
}

func (s *PostgresStore) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
