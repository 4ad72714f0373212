// Package sqliterepo stores the current session in a single SQLite row.
package sqliterepo

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Rajat-Ahuja1997/last-time/sessions"
	_ "modernc.org/sqlite"
)

//go:embed schema/schema.sql
var sqliteSchema string

var _ sessions.Repo = (*SQLiteSessionRepo)(nil)

// SQLiteSessionRepo keeps the session under sessions.CurrentSessionKey. The pool
// is limited to one connection so writes are serialized.
type SQLiteSessionRepo struct {
	db *sql.DB
}

func New(dbPath string) (*SQLiteSessionRepo, error) {
	if dbPath == "" {
		return nil, errors.New("[sqliterepo.New] dbPath is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("[sqliterepo.New] create data folder: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("[sqliterepo.New] failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	repo := &SQLiteSessionRepo{db: db}
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("[sqliterepo.New] failed to initialize schema: %w", err)
	}
	return repo, nil
}

func (r *SQLiteSessionRepo) Close() error {
	return r.db.Close()
}

func (r *SQLiteSessionRepo) initSchema() error {
	_, err := r.db.Exec(sqliteSchema)
	return err
}

func (r *SQLiteSessionRepo) Save(ctx context.Context, s sessions.Session) error {
	if err := s.Validate(); err != nil {
		return persistenceErr("save", err)
	}

	query := `
		INSERT INTO auth_session (key, user_id, email, display_name, avatar_url, provider, issued_at, access_token)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			user_id = excluded.user_id,
			email = excluded.email,
			display_name = excluded.display_name,
			avatar_url = excluded.avatar_url,
			provider = excluded.provider,
			issued_at = excluded.issued_at,
			access_token = excluded.access_token
	`
	rec := s.ToRecord()
	_, err := r.db.ExecContext(ctx, query,
		sessions.CurrentSessionKey,
		rec.UserID,
		rec.Email,
		rec.DisplayName,
		rec.AvatarURL,
		rec.Provider,
		rec.IssuedAt.Format(time.RFC3339Nano),
		rec.AccessToken,
	)
	if err != nil {
		return persistenceErr("save", err)
	}
	return nil
}

func (r *SQLiteSessionRepo) Load(ctx context.Context) (*sessions.Session, error) {
	query := `
		SELECT user_id, email, display_name, avatar_url, provider, issued_at, access_token
		FROM auth_session
		WHERE key = ?
	`

	var rec sessions.Record
	var issuedAt string
	err := r.db.QueryRowContext(ctx, query, sessions.CurrentSessionKey).Scan(
		&rec.UserID,
		&rec.Email,
		&rec.DisplayName,
		&rec.AvatarURL,
		&rec.Provider,
		&issuedAt,
		&rec.AccessToken,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistenceErr("load", err)
	}

	rec.IssuedAt, err = time.Parse(time.RFC3339Nano, issuedAt)
	if err != nil {
		return nil, persistenceErr("load", fmt.Errorf("issued_at: %w", err))
	}
	s, err := rec.Session()
	if err != nil {
		return nil, persistenceErr("load", err)
	}
	return &s, nil
}

func (r *SQLiteSessionRepo) Clear(ctx context.Context) error {
	query := `DELETE FROM auth_session WHERE key = ?`
	if _, err := r.db.ExecContext(ctx, query, sessions.CurrentSessionKey); err != nil {
		return persistenceErr("clear", err)
	}
	return nil
}

func persistenceErr(op string, err error) error {
	return fmt.Errorf("%w: sqliterepo %s: %w", sessions.ErrPersistence, op, err)
}
