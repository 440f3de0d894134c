package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "github.com/NVIDIA/slack-to-jira/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("store: sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Get(ctx context.Context, issueID, threadID string) (*Registration, error) {
	var (
		reg     Registration
		linkID  sql.NullString
		created string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT issue_id, thread_id, link_id, created_at FROM registrations
		 WHERE thread_id = ? AND issue_id = ?`,
		threadID, issueID,
	).Scan(&reg.IssueID, &reg.ThreadID, &linkID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	reg.LinkID = linkID.String
	reg.CreatedAt = parseCreatedAt(created)
	return &reg, nil
}

func (s *sqliteStore) Put(ctx context.Context, reg Registration) error {
	if reg.IssueID == "" || reg.ThreadID == "" {
		return errors.New("store: issue id and thread id are required")
	}
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO registrations(thread_id, issue_id, link_id, created_at) VALUES(?,?,?,?)
		 ON CONFLICT(thread_id, issue_id) DO UPDATE SET
		   link_id=excluded.link_id, created_at=excluded.created_at`,
		reg.ThreadID, reg.IssueID, nullStr(reg.LinkID), reg.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) Delete(ctx context.Context, issueID, threadID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM registrations WHERE thread_id = ? AND issue_id = ?`,
		threadID, issueID,
	)
	return err
}

func (s *sqliteStore) QueryThread(ctx context.Context, threadID string) ([]Registration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT issue_id, thread_id, link_id, created_at FROM registrations
		 WHERE thread_id = ? ORDER BY issue_id`,
		threadID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regs []Registration
	for rows.Next() {
		var (
			reg     Registration
			linkID  sql.NullString
			created string
		)
		if err := rows.Scan(&reg.IssueID, &reg.ThreadID, &linkID, &created); err != nil {
			return nil, err
		}
		reg.LinkID = linkID.String
		reg.CreatedAt = parseCreatedAt(created)
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

func parseCreatedAt(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
