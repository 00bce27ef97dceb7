package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	thread_id  TEXT NOT NULL,
	run_id     TEXT NOT NULL,
	step       INTEGER NOT NULL,
	node       TEXT NOT NULL,
	state      TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_thread ON checkpoints(thread_id, seq);
`

// SQLiteSaver stores checkpoints in a single SQLite file.
type SQLiteSaver struct {
	db *sql.DB
}

func NewSQLiteSaver(path string) (*SQLiteSaver, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	// One writer keeps AUTOINCREMENT order equal to write order.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating sqlite %s: %w", path, err)
	}
	return &SQLiteSaver{db: db}, nil
}

func (s *SQLiteSaver) Put(ctx context.Context, cp *Checkpoint) error {
	if err := validate(cp); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (id, thread_id, run_id, step, node, state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, cp.ID, cp.ThreadID, cp.RunID, cp.Step, cp.Node, string(cp.State), cp.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("inserting checkpoint: %w", err)
	}
	return nil
}

func (s *SQLiteSaver) Latest(ctx context.Context, threadID string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, thread_id, run_id, step, node, state, created_at
		FROM checkpoints WHERE thread_id = ?
		ORDER BY seq DESC LIMIT 1
	`, threadID)
	cp, err := scanSQLite(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting latest checkpoint: %w", err)
	}
	return cp, nil
}

func (s *SQLiteSaver) List(ctx context.Context, threadID string) ([]*Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, run_id, step, node, state, created_at
		FROM checkpoints WHERE thread_id = ?
		ORDER BY seq ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("listing checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*Checkpoint
	for rows.Next() {
		cp, err := scanSQLite(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning checkpoint: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (s *SQLiteSaver) Threads(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT thread_id FROM checkpoints ORDER BY thread_id`)
	if err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning thread id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteSaver) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLite(r rowScanner) (*Checkpoint, error) {
	var (
		cp      Checkpoint
		state   string
		created int64
	)
	if err := r.Scan(&cp.ID, &cp.ThreadID, &cp.RunID, &cp.Step, &cp.Node, &state, &created); err != nil {
		return nil, err
	}
	cp.State = []byte(state)
	cp.CreatedAt = time.Unix(0, created).UTC()
	return &cp, nil
}
