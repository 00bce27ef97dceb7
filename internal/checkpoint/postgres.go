package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS chatgraph_checkpoints (
	seq        BIGSERIAL PRIMARY KEY,
	id         TEXT NOT NULL UNIQUE,
	thread_id  TEXT NOT NULL,
	run_id     TEXT NOT NULL,
	step       INTEGER NOT NULL,
	node       TEXT NOT NULL,
	state      JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chatgraph_checkpoints_thread ON chatgraph_checkpoints(thread_id, seq);
`

// PostgresSaver stores checkpoints in Postgres through a pgx pool.
type PostgresSaver struct {
	pool *pgxpool.Pool
}

func NewPostgresSaver(ctx context.Context, databaseURL string) (*PostgresSaver, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate checkpoints: %w", err)
	}
	return &PostgresSaver{pool: pool}, nil
}

func (s *PostgresSaver) Put(ctx context.Context, cp *Checkpoint) error {
	if err := validate(cp); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chatgraph_checkpoints (id, thread_id, run_id, step, node, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
	`, cp.ID, cp.ThreadID, cp.RunID, cp.Step, cp.Node, string(cp.State), cp.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

func (s *PostgresSaver) Latest(ctx context.Context, threadID string) (*Checkpoint, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, thread_id, run_id, step, node, state::text, created_at
		FROM chatgraph_checkpoints WHERE thread_id = $1
		ORDER BY seq DESC LIMIT 1
	`, threadID)
	cp, err := scanPostgres(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest checkpoint: %w", err)
	}
	return cp, nil
}

func (s *PostgresSaver) List(ctx context.Context, threadID string) ([]*Checkpoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, thread_id, run_id, step, node, state::text, created_at
		FROM chatgraph_checkpoints WHERE thread_id = $1
		ORDER BY seq ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*Checkpoint
	for rows.Next() {
		cp, err := scanPostgres(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (s *PostgresSaver) Threads(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT thread_id FROM chatgraph_checkpoints ORDER BY thread_id`)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan thread id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresSaver) Close() error {
	s.pool.Close()
	return nil
}

func scanPostgres(r pgx.Row) (*Checkpoint, error) {
	var (
		cp    Checkpoint
		state string
	)
	if err := r.Scan(&cp.ID, &cp.ThreadID, &cp.RunID, &cp.Step, &cp.Node, &state, &cp.CreatedAt); err != nil {
		return nil, err
	}
	cp.State = []byte(state)
	return &cp, nil
}
