// Package checkpoint persists graph state snapshots keyed by conversation thread.
//
// A checkpoint is written after every executed graph node; the newest one for a
// thread is the thread's current state. Backends:
//   - memory: process-scoped, the default.
//   - sqlite: single file via mattn/go-sqlite3.
//   - postgres: pgx connection pool, jsonb state column.
//   - redis: one list per thread plus a set of known thread ids.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by Latest when a thread has no checkpoints.
var ErrNotFound = errors.New("checkpoint: not found")

type Checkpoint struct {
	ID        string          `json:"id"`
	ThreadID  string          `json:"thread_id"`
	RunID     string          `json:"run_id"`
	Step      int             `json:"step"`
	Node      string          `json:"node"`
	State     json.RawMessage `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}

// Saver stores checkpoints. Implementations must be safe for concurrent use.
type Saver interface {
	Put(ctx context.Context, cp *Checkpoint) error
	// Latest returns the most recently written checkpoint of a thread or ErrNotFound.
	Latest(ctx context.Context, threadID string) (*Checkpoint, error)
	// List returns a thread's checkpoints oldest first.
	List(ctx context.Context, threadID string) ([]*Checkpoint, error)
	// Threads returns every thread id with at least one checkpoint, sorted.
	Threads(ctx context.Context) ([]string, error)
	Close() error
}

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config selects the backend at runtime.
type Config struct {
	Backend string `json:"backend" yaml:"backend"`
	// DSN is a file path for sqlite, a postgres URL, or a redis URL / host:port.
	DSN string `json:"dsn" yaml:"dsn"`
}

const DefaultSQLitePath = "chatgraph.db"

// Open returns the saver for cfg.Backend; an empty backend means memory.
func Open(ctx context.Context, cfg Config) (Saver, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		return NewMemorySaver(), nil
	case BackendSQLite:
		path := cfg.DSN
		if path == "" {
			path = DefaultSQLitePath
		}
		return NewSQLiteSaver(path)
	case BackendPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("checkpoint: postgres backend requires a dsn")
		}
		return NewPostgresSaver(ctx, cfg.DSN)
	case BackendRedis:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("checkpoint: redis backend requires a dsn")
		}
		return NewRedisSaver(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("checkpoint: unknown backend %q", cfg.Backend)
	}
}

func validate(cp *Checkpoint) error {
	if cp == nil {
		return errors.New("checkpoint: nil checkpoint")
	}
	if cp.ThreadID == "" {
		return errors.New("checkpoint: empty thread id")
	}
	if cp.ID == "" {
		return errors.New("checkpoint: empty id")
	}
	if !json.Valid(cp.State) {
		return fmt.Errorf("checkpoint %s: state is not valid JSON", cp.ID)
	}
	return nil
}

func clone(cp *Checkpoint) *Checkpoint {
	c := *cp
	c.State = append(json.RawMessage(nil), cp.State...)
	return &c
}
