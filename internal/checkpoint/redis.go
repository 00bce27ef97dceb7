package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "chatgraph:"

// RedisSaver keeps each thread's checkpoints in a Redis list.
type RedisSaver struct {
	rdb    *goredis.Client
	prefix string
}

// NewRedisSaver accepts a redis:// URL or a bare host:port.
func NewRedisSaver(ctx context.Context, dsn string) (*RedisSaver, error) {
	var opts *goredis.Options
	if strings.Contains(dsn, "://") {
		o, err := goredis.ParseURL(dsn)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		opts = o
	} else {
		opts = &goredis.Options{Addr: dsn}
	}
	opts.DialTimeout = 5 * time.Second

	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisSaver{rdb: rdb, prefix: redisKeyPrefix}, nil
}

func (s *RedisSaver) threadKey(threadID string) string {
	return s.prefix + "thread:" + threadID + ":checkpoints"
}

func (s *RedisSaver) threadsKey() string { return s.prefix + "threads" }

func (s *RedisSaver) Put(ctx context.Context, cp *Checkpoint) error {
	if err := validate(cp); err != nil {
		return err
	}
	raw, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.RPush(ctx, s.threadKey(cp.ThreadID), raw)
		p.SAdd(ctx, s.threadsKey(), cp.ThreadID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put checkpoint: %w", err)
	}
	return nil
}

func (s *RedisSaver) Latest(ctx context.Context, threadID string) (*Checkpoint, error) {
	raw, err := s.rdb.LIndex(ctx, s.threadKey(threadID), -1).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis latest checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &cp, nil
}

func (s *RedisSaver) List(ctx context.Context, threadID string) ([]*Checkpoint, error) {
	raws, err := s.rdb.LRange(ctx, s.threadKey(threadID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list checkpoints: %w", err)
	}
	out := make([]*Checkpoint, 0, len(raws))
	for _, raw := range raws {
		var cp Checkpoint
		if err := json.Unmarshal([]byte(raw), &cp); err != nil {
			return nil, fmt.Errorf("decode checkpoint: %w", err)
		}
		out = append(out, &cp)
	}
	return out, nil
}

func (s *RedisSaver) Threads(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, s.threadsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis threads: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *RedisSaver) Close() error { return s.rdb.Close() }
