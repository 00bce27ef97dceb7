package checkpoint_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/petasbytes/go-chatgraph/internal/checkpoint"
)

func mkCheckpoint(thread string, step int, state string) *checkpoint.Checkpoint {
	return &checkpoint.Checkpoint{
		ID:        fmt.Sprintf("cp_%s_%d", thread, step),
		ThreadID:  thread,
		RunID:     "run-1",
		Step:      step,
		Node:      fmt.Sprintf("node-%d", step),
		State:     json.RawMessage(state),
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Add(time.Duration(step) * time.Second),
	}
}

// runSaverContract exercises behaviour every backend must share.
// thread ids are prefixed so integration backends can reuse a live database.
func runSaverContract(t *testing.T, s checkpoint.Saver, prefix string) {
	t.Helper()
	ctx := context.Background()
	a, b := prefix+"thread-a", prefix+"thread-b"

	t.Run("LatestMissing", func(t *testing.T) {
		if _, err := s.Latest(ctx, prefix+"nope"); !errors.Is(err, checkpoint.ErrNotFound) {
			t.Fatalf("want ErrNotFound, got %v", err)
		}
	})

	t.Run("ListMissingIsEmpty", func(t *testing.T) {
		cps, err := s.List(ctx, prefix+"nope")
		if err != nil || len(cps) != 0 {
			t.Fatalf("want empty,nil; got %d,%v", len(cps), err)
		}
	})

	t.Run("PutLatestList", func(t *testing.T) {
		for i, st := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
			if err := s.Put(ctx, mkCheckpoint(a, i+1, st)); err != nil {
				t.Fatalf("put %d: %v", i, err)
			}
		}
		if err := s.Put(ctx, mkCheckpoint(b, 1, `{"other":true}`)); err != nil {
			t.Fatalf("put b: %v", err)
		}

		latest, err := s.Latest(ctx, a)
		if err != nil {
			t.Fatalf("latest: %v", err)
		}
		if latest.Step != 3 || latest.Node != "node-3" || latest.RunID != "run-1" {
			t.Fatalf("unexpected latest: %+v", latest)
		}
		var st map[string]int
		if err := json.Unmarshal(latest.State, &st); err != nil || st["n"] != 3 {
			t.Fatalf("unexpected state %s (%v)", latest.State, err)
		}
		want := time.Date(2026, 1, 2, 3, 4, 8, 0, time.UTC)
		if !latest.CreatedAt.Equal(want) {
			t.Fatalf("created_at: got %v want %v", latest.CreatedAt, want)
		}

		cps, err := s.List(ctx, a)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(cps) != 3 {
			t.Fatalf("want 3 checkpoints, got %d", len(cps))
		}
		for i, cp := range cps {
			if cp.Step != i+1 || cp.ThreadID != a {
				t.Fatalf("list order broken at %d: %+v", i, cp)
			}
		}
	})

	t.Run("ThreadsSorted", func(t *testing.T) {
		ids, err := s.Threads(ctx)
		if err != nil {
			t.Fatalf("threads: %v", err)
		}
		var got []string
		for _, id := range ids {
			if id == a || id == b {
				got = append(got, id)
			}
		}
		if len(got) != 2 || got[0] != a || got[1] != b {
			t.Fatalf("want [%s %s], got %v", a, b, got)
		}
	})

	t.Run("RejectsInvalid", func(t *testing.T) {
		bad := mkCheckpoint(a, 9, `{not json`)
		if err := s.Put(ctx, bad); err == nil {
			t.Fatal("expected error for invalid JSON state")
		}
		noThread := mkCheckpoint("", 9, `{}`)
		if err := s.Put(ctx, noThread); err == nil {
			t.Fatal("expected error for empty thread id")
		}
	})
}
