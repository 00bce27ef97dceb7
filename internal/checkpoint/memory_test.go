package checkpoint_test

import (
	"context"
	"sync"
	"testing"

	"github.com/petasbytes/go-chatgraph/internal/checkpoint"
)

func TestMemorySaver_Contract(t *testing.T) {
	runSaverContract(t, checkpoint.NewMemorySaver(), "")
}

func TestMemorySaver_CopiesOnReadAndWrite(t *testing.T) {
	s := checkpoint.NewMemorySaver()
	ctx := context.Background()

	cp := mkCheckpoint("t", 1, `{"a":1}`)
	if err := s.Put(ctx, cp); err != nil {
		t.Fatalf("put: %v", err)
	}
	cp.State[2] = 'z'
	cp.Node = "mutated"

	got, err := s.Latest(ctx, "t")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if string(got.State) != `{"a":1}` || got.Node != "node-1" {
		t.Fatalf("stored checkpoint aliased caller memory: %+v", got)
	}
	got.State[2] = 'q'
	again, _ := s.Latest(ctx, "t")
	if string(again.State) != `{"a":1}` {
		t.Fatalf("read result aliased stored memory: %s", again.State)
	}
}

func TestMemorySaver_ConcurrentPuts(t *testing.T) {
	s := checkpoint.NewMemorySaver()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cp := mkCheckpoint("t", i, `{}`)
			cp.ID = cp.ID + "-" + string(rune('a'+i%26))
			_ = s.Put(ctx, cp)
		}(i)
	}
	wg.Wait()

	cps, _ := s.List(ctx, "t")
	if len(cps) != 50 {
		t.Fatalf("want 50 checkpoints, got %d", len(cps))
	}
}

func TestOpen_Backends(t *testing.T) {
	ctx := context.Background()

	s, err := checkpoint.Open(ctx, checkpoint.Config{})
	if err != nil {
		t.Fatalf("open default: %v", err)
	}
	if _, ok := s.(*checkpoint.MemorySaver); !ok {
		t.Fatalf("default backend should be memory, got %T", s)
	}

	if _, err := checkpoint.Open(ctx, checkpoint.Config{Backend: "etcd"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if _, err := checkpoint.Open(ctx, checkpoint.Config{Backend: "postgres"}); err == nil {
		t.Fatal("expected error for postgres without dsn")
	}
	if _, err := checkpoint.Open(ctx, checkpoint.Config{Backend: "redis"}); err == nil {
		t.Fatal("expected error for redis without dsn")
	}
}
