package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/aosanya/agentorch/internal/agentregistry"
	"github.com/aosanya/agentorch/internal/executor"
	"github.com/aosanya/agentorch/internal/task"
)

func TestDispatcher_ClaimsAndCompletesTask(t *testing.T) {
	tasks := task.NewMemRepository(3)
	registry := agentregistry.New(agentregistry.DefaultConfig(), tasks)
	registry.Register("a1", "Agent One", "generic", "/repo/a")

	id, err := tasks.Enqueue(context.Background(), "echo hi", "/repo/a", 5)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	d := New(registry, tasks, executor.NoOpAdapter{}, Config{PollInterval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		got, err := tasks.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status == task.StatusCompleted {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("task did not complete within deadline")
}

func TestDispatcher_FairnessAcrossRepos(t *testing.T) {
	tasks := task.NewMemRepository(3)
	registry := agentregistry.New(agentregistry.DefaultConfig(), tasks)
	registry.Register("a1", "A1", "generic", "/repo/a")
	registry.Register("b1", "B1", "generic", "/repo/b")

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := tasks.Enqueue(ctx, "cmd", "/repo/a", 5); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	bID, err := tasks.Enqueue(ctx, "cmd", "/repo/b", 5)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	d := New(registry, tasks, executor.DelayAdapter{Delay: 20 * time.Millisecond}, Config{PollInterval: 5 * time.Millisecond})
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(runCtx)
	defer d.Stop()

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		got, err := tasks.Get(context.Background(), bID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status == task.StatusCompleted {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("repo b's task was starved by repo a's backlog")
}
