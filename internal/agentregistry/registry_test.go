package agentregistry

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeReclaimer struct {
	mu       sync.Mutex
	reclaims []string
}

func (f *fakeReclaimer) Reclaim(ctx context.Context, taskID string, maxRetry int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reclaims = append(f.reclaims, taskID)
	return nil
}

func (f *fakeReclaimer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reclaims)
}

func TestRegister_StartsIdle(t *testing.T) {
	r := New(DefaultConfig(), nil)
	a := r.Register("a1", "Agent One", "generic", "/repo/a")
	if a.Status() != StatusIdle {
		t.Fatalf("expected Idle, got %s", a.Status())
	}
}

func TestPickIdleForRepo_FiltersByRepoAndStatus(t *testing.T) {
	r := New(DefaultConfig(), nil)
	r.Register("a1", "A1", "generic", "/repo/a")
	r.Register("a2", "A2", "generic", "/repo/b")

	picked, ok := r.PickIdleForRepo("/repo/b")
	if !ok || picked.ID != "a2" {
		t.Fatalf("expected a2, got %+v ok=%v", picked, ok)
	}

	if err := r.MarkBusy("a2", "task-1"); err != nil {
		t.Fatalf("MarkBusy: %v", err)
	}
	if _, ok := r.PickIdleForRepo("/repo/b"); ok {
		t.Fatal("expected no idle agent left in /repo/b")
	}
}

func TestHeartbeat_RecoversFromOffline(t *testing.T) {
	r := New(DefaultConfig(), nil)
	a := r.Register("a1", "A1", "generic", "/repo/a")
	a.markOffline()
	if a.Status() != StatusOffline {
		t.Fatalf("expected Offline, got %s", a.Status())
	}
	if err := r.Heartbeat("a1"); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if a.Status() != StatusIdle {
		t.Fatalf("expected Idle after heartbeat, got %s", a.Status())
	}
}

func TestSweep_DemotesOverdueAgentAndReclaimsAfterTReclaim(t *testing.T) {
	reclaimer := &fakeReclaimer{}
	cfg := Config{
		Offline:       10 * time.Millisecond,
		Reclaim:       30 * time.Millisecond,
		SweepInterval: 5 * time.Millisecond,
		MaxRetry:      3,
	}
	r := New(cfg, reclaimer)
	a := r.Register("a1", "A1", "generic", "/repo/a")
	if err := r.MarkBusy("a1", "task-1"); err != nil {
		t.Fatalf("MarkBusy: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	defer r.Stop()

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if a.Status() == StatusOffline && reclaimer.count() == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected agent demoted and task reclaimed, got status=%s reclaims=%d", a.Status(), reclaimer.count())
}
