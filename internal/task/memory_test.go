package task

import (
	"context"
	"sync"
	"testing"
)

// TestClaimNextFor_AtMostOnce is the concurrency test for testable
// property #1: for N concurrent ClaimNextFor callers racing over the
// same repository, any given task is returned to at most one caller.
func TestClaimNextFor_AtMostOnce(t *testing.T) {
	repo := NewMemRepository(3)
	ctx := context.Background()

	const numTasks = 20
	taskIDs := make(map[string]bool, numTasks)
	for i := 0; i < numTasks; i++ {
		id, err := repo.Enqueue(ctx, "run-tests", "/repo/a", 5)
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		taskIDs[id] = true
	}

	const numAgents = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	claimedBy := make(map[string]string) // taskID -> agentID

	for a := 0; a < numAgents; a++ {
		agentID := "agent-" + string(rune('A'+a))
		wg.Add(1)
		go func(agentID string) {
			defer wg.Done()
			for {
				claimed, err := repo.ClaimNextFor(ctx, agentID, "/repo/a")
				if err != nil {
					t.Errorf("ClaimNextFor: %v", err)
					return
				}
				if claimed == nil {
					return
				}
				mu.Lock()
				if prev, ok := claimedBy[claimed.ID]; ok {
					t.Errorf("task %s claimed twice: by %s and %s", claimed.ID, prev, agentID)
				}
				claimedBy[claimed.ID] = agentID
				mu.Unlock()
			}
		}(agentID)
	}

	wg.Wait()

	if len(claimedBy) != numTasks {
		t.Fatalf("expected %d tasks claimed exactly once, got %d", numTasks, len(claimedBy))
	}
}

func TestClaimNextFor_PriorityOrdering(t *testing.T) {
	repo := NewMemRepository(3)
	ctx := context.Background()

	low, _ := repo.Enqueue(ctx, "low", "/repo/a", 1)
	high, _ := repo.Enqueue(ctx, "high", "/repo/a", 9)
	_ = low

	claimed, err := repo.ClaimNextFor(ctx, "agent-1", "/repo/a")
	if err != nil {
		t.Fatalf("ClaimNextFor: %v", err)
	}
	if claimed == nil || claimed.ID != high {
		t.Fatalf("expected highest-priority task claimed first, got %+v", claimed)
	}
}

func TestClaimNextFor_NoEligibleTask(t *testing.T) {
	repo := NewMemRepository(3)
	ctx := context.Background()

	claimed, err := repo.ClaimNextFor(ctx, "agent-1", "/repo/nothing-here")
	if err != nil {
		t.Fatalf("ClaimNextFor: %v", err)
	}
	if claimed != nil {
		t.Fatalf("expected nil, got %+v", claimed)
	}
}

func TestEnqueue_InvalidArgument(t *testing.T) {
	repo := NewMemRepository(3)
	ctx := context.Background()

	if _, err := repo.Enqueue(ctx, "cmd", "", 5); err == nil {
		t.Fatal("expected error for empty repoPath")
	}
	if _, err := repo.Enqueue(ctx, "cmd", "/repo/a", 10); err == nil {
		t.Fatal("expected error for out-of-range priority")
	}
}

func TestLifecycle_CompleteAndIllegalTransition(t *testing.T) {
	repo := NewMemRepository(3)
	ctx := context.Background()

	id, _ := repo.Enqueue(ctx, "cmd", "/repo/a", 5)

	claimed, err := repo.ClaimNextFor(ctx, "agent-1", "/repo/a")
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNextFor: %v, %+v", err, claimed)
	}

	if err := repo.MarkInProgress(ctx, id); err != nil {
		t.Fatalf("MarkInProgress: %v", err)
	}
	if err := repo.Complete(ctx, id, "ok"); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	got, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("expected Completed, got %s", got.Status)
	}

	if err := repo.MarkInProgress(ctx, id); err == nil {
		t.Fatal("expected illegal transition from Completed")
	}
}

func TestReclaim_IncrementsRetryThenAbandons(t *testing.T) {
	repo := NewMemRepository(1)
	ctx := context.Background()

	id, _ := repo.Enqueue(ctx, "cmd", "/repo/a", 5)
	if _, err := repo.ClaimNextFor(ctx, "agent-1", "/repo/a"); err != nil {
		t.Fatalf("ClaimNextFor: %v", err)
	}

	if err := repo.Reclaim(ctx, id, 1); err != nil {
		t.Fatalf("Reclaim: %v", err)
	}
	got, _ := repo.Get(ctx, id)
	if got.Status != StatusPending || got.RetryCount != 1 {
		t.Fatalf("expected Pending with retryCount 1, got %+v", got)
	}

	if _, err := repo.ClaimNextFor(ctx, "agent-2", "/repo/a"); err != nil {
		t.Fatalf("ClaimNextFor: %v", err)
	}
	if err := repo.Reclaim(ctx, id, 1); err != nil {
		t.Fatalf("Reclaim: %v", err)
	}
	got, _ = repo.Get(ctx, id)
	if got.Status != StatusFailed {
		t.Fatalf("expected task abandoned (Failed), got %s", got.Status)
	}
}
