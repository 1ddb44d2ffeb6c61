// Package dispatch implements C4: a single long-running coordinator that
// matches pending tasks to idle agents using priority and repository
// affinity, per §4.3.
package dispatch

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/aosanya/agentorch/internal/agentregistry"
	"github.com/aosanya/agentorch/internal/executor"
	"github.com/aosanya/agentorch/internal/task"
)

// Config controls the dispatcher's poll cadence.
type Config struct {
	// PollInterval is how often the dispatcher looks for idle agents with
	// claimable work.
	PollInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{PollInterval: 50 * time.Millisecond}
}

// Dispatcher repeatedly: asks the registry for an idle agent per
// repository, claims the highest-priority task for that repository,
// transitions the agent to Busy, and hands the task to the executor
// adapter. It never holds a lock across the adapter call (§4.3
// "cooperative and non-blocking").
type Dispatcher struct {
	registry *agentregistry.Registry
	tasks    task.Repo
	adapter  executor.Adapter
	cfg      Config

	// repoCursor implements round-robin fairness across repositories: on
	// each tick, repositories are visited starting just after the last
	// repository served, so a hot repository cannot starve others.
	mu         sync.Mutex
	repoCursor int

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New constructs a Dispatcher.
func New(registry *agentregistry.Registry, tasks task.Repo, adapter executor.Adapter, cfg Config) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		tasks:    tasks,
		adapter:  adapter,
		cfg:      cfg,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the dispatch loop.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go d.loop(ctx)
}

// Stop halts the dispatch loop and waits for in-flight ticks to settle.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	d.wg.Wait()
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

// tick performs one round: for each repository in round-robin order, if
// an idle agent exists, attempt to claim and dispatch exactly one task.
func (d *Dispatcher) tick(ctx context.Context) {
	repos := d.registry.Repositories()
	if len(repos) == 0 {
		return
	}

	d.mu.Lock()
	start := d.repoCursor % len(repos)
	d.repoCursor++
	d.mu.Unlock()

	for i := 0; i < len(repos); i++ {
		repo := repos[(start+i)%len(repos)]
		d.dispatchOneForRepo(ctx, repo)
	}
}

func (d *Dispatcher) dispatchOneForRepo(ctx context.Context, repoPath string) {
	agent, ok := d.registry.PickIdleForRepo(repoPath)
	if !ok {
		return
	}

	claimed, err := d.tasks.ClaimNextFor(ctx, agent.ID, repoPath)
	if err != nil {
		log.WithError(err).WithField("repo", repoPath).Error("failed to claim task")
		return
	}
	if claimed == nil {
		return
	}

	if err := d.registry.MarkBusy(agent.ID, claimed.ID); err != nil {
		// Lost the race to mark the agent busy (e.g. a fatal report
		// arrived concurrently) — the task stays Assigned and will be
		// reclaimed by the sweeper once the agent's heartbeat lapses.
		log.WithError(err).WithField("agent_id", agent.ID).Warn("could not mark agent busy after claim")
		return
	}

	d.wg.Add(1)
	go d.execute(ctx, agent.ID, claimed)
}

// execute runs the claimed task on a distinct goroutine per §5's
// requirement that agent executor calls be dispatched on a distinct
// execution context per task, then translates the outcome into a
// Complete/Fail call and an agent transition back to Idle.
func (d *Dispatcher) execute(ctx context.Context, agentID string, t *task.Task) {
	defer d.wg.Done()

	started := time.Now()
	if err := d.tasks.MarkInProgress(ctx, t.ID); err != nil {
		log.WithError(err).WithField("task_id", t.ID).Error("failed to mark task in-progress")
	}

	outcome := d.adapter.Execute(ctx, t)
	execTime := time.Since(started)

	if outcome.Success {
		if err := d.tasks.Complete(ctx, t.ID, outcome.Result); err != nil {
			log.WithError(err).WithField("task_id", t.ID).Error("failed to mark task complete")
		}
	} else {
		msg := "execution failed"
		if outcome.Err != nil {
			msg = outcome.Err.Error()
		}
		if err := d.tasks.Fail(ctx, t.ID, msg); err != nil {
			log.WithError(err).WithField("task_id", t.ID).Error("failed to mark task failed")
		}
	}

	if err := d.registry.MarkIdle(agentID, outcome.Success, execTime); err != nil {
		log.WithError(err).WithField("agent_id", agentID).Error("failed to return agent to idle")
	}
}
