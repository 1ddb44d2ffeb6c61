package agentregistry

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Reclaimer is the subset of the task repository the sweeper needs to
// return an orphaned task to Pending. Satisfied by task.Repo.
type Reclaimer interface {
	Reclaim(ctx context.Context, taskID string, maxRetry int) error
}

// Config controls the heartbeat sweeper's timing, mirroring spec §6's
// environment configuration (T_offline, T_reclaim).
type Config struct {
	// Offline is T_offline: how long without a heartbeat before an agent
	// is demoted to Offline.
	Offline time.Duration
	// Reclaim is T_reclaim: how long an agent may remain Offline before
	// its in-flight task is returned to Pending.
	Reclaim time.Duration
	// SweepInterval is how often the background sweeper runs.
	SweepInterval time.Duration
	// MaxRetry bounds reclaim-driven retries before a task is abandoned.
	MaxRetry int
}

// DefaultConfig matches spec §6's stated defaults.
func DefaultConfig() Config {
	offline := 30 * time.Second
	return Config{
		Offline:       offline,
		Reclaim:       5 * offline,
		SweepInterval: 5 * time.Second,
		MaxRetry:      3,
	}
}

// Registry is C3: the in-memory projection of agents, with a background
// sweeper that demotes overdue agents to Offline and reclaims their
// in-flight task once they have been Offline for longer than T_reclaim.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent

	// wentOffline records when each agent most recently transitioned to
	// Offline, so the sweeper can tell how long it has been down.
	wentOffline map[string]time.Time

	cfg      Config
	tasks    Reclaimer
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a registry. tasks is used by the sweeper to reclaim
// orphaned tasks; it may be nil in tests that do not exercise reclaim.
func New(cfg Config, tasks Reclaimer) *Registry {
	return &Registry{
		agents:      make(map[string]*Agent),
		wentOffline: make(map[string]time.Time),
		cfg:         cfg,
		tasks:       tasks,
		stopCh:      make(chan struct{}),
	}
}

// Register adds a new Idle agent to the registry.
func (r *Registry) Register(id, name, agentType, repoPath string) *Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := newAgent(id, name, agentType, repoPath)
	r.agents[id] = a
	log.WithFields(log.Fields{"agent_id": id, "repo": repoPath}).Info("agent registered")
	return a
}

// Get returns the agent by id, or (nil, false).
func (r *Registry) Get(id string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	return a, ok
}

// List returns every registered agent in no particular order.
func (r *Registry) List() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	return out
}

// Heartbeat refreshes the named agent's liveness.
func (r *Registry) Heartbeat(id string) error {
	a, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("agentregistry: unknown agent %s", id)
	}
	a.heartbeat()
	r.mu.Lock()
	delete(r.wentOffline, id)
	r.mu.Unlock()
	return nil
}

// PickIdleForRepo returns an Idle agent bound to repoPath, used by the
// dispatcher (C4). Among several idle candidates it returns the one with
// the oldest heartbeat, a simple round-robin-ish fairness proxy.
func (r *Registry) PickIdleForRepo(repoPath string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Agent
	for _, a := range r.agents {
		if a.RepoPath != repoPath || a.Status() != StatusIdle {
			continue
		}
		if best == nil || a.LastHeartbeat().Before(best.LastHeartbeat()) {
			best = a
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// Repositories returns the distinct repository paths with at least one
// registered agent, used by the dispatcher for round-robin fairness
// across repositories.
func (r *Registry) Repositories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, a := range r.agents {
		if !seen[a.RepoPath] {
			seen[a.RepoPath] = true
			out = append(out, a.RepoPath)
		}
	}
	return out
}

// MarkBusy transitions an agent to Busy bound to taskID.
func (r *Registry) MarkBusy(id, taskID string) error {
	a, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("agentregistry: unknown agent %s", id)
	}
	if !a.markBusy(taskID) {
		return fmt.Errorf("agentregistry: agent %s is not Idle", id)
	}
	return nil
}

// MarkIdle transitions an agent back to Idle after a task finishes.
func (r *Registry) MarkIdle(id string, success bool, execTime time.Duration) error {
	a, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("agentregistry: unknown agent %s", id)
	}
	a.markIdle(success, execTime)
	return nil
}

// MarkError moves an agent to the Error state after a fatal report.
func (r *Registry) MarkError(id string) error {
	a, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("agentregistry: unknown agent %s", id)
	}
	a.markError()
	return nil
}

// Start launches the background heartbeat sweeper.
func (r *Registry) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.sweepLoop(ctx)
}

// Stop halts the sweeper and waits for it to exit.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

func (r *Registry) sweepLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep demotes agents overdue on their heartbeat to Offline (§4.2),
// recording the demotion time in wentOffline; demotion itself reclaims
// nothing. On a later sweep, an agent that has stayed Offline for longer
// than T_reclaim has its current task reclaimed, exactly once.
func (r *Registry) sweep(ctx context.Context) {
	now := time.Now()

	r.mu.Lock()
	type reclaim struct{ agentID, taskID string }
	var toDemote []*Agent
	var toReclaim []reclaim

	for id, a := range r.agents {
		if a.Status() == StatusOffline || a.Status() == StatusError {
			if since, tracked := r.wentOffline[id]; tracked && now.Sub(since) > r.cfg.Reclaim {
				if taskID := a.CurrentTaskID(); taskID != "" {
					toReclaim = append(toReclaim, reclaim{id, taskID})
				}
				delete(r.wentOffline, id)
			}
			continue
		}
		if now.Sub(a.LastHeartbeat()) > r.cfg.Offline {
			toDemote = append(toDemote, a)
		}
	}
	r.mu.Unlock()

	for _, a := range toDemote {
		a.markOffline()
		r.mu.Lock()
		r.wentOffline[a.ID] = now
		r.mu.Unlock()
		log.WithFields(log.Fields{"agent_id": a.ID}).Warn("agent demoted to offline")
	}

	for _, rc := range toReclaim {
		if r.tasks == nil {
			continue
		}
		if err := r.tasks.Reclaim(ctx, rc.taskID, r.cfg.MaxRetry); err != nil {
			log.WithError(err).WithField("task_id", rc.taskID).Error("failed to reclaim orphaned task")
		}
	}
}
