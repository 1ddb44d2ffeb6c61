// Package agentregistry implements C3: an in-memory projection of
// agents with heartbeat tracking and state transitions, as described in
// §4.2 of the specification.
package agentregistry

import (
	"sync"
	"time"
)

// Status is the lifecycle state of an agent.
type Status string

const (
	// StatusIdle indicates the agent is registered and ready to claim work.
	StatusIdle Status = "idle"
	// StatusBusy indicates the agent currently owns a task.
	StatusBusy Status = "busy"
	// StatusOffline indicates the agent missed its heartbeat window.
	StatusOffline Status = "offline"
	// StatusError indicates a fatal report was received; requires manual recovery.
	StatusError Status = "error"
)

// Agent is the registry's live view of one long-lived worker bound to a
// repository path.
type Agent struct {
	mu sync.Mutex

	ID       string
	Name     string
	Type     string
	RepoPath string

	status        Status
	lastHeartbeat time.Time
	currentTaskID string

	completed       int64
	failed          int64
	totalExecTime   time.Duration
}

// newAgent constructs an Idle agent with a fresh heartbeat.
func newAgent(id, name, agentType, repoPath string) *Agent {
	return &Agent{
		ID:            id,
		Name:          name,
		Type:          agentType,
		RepoPath:      repoPath,
		status:        StatusIdle,
		lastHeartbeat: time.Now(),
	}
}

// Status returns the agent's current status under lock.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// CurrentTaskID returns the task id the agent is busy with, or "".
func (a *Agent) CurrentTaskID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentTaskID
}

// LastHeartbeat returns the last recorded heartbeat time.
func (a *Agent) LastHeartbeat() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastHeartbeat
}

// Metrics returns the agent's completed/failed counters and average
// execution time, a lightweight snapshot suitable for the status API.
func (a *Agent) Metrics() (completed, failed int64, avgExecTime time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := a.completed + a.failed
	if total == 0 {
		return a.completed, a.failed, 0
	}
	return a.completed, a.failed, a.totalExecTime / time.Duration(total)
}

// heartbeat refreshes lastHeartbeat and, if the agent had gone Offline,
// restores it to Idle (§4.2 "next heartbeat" transition back to Idle).
func (a *Agent) heartbeat() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastHeartbeat = time.Now()
	if a.status == StatusOffline {
		a.status = StatusIdle
	}
}

// markBusy transitions Idle → Busy bound to taskID. Returns false if the
// agent was not Idle (caller should not have selected it).
func (a *Agent) markBusy(taskID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != StatusIdle {
		return false
	}
	a.status = StatusBusy
	a.currentTaskID = taskID
	return true
}

// markIdle transitions Busy → Idle after a task finishes, recording
// whether it succeeded for the completed/failed counters.
func (a *Agent) markIdle(success bool, execTime time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = StatusIdle
	a.currentTaskID = ""
	if success {
		a.completed++
	} else {
		a.failed++
	}
	a.totalExecTime += execTime
}

// markOffline demotes the agent and returns the task it was Busy with,
// if any, so the caller can reclaim it.
func (a *Agent) markOffline() (wasBusyWithTask string, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status == StatusOffline || a.status == StatusError {
		return "", false
	}
	wasBusy := a.status == StatusBusy
	task := a.currentTaskID
	a.status = StatusOffline
	if wasBusy {
		return task, true
	}
	return "", false
}

// markError moves the agent to Error state; requires manual recovery.
func (a *Agent) markError() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = StatusError
}
