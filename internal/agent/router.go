package agent

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Router manages named agents and tracks their active runs so a run can
// be aborted from outside the loop (gateway client, signal handler).
type Router struct {
	agents     map[string]Agent
	mu         sync.RWMutex
	activeRuns sync.Map // runID → *ActiveRun
}

func NewRouter() *Router {
	return &Router{agents: make(map[string]Agent)}
}

// Register adds an agent to the router.
func (r *Router) Register(ag Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[ag.ID()] = ag
}

// Get returns an agent by ID.
func (r *Router) Get(agentID string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ag, ok := r.agents[agentID]
	if !ok {
		return nil, fmt.Errorf("agent not found: %s", agentID)
	}
	return ag, nil
}

// Remove removes an agent from the router.
func (r *Router) Remove(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, agentID)
}

// List returns all registered agent IDs.
func (r *Router) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	return ids
}

// AgentInfo is lightweight metadata about an agent.
type AgentInfo struct {
	ID        string `json:"id"`
	Model     string `json:"model"`
	IsRunning bool   `json:"isRunning"`
}

// ListInfo returns metadata for all agents.
func (r *Router) ListInfo() []AgentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]AgentInfo, 0, len(r.agents))
	for _, ag := range r.agents {
		infos = append(infos, AgentInfo{
			ID:        ag.ID(),
			Model:     ag.Model(),
			IsRunning: ag.IsRunning(),
		})
	}
	return infos
}

// ActiveRun tracks a running invocation so it can be aborted.
type ActiveRun struct {
	RunID     string
	AgentID   string
	Cancel    context.CancelFunc
	StartedAt time.Time
}

// RegisterRun records an active run so it can be aborted later.
func (r *Router) RegisterRun(runID, agentID string, cancel context.CancelFunc) {
	r.activeRuns.Store(runID, &ActiveRun{
		RunID:     runID,
		AgentID:   agentID,
		Cancel:    cancel,
		StartedAt: time.Now(),
	})
}

// UnregisterRun removes a completed or cancelled run from tracking.
func (r *Router) UnregisterRun(runID string) {
	r.activeRuns.Delete(runID)
}

// AbortRun cancels a single run by ID. Returns true if the run was found
// and cancelled.
func (r *Router) AbortRun(runID string) bool {
	val, ok := r.activeRuns.Load(runID)
	if !ok {
		return false
	}
	val.(*ActiveRun).Cancel()
	r.activeRuns.Delete(runID)
	return true
}

// AbortAll cancels every active run. Returns the aborted run IDs.
func (r *Router) AbortAll() []string {
	var aborted []string
	r.activeRuns.Range(func(key, val interface{}) bool {
		run := val.(*ActiveRun)
		run.Cancel()
		r.activeRuns.Delete(key)
		aborted = append(aborted, run.RunID)
		return true
	})
	return aborted
}

// ActiveRuns returns a snapshot of currently tracked runs.
func (r *Router) ActiveRuns() []*ActiveRun {
	var runs []*ActiveRun
	r.activeRuns.Range(func(_, val interface{}) bool {
		runs = append(runs, val.(*ActiveRun))
		return true
	})
	return runs
}
