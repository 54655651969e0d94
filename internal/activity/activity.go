// Package activity tracks per-agent operation timestamps over a rolling
// window.
//
// Both the frequency-restriction policy and the risk assessor's frequency
// signal read from this history. Every validated operation is recorded here
// regardless of whether it was ultimately approved, so a burst of rejected
// calls raises future risk scores. That matches the behavior the product
// shipped with; whether rejected calls should count is under product review.
package activity

import (
	"sync"
	"time"

	"github.com/ParalexLabs/hyvbase/internal/syncutil"
)

// Window is how far back recorded activity is retained and counted.
const Window = time.Hour

// maxEntriesPerAgent caps a single agent's history so one hot agent cannot
// grow memory without bound inside the window.
const maxEntriesPerAgent = 10000

// History is a time-bounded record of operation timestamps per agent.
// Safe for concurrent use; per-agent sequences are serialized through a
// sharded mutex so check-then-append stays atomic.
type History struct {
	locks syncutil.ShardedMutex

	mu     sync.RWMutex
	agents map[string][]time.Time

	now func() time.Time // swappable for tests
}

// NewHistory creates an empty activity history.
func NewHistory() *History {
	return &History{
		agents: make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Record appends the current timestamp to the agent's history and prunes
// entries older than the window.
func (h *History) Record(agentID string) {
	unlock := h.locks.Lock(agentID)
	defer unlock()

	now := h.now()
	entries := h.pruned(agentID, now)
	entries = append(entries, now)
	if len(entries) > maxEntriesPerAgent {
		entries = entries[len(entries)-maxEntriesPerAgent:]
	}

	h.mu.Lock()
	h.agents[agentID] = entries
	h.mu.Unlock()
}

// CountRecent returns how many operations the agent performed within the
// trailing window.
func (h *History) CountRecent(agentID string) int {
	unlock := h.locks.Lock(agentID)
	defer unlock()

	now := h.now()
	entries := h.pruned(agentID, now)

	h.mu.Lock()
	if len(entries) == 0 {
		delete(h.agents, agentID)
	} else {
		h.agents[agentID] = entries
	}
	h.mu.Unlock()

	return len(entries)
}

// Agents returns the number of agents with retained activity.
func (h *History) Agents() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.agents)
}

// pruned returns the agent's entries inside the window. Caller must hold
// the agent's shard lock.
func (h *History) pruned(agentID string, now time.Time) []time.Time {
	h.mu.RLock()
	entries := h.agents[agentID]
	h.mu.RUnlock()

	cutoff := now.Add(-Window)
	start := 0
	for start < len(entries) && !entries[start].After(cutoff) {
		start++
	}
	return entries[start:]
}
