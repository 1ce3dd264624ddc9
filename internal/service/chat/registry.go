package chat

import (
	"context"
	"sync"
	"time"
)

// RunRegistry tracks the in-memory log of every live run.
//
// Design:
//   - One log per run (keyed by run_id)
//   - Thread-safe access via RWMutex
//   - Background cleanup removes closed logs after a retention period
//
// Lifecycle:
//  1. RunService creates the log and registers it before streaming
//  2. Reconnecting clients look the log up and subscribe at an offset
//  3. The loop closes the log when the run reaches a terminal state
//  4. Cleanup evicts closed logs once the retention period passes;
//     later reconnects fall back to the database event log
type RunRegistry struct {
	logs map[string]*Log
	mu   sync.RWMutex

	cleanupInterval time.Duration
	retentionPeriod time.Duration // How long to keep closed logs

	// Tracking for cleanup
	closeTimes map[string]time.Time
	timesMu    sync.RWMutex
}

// NewRunRegistry creates a new RunRegistry
func NewRunRegistry(cleanupInterval, retentionPeriod time.Duration) *RunRegistry {
	return &RunRegistry{
		logs:            make(map[string]*Log),
		cleanupInterval: cleanupInterval,
		retentionPeriod: retentionPeriod,
		closeTimes:      make(map[string]time.Time),
	}
}

// Register registers the log for a run.
// If a log already exists for this run, it returns false.
func (r *RunRegistry) Register(runID string, log *Log) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.logs[runID]; exists {
		return false
	}

	r.logs[runID] = log
	return true
}

// Get retrieves the log for a run.
// Returns nil if no log exists (the run is unknown or already evicted).
func (r *RunRegistry) Get(runID string) *Log {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.logs[runID]
}

// Remove removes a run's log from the registry.
// Safe to call even if the log doesn't exist.
func (r *RunRegistry) Remove(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.logs, runID)

	r.timesMu.Lock()
	delete(r.closeTimes, runID)
	r.timesMu.Unlock()
}

// StartCleanup starts the background cleanup goroutine.
// Removes closed logs after retentionPeriod.
func (r *RunRegistry) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.cleanup()
		}
	}
}

// cleanup removes logs that have been closed longer than the retention period
func (r *RunRegistry) cleanup() {
	now := time.Now()

	var toRemove []string

	r.mu.RLock()
	for runID, log := range r.logs {
		if !log.Closed() {
			continue
		}

		r.timesMu.RLock()
		closedAt, exists := r.closeTimes[runID]
		r.timesMu.RUnlock()

		if exists && now.Sub(closedAt) > r.retentionPeriod {
			toRemove = append(toRemove, runID)
		} else if !exists {
			// First sweep after close, start the retention clock
			r.timesMu.Lock()
			r.closeTimes[runID] = now
			r.timesMu.Unlock()
		}
	}
	r.mu.RUnlock()

	if len(toRemove) > 0 {
		r.mu.Lock()
		for _, runID := range toRemove {
			delete(r.logs, runID)
		}
		r.mu.Unlock()

		r.timesMu.Lock()
		for _, runID := range toRemove {
			delete(r.closeTimes, runID)
		}
		r.timesMu.Unlock()
	}
}

// Count returns the number of registered logs.
// Useful for monitoring and testing.
func (r *RunRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.logs)
}
