// Package services holds the StatusObserver: an in-memory, non-persisting
// record of each supervised task's most recent check outcome. Adapted from
// infra-core's HealthChecker, which persisted every result to SQL; this
// spec's explicit non-goal ("does not persist history") means there is
// nothing here to retain beyond the latest outcome, so the SQL repository
// calls and the retention/cleanup job have no replacement — they are simply
// gone, not stubbed out.
package services

import (
	"sync"
	"time"

	"github.com/last-emo-boy/infra-core/pkg/checks"
)

// TaskStatus is the most recently observed outcome for one task.
type TaskStatus struct {
	LastOutcome   string    `json:"last_outcome"` // "result", "definitive_error", or "" if never observed
	LastExitCode  int       `json:"last_exit_code,omitempty"`
	LastStatus    int       `json:"last_http_status,omitempty"`
	LastSucceeded bool      `json:"last_tcp_succeeded,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	ObservedAt    time.Time `json:"observed_at,omitempty"`
}

// StatusObserver holds the latest checks.ProbeOutcome per task.
type StatusObserver struct {
	mu     sync.RWMutex
	status map[string]TaskStatus
}

// NewStatusObserver constructs an empty StatusObserver.
func NewStatusObserver() *StatusObserver {
	return &StatusObserver{status: make(map[string]TaskStatus)}
}

// Observe returns a checks.Observer closure bound to taskID, suitable as
// checks.SupervisorContext.Observer.
func (o *StatusObserver) Observe(taskID string) checks.Observer {
	return func(outcome checks.ProbeOutcome) {
		status := TaskStatus{ObservedAt: time.Now()}
		switch {
		case outcome.IsResult():
			status.LastOutcome = "result"
			status.LastExitCode = outcome.ExitCode
			status.LastStatus = outcome.StatusCode
			status.LastSucceeded = outcome.Succeeded
		case outcome.IsDefinitiveError():
			status.LastOutcome = "definitive_error"
			if outcome.Err != nil {
				status.LastError = outcome.Err.Error()
			}
		default:
			// Transient outcomes are never dispatched to the observer
			// (spec §3 invariant); this branch is unreachable but kept
			// for exhaustiveness against future ProbeOutcome variants.
			return
		}

		o.mu.Lock()
		o.status[taskID] = status
		o.mu.Unlock()
	}
}

// Status returns the most recent status recorded for taskID, or a zero
// value if nothing has been observed yet.
func (o *StatusObserver) Status(taskID string) TaskStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status[taskID]
}

// All returns a snapshot of every task's status.
func (o *StatusObserver) All() map[string]TaskStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]TaskStatus, len(o.status))
	for k, v := range o.status {
		out[k] = v
	}
	return out
}
