package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/last-emo-boy/infra-core/pkg/checks"
)

func TestStatusObserver_RecordsResult(t *testing.T) {
	o := NewStatusObserver()
	observe := o.Observe("task-1")

	observe(checks.ResultExit(7))

	status := o.Status("task-1")
	assert.Equal(t, "result", status.LastOutcome)
	assert.Equal(t, 7, status.LastExitCode)
	assert.False(t, status.ObservedAt.IsZero())
}

func TestStatusObserver_RecordsDefinitiveError(t *testing.T) {
	o := NewStatusObserver()
	observe := o.Observe("task-2")

	observe(checks.DefinitiveErr(errors.New("timed out after 100ms")))

	status := o.Status("task-2")
	assert.Equal(t, "definitive_error", status.LastOutcome)
	assert.Contains(t, status.LastError, "timed out after 100ms")
}

func TestStatusObserver_UnknownTaskIsZeroValue(t *testing.T) {
	o := NewStatusObserver()
	status := o.Status("never-seen")
	assert.Equal(t, "", status.LastOutcome)
}

func TestStatusObserver_AllSnapshotsEveryTask(t *testing.T) {
	o := NewStatusObserver()
	o.Observe("a")(checks.ResultExit(0))
	o.Observe("b")(checks.ResultTCP(true))

	all := o.All()
	assert.Len(t, all, 2)
	assert.Contains(t, all, "a")
	assert.Contains(t, all, "b")
}

func TestStatusObserver_TransientNeverRecorded(t *testing.T) {
	o := NewStatusObserver()
	observe := o.Observe("task-3")

	observe(checks.Transient())

	status := o.Status("task-3")
	assert.Equal(t, "", status.LastOutcome, "transient outcomes must never reach the observer in practice, and even if one did, must not be recorded")
}
