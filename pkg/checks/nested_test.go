package checks

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNestedAgent records call order and lets tests script each call's
// outcome, for verifying the GC-before-launch ordering and SIGKILL
// classification properties (spec §8 items 6 and the NESTED-SIGKILL
// scenario).
type fakeNestedAgent struct {
	mu    sync.Mutex
	calls []string

	removeErr error

	launchErr   error
	blockLaunch chan struct{} // if non-nil, Launch blocks until ctx is done
	exitStatus  *int
	killed      bool
	waitErr     error
}

func (f *fakeNestedAgent) Remove(ctx context.Context, containerID string) error {
	f.mu.Lock()
	f.calls = append(f.calls, "REMOVE:"+containerID)
	f.mu.Unlock()
	return f.removeErr
}

func (f *fakeNestedAgent) Launch(ctx context.Context, containerID, parentContainerID string, cmd CommandPayload) (io.ReadCloser, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "LAUNCH:"+containerID)
	f.mu.Unlock()

	if f.blockLaunch != nil {
		select {
		case <-f.blockLaunch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if f.launchErr != nil {
		return nil, f.launchErr
	}
	return io.NopCloser(strings.NewReader("")), nil
}

func (f *fakeNestedAgent) Wait(ctx context.Context, containerID string) (*int, bool, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "WAIT:"+containerID)
	f.mu.Unlock()
	return f.exitStatus, f.killed, f.waitErr
}

func TestNestedCommandBackend_GCBeforeLaunch(t *testing.T) {
	exitZero := 0
	agent := &fakeNestedAgent{exitStatus: &exitZero}
	state := &SupervisorState{previousCheckContainerID: "check-prev"}

	b := &nestedCommandBackend{
		spec:  CheckSpec{Kind: KindCommand, Command: CommandPayload{Shell: "true"}},
		sc:    SupervisorContext{ContainerID: "task-container", Agent: agent},
		state: state,
	}

	raw := b.Run(context.Background())
	require.Equal(t, rawReady, raw.state)
	assert.Equal(t, 0, raw.exitCode)

	require.GreaterOrEqual(t, len(agent.calls), 3)
	assert.Equal(t, "REMOVE:check-prev", agent.calls[0], "prior container must be GC'd before any new launch")
	assert.True(t, strings.HasPrefix(agent.calls[1], "LAUNCH:check-"))
	assert.True(t, strings.HasPrefix(agent.calls[2], "WAIT:"))
	assert.NotEqual(t, "check-prev", state.previousCheckContainerID, "GC'd id must be cleared")
}

func TestNestedCommandBackend_RemoveFailureIsTransientThisTick(t *testing.T) {
	agent := &fakeNestedAgent{removeErr: errors.New("connection refused")}
	state := &SupervisorState{previousCheckContainerID: "check-prev"}

	b := &nestedCommandBackend{
		spec:  CheckSpec{Kind: KindCommand, Command: CommandPayload{Shell: "true"}},
		sc:    SupervisorContext{ContainerID: "task-container", Agent: agent},
		state: state,
	}

	raw := b.Run(context.Background())
	assert.Equal(t, rawDiscarded, raw.state)
	assert.True(t, classify(raw, KindCommand).IsTransient())

	require.Len(t, agent.calls, 1, "must not attempt a launch this tick")
	assert.Equal(t, "check-prev", state.previousCheckContainerID, "failed GC must not clear the remembered id")
}

func TestNestedCommandBackend_SIGKILLIsTransient(t *testing.T) {
	agent := &fakeNestedAgent{killed: true, exitStatus: intPtr(137)}
	state := &SupervisorState{}

	b := &nestedCommandBackend{
		spec:  CheckSpec{Kind: KindCommand, Command: CommandPayload{Shell: "true"}},
		sc:    SupervisorContext{ContainerID: "task-container", Agent: agent},
		state: state,
	}

	raw := b.Run(context.Background())
	require.Equal(t, rawReady, raw.state)
	assert.True(t, raw.killedExternally)
	assert.True(t, classify(raw, KindCommand).IsTransient())
}

func TestNestedCommandBackend_MissingExitStatusIsDefinitiveError(t *testing.T) {
	agent := &fakeNestedAgent{}
	state := &SupervisorState{}

	b := &nestedCommandBackend{
		spec:  CheckSpec{Kind: KindCommand, Command: CommandPayload{Shell: "true"}},
		sc:    SupervisorContext{ContainerID: "task-container", Agent: agent},
		state: state,
	}

	raw := b.Run(context.Background())
	assert.Equal(t, rawFailed, raw.state)
	assert.True(t, classify(raw, KindCommand).IsDefinitiveError())
}

func TestNestedCommandBackend_LaunchNon2xxIsTransient(t *testing.T) {
	agent := &fakeNestedAgent{launchErr: errors.New("agent returned 503")}
	state := &SupervisorState{}

	b := &nestedCommandBackend{
		spec:  CheckSpec{Kind: KindCommand, Command: CommandPayload{Shell: "true"}},
		sc:    SupervisorContext{ContainerID: "task-container", Agent: agent},
		state: state,
	}

	raw := b.Run(context.Background())
	assert.Equal(t, rawDiscarded, raw.state)
	assert.True(t, classify(raw, KindCommand).IsTransient())
}

func TestNestedCommandBackend_WaitFailureIsDefinitiveError(t *testing.T) {
	agent := &fakeNestedAgent{waitErr: errors.New("agent connection reset")}
	state := &SupervisorState{}

	b := &nestedCommandBackend{
		spec:  CheckSpec{Kind: KindCommand, Command: CommandPayload{Shell: "true"}},
		sc:    SupervisorContext{ContainerID: "task-container", Agent: agent},
		state: state,
	}

	raw := b.Run(context.Background())
	require.Equal(t, rawFailed, raw.state, "a WAIT failure must surface as a DefinitiveError, not be dropped as transient")
	assert.True(t, classify(raw, KindCommand).IsDefinitiveError())
}

func TestNestedCommandBackend_TimeoutMidLaunchStillWaits(t *testing.T) {
	exitZero := 0
	agent := &fakeNestedAgent{
		blockLaunch: make(chan struct{}), // never closed: Launch only returns via ctx cancellation
		exitStatus:  &exitZero,
	}
	state := &SupervisorState{}

	b := &nestedCommandBackend{
		spec:  CheckSpec{Kind: KindCommand, Command: CommandPayload{Shell: "true"}},
		sc:    SupervisorContext{ContainerID: "task-container", Agent: agent},
		state: state,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	raw := b.Run(ctx)
	assert.NotEqual(t, rawReady, raw.state, "a canceled launch must never classify as success")

	agent.mu.Lock()
	calls := append([]string(nil), agent.calls...)
	agent.mu.Unlock()
	require.Len(t, calls, 2)
	assert.True(t, strings.HasPrefix(calls[0], "LAUNCH:"))
	assert.True(t, strings.HasPrefix(calls[1], "WAIT:"), "a timeout mid-LAUNCH must still issue WAIT_NESTED_CONTAINER before the outer call returns")
}

func intPtr(v int) *int { return &v }
