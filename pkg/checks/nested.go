package checks

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
)

// NestedAgent is the RPC surface of the agent that hosts the observed
// task's container (spec §4.3/§6). Launch returns a reader over a
// RecordIO-framed stream of ProcessIO frames; the caller must read it to
// completion (or abandon it on ctx cancellation) and Close it.
type NestedAgent interface {
	Remove(ctx context.Context, containerID string) error
	Launch(ctx context.Context, containerID, parentContainerID string, cmd CommandPayload) (io.ReadCloser, error)
	Wait(ctx context.Context, containerID string) (exitStatus *int, killedBySignal bool, err error)
}

// nestedCommandBackend executes a CommandSpec inside a nested container of
// the observed task, via NestedAgent (spec §4.3).
type nestedCommandBackend struct {
	spec  CheckSpec
	sc    SupervisorContext
	state *SupervisorState
}

func (b *nestedCommandBackend) Run(ctx context.Context) rawOutcome {
	if b.sc.Agent == nil {
		return failed(fmt.Errorf("checks: viaAgent probe requires a NestedAgent"))
	}

	// Step 1: GC the previous tick's container before launching a new one.
	if b.state.previousCheckContainerID != "" {
		if err := b.sc.Agent.Remove(ctx, b.state.previousCheckContainerID); err != nil {
			// Non-2xx or connection failure: transient for this tick, do
			// not attempt a launch (spec §4.3 step 1).
			return discarded()
		}
		b.state.previousCheckContainerID = ""
	}

	containerID := "check-" + uuid.New().String()
	// Remembered immediately so it can be GC'd even if launch fails below.
	b.state.previousCheckContainerID = containerID

	type launchOut struct {
		exitStatus *int
		killed     bool
		launchErr  error
		waitErr    error
	}
	done := make(chan launchOut, 1)
	go func() {
		body, err := b.sc.Agent.Launch(ctx, containerID, b.sc.ContainerID, b.spec.Command)
		if err != nil {
			if ctx.Err() != nil {
				// The launch connection was cut out from under us by the
				// outer timeout; the agent may have created the container
				// before that happened. Still issue WAIT_NESTED_CONTAINER
				// so the container is confirmed terminal before the next
				// tick's GC step runs (spec §4.3 "On timeout").
				_, _, _ = b.sc.Agent.Wait(context.Background(), containerID)
			}
			done <- launchOut{launchErr: err}
			return
		}
		drainRecordIO(body) // decoded for operator logging only, per spec §4.3 step 4
		body.Close()

		// Use a detached context for Wait so that a timeout on the outer
		// ctx does not also abort this call — the container must reach a
		// terminal state before the next tick's GC step runs (spec §4.3
		// "On timeout").
		exitStatus, killed, waitErr := b.sc.Agent.Wait(context.Background(), containerID)
		done <- launchOut{exitStatus: exitStatus, killed: killed, waitErr: waitErr}
	}()

	select {
	case out := <-done:
		return b.interpret(out.exitStatus, out.killed, out.launchErr, out.waitErr)
	case <-ctx.Done():
		// The launch request was built with ctx, so it aborts here; the
		// agent is expected to kill the probe container as a consequence.
		// Still wait for the goroutine's WAIT_NESTED_CONTAINER call before
		// returning, per spec §4.3 "On timeout".
		out := <-done
		_ = out
		return failed(fmt.Errorf("timed out waiting for nested probe"))
	}
}

// interpret classifies the outcome of one nested-command attempt. A LAUNCH
// failure (agent unreachable, non-2xx response) is attributable to the
// surrounding system and is transient for this tick. A WAIT failure, by
// contrast, means the agent accepted the launch but could not report how it
// ended — that is a DefinitiveError, not a silent retry (mirrors
// checker_process.cpp's separate .onFailed handler on waitNestedContainer).
func (b *nestedCommandBackend) interpret(exitStatus *int, killed bool, launchErr, waitErr error) rawOutcome {
	if launchErr != nil {
		return discarded()
	}
	if waitErr != nil {
		return failed(waitErr)
	}
	if exitStatus == nil {
		return failed(fmt.Errorf("checks: nested probe container exited without a reported status"))
	}
	if killed {
		return readyKilled()
	}
	return ready(*exitStatus)
}

// drainRecordIO reads RecordIO-framed ProcessIO JSON records from r,
// concatenating stdout/stderr payloads for logging. Decoding failures are
// tolerated; the frames are not used for classification, only diagnostics.
func drainRecordIO(r io.Reader) []byte {
	var out bytes.Buffer
	br := bufio.NewReader(r)
	for {
		var length int64
		if _, err := fmt.Fscanf(br, "%d\n", &length); err != nil {
			break
		}
		if length < 0 || length > 1<<20 {
			break
		}
		frame := make([]byte, length)
		if _, err := io.ReadFull(br, frame); err != nil {
			break
		}
		var pio processIOFrame
		if err := json.Unmarshal(frame, &pio); err == nil {
			out.Write(pio.Data)
		}
	}
	return out.Bytes()
}

type processIOFrame struct {
	Type string `json:"type"`
	Data []byte `json:"data"`
}

// httpNestedAgent is the default NestedAgent, speaking JSON over HTTP to the
// configured agent base URL (spec §6). The RecordIO wire format is preserved
// as length-prefixed JSON lines rather than protobuf, since protobuf is not
// a direct dependency of this module (see SPEC_FULL.md §4.3).
type httpNestedAgent struct {
	baseURL string
	auth    string
	client  *http.Client
}

// NewHTTPNestedAgent constructs a NestedAgent backed by the agent's HTTP
// API at baseURL.
func NewHTTPNestedAgent(baseURL, auth string) NestedAgent {
	return &httpNestedAgent{baseURL: baseURL, auth: auth, client: &http.Client{}}
}

func (a *httpNestedAgent) Remove(ctx context.Context, containerID string) error {
	body, _ := json.Marshal(map[string]string{"container_id": containerID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/REMOVE_NESTED_CONTAINER", bytes.NewReader(body))
	if err != nil {
		return err
	}
	a.setHeaders(req, "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("checks: agent REMOVE_NESTED_CONTAINER returned %s", resp.Status)
	}
	return nil
}

func (a *httpNestedAgent) Launch(ctx context.Context, containerID, parentContainerID string, cmd CommandPayload) (io.ReadCloser, error) {
	payload := map[string]any{
		"container_id":        containerID,
		"parent_container_id": parentContainerID,
		"command":             cmd,
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/LAUNCH_NESTED_CONTAINER_SESSION", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	a.setHeaders(req, "application/json")
	req.Header.Set("Accept", "application/recordio")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("checks: agent LAUNCH_NESTED_CONTAINER_SESSION returned %s", resp.Status)
	}
	return resp.Body, nil
}

func (a *httpNestedAgent) Wait(ctx context.Context, containerID string) (*int, bool, error) {
	body, _ := json.Marshal(map[string]string{"container_id": containerID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/WAIT_NESTED_CONTAINER", bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	a.setHeaders(req, "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("checks: agent WAIT_NESTED_CONTAINER returned %s", resp.Status)
	}

	var parsed struct {
		ExitStatus *int `json:"exit_status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, false, fmt.Errorf("checks: decode WAIT_NESTED_CONTAINER response: %w", err)
	}
	if parsed.ExitStatus == nil {
		return nil, false, nil
	}
	killed := isSIGKILLStatus(*parsed.ExitStatus)
	return parsed.ExitStatus, killed, nil
}

func (a *httpNestedAgent) setHeaders(req *http.Request, contentType string) {
	req.Header.Set("Content-Type", contentType)
	if a.auth != "" {
		req.Header.Set("Authorization", a.auth)
	}
}

// isSIGKILLStatus reports whether a raw wait-status value encodes
// termination by SIGKILL, using the POSIX wait-status convention (low 7
// bits hold the signal number when the process was signalled).
func isSIGKILLStatus(status int) bool {
	const wtermsigMask = 0x7f
	const sigkill = 9
	signalled := status&wtermsigMask != 0 && (status&wtermsigMask) != 0x7f
	return signalled && status&wtermsigMask == sigkill
}
