package checks

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// dockerNestedAgent is an alternate NestedAgent backed by a real local
// Docker daemon instead of a remote agent HTTP API, grounded on
// malbeclabs-doublezero's e2e/internal/docker/exec.go container
// exec/attach/wait helpers. It maps the three agent RPCs onto the Docker
// Engine API: LAUNCH -> ContainerCreate+ContainerStart+ContainerAttach,
// WAIT -> ContainerWait, REMOVE -> ContainerRemove.
type dockerNestedAgent struct {
	cli   *client.Client
	image string // image to run the probe command in
}

// NewDockerNestedAgent constructs a NestedAgent that launches nested probe
// containers directly via the Docker Engine API, for operators running the
// supervisor against locally-managed containers without a separate agent
// process.
func NewDockerNestedAgent(cli *client.Client, image string) NestedAgent {
	return &dockerNestedAgent{cli: cli, image: image}
}

func (a *dockerNestedAgent) Remove(ctx context.Context, containerID string) error {
	return a.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
}

func (a *dockerNestedAgent) Launch(ctx context.Context, containerID, parentContainerID string, cmd CommandPayload) (io.ReadCloser, error) {
	argv := cmd.Argv
	if len(argv) == 0 && cmd.Shell != "" {
		argv = []string{"/bin/sh", "-c", cmd.Shell}
	}

	env := make([]string, 0, len(cmd.Env))
	for k, v := range cmd.Env {
		env = append(env, k+"="+v)
	}

	created, err := a.cli.ContainerCreate(ctx, &container.Config{
		Image: a.image,
		Cmd:   argv,
		Env:   env,
	}, &container.HostConfig{
		// The nested container shares the observed task's container
		// namespaces, mirroring the agent's "parent container" semantics
		// (spec §4.3 step 3).
		NetworkMode: container.NetworkMode("container:" + parentContainerID),
		PidMode:     container.PidMode("container:" + parentContainerID),
	}, nil, nil, containerID)
	if err != nil {
		return nil, fmt.Errorf("checks: docker create nested probe container: %w", err)
	}

	attach, err := a.cli.ContainerAttach(ctx, created.ID, container.AttachOptions{Stream: true, Stdout: true, Stderr: true})
	if err != nil {
		return nil, fmt.Errorf("checks: docker attach nested probe container: %w", err)
	}

	if err := a.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		attach.Close()
		return nil, fmt.Errorf("checks: docker start nested probe container: %w", err)
	}

	return attachedReader{Reader: attach.Reader, closer: attach.Close}, nil
}

// attachedReader pairs a HijackedResponse's buffered reader with its
// Close, since ContainerAttach returns them separately.
type attachedReader struct {
	io.Reader
	closer func()
}

func (a attachedReader) Close() error {
	a.closer()
	return nil
}

func (a *dockerNestedAgent) Wait(ctx context.Context, containerID string) (*int, bool, error) {
	statusCh, errCh := a.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return nil, false, fmt.Errorf("checks: docker wait nested probe container: %w", err)
		}
	case status := <-statusCh:
		if status.Error != nil && status.Error.Message != "" {
			return nil, false, fmt.Errorf("checks: docker wait nested probe container: %s", status.Error.Message)
		}
		exitCode := int(status.StatusCode)
		// Docker reports a signal-killed process as exit code 128+signal.
		killed := exitCode == 128+9
		return &exitCode, killed, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
	return nil, false, nil
}
