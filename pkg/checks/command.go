package checks

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// commandBackend runs a CommandSpec as a local child process (spec §4.2).
type commandBackend struct {
	spec CheckSpec
	sc   SupervisorContext
}

func (b *commandBackend) Run(ctx context.Context) rawOutcome {
	argv := b.argv()
	if b.sc.NamespaceEntry != nil && len(b.sc.Namespaces) > 0 {
		argv = b.sc.NamespaceEntry(argv)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = mergeEnv(os.Environ(), b.spec.Command.Env)

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return failed(fmt.Errorf("checks: open devnull: %w", err))
	}
	defer devNull.Close()
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = os.Stderr

	// Own process group so the timeout path below can SIGKILL the entire
	// descendant tree, not just the direct child (spec §4.6).
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return failed(fmt.Errorf("checks: spawn command probe: %w", err))
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	select {
	case err := <-waitErr:
		if err == nil {
			return ready(0)
		}
		var exitErr *exec.ExitError
		if ok := asExitError(err, &exitErr); ok {
			return ready(exitErr.ExitCode() & 0xff)
		}
		return failed(fmt.Errorf("checks: command probe wait: %w", err))
	case <-ctx.Done():
		killProcessGroup(cmd.Process.Pid)
		<-waitErr
		return readyKilled()
	}
}

func (b *commandBackend) argv() []string {
	if b.spec.Command.Shell != "" {
		return []string{"/bin/sh", "-c", b.spec.Command.Shell}
	}
	return append([]string(nil), b.spec.Command.Argv...)
}

func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	out := append([]string(nil), base...)
	for k, v := range overrides {
		out = append(out, k+"="+v)
	}
	return out
}

// killProcessGroup SIGKILLs the entire process group rooted at pid, the
// standard-library primitive for process-tree teardown (see DESIGN.md: no
// third-party process-supervision library is grounded in the example pack
// for this narrow need).
func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}
