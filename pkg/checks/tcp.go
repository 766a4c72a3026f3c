package checks

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
)

// TCPProbeBin is the external tcp-connect helper's binary name (spec §6).
var TCPProbeBin = "tcp-connect"

// TCPLauncherDir is joined with TCPProbeBin to resolve the helper's path.
// Overridable for tests; no configuration field sets it.
var TCPLauncherDir = "."

// tcpBackend runs TCPProbeBin against loopback:port (spec §4.5). Any
// non-zero helper exit is collapsed to Result(succeeded=false); it is
// deliberately never an error. A helper that cannot be found, spawned or
// reaped is a DefinitiveError.
type tcpBackend struct {
	spec CheckSpec
}

func (b *tcpBackend) Run(ctx context.Context) rawOutcome {
	bin := filepath.Join(TCPLauncherDir, TCPProbeBin)
	if _, err := os.Stat(bin); err != nil {
		return failed(fmt.Errorf("checks: tcp probe helper not found: %w", err))
	}

	cmd := exec.Command(bin, fmt.Sprintf("--ip=%s", b.spec.Loopback()), fmt.Sprintf("--port=%d", b.spec.TCP.Port))
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return failed(fmt.Errorf("checks: spawn tcp probe helper: %w", err))
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	select {
	case err := <-waitErr:
		if err != nil {
			var exitErr *exec.ExitError
			if !asExitError(err, &exitErr) {
				return failed(fmt.Errorf("checks: tcp probe helper wait: %w", err))
			}
		}
		return readyTCP(err == nil)
	case <-ctx.Done():
		killProcessGroup(cmd.Process.Pid)
		<-waitErr
		return readyKilled()
	}
}
