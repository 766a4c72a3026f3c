package checks

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

// HTTPProbeBin is the external curl-like helper invoked by httpBackend (spec
// §6). Overridable for tests.
var HTTPProbeBin = "curl"

// httpBackend runs HTTPProbeBin against scheme://loopback:port/path and
// interprets its stdout as an HTTP status code (spec §4.4).
type httpBackend struct {
	spec CheckSpec
}

func (b *httpBackend) Run(ctx context.Context) rawOutcome {
	url := fmt.Sprintf("%s://%s:%d/%s", b.spec.HTTP.scheme(), b.spec.Loopback(), b.spec.HTTP.Port, strings.TrimPrefix(b.spec.HTTP.Path, "/"))

	// Invoked via argv directly (never through a shell), so the
	// process-group kill below is guaranteed to reach the helper (spec §9
	// open question, resolved in DESIGN.md).
	cmd := exec.Command(HTTPProbeBin, "-s", "-S", "-L", "-k", "-w", "%{http_code}", "-o", os.DevNull, "-g", url)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return failed(fmt.Errorf("checks: spawn http probe helper: %w", err))
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	select {
	case err := <-waitErr:
		if err != nil {
			return failed(fmt.Errorf("checks: http probe helper: %s", strings.TrimSpace(stderr.String())))
		}
		code, perr := strconv.Atoi(strings.TrimSpace(stdout.String()))
		if perr != nil {
			return failed(fmt.Errorf("checks: http probe helper produced non-numeric output %q", stdout.String()))
		}
		return readyStatus(code)
	case <-ctx.Done():
		// The enclosing runWithTimeout discards this value and substitutes
		// its own "timed out after T" error; we still must finish tearing
		// down the child before returning (spec §4.6).
		killProcessGroup(cmd.Process.Pid)
		<-waitErr
		return readyKilled()
	}
}
