package checks

import (
	"context"
	"fmt"
	"time"
)

// runWithTimeout composes a Backend's Run with a deadline (spec §4.6). If
// timeout is 0 it means "no timeout" and the backend runs under ctx alone.
// On expiry, cleanup is invoked (by the backend itself observing ctx.Done())
// and the outer call returns a failed rawOutcome carrying a timeout error —
// the backend's own eventual completion, if any, is discarded.
func runWithTimeout(ctx context.Context, timeout time.Duration, b Backend) rawOutcome {
	if timeout <= 0 {
		return b.Run(ctx)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan rawOutcome, 1)
	go func() {
		done <- b.Run(runCtx)
	}()

	select {
	case out := <-done:
		return out
	case <-runCtx.Done():
		// The backend observes runCtx.Done() itself and tears down its
		// child/connection; we still wait for it to finish that teardown
		// before returning, so the next tick's GC step never races a
		// still-live child/container (spec §4.3 "On timeout").
		<-done
		return failed(fmt.Errorf("timed out after %s", timeout))
	}
}
