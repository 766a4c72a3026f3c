package checks

import "context"

// rawState is the completion state of a backend's future, prior to
// classification (spec §4.7).
type rawState int

const (
	rawReady rawState = iota
	rawFailed
	rawDiscarded
)

// rawOutcome is what a Backend.Run produces before the classifier turns it
// into a ProbeOutcome. killedExternally marks a "ready" outcome that in fact
// completed because something outside the backend's own logic (the
// supervisor's timeout/stop teardown, or the nested agent's own task exit)
// signal-killed the process/container — such outcomes are never surfaced as
// a Result (spec §4.7 table, row 2).
type rawOutcome struct {
	state            rawState
	exitCode         int
	statusCode       int
	succeeded        bool
	killedExternally bool
	err              error
}

func ready(exitCode int) rawOutcome { return rawOutcome{state: rawReady, exitCode: exitCode} }

func readyStatus(code int) rawOutcome {
	return rawOutcome{state: rawReady, statusCode: code}
}

func readyTCP(ok bool) rawOutcome { return rawOutcome{state: rawReady, succeeded: ok} }

func readyKilled() rawOutcome {
	return rawOutcome{state: rawReady, killedExternally: true}
}

func failed(err error) rawOutcome { return rawOutcome{state: rawFailed, err: err} }

func discarded() rawOutcome { return rawOutcome{state: rawDiscarded} }

// Backend runs one probe and reports its raw, unclassified completion. ctx
// carries the per-probe timeout deadline; Run must return promptly once ctx
// is done, having torn down any child process or connection it owns.
type Backend interface {
	Run(ctx context.Context) rawOutcome
}

// newBackend dispatches on kind (and ViaAgent for COMMAND), per spec §9's
// tagged-variant note: a small switch, not a virtual call hierarchy.
func newBackend(spec CheckSpec, sc SupervisorContext, state *SupervisorState) Backend {
	switch spec.Kind {
	case KindCommand:
		if sc.ViaAgent {
			return &nestedCommandBackend{spec: spec, sc: sc, state: state}
		}
		return &commandBackend{spec: spec, sc: sc}
	case KindHTTP:
		return &httpBackend{spec: spec}
	case KindTCP:
		return &tcpBackend{spec: spec}
	default:
		// unreachable: CheckSpec.Validate rejects unknown kinds at construction.
		panic("checks: unknown kind reached backend dispatch")
	}
}
