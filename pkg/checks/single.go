package checks

import "context"

// RunOnce runs spec against sc exactly one time, outside of any Supervisor's
// ticking loop, and returns the resulting outcome directly rather than
// handing it to an Observer (spec §4.1's dispatch gate does not apply
// outside a running supervisor — there is no pause state and nothing to
// drop). Used by the one-shot debugging CLI.
func RunOnce(ctx context.Context, spec CheckSpec, sc SupervisorContext) (ProbeOutcome, error) {
	if err := spec.Validate(); err != nil {
		return ProbeOutcome{}, err
	}

	if sc.ViaAgent && sc.Agent == nil {
		sc.Agent = NewHTTPNestedAgent(sc.AgentURL, sc.AgentAuth)
	}

	state := &SupervisorState{}
	backend := newBackend(spec, sc, state)
	raw := runWithTimeout(ctx, spec.Timeout, backend)
	return classify(raw, spec.Kind), nil
}
