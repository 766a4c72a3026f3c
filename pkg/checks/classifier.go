package checks

// classify turns a backend's raw completion into a ProbeOutcome per the
// table in spec §4.7.
func classify(raw rawOutcome, kind Kind) ProbeOutcome {
	switch raw.state {
	case rawReady:
		if raw.killedExternally {
			return Transient()
		}
		switch kind {
		case KindHTTP:
			return ResultStatus(raw.statusCode)
		case KindTCP:
			return ResultTCP(raw.succeeded)
		default:
			return ResultExit(raw.exitCode)
		}
	case rawDiscarded:
		return Transient()
	default: // rawFailed
		return DefinitiveErr(raw.err)
	}
}

// dispatch invokes the observer per spec §4.7 dispatch rules: dropped
// entirely if paused at dispatch time (even a Result or DefinitiveError),
// logged-only for Transient, delivered otherwise.
func dispatch(obs Observer, state *SupervisorState, outcome ProbeOutcome, logf func(string, ...any)) {
	if state.paused {
		if logf != nil {
			logf("🔇 dropping outcome %s: paused at dispatch time", outcome)
		}
		return
	}
	if outcome.IsTransient() {
		if logf != nil {
			logf("ℹ️ transient probe outcome, retrying next interval")
		}
		return
	}
	if obs != nil {
		obs(outcome)
	}
}
