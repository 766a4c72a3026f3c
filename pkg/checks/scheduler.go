package checks

import (
	"context"
	"log"
	"sync"
	"time"
)

// Supervisor drives one task's check on a single logical execution context
// (spec §4.1, §5): a dedicated goroutine that rearms a timer after each
// tick completes rather than running on a fixed grid, since interval is
// measured from the end of the previous probe's processing.
type Supervisor struct {
	spec CheckSpec
	sc   SupervisorContext

	mu    sync.Mutex
	state SupervisorState

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// resumeNow requests an immediate re-tick (interval=0) from resume().
	resumeNow chan struct{}
}

// NewSupervisor validates spec and constructs an idle Supervisor. A
// malformed spec is a setup error, never a probe outcome (spec §7).
func NewSupervisor(spec CheckSpec, sc SupervisorContext) (*Supervisor, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &Supervisor{
		spec:      spec,
		sc:        sc,
		resumeNow: make(chan struct{}, 1),
	}, nil
}

// Start arms a one-shot timer for Delay and begins ticking.
func (s *Supervisor) Start() {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.wg.Add(1)
	go s.run()
}

func (s *Supervisor) run() {
	defer s.wg.Done()

	timer := time.NewTimer(s.spec.Delay)
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.resumeNow:
			if !timer.Stop() {
				drainTimer(timer)
			}
			s.tick()
		case <-timer.C:
			s.tick()
		}

		s.mu.Lock()
		interval := s.spec.Interval
		paused := s.state.paused
		s.mu.Unlock()
		if paused {
			// Not rearmed while paused: Resume is the only reentry path.
			continue
		}
		timer.Reset(interval)
	}
}

// tick is the core state machine of spec §4.1. It never overlaps with
// another tick by construction: run() only re-enters the select loop after
// tick() returns.
func (s *Supervisor) tick() {
	s.mu.Lock()
	paused := s.state.paused
	s.mu.Unlock()
	if paused {
		return
	}

	backend := newBackend(s.spec, s.withAgent(), &s.state)
	raw := runWithTimeout(s.ctx, s.spec.Timeout, backend)
	outcome := classify(raw, s.spec.Kind)

	s.mu.Lock()
	defer s.mu.Unlock()
	dispatch(s.sc.Observer, &s.state, outcome, s.logf)
}

// withAgent returns sc with a default HTTP nested agent filled in when
// ViaAgent is set but no Agent was supplied explicitly.
func (s *Supervisor) withAgent() SupervisorContext {
	sc := s.sc
	if sc.ViaAgent && sc.Agent == nil {
		sc.Agent = NewHTTPNestedAgent(sc.AgentURL, sc.AgentAuth)
	}
	return sc
}

func (s *Supervisor) logf(format string, args ...any) {
	log.Printf("[%s] "+format, append([]any{s.sc.ProbeName}, args...)...)
}

// Pause sets the gate; an already-dispatched probe continues but its
// outcome will be dropped at dispatch time (spec §4.1).
func (s *Supervisor) Pause() {
	s.mu.Lock()
	s.state.paused = true
	s.mu.Unlock()
}

// Resume clears the gate and requests an immediate re-tick.
func (s *Supervisor) Resume() {
	s.mu.Lock()
	s.state.paused = false
	s.mu.Unlock()
	select {
	case s.resumeNow <- struct{}{}:
	default:
	}
}

// Paused reports the current gate state.
func (s *Supervisor) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.paused
}

// Stop permanently disables the gate, cancels any in-flight probe, and
// waits for the run loop to exit.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func drainTimer(t *time.Timer) {
	select {
	case <-t.C:
	default:
	}
}
