// Package orchestrator owns one check supervisor per configured task,
// starting and stopping them together and answering status queries. It is
// the process-level registry described in SPEC_FULL.md §4.9, adapted from
// infra-core's deployment orchestrator (same mutex-guarded-map, running
// flag, Start/Stop/GetStatus shape; it holds no ctx/cancel pair of its own,
// since each Supervisor owns its context) to own checks.Supervisor instances
// instead of ServiceInstance/Deployment/Node resource-accounting state.
package orchestrator

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/docker/docker/client"

	"github.com/last-emo-boy/infra-core/pkg/checks"
	"github.com/last-emo-boy/infra-core/pkg/config"
	"github.com/last-emo-boy/infra-core/pkg/services"
)

// TaskStatus is a point-in-time snapshot of one supervised task.
type TaskStatus struct {
	TaskID string `json:"task_id"`
	Paused bool   `json:"paused"`
	services.TaskStatus
}

// Registry owns one checks.Supervisor per configured task.
type Registry struct {
	cfg      *config.Config
	observer *services.StatusObserver

	mutex       sync.RWMutex
	supervisors map[string]*checks.Supervisor
	running     bool
}

// New constructs a Registry from cfg. Supervisors are not started until
// Start is called.
func New(cfg *config.Config) *Registry {
	return &Registry{
		cfg:         cfg,
		observer:    services.NewStatusObserver(),
		supervisors: make(map[string]*checks.Supervisor),
	}
}

// Start builds and starts one Supervisor per configured task.
func (r *Registry) Start() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.running {
		return fmt.Errorf("orchestrator: already running")
	}

	for _, task := range r.cfg.Tasks {
		spec, err := specFromTask(task)
		if err != nil {
			return fmt.Errorf("orchestrator: task %s: %w", task.TaskID, err)
		}

		agent, err := newNestedAgent(task)
		if err != nil {
			return fmt.Errorf("orchestrator: task %s: %w", task.TaskID, err)
		}

		sc := checks.SupervisorContext{
			TaskID:      task.TaskID,
			ProbeName:   task.ProbeName,
			ContainerID: task.ContainerID,
			AgentURL:    task.AgentURL,
			AgentAuth:   task.AgentAuth,
			ViaAgent:    task.ViaAgent,
			Agent:       agent,
			Observer:    r.observer.Observe(task.TaskID),
		}

		sup, err := checks.NewSupervisor(spec, sc)
		if err != nil {
			return fmt.Errorf("orchestrator: task %s: %w", task.TaskID, err)
		}

		r.supervisors[task.TaskID] = sup
		log.Printf("🔍 starting supervisor for task %s (%s)", task.TaskID, task.Kind)
		sup.Start()
	}

	r.running = true
	log.Printf("✅ orchestrator started with %d supervised task(s)", len(r.supervisors))
	return nil
}

// Stop stops every supervisor and waits for their goroutines to exit.
func (r *Registry) Stop() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.running {
		return
	}

	log.Println("🛑 stopping orchestrator...")
	var wg sync.WaitGroup
	for id, sup := range r.supervisors {
		wg.Add(1)
		go func(id string, sup *checks.Supervisor) {
			defer wg.Done()
			sup.Stop()
		}(id, sup)
	}
	wg.Wait()

	r.running = false
	log.Println("✅ orchestrator stopped")
}

// GetStatus returns a snapshot of every supervised task's pause-state and
// most recent outcome.
func (r *Registry) GetStatus() map[string]TaskStatus {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make(map[string]TaskStatus, len(r.supervisors))
	for id, sup := range r.supervisors {
		out[id] = TaskStatus{
			TaskID:     id,
			Paused:     sup.Paused(),
			TaskStatus: r.observer.Status(id),
		}
	}
	return out
}

// GetTaskStatus returns one task's status, or false if the task id is
// unknown.
func (r *Registry) GetTaskStatus(taskID string) (TaskStatus, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	sup, ok := r.supervisors[taskID]
	if !ok {
		return TaskStatus{}, false
	}
	return TaskStatus{
		TaskID:     taskID,
		Paused:     sup.Paused(),
		TaskStatus: r.observer.Status(taskID),
	}, true
}

// PauseTask pauses the named supervisor's gate (spec §4.1).
func (r *Registry) PauseTask(taskID string) error {
	r.mutex.RLock()
	sup, ok := r.supervisors[taskID]
	r.mutex.RUnlock()
	if !ok {
		return fmt.Errorf("orchestrator: unknown task %q", taskID)
	}
	sup.Pause()
	return nil
}

// ResumeTask clears the named supervisor's gate and requests an immediate
// re-tick.
func (r *Registry) ResumeTask(taskID string) error {
	r.mutex.RLock()
	sup, ok := r.supervisors[taskID]
	r.mutex.RUnlock()
	if !ok {
		return fmt.Errorf("orchestrator: unknown task %q", taskID)
	}
	sup.Resume()
	return nil
}

// newNestedAgent builds the NestedAgent a via_agent task should use, per its
// configured nested_backend. "" and "http" return a nil Agent: Supervisor's
// withAgent() fills in the default HTTP agent lazily from AgentURL/AgentAuth
// when none is supplied. "docker" constructs a real Docker Engine client,
// wiring pkg/checks' dockerNestedAgent (SPEC_FULL.md's local-daemon nested
// backend) into a live task instead of leaving it unreachable.
func newNestedAgent(task config.TaskConfig) (checks.NestedAgent, error) {
	switch strings.ToLower(task.NestedBackend) {
	case "", "http":
		return nil, nil
	case "docker":
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return nil, fmt.Errorf("construct docker client: %w", err)
		}
		return checks.NewDockerNestedAgent(cli, task.DockerImage), nil
	default:
		return nil, fmt.Errorf("unknown nested_backend %q", task.NestedBackend)
	}
}

// specFromTask converts a config.TaskConfig into a checks.CheckSpec.
func specFromTask(task config.TaskConfig) (checks.CheckSpec, error) {
	spec := checks.CheckSpec{
		Delay:    task.Delay,
		Interval: task.Interval,
		Timeout:  task.Timeout,
		IPv6:     task.IPv6,
	}

	switch strings.ToUpper(task.Kind) {
	case "COMMAND":
		spec.Kind = checks.KindCommand
		spec.Command = checks.CommandPayload{
			Shell: task.CommandShell,
			Argv:  task.CommandArgv,
			Env:   task.CommandEnv,
		}
	case "HTTP":
		spec.Kind = checks.KindHTTP
		spec.HTTP = checks.HTTPPayload{
			Port:   task.HTTPPort,
			Path:   task.HTTPPath,
			Scheme: task.HTTPScheme,
		}
	case "TCP":
		spec.Kind = checks.KindTCP
		spec.TCP = checks.TCPPayload{Port: task.TCPPort}
	default:
		return checks.CheckSpec{}, fmt.Errorf("unknown kind %q", task.Kind)
	}

	if err := spec.Validate(); err != nil {
		return checks.CheckSpec{}, err
	}
	return spec, nil
}
