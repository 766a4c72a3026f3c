// Command check runs a single configured task's probe exactly once,
// outside the checker daemon, and prints the resulting outcome. Useful for
// an operator debugging one task's probe without restarting the daemon.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/last-emo-boy/infra-core/pkg/checks"
	"github.com/last-emo-boy/infra-core/pkg/config"
)

func main() {
	var (
		taskID  = flag.String("task", "", "task_id from the loaded config to run once")
		timeout = flag.Duration("timeout", 0, "override the task's configured timeout (0 keeps it)")
	)
	flag.Parse()

	if *taskID == "" {
		fmt.Fprintln(os.Stderr, "❌ -task is required")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	task, ok := findTask(cfg, *taskID)
	if !ok {
		fmt.Fprintf(os.Stderr, "❌ unknown task %q\n", *taskID)
		os.Exit(1)
	}

	spec, err := specFromTask(task)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ invalid task spec: %v\n", err)
		os.Exit(1)
	}
	if *timeout > 0 {
		spec.Timeout = *timeout
	}

	sc := checks.SupervisorContext{
		TaskID:      task.TaskID,
		ProbeName:   task.ProbeName,
		ContainerID: task.ContainerID,
		AgentURL:    task.AgentURL,
		AgentAuth:   task.AgentAuth,
		ViaAgent:    task.ViaAgent,
	}

	outcome, err := checks.RunOnce(context.Background(), spec, sc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	printOutcome(task.TaskID, outcome)
	if outcome.IsDefinitiveError() || (outcome.IsResult() && !outcomeSucceeded(spec.Kind, outcome)) {
		os.Exit(1)
	}
}

func findTask(cfg *config.Config, taskID string) (config.TaskConfig, bool) {
	for _, t := range cfg.Tasks {
		if t.TaskID == taskID {
			return t, true
		}
	}
	return config.TaskConfig{}, false
}

// specFromTask mirrors orchestrator.specFromTask; kept as a small
// standalone copy here so this CLI has no dependency on the daemon's
// registry package.
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

func outcomeSucceeded(kind checks.Kind, o checks.ProbeOutcome) bool {
	switch kind {
	case checks.KindCommand:
		return o.ExitCode == 0
	case checks.KindHTTP:
		return o.StatusCode >= 200 && o.StatusCode < 300
	case checks.KindTCP:
		return o.Succeeded
	default:
		return false
	}
}

func printOutcome(taskID string, o checks.ProbeOutcome) {
	out := map[string]any{
		"task_id": taskID,
		"outcome": o.String(),
		"at":      time.Now().Format(time.RFC3339),
	}
	if o.IsResult() {
		out["exit_code"] = o.ExitCode
		out["status_code"] = o.StatusCode
		out["succeeded"] = o.Succeeded
	}
	if o.IsDefinitiveError() {
		out["error"] = o.Err.Error()
	}

	enc, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(enc))
}
