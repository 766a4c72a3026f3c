package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/last-emo-boy/infra-core/pkg/config"
)

func testConfig(tasks ...config.TaskConfig) *config.Config {
	return &config.Config{
		Admin: config.AdminConfig{Host: "0.0.0.0", Port: 8090},
		Tasks: tasks,
	}
}

func tcpTask(id string, port int) config.TaskConfig {
	return config.TaskConfig{
		TaskID:   id,
		Kind:     "TCP",
		TCPPort:  port,
		Delay:    0,
		Interval: 20 * time.Millisecond,
		Timeout:  50 * time.Millisecond,
	}
}

func TestNew_DoesNotStartSupervisors(t *testing.T) {
	r := New(testConfig(tcpTask("a", 1)))
	assert.False(t, r.running)
	assert.Empty(t, r.supervisors)
}

func TestStart_BuildsOneSupervisorPerTask(t *testing.T) {
	r := New(testConfig(tcpTask("a", 1), tcpTask("b", 2)))
	require.NoError(t, r.Start())
	defer r.Stop()

	assert.Len(t, r.supervisors, 2)
	assert.True(t, r.running)
}

func TestStart_TwiceReturnsError(t *testing.T) {
	r := New(testConfig(tcpTask("a", 1)))
	require.NoError(t, r.Start())
	defer r.Stop()

	err := r.Start()
	assert.Error(t, err)
}

func TestStart_RejectsBadTaskSpec(t *testing.T) {
	bad := config.TaskConfig{TaskID: "broken", Kind: "NOT-A-KIND"}
	r := New(testConfig(bad))
	err := r.Start()
	assert.Error(t, err)
}

func TestStop_WithoutStartIsNoop(t *testing.T) {
	r := New(testConfig(tcpTask("a", 1)))
	assert.NotPanics(t, func() { r.Stop() })
}

func TestGetStatus_ReturnsEntryPerTask(t *testing.T) {
	r := New(testConfig(tcpTask("a", 1), tcpTask("b", 2)))
	require.NoError(t, r.Start())
	defer r.Stop()

	status := r.GetStatus()
	assert.Len(t, status, 2)
	assert.Contains(t, status, "a")
	assert.Contains(t, status, "b")
	assert.Equal(t, "a", status["a"].TaskID)
	assert.False(t, status["a"].Paused)
}

func TestGetTaskStatus_UnknownReturnsFalse(t *testing.T) {
	r := New(testConfig(tcpTask("a", 1)))
	require.NoError(t, r.Start())
	defer r.Stop()

	_, ok := r.GetTaskStatus("nope")
	assert.False(t, ok)
}

func TestGetTaskStatus_KnownReturnsTrue(t *testing.T) {
	r := New(testConfig(tcpTask("a", 1)))
	require.NoError(t, r.Start())
	defer r.Stop()

	status, ok := r.GetTaskStatus("a")
	assert.True(t, ok)
	assert.Equal(t, "a", status.TaskID)
}

func TestPauseAndResumeTask(t *testing.T) {
	r := New(testConfig(tcpTask("a", 1)))
	require.NoError(t, r.Start())
	defer r.Stop()

	require.NoError(t, r.PauseTask("a"))
	status, ok := r.GetTaskStatus("a")
	require.True(t, ok)
	assert.True(t, status.Paused)

	require.NoError(t, r.ResumeTask("a"))
	status, ok = r.GetTaskStatus("a")
	require.True(t, ok)
	assert.False(t, status.Paused)
}

func TestPauseTask_UnknownReturnsError(t *testing.T) {
	r := New(testConfig(tcpTask("a", 1)))
	require.NoError(t, r.Start())
	defer r.Stop()

	assert.Error(t, r.PauseTask("nope"))
}

func TestResumeTask_UnknownReturnsError(t *testing.T) {
	r := New(testConfig(tcpTask("a", 1)))
	require.NoError(t, r.Start())
	defer r.Stop()

	assert.Error(t, r.ResumeTask("nope"))
}

func TestSpecFromTask_HTTP(t *testing.T) {
	task := config.TaskConfig{
		TaskID:   "web",
		Kind:     "http",
		HTTPPort: 8080,
		HTTPPath: "/health",
	}
	spec, err := specFromTask(task)
	require.NoError(t, err)
	assert.Equal(t, 8080, spec.HTTP.Port)
	assert.Equal(t, "/health", spec.HTTP.Path)
}

func TestSpecFromTask_UnknownKind(t *testing.T) {
	_, err := specFromTask(config.TaskConfig{TaskID: "x", Kind: "bogus"})
	assert.Error(t, err)
}

func TestNewNestedAgent_DefaultIsNil(t *testing.T) {
	agent, err := newNestedAgent(config.TaskConfig{TaskID: "x"})
	require.NoError(t, err)
	assert.Nil(t, agent, "Supervisor.withAgent fills in the HTTP default lazily")
}

func TestNewNestedAgent_Docker(t *testing.T) {
	agent, err := newNestedAgent(config.TaskConfig{
		TaskID:        "x",
		NestedBackend: "docker",
		DockerImage:   "alpine",
	})
	require.NoError(t, err)
	assert.NotNil(t, agent)
}

func TestNewNestedAgent_UnknownBackend(t *testing.T) {
	_, err := newNestedAgent(config.TaskConfig{TaskID: "x", NestedBackend: "bogus"})
	assert.Error(t, err)
}

func TestStart_WiresDockerNestedAgent(t *testing.T) {
	task := config.TaskConfig{
		TaskID:        "nested",
		Kind:          "COMMAND",
		CommandShell:  "true",
		ViaAgent:      true,
		ContainerID:   "task-container",
		NestedBackend: "docker",
		DockerImage:   "alpine",
		Interval:      time.Second,
	}
	r := New(testConfig(task))
	require.NoError(t, r.Start())
	defer r.Stop()

	assert.Len(t, r.supervisors, 1)
}
