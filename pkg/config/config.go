package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the checker daemon, loaded from
// ./configs/<CHECKER_ENV>.yaml and overridden by CHECKER_* environment
// variables, following
// the same load/override/validate shape as infra-core's original
// environment-keyed configuration loader.
type Config struct {
	Admin AdminConfig  `yaml:"admin" json:"admin"`
	Tasks []TaskConfig `yaml:"tasks" json:"tasks"`
}

// AdminConfig controls the admin HTTP API (SPEC_FULL.md §4.11).
type AdminConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// TaskConfig describes one watched task and the check run against it
// (SPEC_FULL.md §3 "TaskConfig").
type TaskConfig struct {
	TaskID      string `yaml:"task_id" json:"task_id"`
	ProbeName   string `yaml:"probe_name" json:"probe_name"`
	ContainerID string `yaml:"container_id" json:"container_id"`
	AgentURL    string `yaml:"agent_url" json:"agent_url"`
	AgentAuth   string `yaml:"agent_auth" json:"agent_auth"`
	ViaAgent    bool   `yaml:"via_agent" json:"via_agent"`
	IPv6        bool   `yaml:"ipv6" json:"ipv6"`

	// NestedBackend selects how a via_agent task's nested command probe is
	// launched: "" or "http" (default) speaks the agent HTTP API at
	// AgentURL; "docker" launches the nested probe directly against a local
	// Docker daemon instead of a remote agent process.
	NestedBackend string `yaml:"nested_backend" json:"nested_backend"`
	DockerImage   string `yaml:"docker_image" json:"docker_image"`

	Kind     string        `yaml:"kind" json:"kind"` // COMMAND | HTTP | TCP
	Delay    time.Duration `yaml:"delay" json:"delay"`
	Interval time.Duration `yaml:"interval" json:"interval"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`

	CommandShell string            `yaml:"command_shell" json:"command_shell"`
	CommandArgv  []string          `yaml:"command_argv" json:"command_argv"`
	CommandEnv   map[string]string `yaml:"command_env" json:"command_env"`

	HTTPPort   int    `yaml:"http_port" json:"http_port"`
	HTTPPath   string `yaml:"http_path" json:"http_path"`
	HTTPScheme string `yaml:"http_scheme" json:"http_scheme"`

	TCPPort int `yaml:"tcp_port" json:"tcp_port"`
}

var globalConfig *Config

// Load loads configuration from ./configs/<CHECKER_ENV>.yaml (CHECKER_ENV
// defaults to "development"), applies CHECKER_* environment overrides, and
// validates the result. A malformed config is a setup error, returned to
// the caller, never surfaced as a probe outcome.
func Load() (*Config, error) {
	environment := os.Getenv("CHECKER_ENV")
	if environment == "" {
		environment = "development"
	}

	configPath := fmt.Sprintf("./configs/%s.yaml", environment)

	config := &Config{}

	if fileExists(configPath) {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	} else {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	overrideWithEnv(config)

	if err := validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration instance loaded by Load.
func Get() *Config {
	if globalConfig == nil {
		panic("configuration not loaded, call Load() first")
	}
	return globalConfig
}

func overrideWithEnv(config *Config) {
	if val := os.Getenv("CHECKER_ADMIN_HOST"); val != "" {
		config.Admin.Host = val
	}
	if val := os.Getenv("CHECKER_ADMIN_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Admin.Port = port
		}
	}
}

func validate(config *Config) error {
	if config.Admin.Port <= 0 || config.Admin.Port > 65535 {
		return fmt.Errorf("invalid admin.port: %d", config.Admin.Port)
	}
	if len(config.Tasks) == 0 {
		return fmt.Errorf("at least one task must be configured")
	}
	seen := make(map[string]bool, len(config.Tasks))
	for _, task := range config.Tasks {
		if task.TaskID == "" {
			return fmt.Errorf("task entry missing task_id")
		}
		if seen[task.TaskID] {
			return fmt.Errorf("duplicate task_id %q", task.TaskID)
		}
		seen[task.TaskID] = true

		if task.Delay < 0 {
			return fmt.Errorf("task %s: negative delay", task.TaskID)
		}
		if task.Interval < 0 {
			return fmt.Errorf("task %s: negative interval", task.TaskID)
		}
		if task.Timeout < 0 {
			return fmt.Errorf("task %s: negative timeout", task.TaskID)
		}

		switch strings.ToUpper(task.Kind) {
		case "COMMAND":
			if task.CommandShell == "" && len(task.CommandArgv) == 0 {
				return fmt.Errorf("task %s: COMMAND kind needs command_shell or command_argv", task.TaskID)
			}
		case "HTTP":
			if task.HTTPPort <= 0 || task.HTTPPort > 65535 {
				return fmt.Errorf("task %s: invalid http_port %d", task.TaskID, task.HTTPPort)
			}
		case "TCP":
			if task.TCPPort <= 0 || task.TCPPort > 65535 {
				return fmt.Errorf("task %s: invalid tcp_port %d", task.TaskID, task.TCPPort)
			}
		default:
			return fmt.Errorf("task %s: unknown kind %q", task.TaskID, task.Kind)
		}

		if task.ViaAgent && task.ContainerID == "" {
			return fmt.Errorf("task %s: via_agent requires container_id", task.TaskID)
		}

		switch strings.ToLower(task.NestedBackend) {
		case "", "http":
		case "docker":
			if !task.ViaAgent {
				return fmt.Errorf("task %s: nested_backend docker requires via_agent", task.TaskID)
			}
			if task.DockerImage == "" {
				return fmt.Errorf("task %s: nested_backend docker requires docker_image", task.TaskID)
			}
		default:
			return fmt.Errorf("task %s: unknown nested_backend %q", task.TaskID, task.NestedBackend)
		}
	}
	return nil
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return !info.IsDir()
}
