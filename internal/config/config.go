package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the complete agentlab configuration
type Config struct {
	LLM       LLMConfig       `mapstructure:"llm"`
	Run       RunConfig       `mapstructure:"run"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Resources ResourceConfig  `mapstructure:"resources"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// LLMConfig controls the text-generation gateway
type LLMConfig struct {
	// URL is the generate endpoint of the Ollama-compatible service
	URL string `mapstructure:"url"`
	// Model is the model name sent with every request (default: gpt-oss:20b)
	Model string `mapstructure:"model"`
	// TimeoutSeconds bounds a single generate call
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	// Temperature holds the sampling temperature used by each kind of role
	Temperature TemperatureConfig `mapstructure:"temperature"`
}

// TemperatureConfig holds per-stage sampling temperatures
type TemperatureConfig struct {
	Research  float64 `mapstructure:"research"`
	Coding    float64 `mapstructure:"coding"`
	Critic    float64 `mapstructure:"critic"`
	Execution float64 `mapstructure:"execution"`
	Review    float64 `mapstructure:"review"`
}

// RunConfig controls the iteration loop
type RunConfig struct {
	// MaxRounds is the number of plan → artifact → critique iterations
	MaxRounds int `mapstructure:"max_rounds"`
	// MaxExecutionAttempts bounds executions per iteration
	MaxExecutionAttempts int `mapstructure:"max_execution_attempts"`
	// Mode is one of research_only, code_only, both
	Mode string `mapstructure:"mode"`
	// WorkspaceDir receives generated scripts, job scripts and job logs
	WorkspaceDir string `mapstructure:"workspace_dir"`
	// OutputDir receives one timestamped directory per run
	OutputDir string `mapstructure:"output_dir"`
	// AutoApprove answers both approval gates with yes
	AutoApprove bool `mapstructure:"auto_approve"`
	// Verbose prints role previews to the terminal
	Verbose bool `mapstructure:"verbose"`
}

// ExecutorConfig selects and tunes the execution back end
type ExecutorConfig struct {
	// Backend is "local" or "batch"
	Backend string `mapstructure:"backend"`
	// Interpreter is used when no environment root is given or none of its
	// interpreter paths exist
	Interpreter string `mapstructure:"interpreter"`
	// EnvRoot is an environment prefix such as a conda env
	EnvRoot string `mapstructure:"env_root"`
	// PoolSize bounds concurrently running subprocesses
	PoolSize int `mapstructure:"pool_size"`
}

// BatchConfig holds scheduler options for the batch back end
type BatchConfig struct {
	Scheduler      string   `mapstructure:"scheduler" yaml:"scheduler"`
	JobName        string   `mapstructure:"job_name" yaml:"job_name"`
	Account        string   `mapstructure:"account" yaml:"account"`
	Select         string   `mapstructure:"select" yaml:"select"`
	Filesystems    string   `mapstructure:"filesystems" yaml:"filesystems"`
	Walltime       string   `mapstructure:"walltime" yaml:"walltime"`
	Queue          string   `mapstructure:"queue" yaml:"queue"`
	Modules        []string `mapstructure:"modules" yaml:"modules"`
	PreRunCommands []string `mapstructure:"pre_run_commands" yaml:"pre_run_commands"`
	// SubmitCommand replaces the scheduler's submit invocation as given.
	// {job_script} is replaced by the job script path.
	SubmitCommand []string `mapstructure:"submit_command" yaml:"submit_command"`
	// StatusCommand replaces the scheduler's status invocation. {job_id} is
	// replaced by the job id; without it the id is appended.
	StatusCommand       []string `mapstructure:"status_command" yaml:"status_command"`
	PollIntervalSeconds int      `mapstructure:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	MaxChecks           int      `mapstructure:"max_checks" yaml:"max_checks"`
}

// ResourceConfig controls token budget warnings
type ResourceConfig struct {
	// TokenWarningThreshold prints a warning once cumulative tokens pass it (0 disables)
	TokenWarningThreshold int64 `mapstructure:"token_warning_threshold"`
	// TokenLimit prints a louder warning once passed (0 disables). It never stops the run.
	TokenLimit int64 `mapstructure:"token_limit"`
}

// LoggingConfig controls the per-run debug log
type LoggingConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// StorageConfig controls the job registry and the artifact mirror
type StorageConfig struct {
	// RegistryPath is the sqlite database tracking runs and batch jobs
	RegistryPath string            `mapstructure:"registry_path"`
	ObjectStore  ObjectStoreConfig `mapstructure:"object_store"`
}

// ObjectStoreConfig configures the optional S3-compatible artifact mirror
type ObjectStoreConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
}

// TelemetryConfig controls OpenTelemetry export
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name"`
}

// Timeout returns the per-request gateway timeout
func (c *LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PollInterval returns the pause between status checks, never less than a second
func (c *BatchConfig) PollInterval() time.Duration {
	if c.PollIntervalSeconds < 1 {
		return time.Second
	}
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			URL:            "http://localhost:11434/api/generate",
			Model:          "gpt-oss:20b",
			TimeoutSeconds: 120,
			Temperature: TemperatureConfig{
				Research:  0.3,
				Coding:    0.2,
				Critic:    0.4,
				Execution: 0.1,
				Review:    0.1,
			},
		},
		Run: RunConfig{
			MaxRounds:            2,
			MaxExecutionAttempts: 3,
			Mode:                 "both",
			WorkspaceDir:         "workspace_runs",
			OutputDir:            "output_agent",
			AutoApprove:          false,
			Verbose:              true,
		},
		Executor: ExecutorConfig{
			Backend:     "local",
			Interpreter: "python",
			PoolSize:    8,
		},
		Batch: BatchConfig{
			Scheduler:           "pbs",
			JobName:             "agentic_lab_job",
			Account:             "GeomicVar",
			Select:              "1:system=sophia",
			Filesystems:         "home:grand",
			Walltime:            "01:00:00",
			Queue:               "by-gpu",
			Modules:             []string{},
			PreRunCommands:      []string{},
			SubmitCommand:       []string{},
			StatusCommand:       []string{},
			PollIntervalSeconds: 10,
			MaxChecks:           60,
		},
		Resources: ResourceConfig{},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Storage: StorageConfig{
			RegistryPath: filepath.Join(ConfigDir(), "agentlab.db"),
			ObjectStore: ObjectStoreConfig{
				Bucket: "agentlab-artifacts",
				Region: "us-east-1",
			},
		},
		Telemetry: TelemetryConfig{
			Insecure:    true,
			ServiceName: "agentlab",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	d := Default()

	// LLM defaults
	viper.SetDefault("llm.url", d.LLM.URL)
	viper.SetDefault("llm.model", d.LLM.Model)
	viper.SetDefault("llm.timeout_seconds", d.LLM.TimeoutSeconds)
	viper.SetDefault("llm.temperature.research", d.LLM.Temperature.Research)
	viper.SetDefault("llm.temperature.coding", d.LLM.Temperature.Coding)
	viper.SetDefault("llm.temperature.critic", d.LLM.Temperature.Critic)
	viper.SetDefault("llm.temperature.execution", d.LLM.Temperature.Execution)
	viper.SetDefault("llm.temperature.review", d.LLM.Temperature.Review)

	// Run defaults
	viper.SetDefault("run.max_rounds", d.Run.MaxRounds)
	viper.SetDefault("run.max_execution_attempts", d.Run.MaxExecutionAttempts)
	viper.SetDefault("run.mode", d.Run.Mode)
	viper.SetDefault("run.workspace_dir", d.Run.WorkspaceDir)
	viper.SetDefault("run.output_dir", d.Run.OutputDir)
	viper.SetDefault("run.auto_approve", d.Run.AutoApprove)
	viper.SetDefault("run.verbose", d.Run.Verbose)

	// Executor defaults
	viper.SetDefault("executor.backend", d.Executor.Backend)
	viper.SetDefault("executor.interpreter", d.Executor.Interpreter)
	viper.SetDefault("executor.env_root", d.Executor.EnvRoot)
	viper.SetDefault("executor.pool_size", d.Executor.PoolSize)

	// Batch defaults
	viper.SetDefault("batch.scheduler", d.Batch.Scheduler)
	viper.SetDefault("batch.job_name", d.Batch.JobName)
	viper.SetDefault("batch.account", d.Batch.Account)
	viper.SetDefault("batch.select", d.Batch.Select)
	viper.SetDefault("batch.filesystems", d.Batch.Filesystems)
	viper.SetDefault("batch.walltime", d.Batch.Walltime)
	viper.SetDefault("batch.queue", d.Batch.Queue)
	viper.SetDefault("batch.modules", d.Batch.Modules)
	viper.SetDefault("batch.pre_run_commands", d.Batch.PreRunCommands)
	viper.SetDefault("batch.submit_command", d.Batch.SubmitCommand)
	viper.SetDefault("batch.status_command", d.Batch.StatusCommand)
	viper.SetDefault("batch.poll_interval_seconds", d.Batch.PollIntervalSeconds)
	viper.SetDefault("batch.max_checks", d.Batch.MaxChecks)

	// Resource defaults
	viper.SetDefault("resources.token_warning_threshold", d.Resources.TokenWarningThreshold)
	viper.SetDefault("resources.token_limit", d.Resources.TokenLimit)

	// Logging defaults
	viper.SetDefault("logging.enabled", d.Logging.Enabled)
	viper.SetDefault("logging.level", d.Logging.Level)
	viper.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	viper.SetDefault("logging.compress", d.Logging.Compress)

	// Storage defaults
	viper.SetDefault("storage.registry_path", d.Storage.RegistryPath)
	viper.SetDefault("storage.object_store.enabled", d.Storage.ObjectStore.Enabled)
	viper.SetDefault("storage.object_store.endpoint", d.Storage.ObjectStore.Endpoint)
	viper.SetDefault("storage.object_store.bucket", d.Storage.ObjectStore.Bucket)
	viper.SetDefault("storage.object_store.access_key", d.Storage.ObjectStore.AccessKey)
	viper.SetDefault("storage.object_store.secret_key", d.Storage.ObjectStore.SecretKey)
	viper.SetDefault("storage.object_store.use_ssl", d.Storage.ObjectStore.UseSSL)
	viper.SetDefault("storage.object_store.region", d.Storage.ObjectStore.Region)
	viper.SetDefault("storage.object_store.prefix", d.Storage.ObjectStore.Prefix)

	// Telemetry defaults
	viper.SetDefault("telemetry.enabled", d.Telemetry.Enabled)
	viper.SetDefault("telemetry.endpoint", d.Telemetry.Endpoint)
	viper.SetDefault("telemetry.insecure", d.Telemetry.Insecure)
	viper.SetDefault("telemetry.service_name", d.Telemetry.ServiceName)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults if it
// cannot be loaded
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "agentlab")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentlab"
	}
	return filepath.Join(home, ".config", "agentlab")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidModes returns the list of valid run modes
func ValidModes() []string {
	return []string{"research_only", "code_only", "both"}
}

// ValidBackends returns the list of valid execution back ends
func ValidBackends() []string {
	return []string{"local", "batch"}
}

// ValidSchedulers returns the schedulers with built-in submit and status commands
func ValidSchedulers() []string {
	return []string{"pbs", "slurm"}
}

// LoadBatchOptions reads a YAML file of batch options and merges it over
// base. Keys present with non-empty values in the file win.
func LoadBatchOptions(path string, base BatchConfig) (BatchConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read batch options: %w", err)
	}
	var override BatchConfig
	if err := yaml.Unmarshal(data, &override); err != nil {
		return base, fmt.Errorf("parse batch options %s: %w", path, err)
	}
	return MergeBatch(base, override), nil
}

// MergeBatch overlays the non-empty fields of override onto base.
func MergeBatch(base, override BatchConfig) BatchConfig {
	merged := base
	setString := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	setString(&merged.Scheduler, override.Scheduler)
	setString(&merged.JobName, override.JobName)
	setString(&merged.Account, override.Account)
	setString(&merged.Select, override.Select)
	setString(&merged.Filesystems, override.Filesystems)
	setString(&merged.Walltime, override.Walltime)
	setString(&merged.Queue, override.Queue)
	if len(override.Modules) > 0 {
		merged.Modules = override.Modules
	}
	if len(override.PreRunCommands) > 0 {
		merged.PreRunCommands = override.PreRunCommands
	}
	if len(override.SubmitCommand) > 0 {
		merged.SubmitCommand = override.SubmitCommand
	}
	if len(override.StatusCommand) > 0 {
		merged.StatusCommand = override.StatusCommand
	}
	if override.PollIntervalSeconds > 0 {
		merged.PollIntervalSeconds = override.PollIntervalSeconds
	}
	if override.MaxChecks > 0 {
		merged.MaxChecks = override.MaxChecks
	}
	return merged
}
