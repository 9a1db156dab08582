package config

import (
	"strings"
	"testing"
)

func hasField(errs []ValidationError, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"bad url", func(c *Config) { c.LLM.URL = "localhost" }, "llm.url"},
		{"empty model", func(c *Config) { c.LLM.Model = " " }, "llm.model"},
		{"zero timeout", func(c *Config) { c.LLM.TimeoutSeconds = 0 }, "llm.timeout_seconds"},
		{"temperature too high", func(c *Config) { c.LLM.Temperature.Critic = 3 }, "llm.temperature.critic"},
		{"zero rounds", func(c *Config) { c.Run.MaxRounds = 0 }, "run.max_rounds"},
		{"zero attempts", func(c *Config) { c.Run.MaxExecutionAttempts = 0 }, "run.max_execution_attempts"},
		{"unknown mode", func(c *Config) { c.Run.Mode = "poetry" }, "run.mode"},
		{"empty workspace", func(c *Config) { c.Run.WorkspaceDir = "" }, "run.workspace_dir"},
		{"unknown backend", func(c *Config) { c.Executor.Backend = "k8s" }, "executor.backend"},
		{"empty interpreter", func(c *Config) { c.Executor.Interpreter = "" }, "executor.interpreter"},
		{"pool too large", func(c *Config) { c.Executor.PoolSize = 1000 }, "executor.pool_size"},
		{"unknown scheduler", func(c *Config) { c.Batch.Scheduler = "lsf" }, "batch.scheduler"},
		{"zero poll interval", func(c *Config) { c.Batch.PollIntervalSeconds = 0 }, "batch.poll_interval_seconds"},
		{"zero max checks", func(c *Config) { c.Batch.MaxChecks = 0 }, "batch.max_checks"},
		{"negative token limit", func(c *Config) { c.Resources.TokenLimit = -1 }, "resources.token_limit"},
		{"warning above limit", func(c *Config) {
			c.Resources.TokenLimit = 100
			c.Resources.TokenWarningThreshold = 200
		}, "resources.token_warning_threshold"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"zero log size", func(c *Config) { c.Logging.MaxSizeMB = 0 }, "logging.max_size_mb"},
		{"object store without endpoint", func(c *Config) { c.Storage.ObjectStore.Enabled = true }, "storage.object_store.endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := cfg.Validate()
			if !hasField(errs, tt.field) {
				t.Errorf("expected error on %s, got %v", tt.field, errs)
			}
		})
	}
}

func TestValidate_CustomSubmitAllowsAnyScheduler(t *testing.T) {
	cfg := Default()
	cfg.Batch.Scheduler = "lsf"
	cfg.Batch.SubmitCommand = []string{"bsub", "<", "{job_script}"}
	if hasField(cfg.Validate(), "batch.scheduler") {
		t.Error("custom submit command should make any scheduler valid")
	}
}

func TestValidationErrors_Error(t *testing.T) {
	if got := ValidationErrors(nil).Error(); got != "" {
		t.Errorf("empty ValidationErrors.Error() = %q", got)
	}

	one := ValidationErrors{{Field: "run.mode", Value: "x", Message: "bad"}}
	if got := one.Error(); got != "run.mode: bad (got: x)" {
		t.Errorf("single error = %q", got)
	}

	two := ValidationErrors{
		{Field: "a", Value: 1, Message: "m1"},
		{Field: "b", Value: 2, Message: "m2"},
	}
	got := two.Error()
	if !strings.HasPrefix(got, "2 validation errors:") || !strings.Contains(got, "2. b: m2 (got: 2)") {
		t.Errorf("multi error = %q", got)
	}
}
