package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "run.max_rounds")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateLLM()...)
	errors = append(errors, c.validateRun()...)
	errors = append(errors, c.validateExecutor()...)
	errors = append(errors, c.validateBatch()...)
	errors = append(errors, c.validateResources()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateStorage()...)

	return errors
}

func (c *Config) validateLLM() []ValidationError {
	var errors []ValidationError

	if u, err := url.Parse(c.LLM.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.url",
			Value:   c.LLM.URL,
			Message: "must be an absolute http(s) URL",
		})
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.model",
			Value:   c.LLM.Model,
			Message: "must not be empty",
		})
	}
	if c.LLM.TimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.timeout_seconds",
			Value:   c.LLM.TimeoutSeconds,
			Message: "must be positive",
		})
	}

	temps := map[string]float64{
		"research":  c.LLM.Temperature.Research,
		"coding":    c.LLM.Temperature.Coding,
		"critic":    c.LLM.Temperature.Critic,
		"execution": c.LLM.Temperature.Execution,
		"review":    c.LLM.Temperature.Review,
	}
	keys := make([]string, 0, len(temps))
	for k := range temps {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if v := temps[k]; v < 0 || v > 2 {
			errors = append(errors, ValidationError{
				Field:   "llm.temperature." + k,
				Value:   v,
				Message: "must be between 0 and 2",
			})
		}
	}

	return errors
}

func (c *Config) validateRun() []ValidationError {
	var errors []ValidationError

	if c.Run.MaxRounds < 1 {
		errors = append(errors, ValidationError{
			Field:   "run.max_rounds",
			Value:   c.Run.MaxRounds,
			Message: "must be at least 1",
		})
	}
	if c.Run.MaxExecutionAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "run.max_execution_attempts",
			Value:   c.Run.MaxExecutionAttempts,
			Message: "must be at least 1",
		})
	}
	if !slices.Contains(ValidModes(), c.Run.Mode) {
		errors = append(errors, ValidationError{
			Field:   "run.mode",
			Value:   c.Run.Mode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidModes(), ", ")),
		})
	}
	for field, dir := range map[string]string{"run.workspace_dir": c.Run.WorkspaceDir, "run.output_dir": c.Run.OutputDir} {
		if strings.TrimSpace(dir) == "" || strings.ContainsRune(dir, '\x00') {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   dir,
				Message: "must be a non-empty path",
			})
		}
	}
	slices.SortFunc(errors, func(a, b ValidationError) int { return strings.Compare(a.Field, b.Field) })

	return errors
}

func (c *Config) validateExecutor() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidBackends(), c.Executor.Backend) {
		errors = append(errors, ValidationError{
			Field:   "executor.backend",
			Value:   c.Executor.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidBackends(), ", ")),
		})
	}
	if strings.TrimSpace(c.Executor.Interpreter) == "" {
		errors = append(errors, ValidationError{
			Field:   "executor.interpreter",
			Value:   c.Executor.Interpreter,
			Message: "must not be empty",
		})
	}

	const maxPool = 64
	if c.Executor.PoolSize < 1 || c.Executor.PoolSize > maxPool {
		errors = append(errors, ValidationError{
			Field:   "executor.pool_size",
			Value:   c.Executor.PoolSize,
			Message: fmt.Sprintf("must be between 1 and %d", maxPool),
		})
	}

	return errors
}

func (c *Config) validateBatch() []ValidationError {
	var errors []ValidationError

	// A custom submit command makes any scheduler name acceptable.
	if len(c.Batch.SubmitCommand) == 0 && !slices.Contains(ValidSchedulers(), strings.ToLower(c.Batch.Scheduler)) {
		errors = append(errors, ValidationError{
			Field:   "batch.scheduler",
			Value:   c.Batch.Scheduler,
			Message: fmt.Sprintf("must be one of: %s (or set batch.submit_command)", strings.Join(ValidSchedulers(), ", ")),
		})
	}
	if strings.TrimSpace(c.Batch.JobName) == "" {
		errors = append(errors, ValidationError{
			Field:   "batch.job_name",
			Value:   c.Batch.JobName,
			Message: "must not be empty",
		})
	}
	if c.Batch.PollIntervalSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "batch.poll_interval_seconds",
			Value:   c.Batch.PollIntervalSeconds,
			Message: "must be at least 1",
		})
	}
	if c.Batch.MaxChecks < 1 {
		errors = append(errors, ValidationError{
			Field:   "batch.max_checks",
			Value:   c.Batch.MaxChecks,
			Message: "must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateResources() []ValidationError {
	var errors []ValidationError

	if c.Resources.TokenWarningThreshold < 0 {
		errors = append(errors, ValidationError{
			Field:   "resources.token_warning_threshold",
			Value:   c.Resources.TokenWarningThreshold,
			Message: "must be non-negative (0 disables warning)",
		})
	}
	if c.Resources.TokenLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "resources.token_limit",
			Value:   c.Resources.TokenLimit,
			Message: "must be non-negative (0 disables limit)",
		})
	}
	if c.Resources.TokenLimit > 0 && c.Resources.TokenWarningThreshold > c.Resources.TokenLimit {
		errors = append(errors, ValidationError{
			Field:   "resources.token_warning_threshold",
			Value:   c.Resources.TokenWarningThreshold,
			Message: fmt.Sprintf("should be less than token_limit (%d)", c.Resources.TokenLimit),
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	const maxLogSizeMB = 1000
	if c.Logging.MaxSizeMB <= 0 || c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("must be between 1 and %d", maxLogSizeMB),
		})
	}
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateStorage() []ValidationError {
	var errors []ValidationError

	store := c.Storage.ObjectStore
	if !store.Enabled {
		return nil
	}
	if strings.TrimSpace(store.Endpoint) == "" {
		errors = append(errors, ValidationError{
			Field:   "storage.object_store.endpoint",
			Value:   store.Endpoint,
			Message: "is required when the object store is enabled",
		})
	}
	if strings.TrimSpace(store.Bucket) == "" {
		errors = append(errors, ValidationError{
			Field:   "storage.object_store.bucket",
			Value:   store.Bucket,
			Message: "is required when the object store is enabled",
		})
	}

	return errors
}
