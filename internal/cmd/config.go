package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/agentlab/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify agentlab configuration",
	Long: `View or modify agentlab configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  agentlab config set llm.model llama3:8b
  agentlab config set run.max_rounds 5
  agentlab config set executor.backend batch
  agentlab config set batch.scheduler slurm

Run 'agentlab config show' to list every key.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/agentlab/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

// secretKeys are masked when the configuration is displayed.
var secretKeys = []string{"storage.object_store.secret_key", "storage.object_store.access_key"}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, "Current configuration:")
	_, _ = fmt.Fprintln(out)

	if viper.ConfigFileUsed() != "" {
		_, _ = fmt.Fprintf(out, "Config file: %s\n", viper.ConfigFileUsed())
	} else {
		_, _ = fmt.Fprintf(out, "Config file: (none - using defaults)\n")
	}
	_, _ = fmt.Fprintln(out)

	data, err := renderSettings(viper.AllSettings())
	if err != nil {
		return err
	}
	_, _ = fmt.Fprint(out, data)

	if _, err := config.Load(); err != nil {
		_, _ = fmt.Fprintf(out, "\nWarning: %v\n", err)
	}
	return nil
}

// renderSettings renders settings as YAML with secrets masked.
func renderSettings(settings map[string]any) (string, error) {
	for _, key := range secretKeys {
		maskSetting(settings, strings.Split(key, "."))
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("render configuration: %w", err)
	}
	return string(data), nil
}

func maskSetting(m map[string]any, path []string) {
	if len(path) == 1 {
		if v, ok := m[path[0]].(string); ok && v != "" {
			m[path[0]] = "********"
		}
		return
	}
	if next, ok := m[path[0]].(map[string]any); ok {
		maskSetting(next, path[1:])
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := strings.ToLower(args[0])
	value := args[1]

	if !slices.Contains(viper.AllKeys(), key) {
		return fmt.Errorf("unknown configuration key: %s\nRun 'agentlab config show' to see valid keys", key)
	}
	typedValue, err := parseSetting(viper.Get(key), value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	previous := viper.Get(key)
	viper.Set(key, typedValue)
	if _, err := config.Load(); err != nil {
		viper.Set(key, previous)
		return err
	}

	if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	configFile := config.ConfigFile()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", key, typedValue)
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Config saved to %s\n", configFile)
	return nil
}

// parseSetting converts value to the type of the key's current value.
func parseSetting(current any, value string) (any, error) {
	switch current.(type) {
	case bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("expected true or false")
		}
		return b, nil
	case int, int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("expected integer")
		}
		if n < 0 {
			return nil, fmt.Errorf("must be non-negative")
		}
		return n, nil
	case float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("expected number")
		}
		return f, nil
	case []string, []any:
		if strings.TrimSpace(value) == "" {
			return []string{}, nil
		}
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	default:
		return value, nil
	}
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configFile := config.ConfigFile()

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'agentlab config set' to modify values", configFile)
	}
	if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Defaults merged with any AGENTLAB_* overrides in effect.
	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return fmt.Errorf("render default configuration: %w", err)
	}
	content := "# agentlab configuration\n# Environment variables AGENTLAB_* override these values.\n\n" + string(data)
	if err := os.WriteFile(configFile, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Edit this file to customize agentlab's behavior.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		_, _ = fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		_, _ = fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	_, _ = fmt.Fprintln(out, "\nSearch paths:")
	_, _ = fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	_, _ = fmt.Fprintf(out, "  2. ./config.yaml (current directory)\n")
	_, _ = fmt.Fprintln(out, "\nEnvironment variables: AGENTLAB_* (e.g., AGENTLAB_LLM_MODEL)")
	_, _ = fmt.Fprintln(out, "A .env file in the current directory is loaded first.")
	return nil
}
