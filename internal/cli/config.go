package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/forayproject/bout/internal/config"
)

// validConfigKeys lists all supported configuration keys.
var validConfigKeys = []string{
	config.KeyOutputDir,
	config.KeyModelEndpoint,
	config.KeyLanguage,
	config.KeyDevice,
	config.KeyLogLevel,
	config.KeyChunkDuration,
	config.KeyOverlap,
	config.KeyMinChunk,
	config.KeyMaxRetries,
	config.KeyJobsDir,
	config.KeyTempDir,
}

// configKeyEnv maps a config key to the environment variable that can
// also supply its value, for "config get"/"config list" fallback.
var configKeyEnv = map[string]string{
	config.KeyOutputDir:     config.EnvOutputDir,
	config.KeyModelEndpoint: config.EnvModelEndpoint,
	config.KeyLanguage:      config.EnvLanguage,
	config.KeyDevice:        config.EnvDevice,
	config.KeyLogLevel:      config.EnvLogLevel,
	config.KeyChunkDuration: config.EnvChunkDuration,
	config.KeyOverlap:       config.EnvOverlap,
	config.KeyMinChunk:      config.EnvMinChunk,
	config.KeyMaxRetries:    config.EnvMaxRetries,
	config.KeyJobsDir:       config.EnvJobsDir,
	config.KeyTempDir:       config.EnvTempDir,
}

// ConfigCmd creates the config command with subcommands.
// The env parameter provides injectable dependencies for testing.
func ConfigCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration settings",
		Long: `Manage persistent configuration settings.

Configuration is stored in ~/.config/bout/config.
Settings can also be overridden via BOUT_* environment variables.`,
		Example: `  bout config set chunk-duration 240
  bout config get device
  bout config list`,
	}

	cmd.AddCommand(configSetCmd(env))
	cmd.AddCommand(configGetCmd(env))
	cmd.AddCommand(configListCmd(env))

	return cmd
}

// configSetCmd creates the "config set" subcommand.
func configSetCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration value.

Supported keys: ` + fmt.Sprint(validConfigKeys),
		Example: `  bout config set output-dir ~/Documents/transcripts
  bout config set device cpu`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			return runConfigSet(env, key, value)
		},
	}
}

// configGetCmd creates the "config get" subcommand.
func configGetCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Long: `Get a configuration value.

Prints the value to stdout, or nothing if not set.`,
		Example: `  bout config get output-dir`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(env, args[0])
		},
	}
}

// configListCmd creates the "config list" subcommand.
func configListCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration values",
		Long: `List all configuration values.

Shows both values from the config file and environment variable overrides.`,
		Example: `  bout config list`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigList(env)
		},
	}
}

// runConfigSet handles the "config set" command.
func runConfigSet(env *Env, key, value string) error {
	if !isValidConfigKey(key) {
		return fmt.Errorf("unknown config key %q (valid keys: %v)", key, validConfigKeys)
	}

	if key == config.KeyOutputDir {
		expanded := config.ExpandPath(value)
		if err := config.EnsureOutputDir(expanded); err != nil {
			return fmt.Errorf("invalid output-dir: %w", err)
		}
		value = expanded
	}

	if err := config.Save(key, value); err != nil {
		return err
	}

	fmt.Fprintf(env.Stderr, "Set %s = %s\n", key, value)
	return nil
}

// runConfigGet handles the "config get" command.
func runConfigGet(env *Env, key string) error {
	if !isValidConfigKey(key) {
		return fmt.Errorf("unknown config key %q (valid keys: %v)", key, validConfigKeys)
	}

	value, err := config.Get(key)
	if err != nil {
		return err
	}

	if value == "" {
		if envName, ok := configKeyEnv[key]; ok {
			value = env.Getenv(envName)
		}
	}

	if value != "" {
		fmt.Println(value)
	}

	return nil
}

// runConfigList handles the "config list" command.
func runConfigList(env *Env) error {
	data, err := config.List()
	if err != nil {
		return err
	}

	for _, key := range validConfigKeys {
		if _, ok := data[key]; ok {
			continue
		}
		envName, ok := configKeyEnv[key]
		if !ok {
			continue
		}
		if envVal := env.Getenv(envName); envVal != "" {
			data[key] = envVal + " (from env)"
		}
	}

	if len(data) == 0 {
		fmt.Println("No configuration set.")
		fmt.Println("\nAvailable settings:")
		for _, key := range validConfigKeys {
			fmt.Printf("  %s\n", key)
		}
		return nil
	}

	for _, key := range validConfigKeys {
		if value, ok := data[key]; ok {
			fmt.Printf("%s=%s\n", key, value)
		}
	}

	return nil
}

// isValidConfigKey checks if a key is a valid configuration key.
func isValidConfigKey(key string) bool {
	return slices.Contains(validConfigKeys, key)
}
