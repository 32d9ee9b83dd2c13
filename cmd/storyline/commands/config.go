package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/storyline/config"
	"github.com/teranos/storyline/errors"
)

// ConfigCmd represents the config command
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialize the global configuration",
	Long: `Display and manage storyline configuration.

Configuration sources (later overrides earlier):
  1. Built-in defaults
  2. System config (/etc/storyline/config.toml)
  3. User config (~/.storyline/config.toml)
  4. --config file
  5. Environment variables (STORYLINE_* prefix, e.g. STORYLINE_LINTER_ENABLED)

Per-project settings live in the project marker (.storyline.toml), not here.

Examples:
  storyline config show                  # Show the effective configuration
  storyline config show --format json    # ... as JSON
  storyline config get linter.command    # One value
  storyline config where                 # Which files were merged
  storyline config init                  # Write defaults to ~/.storyline/config.toml`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}
		return writeConfig(cmd.OutOrStdout(), cfg, configFormat)
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a configuration value using dot notation (e.g., linter.command, lsp.ws_addr)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := config.GetViper()
		if err != nil {
			return err
		}
		key := args[0]
		if !v.IsSet(key) {
			return errors.NewNotFoundError("configuration key %q not found", key)
		}
		fmt.Fprintln(cmd.OutOrStdout(), v.Get(key))
		return nil
	},
}

var configWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Configuration cascade (later overrides earlier):")
		fmt.Fprintln(out, "  [DEFAULT]  built-in defaults")
		for _, src := range config.Sources() {
			state := "missing"
			if src.Exists {
				state = "loaded"
			}
			fmt.Fprintf(out, "  [%-8s] %s (%s)\n", src.Name, src.Path, state)
		}
		fmt.Fprintf(out, "  [ENV]      %s_* environment variables\n", config.EnvPrefix)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to a file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configInitPath
		if path == "" {
			path = config.UserConfigPath()
		}
		if path == "" {
			return errors.WithHint(
				errors.New("no home directory"),
				"pass --path to choose where the config is written")
		}
		if err := config.WriteDefault(path, configInitForce); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
		return nil
	},
}

var (
	configFormat    string
	configInitPath  string
	configInitForce bool
)

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	configInitCmd.Flags().StringVar(&configInitPath, "path", "", "File to write (default: ~/.storyline/config.toml)")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file, keeping it as .back1")

	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configGetCmd)
	ConfigCmd.AddCommand(configWhereCmd)
	ConfigCmd.AddCommand(configInitCmd)
}

func writeConfig(w io.Writer, cfg *config.Config, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to JSON")
		}
		_, err = fmt.Fprintln(w, string(data))
		return err

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		_, err = fmt.Fprintf(w, "# storyline configuration\n%s", data)
		return err

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		_, err = fmt.Fprintf(w, "# storyline configuration\n%s", data)
		return err
	}
	return errors.NewInvalidRequestError("unsupported format: %s (supported: toml, json, yaml)", format)
}
