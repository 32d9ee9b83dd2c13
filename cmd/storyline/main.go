package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/storyline/cmd/storyline/commands"
	"github.com/teranos/storyline/config"
	"github.com/teranos/storyline/errors"
	"github.com/teranos/storyline/logger"
)

var rootCmd = &cobra.Command{
	Use:   "storyline",
	Short: "storyline - entity-aware tooling for long-form fiction",
	Long: `storyline - entity-aware tooling for long-form fiction.

storyline knows the characters, settings, foreshadowing and timeline events
of a manuscript project and finds them in prose: hover, completion and
consistency diagnostics in the editor, the same data for AI assistants over
MCP, and a batch checker for CI.

A project is the nearest directory containing a .storyline.toml marker.

Available commands:
  lsp      - Serve the Language Server Protocol (stdio or WebSocket)
  mcp      - Serve the Model Context Protocol over stdio
  check    - Print diagnostics for manuscript files
  entities - List the entities of a project
  root     - Show the project root of a path
  config   - Show or initialize the global configuration
  version  - Show version information

Examples:
  storyline check chapters/*.md   # Lint chapters, exit 1 on errors
  storyline entities --json       # Dump the entity index
  storyline lsp                   # Editor integration over stdio`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if path, _ := cmd.Flags().GetString("config"); path != "" {
			config.SetConfigFile(path)
		}
		v, err := config.GetViper()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("json-log") {
			jsonLog, _ := cmd.Flags().GetBool("json-log")
			v.Set("log.json", jsonLog)
		}

		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLog := v.GetBool("log.json")
		if err := logger.Initialize(logger.Options{
			JSON:      jsonLog,
			Verbosity: verbosity,
			Color:     !jsonLog && isTerminal(os.Stderr),
		}); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().String("config", "", "Config file merged above ~/.storyline/config.toml")
	rootCmd.PersistentFlags().Bool("json-log", false, "Write logs as JSON lines to stderr")

	rootCmd.AddCommand(commands.LspCmd)
	rootCmd.AddCommand(commands.McpCmd)
	rootCmd.AddCommand(commands.CheckCmd)
	rootCmd.AddCommand(commands.EntitiesCmd)
	rootCmd.AddCommand(commands.RootCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

// isTerminal reports whether f is a character device
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, commands.ErrCheckFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
			for _, hint := range errors.GetAllHints(err) {
				fmt.Fprintln(os.Stderr, "Hint:", hint)
			}
		}
		os.Exit(1)
	}
}
