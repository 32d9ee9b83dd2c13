package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/storyline/logger"
)

// RootCmd shows the project root of a path
var RootCmd = &cobra.Command{
	Use:   "root [path]",
	Short: "Show the project root of a path",
	Long: `Print the nearest directory at or above path that contains the project
marker. Paths outside any project print the fallback root.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newServices()
		if err != nil {
			return err
		}
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		root, err := svc.resolveRoot(path)
		if err != nil {
			return err
		}
		commandLogger("root").Debugw("Resolved project root",
			logger.FieldPath, path,
			logger.FieldProjectRoot, root)
		fmt.Fprintln(cmd.OutOrStdout(), root)
		return nil
	},
}
