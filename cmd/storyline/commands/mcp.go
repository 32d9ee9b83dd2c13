package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/storyline/logger"
	"github.com/teranos/storyline/mcp"
)

// McpCmd serves the Model Context Protocol
var McpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the Model Context Protocol over stdio",
	Long: `Expose a project to MCP clients such as AI assistants.

Resources:
  storyline://project               project summary
  storyline://entities              every entity
  storyline://<kind>[/<id>]         character, setting, foreshadowing, timeline

Tools:
  detect_entities(text)             entity mentions in a passage
  diagnose(path)                    diagnostics for a manuscript file
  resolve_entity(text, line, char)  the entity at a position`,
	RunE: runMcp,
}

var mcpRoot string

func init() {
	McpCmd.Flags().StringVar(&mcpRoot, "root", "", "Any path inside the project to serve (default: working directory)")
}

func runMcp(cmd *cobra.Command, args []string) error {
	svc, err := newServices()
	if err != nil {
		return err
	}

	root, err := svc.resolveRoot(mcpRoot)
	if err != nil {
		return err
	}

	stopWatch := svc.startWatcher(root, nil)
	defer stopWatch()

	generator := svc.newGenerator(true)
	defer generator.Dispose()

	server := mcp.NewServer(mcp.Config{
		Root:        root,
		Detector:    svc.detector,
		Contexts:    svc.contexts,
		Diagnostics: generator,
		Logger:      logger.ComponentLogger("mcp"),
	})
	return server.ServeStdio()
}
