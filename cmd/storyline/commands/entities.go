package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/storyline/entity"
	"github.com/teranos/storyline/errors"
	"github.com/teranos/storyline/project"
)

var (
	entitiesRoot string
	entitiesJSON bool
	entitiesKind string
)

// EntitiesCmd lists the entities of a project
var EntitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "List the entities of a project",
	Long: `Load the project containing --root (default: the working directory) and
list its entities in kind order.

Examples:
  storyline entities                    # table of every entity
  storyline entities --kind character   # only characters
  storyline entities --json             # machine-readable dump`,
	RunE: runEntities,
}

func init() {
	EntitiesCmd.Flags().StringVar(&entitiesRoot, "root", "", "Any path inside the project (default: working directory)")
	EntitiesCmd.Flags().BoolVarP(&entitiesJSON, "json", "j", false, "Output entities as JSON")
	EntitiesCmd.Flags().StringVarP(&entitiesKind, "kind", "k", "", "Only list entities of this kind")
}

func runEntities(cmd *cobra.Command, args []string) error {
	var kind entity.Kind
	if entitiesKind != "" {
		k, ok := entity.ParseKind(entitiesKind)
		if !ok {
			return errors.WithHintf(
				errors.NewInvalidRequestError("unknown entity kind %q", entitiesKind),
				"valid kinds: %s", kindList())
		}
		kind = k
	}

	svc, err := newServices()
	if err != nil {
		return err
	}
	root, err := svc.resolveRoot(entitiesRoot)
	if err != nil {
		return err
	}
	pc, err := svc.contexts.GetContext(cmd.Context(), root)
	if err != nil {
		return errors.Wrapf(err, "failed to load project %s", root)
	}

	infos := selectEntities(pc, kind)
	if entitiesJSON {
		return writeEntitiesJSON(cmd.OutOrStdout(), infos)
	}
	return writeEntitiesTable(pc, infos)
}

// selectEntities returns the display info of pc's entities in load order,
// optionally restricted to kind
func selectEntities(pc *project.ProjectContext, kind entity.Kind) []project.EntityInfo {
	infos := make([]project.EntityInfo, 0, len(pc.Entities))
	for _, e := range pc.Entities {
		if kind != "" && e.Kind != kind {
			continue
		}
		if info, ok := pc.Info(e.ID); ok {
			infos = append(infos, info)
		}
	}
	return infos
}

func writeEntitiesJSON(w io.Writer, infos []project.EntityInfo) error {
	output, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to format entities as JSON")
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}

func writeEntitiesTable(pc *project.ProjectContext, infos []project.EntityInfo) error {
	pterm.Info.Printf("%s: %d entities (%s)\n", pc.Name, len(infos), pc.ProjectRoot)
	if len(infos) == 0 {
		return nil
	}

	data := pterm.TableData{{"ID", "Kind", "Name", "Role", "Status"}}
	for _, info := range infos {
		data = append(data, []string{info.ID, string(info.Kind), info.Name, info.Role, string(info.Status)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func kindList() string {
	names := make([]string, len(entity.Kinds))
	for i, k := range entity.Kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
