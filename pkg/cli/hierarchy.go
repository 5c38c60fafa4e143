package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/collab/pkg/collab"
	"github.com/platinummonkey/collab/pkg/dependencies"
	"github.com/platinummonkey/collab/pkg/storage"
)

// HierarchyOptions holds flags for the hierarchy command
type HierarchyOptions struct {
	*RootOptions
	IDs       []string
	Direction string
	MaxNodes  int
	Graph     bool
}

// NewHierarchyCommand creates the hierarchy command
func NewHierarchyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HierarchyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "hierarchy",
		Short: "Resolve the full dependency hierarchy of a set of entities",
		Long: `Resolve the full dependency hierarchy of a set of entities against the
configured storage. Seeds are printed first, then every reachable entity
in breadth-first order.

Example:
  collab hierarchy --ids P2 --fixtures fixtures.yaml
  collab hierarchy --ids A,B --direction both --graph --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHierarchy(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.IDs, "ids", nil, "seed entity ids (comma separated or repeated)")
	cmd.Flags().StringVar(&opts.Direction, "direction", "", "dependencies, dependents or both (overrides COLLAB_HIERARCHY_DIRECTION)")
	cmd.Flags().IntVar(&opts.MaxNodes, "max-nodes", -1, "cap on reached entities, 0 for unlimited (overrides COLLAB_HIERARCHY_MAX_NODES)")
	cmd.Flags().BoolVar(&opts.Graph, "graph", false, "print the reached sub-graph instead of the id list")

	return cmd
}

func runHierarchy(cmd *cobra.Command, opts *HierarchyOptions) error {
	seeds := collab.ParseEntityIDs(opts.IDs...)
	if len(seeds) == 0 {
		return NewExitError(ExitCommandError, "--ids is required")
	}

	s, err := opts.openSession(cmd, true)
	if err != nil {
		return err
	}
	defer s.close()

	direction := s.cfg.Hierarchy.Direction
	if opts.Direction != "" {
		direction = opts.Direction
	}
	dir, err := storage.ParseDirection(direction)
	if err != nil {
		return err
	}
	maxNodes := s.cfg.Hierarchy.MaxNodes
	if opts.MaxNodes >= 0 {
		maxNodes = opts.MaxNodes
	}

	resolver := dependencies.NewResolver(s.repo, nil,
		dependencies.WithDirection(dir),
		dependencies.WithMaxNodes(maxNodes),
	)
	out := opts.formatter(cmd)
	out.VerboseLog("resolving %d seeds following %s", len(seeds), dir)

	if opts.Graph {
		g, err := resolver.Graph(cmd.Context(), seeds)
		if err != nil {
			return err
		}
		view := g.View()
		return out.Success(view, formatGraph(view))
	}

	ids, err := resolver.FullHierarchy(cmd.Context(), seeds)
	if err != nil {
		return err
	}
	entries := make([]dependencies.HierarchyEntry, len(ids))
	lines := make([]string, len(ids))
	for i, id := range ids {
		entries[i] = dependencies.HierarchyEntry{ID: id}
		lines[i] = string(id)
	}
	return out.Success(entries, strings.Join(lines, "\n"))
}

func formatGraph(view dependencies.GraphView) string {
	var b strings.Builder
	for _, e := range view.Edges {
		b.WriteString(string(e.Dependent))
		b.WriteString(" -> ")
		b.WriteString(string(e.Dependency))
		b.WriteString("\n")
	}
	if view.HasCircularDependency {
		path := make([]string, len(view.CircularPath))
		for i, id := range view.CircularPath {
			path[i] = string(id)
		}
		b.WriteString("cycle: ")
		b.WriteString(strings.Join(path, " -> "))
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}
