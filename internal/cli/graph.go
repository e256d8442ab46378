package cli

import (
	"fmt"

	"github.com/terrapin-dev/terrapin/internal/engine"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph [path]",
	Short: "Output the dependency graph in DOT format",
	Long: `Generates a visual representation of the resource dependency graph
in Graphviz DOT format. Pipe the output to 'dot' to generate an image:

  terrapin graph | dot -Tpng > graph.png`,
	RunE: runGraph,
}

func runGraph(cmd *cobra.Command, args []string) error {
	proj, err := loadProject(args)
	if err != nil {
		return err
	}

	cfg, err := proj.evaluator.LoadConfig(cmd.Context(), proj.entryPoint, nil)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	resources := engine.ExpandForEach(cfg.Resources)
	dag, err := engine.BuildDAG(resources)
	if err != nil {
		return fmt.Errorf("failed to build graph: %w", err)
	}

	fmt.Println("digraph terrapin {")
	fmt.Println("  rankdir = \"BT\";")
	fmt.Println("  node [shape = rect];")
	fmt.Println()

	for _, res := range resources {
		fmt.Printf("  %q;\n", res.Addr())
	}
	fmt.Println()

	for _, res := range resources {
		for _, dep := range dag.Dependencies(res.Addr()) {
			fmt.Printf("  %q -> %q;\n", res.Addr(), dep)
		}
	}

	fmt.Println("}")
	return nil
}
