package cli

import (
	"fmt"

	"github.com/terrapin-dev/terrapin/internal/engine"
	"github.com/terrapin-dev/terrapin/internal/provider"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate configuration files",
	Long: `Validates the syntax of all PKL configuration files and checks every
resource against its provider schema.`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	proj, err := loadProject(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	fmt.Printf("Checking %s... ", proj.entryPoint)
	cfg, err := proj.evaluator.LoadConfig(ctx, proj.entryPoint, nil)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("validation failed: %w", err)
	}
	fmt.Println("OK")

	registry := provider.NewRegistry()
	if err := loadRequiredProviders(registry, cfg); err != nil {
		return err
	}

	schemas := registry.Schemas()
	resources := engine.ExpandForEach(cfg.Resources)
	for _, res := range resources {
		if err := schemas.Validate(res.Addr(), res.Type, res.Properties); err != nil {
			return err
		}
	}
	fmt.Printf("Checked %d resource(s) against provider schemas.\n", len(resources))

	fmt.Println("\nConfiguration is valid!")
	return nil
}
