package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/terrapin-dev/terrapin/internal/ir"
	"github.com/terrapin-dev/terrapin/internal/provider"
	"github.com/spf13/cobra"
)

var (
	planOutFile string
	planTargets []string
	planDestroy bool
)

var planCmd = &cobra.Command{
	Use:   "plan [path]",
	Short: "Generate an execution plan",
	Long: `Generates an execution plan showing what actions Terrapin will take
to reach the desired state defined in your configuration.

The plan shows:
  • Resources to be created
  • Resources to be updated (with diff)
  • Resources to be deleted`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planOutFile, "out", "o", "", "Write the plan to a file for later apply")
	planCmd.Flags().StringSliceVar(&planTargets, "target", nil, "Limit planning to the given resource addresses")
	planCmd.Flags().BoolVar(&planDestroy, "destroy", false, "Plan the destruction of all managed resources")
}

func runPlan(cmd *cobra.Command, args []string) error {
	proj, err := loadProject(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	registry := provider.NewRegistry()
	eng := proj.newEngine(registry)

	currentState, err := proj.backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	var plan *ir.Plan
	if planDestroy {
		if err := loadStateProviders(registry, currentState); err != nil {
			return err
		}
		fmt.Print("Calculating destroy plan... ")
		plan, err = eng.CreateDestroyPlan(ctx, currentState)
		if err != nil {
			fmt.Println("FAILED")
			return fmt.Errorf("plan generation failed: %w", err)
		}
		fmt.Println("OK")
	} else {
		fmt.Print("Loading configuration... ")
		cfg, err := proj.evaluator.LoadConfig(ctx, proj.entryPoint, nil)
		if err != nil {
			fmt.Println("FAILED")
			return fmt.Errorf("failed to load config: %w", err)
		}
		fmt.Println("OK")

		fmt.Print("Calculating plan... ")
		plan, err = eng.CreatePlanWithTargets(ctx, cfg, currentState, planTargets)
		if err != nil {
			fmt.Println("FAILED")
			return fmt.Errorf("plan generation failed: %w", err)
		}
		fmt.Println("OK")
	}

	renderPlanSummary(plan)

	if plan.IsEmpty() {
		fmt.Println("\nNo changes. Infrastructure is up-to-date.")
	} else {
		fmt.Println("\nTerrapin will perform the following actions:")
		renderPlanChanges(plan)
	}

	if planOutFile != "" {
		data, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to serialize plan: %w", err)
		}
		if err := os.WriteFile(planOutFile, data, 0644); err != nil {
			return fmt.Errorf("failed to write plan file: %w", err)
		}
		fmt.Printf("\nPlan saved to %s. Apply it with: terrapin apply %s\n", planOutFile, planOutFile)
	}

	return nil
}
