package cli

import (
	"fmt"

	"github.com/terrapin-dev/terrapin/internal/provider"
	"github.com/spf13/cobra"
)

var destroyAutoApprove bool

var destroyCmd = &cobra.Command{
	Use:   "destroy [path]",
	Short: "Destroy all managed infrastructure",
	Long: `Destroys all resources managed by Terrapin.

This command is the inverse of 'terrapin apply'. It deletes every resource
tracked in the state file, in reverse dependency order.`,
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVar(&destroyAutoApprove, "auto-approve", false, "Skip interactive approval before destroying")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	proj, err := loadProject(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	registry := provider.NewRegistry()
	eng := proj.newEngine(registry)

	if err := proj.backend.Lock(); err != nil {
		return err
	}
	defer proj.backend.Unlock()

	fmt.Print("Reading state... ")
	currentState, err := proj.backend.Read(ctx)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("failed to read state: %w", err)
	}
	fmt.Println("OK")

	if len(currentState.Resources) == 0 {
		fmt.Println("No resources to destroy.")
		return nil
	}

	if err := loadStateProviders(registry, currentState); err != nil {
		return err
	}

	plan, err := eng.CreateDestroyPlan(ctx, currentState)
	if err != nil {
		return fmt.Errorf("destroy plan failed: %w", err)
	}

	fmt.Println("\nTerrapin will destroy the following resources:")
	renderPlanChanges(plan)
	renderPlanSummary(plan)

	if !destroyAutoApprove {
		if !confirm("Do you really want to destroy all resources?") {
			fmt.Println("Destroy cancelled.")
			return nil
		}
	}

	fmt.Printf("\nDestroying %d resource(s)...\n", len(plan.Changes))

	newState, applyErr := eng.ApplyPlanWithCallback(ctx, plan, currentState, applyEventPrinter())
	if newState != nil {
		if err := proj.backend.Write(ctx, newState); err != nil {
			return fmt.Errorf("failed to write state: %w", err)
		}
	}
	if applyErr != nil {
		return fmt.Errorf("destroy failed: %w", applyErr)
	}

	fmt.Printf("\nDestroy complete! %d resource(s) deleted.\n", plan.Summary.Delete)
	return nil
}
