package cli

import (
	"fmt"

	"github.com/terrapin-dev/terrapin/internal/provider"
	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh [path]",
	Short: "Update state to match real infrastructure",
	Long: `Reads the current state of all managed resources from their providers
and updates the state file to reflect actual infrastructure.

This detects drift between what Terrapin thinks exists and what actually exists.`,
	RunE: runRefresh,
}

func runRefresh(cmd *cobra.Command, args []string) error {
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
		fmt.Println("No resources to refresh.")
		return nil
	}

	if err := loadStateProviders(registry, currentState); err != nil {
		return err
	}

	before := len(currentState.Resources)
	fmt.Printf("Refreshing %d resource(s)...\n", before)

	newState, err := eng.Refresh(ctx, currentState)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	if err := proj.backend.Write(ctx, newState); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	removed := before - len(newState.Resources)
	fmt.Printf("\nRefresh complete. %d resource(s) in state, %d removed as gone.\n", len(newState.Resources), removed)
	return nil
}
