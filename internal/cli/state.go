package cli

import (
	"fmt"

	"github.com/terrapin-dev/terrapin/internal/ir"
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Manage Terrapin state",
	Long:  `Commands for inspecting and modifying Terrapin state.`,
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List resources in state",
	RunE:  runStateList,
}

var stateShowCmd = &cobra.Command{
	Use:   "show <address>",
	Short: "Show attributes of a single resource",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateShow,
}

var stateRmCmd = &cobra.Command{
	Use:   "rm <address>",
	Short: "Remove a resource from state (does not destroy)",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateRm,
}

func init() {
	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateRmCmd)
}

func runStateList(cmd *cobra.Command, args []string) error {
	proj, err := loadProject(nil)
	if err != nil {
		return err
	}

	s, err := proj.backend.Read(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	if len(s.Resources) == 0 {
		fmt.Println("No resources in state.")
		return nil
	}

	fmt.Printf("State version: %d, serial: %d, lineage: %s\n\n", s.Version, s.Serial, s.Lineage)
	for _, res := range s.Resources {
		fmt.Printf("  %s (provider: %s)\n", res.Addr(), res.Provider)
	}
	fmt.Printf("\nTotal: %d resource(s)\n", len(s.Resources))

	return nil
}

func runStateShow(cmd *cobra.Command, args []string) error {
	proj, err := loadProject(nil)
	if err != nil {
		return err
	}

	s, err := proj.backend.Read(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	target := args[0]
	for _, res := range s.Resources {
		if res.Addr() != target {
			continue
		}

		fmt.Printf("# %s\n", res.Addr())
		fmt.Printf("  provider = %s\n", res.Provider)
		fmt.Printf("  type     = %s\n", res.Type)
		fmt.Printf("  name     = %s\n", res.Name)
		if res.Tainted {
			fmt.Println("  tainted  = true")
		}

		if len(res.Inputs) > 0 {
			fmt.Println("\n  Inputs:")
			for k, v := range res.Inputs {
				fmt.Printf("    %s = %v\n", k, v)
			}
		}

		if len(res.Outputs) > 0 {
			fmt.Println("\n  Outputs:")
			for k, v := range res.Outputs {
				fmt.Printf("    %s = %v\n", k, v)
			}
		}

		if len(res.Dependencies) > 0 {
			fmt.Println("\n  Dependencies:")
			for _, dep := range res.Dependencies {
				fmt.Printf("    %s\n", dep)
			}
		}

		if res.InputsHash != "" {
			fmt.Printf("\n  inputs_hash = %s\n", res.InputsHash)
		}

		return nil
	}

	return fmt.Errorf("resource %s not found in state", target)
}

func runStateRm(cmd *cobra.Command, args []string) error {
	proj, err := loadProject(nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if err := proj.backend.Lock(); err != nil {
		return err
	}
	defer proj.backend.Unlock()

	s, err := proj.backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	target := args[0]
	newResources := make([]*ir.ResourceState, 0, len(s.Resources))
	found := false

	for _, res := range s.Resources {
		if res.Addr() == target {
			found = true
			continue
		}
		newResources = append(newResources, res)
	}

	if !found {
		return fmt.Errorf("resource %s not found in state", target)
	}

	s.Resources = newResources
	s.Serial++
	if err := proj.backend.Write(ctx, s); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	fmt.Printf("Removed %s from state (resource was NOT destroyed)\n", target)
	return nil
}
