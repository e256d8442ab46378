package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var taintCmd = &cobra.Command{
	Use:   "taint <address>",
	Short: "Mark a resource for recreation",
	Long: `Marks a resource as tainted, forcing it to be destroyed and recreated
on the next apply.`,
	Args: cobra.ExactArgs(1),
	RunE: runTaint,
}

var untaintCmd = &cobra.Command{
	Use:   "untaint <address>",
	Short: "Remove taint from a resource",
	Long:  `Removes the taint mark from a resource, preventing forced recreation.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runUntaint,
}

func runTaint(cmd *cobra.Command, args []string) error {
	return setTaint(cmd, args[0], true)
}

func runUntaint(cmd *cobra.Command, args []string) error {
	return setTaint(cmd, args[0], false)
}

func setTaint(cmd *cobra.Command, target string, tainted bool) error {
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

	for _, res := range s.Resources {
		if res.Addr() != target {
			continue
		}

		res.Tainted = tainted
		s.Serial++
		if err := proj.backend.Write(ctx, s); err != nil {
			return fmt.Errorf("failed to write state: %w", err)
		}

		if tainted {
			fmt.Printf("Resource %s has been tainted. It will be recreated on next apply.\n", target)
		} else {
			fmt.Printf("Resource %s has been untainted.\n", target)
		}
		return nil
	}

	return fmt.Errorf("resource %s not found in state", target)
}
