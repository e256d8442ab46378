package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/terrapin-dev/terrapin/internal/engine"
	"github.com/terrapin-dev/terrapin/internal/ir"
	"github.com/terrapin-dev/terrapin/internal/provider"
	"github.com/spf13/cobra"
)

var (
	applyAutoApprove     bool
	applyContinueOnError bool
	applyParallelism     int
	applyTargets         []string
	applyProperties      map[string]string
)

var applyCmd = &cobra.Command{
	Use:   "apply [path | plan-file]",
	Short: "Apply a configuration or a saved plan",
	Long: `Builds or changes infrastructure according to the configuration.

With no argument the configuration in the current directory is planned and
applied. A .json argument is treated as a plan previously saved with
'terrapin plan -out'; it is applied without re-planning, but only if the
state has not changed since the plan was created.`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "Skip interactive approval of plan before applying")
	applyCmd.Flags().BoolVar(&applyContinueOnError, "continue-on-error", false, "Keep applying independent resources after a failure")
	applyCmd.Flags().IntVar(&applyParallelism, "parallelism", 0, "Max concurrent resource operations")
	applyCmd.Flags().StringSliceVar(&applyTargets, "target", nil, "Limit the apply to the given resource addresses")
	applyCmd.Flags().StringToStringVarP(&applyProperties, "prop", "D", nil, "Set external properties (format: key=value)")
}

func runApply(cmd *cobra.Command, args []string) error {
	// A saved plan file is applied against the current directory's project.
	var savedPlanFile string
	if len(args) > 0 && strings.HasSuffix(args[0], ".json") {
		savedPlanFile = args[0]
		args = nil
	}

	proj, err := loadProject(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	registry := provider.NewRegistry()
	eng := proj.newEngine(registry)
	eng.ContinueOnError = applyContinueOnError
	if applyParallelism > 0 {
		eng.Parallelism = applyParallelism
	}

	if err := proj.backend.Lock(); err != nil {
		return err
	}
	defer proj.backend.Unlock()

	currentState, err := proj.backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	var plan *ir.Plan
	if savedPlanFile != "" {
		plan, err = loadSavedPlan(savedPlanFile, currentState)
		if err != nil {
			return err
		}
		if err := loadPlanProviders(registry, plan); err != nil {
			return err
		}
	} else {
		fmt.Print("Loading configuration... ")
		cfg, err := proj.evaluator.LoadConfig(ctx, proj.entryPoint, applyProperties)
		if err != nil {
			fmt.Println("FAILED")
			return fmt.Errorf("failed to load config: %w", err)
		}
		fmt.Println("OK")

		fmt.Print("Calculating plan... ")
		plan, err = eng.CreatePlanWithTargets(ctx, cfg, currentState, applyTargets)
		if err != nil {
			fmt.Println("FAILED")
			return fmt.Errorf("plan generation failed: %w", err)
		}
		fmt.Println("OK")
	}

	if plan.IsEmpty() {
		fmt.Println("No changes. Infrastructure is up-to-date.")
		return nil
	}

	fmt.Println("\nTerrapin will perform the following actions:")
	renderPlanChanges(plan)
	renderPlanSummary(plan)

	if !applyAutoApprove {
		if !confirm("Do you want to perform these actions?") {
			fmt.Println("Apply cancelled.")
			return nil
		}
	}

	fmt.Printf("\nApplying %d changes...\n", len(plan.Changes))

	newState, applyErr := eng.ApplyPlanWithCallback(ctx, plan, currentState, applyEventPrinter())

	// Persist whatever succeeded, even on partial failure.
	if newState != nil {
		if err := proj.backend.Write(ctx, newState); err != nil {
			return fmt.Errorf("failed to write state: %w", err)
		}
	}
	if applyErr != nil {
		return fmt.Errorf("apply failed: %w", applyErr)
	}

	fmt.Println("\nApply complete! Resources: " +
		fmt.Sprintf("%d added, %d changed, %d destroyed.", plan.Summary.Create, plan.Summary.Update+plan.Summary.Replace, plan.Summary.Delete))

	if len(newState.Outputs) > 0 {
		fmt.Println("\nOutputs:")
		for k, v := range newState.Outputs {
			fmt.Printf("  %s = %v\n", k, v)
		}
	}

	return nil
}

// loadSavedPlan reads a plan file and rejects it if the state has moved on
// since the plan was computed.
func loadSavedPlan(path string, currentState *ir.State) (*ir.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	var plan ir.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan file: %w", err)
	}

	if plan.Metadata != nil && plan.Metadata.PriorStateHash != "" {
		if plan.Metadata.PriorStateHash != engine.StateHash(currentState) {
			return nil, fmt.Errorf("saved plan is stale: state has changed since the plan was created, re-run 'terrapin plan'")
		}
	}

	return &plan, nil
}

// loadPlanProviders loads every provider referenced by a saved plan's changes.
func loadPlanProviders(registry *provider.Registry, plan *ir.Plan) error {
	seen := make(map[string]bool)
	for _, change := range plan.Changes {
		res := change.Desired
		if res == nil {
			res = change.Prior
		}
		if res == nil || res.Provider == "" || seen[res.Provider] {
			continue
		}
		seen[res.Provider] = true
		if err := registry.LoadProvider(res.Provider); err != nil {
			return fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
		}
	}
	return nil
}
