package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/terrapin-dev/terrapin/internal/engine"
	"github.com/terrapin-dev/terrapin/internal/eval"
	"github.com/terrapin-dev/terrapin/internal/ir"
	"github.com/terrapin-dev/terrapin/internal/logging"
	"github.com/terrapin-dev/terrapin/internal/provider"
	"github.com/terrapin-dev/terrapin/internal/settings"
	"github.com/terrapin-dev/terrapin/internal/state"
)

// stateDir is the project-local directory holding state and lock files.
const stateDir = ".terrapin"

// project bundles everything a command needs to operate on a configuration
// directory: the resolved paths, project settings, evaluator and the state
// backend (local file or remote).
type project struct {
	wd         string
	entryPoint string
	settings   *settings.Settings
	evaluator  *eval.Evaluator
	backend    state.Backend
}

// loadProject resolves the working directory and entry point from the
// command arguments, loads terrapin.yaml and wires up the state backend.
// An argument may be a directory or a .pkl file.
func loadProject(args []string) (*project, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	entryPoint := "main.pkl"

	if len(args) > 0 {
		absPath, err := filepath.Abs(args[0])
		if err != nil {
			return nil, fmt.Errorf("failed to resolve path %s: %w", args[0], err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return nil, fmt.Errorf("failed to stat path %s: %w", args[0], err)
		}
		if info.IsDir() {
			wd = absPath
		} else {
			wd = filepath.Dir(absPath)
			entryPoint = filepath.Base(absPath)
		}
	}

	cfg, err := settings.Load(wd)
	if err != nil {
		return nil, err
	}
	logging.Init(cfg.LogLevel)

	evaluator := eval.NewEvaluator(wd)

	var backend state.Backend
	if cfg.Backend != nil && cfg.Backend.Type != "" && cfg.Backend.Type != "local" {
		backend, err = state.NewBackend(cfg.Backend, evaluator)
		if err != nil {
			return nil, err
		}
	} else {
		backend = state.NewManager(filepath.Join(wd, stateDir, "state.pkl"), evaluator)
	}

	return &project{
		wd:         wd,
		entryPoint: entryPoint,
		settings:   cfg,
		evaluator:  evaluator,
		backend:    backend,
	}, nil
}

// newEngine builds an engine with the project's parallelism setting applied.
func (p *project) newEngine(registry *provider.Registry) *engine.Engine {
	eng := engine.NewEngine(registry)
	eng.Parallelism = p.settings.Parallelism
	return eng
}

// loadRequiredProviders auto-loads all providers referenced by config resources.
func loadRequiredProviders(registry *provider.Registry, cfg *ir.Config) error {
	seen := make(map[string]bool)
	for _, res := range cfg.Resources {
		if res.Provider != "" && !seen[res.Provider] {
			seen[res.Provider] = true
			if err := registry.LoadProvider(res.Provider); err != nil {
				return fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
			}
		}
	}
	return nil
}

// loadStateProviders auto-loads all providers referenced by state resources (needed for DELETE).
func loadStateProviders(registry *provider.Registry, st *ir.State) error {
	seen := make(map[string]bool)
	for _, res := range st.Resources {
		if res.Provider != "" && !seen[res.Provider] {
			seen[res.Provider] = true
			if err := registry.LoadProvider(res.Provider); err != nil {
				return fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
			}
		}
	}
	return nil
}

// confirm prompts the user unless auto-approve is set.
func confirm(prompt string) bool {
	fmt.Printf("\n%s (y/n): ", prompt)
	var response string
	fmt.Scanln(&response)
	return response == "y" || response == "yes"
}

// renderPlanChanges prints the detailed change list for a plan.
func renderPlanChanges(plan *ir.Plan) {
	for _, change := range plan.Changes {
		symbol := "~"
		switch change.Action {
		case "CREATE":
			symbol = "+"
		case "DELETE":
			symbol = "-"
		case "REPLACE":
			symbol = "-/+"
		case "NOOP":
			symbol = " "
		}

		color := "\033[0m"
		if change.Action == "CREATE" {
			color = "\033[32m"
		} else if change.Action == "DELETE" {
			color = "\033[31m"
		} else if change.Action == "UPDATE" || change.Action == "REPLACE" {
			color = "\033[33m"
		}

		var resourceType, resourceName string
		if change.Desired != nil {
			resourceType = change.Desired.Type
			resourceName = change.Desired.Name
		} else if change.Prior != nil {
			resourceType = change.Prior.Type
			resourceName = change.Prior.Name
		}

		fmt.Printf("\n%s  # %s will be %s%s\n", color, change.Address, change.Action, "\033[0m")
		fmt.Printf("%s  %s resource \"%s\" \"%s\" {\n", color, symbol, resourceType, resourceName)

		if len(change.Diff) > 0 {
			renderPropertyDiff(change, color)
		} else if change.Action == "CREATE" && change.Desired != nil {
			for k, v := range change.Desired.Properties {
				fmt.Printf("%s      + %s = %v\n", color, k, formatValue(v))
			}
		} else if change.Action == "DELETE" && change.Prior != nil {
			for k, v := range change.Prior.Properties {
				fmt.Printf("%s      - %s = %v\n", color, k, formatValue(v))
			}
		} else if change.Desired != nil && change.Prior != nil {
			renderInlineDiff(change.Prior.Properties, change.Desired.Properties, color)
		} else {
			fmt.Printf("%s      ...\n", color)
		}
		fmt.Printf("%s    }%s\n", color, "\033[0m")
	}
}

// renderPropertyDiff prints structured property diffs.
func renderPropertyDiff(change *ir.ResourceChange, color string) {
	for key, diff := range change.Diff {
		switch diff.Action {
		case "create":
			fmt.Printf("\033[32m      + %s = %v\033[0m\n", key, formatValue(diff.After))
		case "delete":
			fmt.Printf("\033[31m      - %s = %v\033[0m\n", key, formatValue(diff.Before))
		case "update":
			fmt.Printf("\033[33m      ~ %s = %v -> %v\033[0m\n", key, formatValue(diff.Before), formatValue(diff.After))
		default:
			fmt.Printf("%s        %s = %v\n", color, key, formatValue(diff.After))
		}
	}
}

// renderInlineDiff compares prior and desired property maps and prints a diff.
func renderInlineDiff(prior, desired map[string]any, color string) {
	allKeys := make(map[string]bool)
	for k := range prior {
		allKeys[k] = true
	}
	for k := range desired {
		allKeys[k] = true
	}

	for k := range allKeys {
		priorVal, inPrior := prior[k]
		desiredVal, inDesired := desired[k]

		if !inPrior {
			fmt.Printf("\033[32m      + %s = %v\033[0m\n", k, formatValue(desiredVal))
		} else if !inDesired {
			fmt.Printf("\033[31m      - %s = %v\033[0m\n", k, formatValue(priorVal))
		} else if fmt.Sprintf("%v", priorVal) != fmt.Sprintf("%v", desiredVal) {
			fmt.Printf("\033[33m      ~ %s = %v -> %v\033[0m\n", k, formatValue(priorVal), formatValue(desiredVal))
		} else {
			fmt.Printf("        %s = %v\n", k, formatValue(desiredVal))
		}
	}
}

// formatValue returns a human-readable representation of a value.
func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// renderPlanSummary prints the plan summary counts.
func renderPlanSummary(plan *ir.Plan) {
	fmt.Println("\nPlan Summary:")
	fmt.Printf("  Create:  %d\n", plan.Summary.Create)
	fmt.Printf("  Update:  %d\n", plan.Summary.Update)
	fmt.Printf("  Delete:  %d\n", plan.Summary.Delete)
	fmt.Printf("  Replace: %d\n", plan.Summary.Replace)
	fmt.Printf("  NoOp:    %d\n", plan.Summary.NoOp)
}

// applyEventPrinter returns a callback that reports per-resource progress.
func applyEventPrinter() engine.ApplyCallback {
	return func(event engine.ApplyEvent) {
		switch event.Status {
		case "started":
			fmt.Printf("  %s: %s...\n", event.Address, event.Action)
		case "completed":
			fmt.Printf("  \033[32m%s: %s complete (%s)\033[0m\n", event.Address, event.Action, event.Duration.Round(time.Millisecond))
		case "failed":
			fmt.Printf("  \033[31m%s: %s failed: %v\033[0m\n", event.Address, event.Action, event.Error)
		case "skipped":
			fmt.Printf("  \033[33m%s: skipped (dependency failed)\033[0m\n", event.Address)
		}
	}
}
