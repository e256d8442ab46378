package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/terrapin-dev/terrapin/internal/ir"
	"github.com/terrapin-dev/terrapin/internal/logging"
	"github.com/terrapin-dev/terrapin/internal/provider"
	"github.com/terrapin-dev/terrapin/internal/state"
	pp "github.com/terrapin-dev/terrapin/pkg/provider"
)

// Engine orchestrates the lifecycle of resources.
type Engine struct {
	registry        *provider.Registry
	ContinueOnError bool // If true, apply continues past failures instead of stopping
	Parallelism     int  // Max concurrent resource operations (0 = default)
}

func NewEngine(registry *provider.Registry) *Engine {
	return &Engine{
		registry: registry,
	}
}

// CreatePlan generates an execution plan by comparing desired config with current state.
func (e *Engine) CreatePlan(ctx context.Context, cfg *ir.Config, st *ir.State) (*ir.Plan, error) {
	return e.CreatePlanWithTargets(ctx, cfg, st, nil)
}

// CreatePlanWithTargets generates a plan filtered to specific resource addresses.
// If targets is nil or empty, all resources are planned.
func (e *Engine) CreatePlanWithTargets(ctx context.Context, cfg *ir.Config, st *ir.State, targets []string) (*ir.Plan, error) {
	logging.Debug("creating plan", "resources", len(cfg.Resources), "state_resources", len(st.Resources), "targets", len(targets))
	plan := &ir.Plan{
		Metadata: &ir.PlanMetadata{
			Timestamp:      time.Now().UTC().Format(time.RFC3339),
			ConfigHash:     configHash(cfg),
			PriorStateHash: StateHash(st),
		},
		Changes: []*ir.ResourceChange{},
		Summary: &ir.PlanSummary{},
		Outputs: cfg.Outputs,
	}

	// 1. Load all required providers (config and state side; state records
	// need their provider for deletions)
	for _, res := range cfg.Resources {
		if err := e.registry.LoadProvider(res.Provider); err != nil {
			return nil, fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
		}
	}
	for _, res := range st.Resources {
		if err := e.registry.LoadProvider(res.Provider); err != nil {
			return nil, fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
		}
	}

	// 2. Expand forEach/count resources
	resources := ExpandForEach(cfg.Resources)

	// 3. Validate every resource against its registered schema. Schema
	// violations are fatal before any graph work happens.
	schemas := e.registry.Schemas()
	for _, res := range resources {
		props, _ := normalizeValue(res.Properties).(map[string]any)
		if err := schemas.Validate(res.Addr(), res.Type, props); err != nil {
			return nil, err
		}
	}

	// 4. Build dependency graph for ordering
	dag, err := BuildDAG(resources)
	if err != nil {
		return nil, err
	}

	// 5. Index state and config by address. The store also resolves ref://
	// values against already-applied records so an unchanged referencing
	// resource plans as a no-op; references to not-yet-created resources
	// stay symbolic until apply.
	store := state.NewStore(st)
	stateMap := make(map[string]*ir.ResourceState)
	for _, res := range st.Resources {
		stateMap[res.Addr()] = res
	}
	configByAddr := make(map[string]*ir.Resource)
	for _, res := range resources {
		configByAddr[res.Addr()] = res
	}

	// 6. Build target set (targets pull in their transitive dependencies)
	var targetSet map[string]bool
	if len(targets) > 0 {
		targetSet = make(map[string]bool)
		for _, t := range targets {
			targetSet[t] = true
			for _, dep := range dag.TransitiveDeps(t) {
				targetSet[dep] = true
			}
		}
	}

	// 7. Walk desired resources in dependency order
	for _, addr := range dag.CreationOrder() {
		res, ok := configByAddr[addr]
		if !ok {
			continue
		}

		if targetSet != nil && !targetSet[addr] {
			plan.Summary.NoOp++
			continue
		}

		prov, err := e.registry.Get(res.Provider)
		if err != nil {
			return nil, err
		}

		props := store.ResolveReferences(normalizeValue(res.Properties))
		desiredJSON, err := json.Marshal(props)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal properties for %s: %w", res.Name, err)
		}

		prior := stateMap[addr]
		var priorJSON []byte
		if prior != nil {
			priorJSON, _ = json.Marshal(prior.Outputs)
		}

		resp, err := prov.Plan(ctx, &pp.PlanRequest{
			Type:    res.Type,
			Name:    res.Name,
			Desired: desiredJSON,
			Prior:   priorJSON,
		})
		if err != nil {
			return nil, fmt.Errorf("plan failed for %s: %w", addr, err)
		}

		action := resp.Action

		// A tainted record is forced through destroy-and-recreate even if
		// the provider sees no change.
		if prior != nil && prior.Tainted && action != pp.ActionCreate {
			action = pp.ActionReplace
		}

		// IgnoreChanges can downgrade an update to a no-op
		if res.Lifecycle != nil && len(res.Lifecycle.IgnoreChanges) > 0 && action == pp.ActionUpdate {
			action = filterIgnoredChanges(res, resp)
		}

		if action == pp.ActionNoOp {
			plan.Summary.NoOp++
			continue
		}

		if err := enforceLifecycle(res, action, addr); err != nil {
			return nil, err
		}

		change := &ir.ResourceChange{
			Address: addr,
			Action:  action.String(),
			Desired: res,
		}

		if prior != nil {
			change.Prior = &ir.Resource{
				Type:       prior.Type,
				Name:       prior.Name,
				Provider:   prior.Provider,
				Properties: prior.Inputs,
			}
			change.Diff = buildPropertyDiff(prior.Inputs, res.Properties)
		} else {
			change.Diff = buildCreateDiff(res.Properties)
		}

		plan.Changes = append(plan.Changes, change)

		switch action {
		case pp.ActionCreate:
			plan.Summary.Create++
		case pp.ActionUpdate:
			plan.Summary.Update++
		case pp.ActionReplace:
			plan.Summary.Replace++
		case pp.ActionDelete:
			plan.Summary.Delete++
		}
	}

	// 8. Deletions: resources in state but absent from configuration.
	// They are appended after all creates/updates and ordered among
	// themselves in reverse dependency order, so nothing is destroyed
	// before its dependents have been handled.
	var orphans []*ir.ResourceState
	for _, res := range st.Resources {
		if _, inConfig := configByAddr[res.Addr()]; !inConfig {
			if targetSet != nil && !targetSet[res.Addr()] {
				continue
			}
			orphans = append(orphans, res)
		}
	}
	if len(orphans) > 0 {
		destroyDAG, err := BuildDAGFromState(orphans)
		if err != nil {
			return nil, err
		}
		orphanMap := make(map[string]*ir.ResourceState, len(orphans))
		for _, res := range orphans {
			orphanMap[res.Addr()] = res
		}
		for _, addr := range destroyDAG.DestructionOrder() {
			res, ok := orphanMap[addr]
			if !ok {
				continue
			}
			// The record's dependencies ride along so the executor can
			// rebuild ordering edges within the delete batch.
			plan.Changes = append(plan.Changes, &ir.ResourceChange{
				Address: addr,
				Action:  pp.ActionDelete.String(),
				Prior: &ir.Resource{
					Type:       res.Type,
					Name:       res.Name,
					Provider:   res.Provider,
					Properties: res.Inputs,
					DependsOn:  res.Dependencies,
				},
				Diff: buildDeleteDiff(res.Inputs),
			})
			plan.Summary.Delete++
		}
	}

	return plan, nil
}

// CreateDestroyPlan plans the deletion of everything in state, in reverse
// dependency order.
func (e *Engine) CreateDestroyPlan(ctx context.Context, st *ir.State) (*ir.Plan, error) {
	return e.CreatePlan(ctx, &ir.Config{Resources: []*ir.Resource{}}, st)
}

// enforceLifecycle checks lifecycle rules and returns an error if violated.
func enforceLifecycle(res *ir.Resource, action pp.Action, addr string) error {
	if res.Lifecycle == nil {
		return nil
	}

	if res.Lifecycle.PreventDestroy && (action == pp.ActionDelete || action == pp.ActionReplace) {
		return fmt.Errorf("resource %s has preventDestroy set but plan requires destruction", addr)
	}

	return nil
}

// filterIgnoredChanges downgrades an update to a no-op when every changed
// attribute is listed in ignoreChanges.
func filterIgnoredChanges(res *ir.Resource, resp *pp.PlanResponse) pp.Action {
	if len(resp.ChangedAttributes) == 0 {
		return resp.Action
	}

	ignoreSet := make(map[string]bool)
	for _, attr := range res.Lifecycle.IgnoreChanges {
		ignoreSet[attr] = true
	}

	for _, attr := range resp.ChangedAttributes {
		if !ignoreSet[attr] {
			return resp.Action
		}
	}
	return pp.ActionNoOp
}

// buildPropertyDiff compares prior and desired properties and returns a diff map.
func buildPropertyDiff(prior, desired map[string]any) map[string]*ir.PropertyDiff {
	diff := make(map[string]*ir.PropertyDiff)

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
			diff[k] = &ir.PropertyDiff{
				After:  desiredVal,
				Action: "create",
			}
		} else if !inDesired {
			diff[k] = &ir.PropertyDiff{
				Before: priorVal,
				Action: "delete",
			}
		} else if fmt.Sprintf("%v", priorVal) != fmt.Sprintf("%v", desiredVal) {
			diff[k] = &ir.PropertyDiff{
				Before: priorVal,
				After:  desiredVal,
				Action: "update",
			}
		}
	}

	return diff
}

func buildCreateDiff(props map[string]any) map[string]*ir.PropertyDiff {
	diff := make(map[string]*ir.PropertyDiff)
	for k, v := range props {
		diff[k] = &ir.PropertyDiff{
			After:  v,
			Action: "create",
		}
	}
	return diff
}

func buildDeleteDiff(props map[string]any) map[string]*ir.PropertyDiff {
	diff := make(map[string]*ir.PropertyDiff)
	for k, v := range props {
		diff[k] = &ir.PropertyDiff{
			Before: v,
			Action: "delete",
		}
	}
	return diff
}

// configHash fingerprints the expanded configuration for plan metadata.
func configHash(cfg *ir.Config) string {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// StateHash fingerprints a state snapshot. A saved plan records the hash of
// the state it was computed against so a stale plan can be rejected at apply
// time.
func StateHash(st *ir.State) string {
	raw, err := json.Marshal(st)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// normalizeValue rewrites map[any]any (as produced by some decoders) into
// map[string]any so properties marshal cleanly to JSON.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[any]any:
		newMap := make(map[string]any)
		for k, v := range val {
			newMap[fmt.Sprintf("%v", k)] = normalizeValue(v)
		}
		return newMap
	case map[string]any:
		newMap := make(map[string]any)
		for k, v := range val {
			newMap[k] = normalizeValue(v)
		}
		return newMap
	case []any:
		newSlice := make([]any, len(val))
		for i, v := range val {
			newSlice[i] = normalizeValue(v)
		}
		return newSlice
	default:
		return val
	}
}
