package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/terrapin-dev/terrapin/internal/ir"
	"github.com/terrapin-dev/terrapin/internal/logging"
	"github.com/terrapin-dev/terrapin/internal/state"
	pp "github.com/terrapin-dev/terrapin/pkg/provider"
)

const defaultParallelism = 10

// ApplyEvent represents a progress event during apply.
type ApplyEvent struct {
	Address  string
	Action   string
	Status   string // "started", "completed", "failed", "skipped"
	Duration time.Duration
	Error    error
}

// ApplyCallback is called for each apply event if set.
type ApplyCallback func(event ApplyEvent)

// ApplyPlan executes a plan and updates the state.
func (e *Engine) ApplyPlan(ctx context.Context, plan *ir.Plan, st *ir.State) (*ir.State, error) {
	return e.ApplyPlanWithCallback(ctx, plan, st, nil)
}

// ApplyPlanWithCallback executes a plan with progress event callbacks.
// Independent resources run concurrently under a bounded worker pool;
// deletes run after all creates and updates have settled. Records for
// completed operations are committed even when a later operation fails, so
// a subsequent run can resume from where this one stopped.
func (e *Engine) ApplyPlanWithCallback(ctx context.Context, plan *ir.Plan, st *ir.State, callback ApplyCallback) (*ir.State, error) {
	var errs []error

	emit := func(event ApplyEvent) {
		if callback != nil {
			callback(event)
		}
	}

	store := state.NewStore(st)

	// Creates and updates run first; deletes run after, so nothing is
	// destroyed while something that still references it is being built.
	var createUpdates, deletes []*ir.ResourceChange
	for _, change := range plan.Changes {
		if change.Action == pp.ActionDelete.String() {
			deletes = append(deletes, change)
		} else {
			createUpdates = append(createUpdates, change)
		}
	}

	if err := e.applyBatch(ctx, createUpdates, store, emit, false); err != nil {
		if !e.ContinueOnError {
			return st, err
		}
		errs = append(errs, err)
	}

	if err := e.applyBatch(ctx, deletes, store, emit, true); err != nil {
		if !e.ContinueOnError {
			return st, err
		}
		errs = append(errs, err)
	}

	st.Serial++
	st.Outputs = plan.Outputs

	if len(errs) > 0 {
		return st, fmt.Errorf("%d batch(es) failed: %w", len(errs), errors.Join(errs...))
	}

	return st, nil
}

// applyBatch applies a set of changes concurrently, respecting the
// dependency edges between them. For delete batches the edges are reversed:
// a resource may only be destroyed after everything that depends on it has
// been destroyed.
func (e *Engine) applyBatch(ctx context.Context, changes []*ir.ResourceChange, store *state.Store, emit func(ApplyEvent), reverse bool) error {
	if len(changes) == 0 {
		return nil
	}

	changeMap := make(map[string]*ir.ResourceChange, len(changes))
	for _, c := range changes {
		changeMap[c.Address] = c
	}

	// deps[a] is the set of addresses that must complete before a starts.
	deps := make(map[string]map[string]bool, len(changes))
	for _, c := range changes {
		deps[c.Address] = make(map[string]bool)
	}
	for _, c := range changes {
		for _, depAddr := range changeDeps(c) {
			if _, inBatch := changeMap[depAddr]; !inBatch {
				continue
			}
			if reverse {
				deps[depAddr][c.Address] = true
			} else {
				deps[c.Address][depAddr] = true
			}
		}
	}

	parallelism := e.Parallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}

	completed := make(map[string]bool)
	failed := make(map[string]bool)
	stateMu := sync.Mutex{}
	stateCond := sync.NewCond(&stateMu)
	var firstErr error
	var allErrs []error
	sem := make(chan struct{}, parallelism)

	var wg sync.WaitGroup

	for _, change := range changes {
		wg.Add(1)
		go func(c *ir.ResourceChange) {
			defer wg.Done()

			// Wait for dependencies to complete; skip if one failed.
			stateMu.Lock()
			for {
				if firstErr != nil && !e.ContinueOnError {
					stateMu.Unlock()
					return
				}
				allDepsReady := true
				depFailed := false
				for dep := range deps[c.Address] {
					if failed[dep] {
						depFailed = true
						break
					}
					if !completed[dep] {
						allDepsReady = false
						break
					}
				}
				if depFailed {
					failed[c.Address] = true
					stateMu.Unlock()
					emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "skipped"})
					stateCond.Broadcast()
					return
				}
				if allDepsReady {
					break
				}
				stateCond.Wait()
			}
			stateMu.Unlock()

			if err := ctx.Err(); err != nil {
				stateMu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("apply cancelled: %w", err)
				}
				failed[c.Address] = true
				stateMu.Unlock()
				stateCond.Broadcast()
				return
			}

			sem <- struct{}{}
			defer func() { <-sem }()

			start := time.Now()
			emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "started"})

			if err := e.applyChange(ctx, c, store); err != nil {
				emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "failed", Duration: time.Since(start), Error: err})
				stateMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				allErrs = append(allErrs, err)
				failed[c.Address] = true
				stateMu.Unlock()
				stateCond.Broadcast()
				return
			}

			emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "completed", Duration: time.Since(start)})

			stateMu.Lock()
			completed[c.Address] = true
			stateMu.Unlock()
			stateCond.Broadcast()
		}(change)
	}

	wg.Wait()

	if e.ContinueOnError && len(allErrs) > 0 {
		return fmt.Errorf("%d resource(s) failed: %w", len(allErrs), errors.Join(allErrs...))
	}
	return firstErr
}

// applyChange performs one provider operation and commits the result.
func (e *Engine) applyChange(ctx context.Context, change *ir.ResourceChange, store *state.Store) error {
	addr := change.Address
	logging.Debug("applying change", "address", addr, "action", change.Action)

	// Per-resource timeout, overridable via the resource's timeout property.
	var timeout time.Duration
	if change.Desired != nil && change.Desired.Timeout != "" {
		if d, err := time.ParseDuration(change.Desired.Timeout); err == nil {
			timeout = d
		}
	}
	ctx, cancel := WithTimeout(ctx, timeout)
	defer cancel()

	unlock := store.LockRecord(addr)
	defer unlock()

	var desiredJSON, priorJSON []byte
	var name, typ, provName string

	if change.Desired != nil {
		name = change.Desired.Name
		typ = change.Desired.Type
		provName = change.Desired.Provider
		props := normalizeValue(change.Desired.Properties)
		desiredJSON, _ = json.Marshal(store.ResolveReferences(props))
	} else if change.Prior != nil {
		name = change.Prior.Name
		typ = change.Prior.Type
		provName = change.Prior.Provider
	}

	if rec, ok := store.Get(addr); ok && rec.Outputs != nil {
		priorJSON, _ = json.Marshal(rec.Outputs)
	}

	prov, err := e.registry.Get(provName)
	if err != nil {
		return fmt.Errorf("provider not loaded for %s: %w", addr, err)
	}

	retryPolicy := DefaultRetryPolicy()

	switch pp.ParseAction(change.Action) {
	case pp.ActionCreate, pp.ActionUpdate, pp.ActionReplace:
		var resp *pp.ApplyResponse
		err := RetryWithBackoff(ctx, retryPolicy, func() error {
			var applyErr error
			resp, applyErr = prov.Apply(ctx, &pp.ApplyRequest{
				Type:    typ,
				Name:    name,
				Desired: desiredJSON,
				Prior:   priorJSON,
			})
			return applyErr
		})
		if err != nil {
			return fmt.Errorf("apply failed for %s: %w", addr, err)
		}

		var outputs map[string]any
		if len(resp.NewState) > 0 {
			if err := json.Unmarshal(resp.NewState, &outputs); err != nil {
				return fmt.Errorf("failed to unmarshal new state for %s: %w", addr, err)
			}
		}

		store.Commit(&ir.ResourceState{
			Type:         typ,
			Name:         name,
			Provider:     provName,
			Inputs:       change.Desired.Properties,
			InputsHash:   inputsHash(change.Desired.Properties),
			Outputs:      outputs,
			Dependencies: changeDeps(change),
		})

	case pp.ActionDelete:
		var resourceID string
		if rec, ok := store.Get(addr); ok {
			if id, exists := rec.Outputs["id"]; exists {
				resourceID = fmt.Sprintf("%v", id)
			}
		}

		err := RetryWithBackoff(ctx, retryPolicy, func() error {
			_, deleteErr := prov.Delete(ctx, &pp.DeleteRequest{
				Type:    typ,
				ID:      resourceID,
				Current: priorJSON,
			})
			return deleteErr
		})
		if err != nil {
			return fmt.Errorf("delete failed for %s: %w", addr, err)
		}

		store.Remove(addr)
	}

	return nil
}

// inputsHash fingerprints a resource's inputs as recorded in state.
func inputsHash(props map[string]any) string {
	raw, err := json.Marshal(normalizeValue(props))
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// changeDeps returns the addresses a change depends on: explicit dependsOn
// plus implicit ref:// references. For delete changes the prior inputs are
// consulted instead.
func changeDeps(c *ir.ResourceChange) []string {
	res := c.Desired
	if res == nil {
		res = c.Prior
	}
	if res == nil {
		return nil
	}

	seen := make(map[string]bool)
	var out []string
	add := func(addr string) {
		if addr != "" && addr != c.Address && !seen[addr] {
			seen[addr] = true
			out = append(out, addr)
		}
	}

	for _, dep := range res.DependsOn {
		add(dep)
	}
	for _, ref := range ExtractRefs(res.Properties) {
		add(RefToAddr(ref))
	}
	return out
}
