package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/terrapin-dev/terrapin/internal/ir"
	"github.com/terrapin-dev/terrapin/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventRecorder collects apply events; the callback runs from worker
// goroutines so access is synchronized.
type eventRecorder struct {
	mu     sync.Mutex
	events []ApplyEvent
}

func (r *eventRecorder) callback() ApplyCallback {
	return func(event ApplyEvent) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, event)
	}
}

func (r *eventRecorder) byStatus(status string) []ApplyEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ApplyEvent
	for _, e := range r.events {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

func TestApplyPlan_Create(t *testing.T) {
	eng := newTestEngine()
	ctx := context.Background()

	cfg := &ir.Config{
		Resources: []*ir.Resource{
			nullResource("test1", map[string]any{"env": "prod"}),
		},
		Outputs: map[string]any{"greeting": "hello"},
	}
	st := emptyState()

	plan, err := eng.CreatePlan(ctx, cfg, st)
	require.NoError(t, err)

	newState, err := eng.ApplyPlan(ctx, plan, st)
	require.NoError(t, err)

	assert.Equal(t, 1, newState.Serial)
	require.Len(t, newState.Resources, 1)

	rec := newState.Resources[0]
	assert.Equal(t, "null.Resource.test1", rec.Addr())
	assert.Equal(t, "null-test1", rec.Outputs["id"])
	assert.NotEmpty(t, rec.InputsHash)
	assert.Equal(t, map[string]any{"greeting": "hello"}, newState.Outputs)
}

func TestApplyPlan_RecordsDependencies(t *testing.T) {
	eng := newTestEngine()
	ctx := context.Background()

	a := nullResource("a", nil)
	b := nullResource("b", nil)
	b.DependsOn = []string{"null.Resource.a"}

	cfg := &ir.Config{Resources: []*ir.Resource{a, b}}
	st := emptyState()

	plan, err := eng.CreatePlan(ctx, cfg, st)
	require.NoError(t, err)

	newState, err := eng.ApplyPlan(ctx, plan, st)
	require.NoError(t, err)

	require.Len(t, newState.Resources, 2)
	for _, rec := range newState.Resources {
		if rec.Name == "b" {
			assert.Equal(t, []string{"null.Resource.a"}, rec.Dependencies)
		}
	}
}

func TestApplyPlan_Delete(t *testing.T) {
	eng := newTestEngine()
	ctx := context.Background()

	cfg := &ir.Config{Resources: []*ir.Resource{}}
	st := &ir.State{
		Version: 1,
		Serial:  1,
		Resources: []*ir.ResourceState{
			{
				Type:     "null.Resource",
				Name:     "old",
				Provider: "null",
				Outputs:  map[string]any{"id": "null-old"},
			},
		},
	}

	plan, err := eng.CreatePlan(ctx, cfg, st)
	require.NoError(t, err)
	require.Len(t, plan.Changes, 1)

	newState, err := eng.ApplyPlan(ctx, plan, st)
	require.NoError(t, err)

	assert.Empty(t, newState.Resources)
	assert.Equal(t, 2, newState.Serial)
}

func TestApplyPlan_ReplaceKeepsSingleRecord(t *testing.T) {
	eng := newTestEngine()
	ctx := context.Background()

	cfg := &ir.Config{Resources: []*ir.Resource{
		nullResource("web", map[string]any{"env": "staging"}),
	}}
	st := &ir.State{
		Version: 1,
		Serial:  3,
		Resources: []*ir.ResourceState{
			{
				Type:     "null.Resource",
				Name:     "web",
				Provider: "null",
				Inputs:   map[string]any{"triggers": map[string]any{"env": "prod"}},
				Outputs: map[string]any{
					"id":       "null-web",
					"triggers": map[string]any{"env": "prod"},
				},
			},
		},
	}

	plan, err := eng.CreatePlan(ctx, cfg, st)
	require.NoError(t, err)
	require.Len(t, plan.Changes, 1)
	require.Equal(t, "REPLACE", plan.Changes[0].Action)

	newState, err := eng.ApplyPlan(ctx, plan, st)
	require.NoError(t, err)

	require.Len(t, newState.Resources, 1)
	assert.Equal(t, 4, newState.Serial)

	triggers, ok := newState.Resources[0].Outputs["triggers"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "staging", triggers["env"])
}

func TestApplyPlan_Events(t *testing.T) {
	eng := newTestEngine()
	ctx := context.Background()

	cfg := &ir.Config{Resources: []*ir.Resource{
		nullResource("a", nil),
	}}
	st := emptyState()

	plan, err := eng.CreatePlan(ctx, cfg, st)
	require.NoError(t, err)

	rec := &eventRecorder{}
	_, err = eng.ApplyPlanWithCallback(ctx, plan, st, rec.callback())
	require.NoError(t, err)

	started := rec.byStatus("started")
	completed := rec.byStatus("completed")
	require.Len(t, started, 1)
	require.Len(t, completed, 1)
	assert.Equal(t, "null.Resource.a", started[0].Address)
	assert.Equal(t, "CREATE", completed[0].Action)
}

func TestApplyPlan_FailFast(t *testing.T) {
	reg := provider.NewRegistry()
	require.NoError(t, reg.LoadProvider("null"))
	eng := NewEngine(reg)

	plan := &ir.Plan{
		Changes: []*ir.ResourceChange{
			{
				Address: "custom.Thing.bad",
				Action:  "CREATE",
				Desired: &ir.Resource{Type: "custom.Thing", Name: "bad", Provider: "nonexistent"},
			},
		},
		Summary: &ir.PlanSummary{Create: 1},
	}
	st := emptyState()

	newState, err := eng.ApplyPlan(context.Background(), plan, st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider not loaded")

	// Fail-fast aborts before the serial bump.
	require.NotNil(t, newState)
	assert.Equal(t, 0, newState.Serial)
}

func TestApplyPlan_ContinueOnError(t *testing.T) {
	reg := provider.NewRegistry()
	require.NoError(t, reg.LoadProvider("null"))
	eng := NewEngine(reg)
	eng.ContinueOnError = true

	plan := &ir.Plan{
		Changes: []*ir.ResourceChange{
			{
				Address: "custom.Thing.bad",
				Action:  "CREATE",
				Desired: &ir.Resource{Type: "custom.Thing", Name: "bad", Provider: "nonexistent"},
			},
			{
				Address: "null.Resource.good",
				Action:  "CREATE",
				Desired: &ir.Resource{Type: "null.Resource", Name: "good", Provider: "null"},
			},
		},
		Summary: &ir.PlanSummary{Create: 2},
	}
	st := emptyState()

	newState, err := eng.ApplyPlan(context.Background(), plan, st)
	require.Error(t, err)

	// The independent resource still applied and the state advanced.
	require.Len(t, newState.Resources, 1)
	assert.Equal(t, "null.Resource.good", newState.Resources[0].Addr())
	assert.Equal(t, 1, newState.Serial)
}

func TestApplyPlan_SkipsDependentsOfFailure(t *testing.T) {
	reg := provider.NewRegistry()
	require.NoError(t, reg.LoadProvider("null"))
	eng := NewEngine(reg)
	eng.ContinueOnError = true

	plan := &ir.Plan{
		Changes: []*ir.ResourceChange{
			{
				Address: "null.Resource.a",
				Action:  "CREATE",
				Desired: &ir.Resource{Type: "null.Resource", Name: "a", Provider: "nonexistent"},
			},
			{
				Address: "null.Resource.b",
				Action:  "CREATE",
				Desired: &ir.Resource{
					Type:      "null.Resource",
					Name:      "b",
					Provider:  "null",
					DependsOn: []string{"null.Resource.a"},
				},
			},
		},
		Summary: &ir.PlanSummary{Create: 2},
	}
	st := emptyState()

	rec := &eventRecorder{}
	_, err := eng.ApplyPlanWithCallback(context.Background(), plan, st, rec.callback())
	require.Error(t, err)

	skipped := rec.byStatus("skipped")
	require.Len(t, skipped, 1)
	assert.Equal(t, "null.Resource.b", skipped[0].Address)
	assert.Empty(t, st.Resources)
}

func TestApplyPlan_ResolvesReferences(t *testing.T) {
	eng := newTestEngine()
	ctx := context.Background()

	a := nullResource("a", map[string]any{"env": "prod"})
	b := nullResource("b", map[string]any{"upstream": "ref://null.Resource/a/id"})

	cfg := &ir.Config{Resources: []*ir.Resource{a, b}}
	st := emptyState()

	plan, err := eng.CreatePlan(ctx, cfg, st)
	require.NoError(t, err)
	require.Len(t, plan.Changes, 2)

	newState, err := eng.ApplyPlan(ctx, plan, st)
	require.NoError(t, err)

	require.Len(t, newState.Resources, 2)
	for _, rec := range newState.Resources {
		if rec.Name != "b" {
			continue
		}
		triggers, ok := rec.Outputs["triggers"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "null-a", triggers["upstream"], "reference should resolve to the upstream output")
	}
}

func TestApplyPlan_Cancellation(t *testing.T) {
	eng := newTestEngine()

	cfg := &ir.Config{Resources: []*ir.Resource{
		nullResource("a", nil),
	}}
	st := emptyState()

	plan, err := eng.CreatePlan(context.Background(), cfg, st)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = eng.ApplyPlan(ctx, plan, st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")
}

func TestChangeDeps_DeleteKeepsRecordedDependencies(t *testing.T) {
	eng := newTestEngine()
	ctx := context.Background()

	st := &ir.State{
		Version: 1,
		Resources: []*ir.ResourceState{
			{
				Type:     "null.Resource",
				Name:     "a",
				Provider: "null",
				Outputs:  map[string]any{"id": "null-a"},
			},
			{
				Type:         "null.Resource",
				Name:         "b",
				Provider:     "null",
				Outputs:      map[string]any{"id": "null-b"},
				Dependencies: []string{"null.Resource.a"},
			},
		},
	}

	plan, err := eng.CreateDestroyPlan(ctx, st)
	require.NoError(t, err)
	require.Len(t, plan.Changes, 2)

	var bChange *ir.ResourceChange
	for _, c := range plan.Changes {
		if c.Address == "null.Resource.b" {
			bChange = c
		}
	}
	require.NotNil(t, bChange)

	// The executor rebuilds ordering edges from changeDeps, not from the
	// plan's list order, so delete changes must keep their dependencies.
	assert.Contains(t, changeDeps(bChange), "null.Resource.a")
}

func TestApplyPlan_DestroyOrderedAfterDependents(t *testing.T) {
	eng := newTestEngine()
	ctx := context.Background()

	st := &ir.State{
		Version: 1,
		Resources: []*ir.ResourceState{
			{
				Type:     "null.Resource",
				Name:     "a",
				Provider: "null",
				Outputs:  map[string]any{"id": "null-a"},
			},
			{
				Type:         "null.Resource",
				Name:         "b",
				Provider:     "null",
				Outputs:      map[string]any{"id": "null-b"},
				Dependencies: []string{"null.Resource.a"},
			},
		},
	}

	plan, err := eng.CreateDestroyPlan(ctx, st)
	require.NoError(t, err)

	rec := &eventRecorder{}
	newState, err := eng.ApplyPlanWithCallback(ctx, plan, st, rec.callback())
	require.NoError(t, err)
	assert.Empty(t, newState.Resources)

	// b depends on a, so b must be fully destroyed before a starts.
	bDone, aStarted := -1, -1
	rec.mu.Lock()
	for i, e := range rec.events {
		if e.Address == "null.Resource.b" && e.Status == "completed" {
			bDone = i
		}
		if e.Address == "null.Resource.a" && e.Status == "started" {
			aStarted = i
		}
	}
	rec.mu.Unlock()
	require.NotEqual(t, -1, bDone)
	require.NotEqual(t, -1, aStarted)
	assert.Less(t, bDone, aStarted, "dependency must outlive its dependents during destroy")
}
