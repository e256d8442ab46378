package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/terrapin-dev/terrapin/internal/ir"
	"github.com/terrapin-dev/terrapin/internal/provider"
	"github.com/terrapin-dev/terrapin/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *Engine {
	return NewEngine(provider.NewRegistry())
}

func emptyState() *ir.State {
	return &ir.State{Version: 1}
}

func nullResource(name string, triggers map[string]any) *ir.Resource {
	props := map[string]any{}
	if triggers != nil {
		props["triggers"] = triggers
	}
	return &ir.Resource{
		Type:       "null.Resource",
		Name:       name,
		Provider:   "null",
		Properties: props,
	}
}

func TestCreatePlan_Create(t *testing.T) {
	eng := newTestEngine()

	a := nullResource("a", map[string]any{"env": "prod"})
	b := nullResource("b", nil)
	b.DependsOn = []string{"null.Resource.a"}

	cfg := &ir.Config{Resources: []*ir.Resource{a, b}}

	plan, err := eng.CreatePlan(context.Background(), cfg, emptyState())
	require.NoError(t, err)

	require.Len(t, plan.Changes, 2)
	assert.Equal(t, "null.Resource.a", plan.Changes[0].Address)
	assert.Equal(t, "CREATE", plan.Changes[0].Action)
	assert.Equal(t, "null.Resource.b", plan.Changes[1].Address)
	assert.Equal(t, "CREATE", plan.Changes[1].Action)

	assert.Equal(t, 2, plan.Summary.Create)
	assert.NotEmpty(t, plan.Metadata.Timestamp)
	assert.NotEmpty(t, plan.Metadata.PriorStateHash)
}

func TestCreatePlan_NoChanges(t *testing.T) {
	eng := newTestEngine()

	cfg := &ir.Config{Resources: []*ir.Resource{
		nullResource("web", map[string]any{"env": "prod"}),
	}}
	st := &ir.State{
		Version: 1,
		Serial:  1,
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

	plan, err := eng.CreatePlan(context.Background(), cfg, st)
	require.NoError(t, err)

	assert.True(t, plan.IsEmpty())
	assert.Equal(t, 1, plan.Summary.NoOp)
}

func TestCreatePlan_Replace(t *testing.T) {
	eng := newTestEngine()

	cfg := &ir.Config{Resources: []*ir.Resource{
		nullResource("web", map[string]any{"env": "staging"}),
	}}
	st := &ir.State{
		Version: 1,
		Serial:  1,
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

	plan, err := eng.CreatePlan(context.Background(), cfg, st)
	require.NoError(t, err)

	require.Len(t, plan.Changes, 1)
	assert.Equal(t, "REPLACE", plan.Changes[0].Action)
	assert.NotNil(t, plan.Changes[0].Prior)
	assert.Equal(t, 1, plan.Summary.Replace)
}

func TestCreatePlan_TaintForcesReplace(t *testing.T) {
	eng := newTestEngine()

	cfg := &ir.Config{Resources: []*ir.Resource{
		nullResource("web", map[string]any{"env": "prod"}),
	}}
	st := &ir.State{
		Version: 1,
		Serial:  1,
		Resources: []*ir.ResourceState{
			{
				Type:     "null.Resource",
				Name:     "web",
				Provider: "null",
				Tainted:  true,
				Inputs:   map[string]any{"triggers": map[string]any{"env": "prod"}},
				Outputs: map[string]any{
					"id":       "null-web",
					"triggers": map[string]any{"env": "prod"},
				},
			},
		},
	}

	plan, err := eng.CreatePlan(context.Background(), cfg, st)
	require.NoError(t, err)

	require.Len(t, plan.Changes, 1)
	assert.Equal(t, "REPLACE", plan.Changes[0].Action)
}

func TestCreatePlan_OrphanDelete(t *testing.T) {
	eng := newTestEngine()

	cfg := &ir.Config{Resources: []*ir.Resource{}}
	st := &ir.State{
		Version: 1,
		Serial:  1,
		Resources: []*ir.ResourceState{
			{
				Type:     "null.Resource",
				Name:     "old",
				Provider: "null",
				Inputs:   map[string]any{"triggers": map[string]any{"env": "prod"}},
				Outputs:  map[string]any{"id": "null-old"},
			},
		},
	}

	plan, err := eng.CreatePlan(context.Background(), cfg, st)
	require.NoError(t, err)

	require.Len(t, plan.Changes, 1)
	assert.Equal(t, "DELETE", plan.Changes[0].Action)
	require.NotNil(t, plan.Changes[0].Prior)
	assert.Equal(t, "old", plan.Changes[0].Prior.Name)
	assert.Equal(t, 1, plan.Summary.Delete)
}

func TestCreatePlan_OrphanDeleteOrder(t *testing.T) {
	eng := newTestEngine()

	// b depends on a; b must be destroyed first.
	cfg := &ir.Config{Resources: []*ir.Resource{}}
	st := &ir.State{
		Version: 1,
		Serial:  1,
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

	plan, err := eng.CreatePlan(context.Background(), cfg, st)
	require.NoError(t, err)

	require.Len(t, plan.Changes, 2)
	assert.Equal(t, "null.Resource.b", plan.Changes[0].Address)
	assert.Equal(t, "null.Resource.a", plan.Changes[1].Address)
}

func TestCreatePlan_PreventDestroy(t *testing.T) {
	eng := newTestEngine()

	res := nullResource("web", map[string]any{"env": "staging"})
	res.Lifecycle = &ir.Lifecycle{PreventDestroy: true}

	cfg := &ir.Config{Resources: []*ir.Resource{res}}
	st := &ir.State{
		Version: 1,
		Serial:  1,
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

	_, err := eng.CreatePlan(context.Background(), cfg, st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "preventDestroy")
}

func TestCreatePlan_IgnoreChanges(t *testing.T) {
	eng := newTestEngine()

	res := &ir.Resource{
		Type:     "aws.ec2.Instance",
		Name:     "web",
		Provider: "aws",
		Properties: map[string]any{
			"ami":          "ami-123",
			"instanceType": "t3.micro",
			"tags":         map[string]any{"env": "staging"},
		},
		Lifecycle: &ir.Lifecycle{IgnoreChanges: []string{"tags"}},
	}

	cfg := &ir.Config{Resources: []*ir.Resource{res}}
	st := &ir.State{
		Version: 1,
		Serial:  1,
		Resources: []*ir.ResourceState{
			{
				Type:     "aws.ec2.Instance",
				Name:     "web",
				Provider: "aws",
				Inputs:   map[string]any{"ami": "ami-123", "instanceType": "t3.micro"},
				Outputs: map[string]any{
					"id":           "i-0abc123",
					"ami":          "ami-123",
					"instanceType": "t3.micro",
					"tags":         map[string]any{"env": "prod"},
				},
			},
		},
	}

	plan, err := eng.CreatePlan(context.Background(), cfg, st)
	require.NoError(t, err)

	assert.True(t, plan.IsEmpty(), "tag-only drift listed in ignoreChanges should plan as no-op")
	assert.Equal(t, 1, plan.Summary.NoOp)
}

func TestCreatePlan_Targets(t *testing.T) {
	eng := newTestEngine()

	cfg := &ir.Config{Resources: []*ir.Resource{
		nullResource("a", nil),
		nullResource("b", nil),
	}}

	plan, err := eng.CreatePlanWithTargets(context.Background(), cfg, emptyState(), []string{"null.Resource.a"})
	require.NoError(t, err)

	require.Len(t, plan.Changes, 1)
	assert.Equal(t, "null.Resource.a", plan.Changes[0].Address)
	assert.Equal(t, 1, plan.Summary.NoOp)
}

func TestCreatePlan_TargetPullsDependencies(t *testing.T) {
	eng := newTestEngine()

	a := nullResource("a", nil)
	b := nullResource("b", nil)
	b.DependsOn = []string{"null.Resource.a"}

	cfg := &ir.Config{Resources: []*ir.Resource{a, b}}

	plan, err := eng.CreatePlanWithTargets(context.Background(), cfg, emptyState(), []string{"null.Resource.b"})
	require.NoError(t, err)

	require.Len(t, plan.Changes, 2)
	assert.Equal(t, "null.Resource.a", plan.Changes[0].Address)
	assert.Equal(t, "null.Resource.b", plan.Changes[1].Address)
}

func TestCreatePlan_SchemaViolation(t *testing.T) {
	eng := newTestEngine()

	res := nullResource("web", nil)
	res.Properties["bogus"] = "value"

	cfg := &ir.Config{Resources: []*ir.Resource{res}}

	_, err := eng.CreatePlan(context.Background(), cfg, emptyState())
	require.Error(t, err)

	var schemaErr *schema.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "null.Resource.web", schemaErr.Address)
}

func TestCreatePlan_UnknownProvider(t *testing.T) {
	eng := newTestEngine()

	cfg := &ir.Config{Resources: []*ir.Resource{
		{Type: "custom.Thing", Name: "x", Provider: "nonexistent"},
	}}

	_, err := eng.CreatePlan(context.Background(), cfg, emptyState())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonexistent")
}

func TestCreatePlan_Cycle(t *testing.T) {
	eng := newTestEngine()

	a := nullResource("a", nil)
	a.DependsOn = []string{"null.Resource.b"}
	b := nullResource("b", nil)
	b.DependsOn = []string{"null.Resource.a"}

	cfg := &ir.Config{Resources: []*ir.Resource{a, b}}

	_, err := eng.CreatePlan(context.Background(), cfg, emptyState())
	require.Error(t, err)

	var cycleErr *CycleError
	assert.True(t, errors.As(err, &cycleErr))
}

func TestCreateDestroyPlan(t *testing.T) {
	eng := newTestEngine()

	st := &ir.State{
		Version: 1,
		Serial:  2,
		Resources: []*ir.ResourceState{
			{
				Type:     "null.Resource",
				Name:     "base",
				Provider: "null",
				Outputs:  map[string]any{"id": "null-base"},
			},
			{
				Type:         "null.Resource",
				Name:         "app",
				Provider:     "null",
				Outputs:      map[string]any{"id": "null-app"},
				Dependencies: []string{"null.Resource.base"},
			},
		},
	}

	plan, err := eng.CreateDestroyPlan(context.Background(), st)
	require.NoError(t, err)

	require.Len(t, plan.Changes, 2)
	for _, change := range plan.Changes {
		assert.Equal(t, "DELETE", change.Action)
	}
	assert.Equal(t, "null.Resource.app", plan.Changes[0].Address)
	assert.Equal(t, "null.Resource.base", plan.Changes[1].Address)
	assert.Equal(t, 2, plan.Summary.Delete)
}

func TestPlanAfterApplyIsEmpty(t *testing.T) {
	eng := newTestEngine()
	ctx := context.Background()

	cfg := &ir.Config{Resources: []*ir.Resource{
		nullResource("a", map[string]any{"env": "prod"}),
	}}
	st := emptyState()

	plan, err := eng.CreatePlan(ctx, cfg, st)
	require.NoError(t, err)
	require.Len(t, plan.Changes, 1)

	newState, err := eng.ApplyPlan(ctx, plan, st)
	require.NoError(t, err)

	replan, err := eng.CreatePlan(ctx, cfg, newState)
	require.NoError(t, err)
	assert.True(t, replan.IsEmpty(), "plan immediately after apply should be empty")
}

func TestPlanAfterApplyIsEmpty_WithReferences(t *testing.T) {
	eng := newTestEngine()
	ctx := context.Background()

	cfg := &ir.Config{Resources: []*ir.Resource{
		nullResource("a", map[string]any{"env": "prod"}),
		nullResource("b", map[string]any{"upstream": "ref://null.Resource/a/id"}),
	}}
	st := emptyState()

	plan, err := eng.CreatePlan(ctx, cfg, st)
	require.NoError(t, err)
	require.Len(t, plan.Changes, 2)

	newState, err := eng.ApplyPlan(ctx, plan, st)
	require.NoError(t, err)

	// The reference in b now resolves to a's applied output, so replanning
	// must compare the resolved value and find nothing to do.
	replan, err := eng.CreatePlan(ctx, cfg, newState)
	require.NoError(t, err)
	assert.True(t, replan.IsEmpty(), "resolved references should not cause perpetual diffs")
	assert.Equal(t, 2, replan.Summary.NoOp)
}
