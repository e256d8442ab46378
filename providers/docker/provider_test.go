package docker

import (
	"context"
	"encoding/json"
	"testing"

	pp "github.com/terrapin-dev/terrapin/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemas_CoverAllTypes(t *testing.T) {
	p := New()
	schemas := p.Schemas()

	byType := make(map[string]bool)
	for _, s := range schemas {
		byType[s.Type] = true
		assert.Equal(t, "docker", s.Provider)
	}

	for _, typ := range []string{TypeImage, TypeContainer, TypeNetwork, TypeVolume} {
		assert.True(t, byType[typ], "missing schema for %s", typ)
	}
}

func TestPlan_CreateAndDeleteShortcuts(t *testing.T) {
	p := New()
	ctx := context.Background()

	resp, err := p.Plan(ctx, &pp.PlanRequest{
		Type:    TypeContainer,
		Name:    "web",
		Desired: json.RawMessage(`{"name":"web","image":"nginx:1.25"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, pp.ActionCreate, resp.Action)

	resp, err = p.Plan(ctx, &pp.PlanRequest{
		Type:  TypeContainer,
		Name:  "web",
		Prior: json.RawMessage(`{"id":"abc123","name":"web"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, pp.ActionDelete, resp.Action)
}

func TestPlanContainer(t *testing.T) {
	p := New()
	ctx := context.Background()
	prior := json.RawMessage(`{"id":"abc123","name":"web","image":"nginx:1.25","env":{"MODE":"prod"}}`)

	tests := []struct {
		name       string
		desired    string
		wantAction pp.Action
		wantAttrs  []string
	}{
		{
			"no change",
			`{"name":"web","image":"nginx:1.25","env":{"MODE":"prod"}}`,
			pp.ActionNoOp, nil,
		},
		{
			"image change replaces",
			`{"name":"web","image":"nginx:1.26","env":{"MODE":"prod"}}`,
			pp.ActionReplace, []string{"image"},
		},
		{
			"env change replaces",
			`{"name":"web","image":"nginx:1.25","env":{"MODE":"staging"}}`,
			pp.ActionReplace, []string{"env"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := p.Plan(ctx, &pp.PlanRequest{
				Type:    TypeContainer,
				Name:    "web",
				Desired: json.RawMessage(tt.desired),
				Prior:   prior,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantAction, resp.Action)
			assert.Equal(t, tt.wantAttrs, resp.ChangedAttributes)
		})
	}
}

func TestPlanImage(t *testing.T) {
	p := New()
	ctx := context.Background()
	prior := json.RawMessage(`{"id":"sha256:aaa","name":"acme/app:v1","buildContext":"./app"}`)

	// Retag forces replacement.
	resp, err := p.Plan(ctx, &pp.PlanRequest{
		Type:    TypeImage,
		Name:    "app",
		Desired: json.RawMessage(`{"name":"acme/app:v2","buildContext":"./app"}`),
		Prior:   prior,
	})
	require.NoError(t, err)
	assert.Equal(t, pp.ActionReplace, resp.Action)

	// Build context change rebuilds in place.
	resp, err = p.Plan(ctx, &pp.PlanRequest{
		Type:    TypeImage,
		Name:    "app",
		Desired: json.RawMessage(`{"name":"acme/app:v1","buildContext":"./app-v2"}`),
		Prior:   prior,
	})
	require.NoError(t, err)
	assert.Equal(t, pp.ActionUpdate, resp.Action)
	assert.Equal(t, []string{"buildContext"}, resp.ChangedAttributes)

	// Identical config is a no-op.
	resp, err = p.Plan(ctx, &pp.PlanRequest{
		Type:    TypeImage,
		Name:    "app",
		Desired: json.RawMessage(`{"name":"acme/app:v1","buildContext":"./app"}`),
		Prior:   prior,
	})
	require.NoError(t, err)
	assert.Equal(t, pp.ActionNoOp, resp.Action)
}

func TestPlan_NetworksAndVolumesNoOpInPlace(t *testing.T) {
	p := New()
	ctx := context.Background()

	resp, err := p.Plan(ctx, &pp.PlanRequest{
		Type:    TypeNetwork,
		Name:    "backend",
		Desired: json.RawMessage(`{"name":"backend"}`),
		Prior:   json.RawMessage(`{"id":"net123","name":"backend"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, pp.ActionNoOp, resp.Action)
}

func TestMapToEnvList(t *testing.T) {
	env := mapToEnvList(map[string]string{"MODE": "prod", "PORT": "8080"})
	assert.Len(t, env, 2)
	assert.Contains(t, env, "MODE=prod")
	assert.Contains(t, env, "PORT=8080")

	assert.Empty(t, mapToEnvList(nil))
}

func TestEnvEqual(t *testing.T) {
	assert.True(t, envEqual(nil, nil))
	assert.True(t, envEqual(map[string]string{"A": "1"}, map[string]string{"A": "1"}))
	assert.False(t, envEqual(map[string]string{"A": "1"}, map[string]string{"A": "2"}))
	assert.False(t, envEqual(map[string]string{"A": "1"}, map[string]string{"A": "1", "B": "2"}))
}
