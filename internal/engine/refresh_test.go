package engine

import (
	"context"
	"testing"

	"github.com/terrapin-dev/terrapin/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefresh_KeepsExistingRecords(t *testing.T) {
	eng := newTestEngine()

	st := &ir.State{
		Version: 1,
		Serial:  5,
		Resources: []*ir.ResourceState{
			{
				Type:     "null.Resource",
				Name:     "a",
				Provider: "null",
				Outputs: map[string]any{
					"id":       "null-a",
					"triggers": map[string]any{"env": "prod"},
				},
			},
		},
	}

	refreshed, err := eng.Refresh(context.Background(), st)
	require.NoError(t, err)

	require.Len(t, refreshed.Resources, 1)
	assert.Equal(t, "null-a", refreshed.Resources[0].Outputs["id"])
	assert.Equal(t, 6, refreshed.Serial)
}

func TestRefresh_UnknownProvider(t *testing.T) {
	eng := newTestEngine()

	st := &ir.State{
		Version: 1,
		Resources: []*ir.ResourceState{
			{Type: "custom.Thing", Name: "x", Provider: "nonexistent"},
		},
	}

	_, err := eng.Refresh(context.Background(), st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonexistent")
}

func TestRefresh_EmptyState(t *testing.T) {
	eng := newTestEngine()

	st := &ir.State{Version: 1, Serial: 2}
	refreshed, err := eng.Refresh(context.Background(), st)
	require.NoError(t, err)

	assert.Empty(t, refreshed.Resources)
	assert.Equal(t, 3, refreshed.Serial)
}
