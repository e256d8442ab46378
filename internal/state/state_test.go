package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/terrapin-dev/terrapin/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_ReadMissingFile(t *testing.T) {
	mgr := NewManager(filepath.Join(t.TempDir(), "state.pkl"), nil)

	st, err := mgr.Read(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, st.Version)
	assert.Equal(t, 0, st.Serial)
	assert.Empty(t, st.Resources)
}

func TestManager_WriteMintsLineage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.pkl")
	mgr := NewManager(path, nil)

	st := &ir.State{Version: 1, Serial: 1}
	require.NoError(t, mgr.Write(context.Background(), st))
	require.NotEmpty(t, st.Lineage)

	first := st.Lineage
	require.NoError(t, mgr.Write(context.Background(), st))
	assert.Equal(t, first, st.Lineage, "lineage must be preserved across writes")
}

func TestManager_WriteContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.pkl")
	mgr := NewManager(path, nil)

	st := &ir.State{
		Version: 1,
		Serial:  7,
		Lineage: "test-lineage",
		Resources: []*ir.ResourceState{
			{
				Type:       "aws.s3.Bucket",
				Name:       "logs",
				Provider:   "aws",
				Inputs:     map[string]any{"bucket": "acme-logs"},
				InputsHash: "abc123",
				Outputs:    map[string]any{"id": "acme-logs", "arn": "arn:aws:s3:::acme-logs"},
			},
		},
	}
	require.NoError(t, mgr.Write(context.Background(), st))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(raw)

	assert.Contains(t, content, "version = 1")
	assert.Contains(t, content, "serial = 7")
	assert.Contains(t, content, `lineage = "test-lineage"`)
	assert.Contains(t, content, `type = "aws.s3.Bucket"`)
	assert.Contains(t, content, `name = "logs"`)
	assert.Contains(t, content, `inputsHash = "abc123"`)
	assert.Contains(t, content, `["arn"] = "arn:aws:s3:::acme-logs"`)
}

func TestSerializeState_EmptyCollections(t *testing.T) {
	st := &ir.State{
		Version: 1,
		Lineage: "l",
		Resources: []*ir.ResourceState{
			{Type: "null.Resource", Name: "bare", Provider: "null"},
		},
	}

	out := SerializeState(st)
	assert.Contains(t, out, "outputs = new {}")
	assert.Contains(t, out, "inputs = new {}")
	assert.NotContains(t, out, "tainted")
	assert.NotContains(t, out, "dependencies")
}

func TestSerializeState_TaintedAndDependencies(t *testing.T) {
	st := &ir.State{
		Version: 1,
		Lineage: "l",
		Resources: []*ir.ResourceState{
			{
				Type:         "null.Resource",
				Name:         "a",
				Provider:     "null",
				Tainted:      true,
				Dependencies: []string{"null.Resource.base"},
			},
		},
	}

	out := SerializeState(st)
	assert.Contains(t, out, "tainted = true")
	assert.Contains(t, out, `"null.Resource.base"`)
}

func TestSerializePklValue(t *testing.T) {
	tests := []struct {
		name string
		val  any
		want string
	}{
		{"string", "hello", `"hello"`},
		{"bool", true, "true"},
		{"int", 42, "42"},
		{"whole float", float64(3), "3"},
		{"fractional float", 2.5, "2.5"},
		{"nil", nil, "null"},
		{"empty map", map[string]any{}, "new {}"},
		{"empty list", []any{}, "new Listing {}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, serializePklValue(tt.val, 0))
		})
	}
}

func TestSerializePklValue_Nested(t *testing.T) {
	out := serializePklValue(map[string]any{
		"env": "prod",
	}, 0)
	assert.Contains(t, out, `["env"] = "prod"`)

	out = serializePklValue([]any{"a", "b"}, 0)
	assert.Contains(t, out, "new Listing {")
	assert.Contains(t, out, `"a"`)
	assert.Contains(t, out, `"b"`)
}
