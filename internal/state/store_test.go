package state

import (
	"fmt"
	"sync"
	"testing"

	"github.com/terrapin-dev/terrapin/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_GetCommitRemove(t *testing.T) {
	st := &ir.State{Version: 1}
	store := NewStore(st)

	_, ok := store.Get("null.Resource.a")
	assert.False(t, ok)

	store.Commit(&ir.ResourceState{
		Type:     "null.Resource",
		Name:     "a",
		Provider: "null",
		Outputs:  map[string]any{"id": "null-a"},
	})

	rec, ok := store.Get("null.Resource.a")
	require.True(t, ok)
	assert.Equal(t, "null-a", rec.Outputs["id"])
	assert.Len(t, st.Resources, 1)

	// Commit for an existing address replaces the record in place.
	store.Commit(&ir.ResourceState{
		Type:     "null.Resource",
		Name:     "a",
		Provider: "null",
		Outputs:  map[string]any{"id": "null-a-v2"},
	})
	rec, ok = store.Get("null.Resource.a")
	require.True(t, ok)
	assert.Equal(t, "null-a-v2", rec.Outputs["id"])
	assert.Len(t, st.Resources, 1)

	store.Remove("null.Resource.a")
	_, ok = store.Get("null.Resource.a")
	assert.False(t, ok)
	assert.Empty(t, st.Resources)
}

func TestStore_RemoveReindexes(t *testing.T) {
	st := &ir.State{
		Version: 1,
		Resources: []*ir.ResourceState{
			{Type: "null.Resource", Name: "a", Provider: "null"},
			{Type: "null.Resource", Name: "b", Provider: "null"},
			{Type: "null.Resource", Name: "c", Provider: "null"},
		},
	}
	store := NewStore(st)

	store.Remove("null.Resource.b")

	rec, ok := store.Get("null.Resource.c")
	require.True(t, ok)
	assert.Equal(t, "c", rec.Name)
	assert.Len(t, st.Resources, 2)
}

func TestStore_ConcurrentCommits(t *testing.T) {
	st := &ir.State{Version: 1}
	store := NewStore(st)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := fmt.Sprintf("r%d", n)
			unlock := store.LockRecord("null.Resource." + name)
			defer unlock()
			store.Commit(&ir.ResourceState{
				Type:     "null.Resource",
				Name:     name,
				Provider: "null",
			})
		}(i)
	}
	wg.Wait()

	assert.Len(t, st.Resources, 50)
}

func TestStore_LockRecordSerializesPerAddress(t *testing.T) {
	store := NewStore(&ir.State{Version: 1})

	order := make(chan int, 2)
	unlock := store.LockRecord("null.Resource.a")

	done := make(chan struct{})
	go func() {
		u := store.LockRecord("null.Resource.a")
		order <- 2
		u()
		close(done)
	}()

	order <- 1
	unlock()
	<-done

	assert.Equal(t, 1, <-order)
	assert.Equal(t, 2, <-order)
}

func TestStore_ResolveReferences(t *testing.T) {
	st := &ir.State{
		Version: 1,
		Resources: []*ir.ResourceState{
			{
				Type:     "aws.ec2.SecurityGroup",
				Name:     "web-sg",
				Provider: "aws",
				Inputs:   map[string]any{"name": "web-sg"},
				Outputs:  map[string]any{"id": "sg-12345"},
			},
		},
	}
	store := NewStore(st)

	resolved := store.ResolveReferences(map[string]any{
		"securityGroup": "ref://aws.ec2.SecurityGroup/web-sg/id",
		"plain":         "unchanged",
		"nested": map[string]any{
			"sg": "ref://aws.ec2.SecurityGroup/web-sg/id",
		},
		"list": []any{"ref://aws.ec2.SecurityGroup/web-sg/id", 42},
	})

	m := resolved.(map[string]any)
	assert.Equal(t, "sg-12345", m["securityGroup"])
	assert.Equal(t, "unchanged", m["plain"])
	assert.Equal(t, "sg-12345", m["nested"].(map[string]any)["sg"])
	assert.Equal(t, "sg-12345", m["list"].([]any)[0])
	assert.Equal(t, 42, m["list"].([]any)[1])
}

func TestStore_ResolveReferences_FallsBackToInputs(t *testing.T) {
	st := &ir.State{
		Version: 1,
		Resources: []*ir.ResourceState{
			{
				Type:     "aws.s3.Bucket",
				Name:     "logs",
				Provider: "aws",
				Inputs:   map[string]any{"bucket": "acme-logs"},
				Outputs:  map[string]any{"id": "acme-logs"},
			},
		},
	}
	store := NewStore(st)

	resolved := store.ResolveReferences("ref://aws.s3.Bucket/logs/bucket")
	assert.Equal(t, "acme-logs", resolved)
}

func TestStore_ResolveReferences_UnresolvableLeftAsIs(t *testing.T) {
	store := NewStore(&ir.State{Version: 1})

	// Unknown record
	resolved := store.ResolveReferences("ref://aws.s3.Bucket/missing/id")
	assert.Equal(t, "ref://aws.s3.Bucket/missing/id", resolved)

	// Malformed reference
	resolved = store.ResolveReferences("ref://short")
	assert.Equal(t, "ref://short", resolved)
}
