package ir

import "fmt"

// State represents the persistent state: the last-known real-world
// attributes of every managed resource.
type State struct {
	Version   int              `pkl:"version" json:"version"`
	Serial    int              `pkl:"serial" json:"serial"`
	Lineage   string           `pkl:"lineage" json:"lineage"`
	Resources []*ResourceState `pkl:"resources" json:"resources"`
	Outputs   map[string]any   `pkl:"outputs" json:"outputs,omitempty"`
}

type ResourceState struct {
	Type         string         `pkl:"type" json:"type"`
	Name         string         `pkl:"name" json:"name"`
	Provider     string         `pkl:"provider" json:"provider"`
	Inputs       map[string]any `pkl:"inputs" json:"inputs"` // User provided
	InputsHash   string         `pkl:"inputsHash" json:"inputsHash,omitempty"`
	Outputs      map[string]any `pkl:"outputs" json:"outputs"` // Provider returned
	Dependencies []string       `pkl:"dependencies" json:"dependencies,omitempty"`
	Tainted      bool           `pkl:"tainted" json:"tainted,omitempty"`
}

// Addr returns the record address (type.name).
func (r *ResourceState) Addr() string {
	return fmt.Sprintf("%s.%s", r.Type, r.Name)
}
