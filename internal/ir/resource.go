package ir

import "fmt"

// Resource represents a single managed resource.
type Resource struct {
	Type       string         `pkl:"type" json:"type"` // e.g., "aws.s3.Bucket"
	Name       string         `pkl:"name" json:"name"`
	Provider   string         `pkl:"provider" json:"provider"`
	Lifecycle  *Lifecycle     `pkl:"lifecycle" json:"lifecycle,omitempty"`
	DependsOn  []string       `pkl:"dependsOn" json:"dependsOn,omitempty"`
	Count      int            `pkl:"count" json:"count,omitempty"`
	ForEach    map[string]any `pkl:"forEach" json:"forEach,omitempty"`
	Timeout    string         `pkl:"timeout" json:"timeout,omitempty"`
	Properties map[string]any `pkl:"properties" json:"properties"` // Dynamic properties
}

// Addr returns the resource address (type.name) used throughout the engine.
func (r *Resource) Addr() string {
	t := r.Type
	if t == "" {
		t = "null.Resource"
	}
	return fmt.Sprintf("%s.%s", t, r.Name)
}

type Lifecycle struct {
	CreateBeforeDestroy bool     `pkl:"createBeforeDestroy" json:"createBeforeDestroy,omitempty"`
	PreventDestroy      bool     `pkl:"preventDestroy" json:"preventDestroy,omitempty"`
	IgnoreChanges       []string `pkl:"ignoreChanges" json:"ignoreChanges,omitempty"`
}
