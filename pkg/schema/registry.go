package schema

import (
	"strings"
	"sync"
)

// Registry holds the schemas of all registered resource types.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*ResourceSchema
}

func NewRegistry() *Registry {
	return &Registry{
		schemas: make(map[string]*ResourceSchema),
	}
}

// Register adds resource schemas to the registry. Later registrations for
// the same type replace earlier ones.
func (r *Registry) Register(schemas ...*ResourceSchema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range schemas {
		r.schemas[s.Type] = s
	}
}

// Lookup returns the schema for a resource type.
func (r *Registry) Lookup(resourceType string) (*ResourceSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[resourceType]
	return s, ok
}

// Types returns all registered resource type names.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.schemas))
	for t := range r.schemas {
		types = append(types, t)
	}
	return types
}

// Validate checks a resource's properties against the registered schema for
// its type. It returns a *SchemaError for unknown types, unknown attributes,
// missing required attributes, attempts to set computed attributes, or
// values of the wrong primitive type.
func (r *Registry) Validate(addr, resourceType string, props map[string]any) error {
	s, ok := r.Lookup(resourceType)
	if !ok {
		return &SchemaError{Address: addr, Type: resourceType, Detail: "unknown resource type"}
	}

	for name, attr := range s.Attributes {
		val, set := props[name]
		if attr.Required && (!set || val == nil) {
			return &SchemaError{Address: addr, Type: resourceType, Attribute: name, Detail: "required attribute is not set"}
		}
		if attr.Computed && set {
			return &SchemaError{Address: addr, Type: resourceType, Attribute: name, Detail: "attribute is computed and may not be set in configuration"}
		}
	}

	for name, val := range props {
		attr, known := s.Attributes[name]
		if !known {
			return &SchemaError{Address: addr, Type: resourceType, Attribute: name, Detail: "unknown attribute"}
		}
		if err := checkType(addr, resourceType, name, attr.Type, val); err != nil {
			return err
		}
	}

	return nil
}

// checkType validates a value against a declared attribute type. Reference
// placeholders are deferred: their concrete value is only known once the
// referenced resource has been applied.
func checkType(addr, resourceType, name string, want AttrType, val any) error {
	if val == nil || want == TypeAny {
		return nil
	}
	if s, ok := val.(string); ok && isDeferred(s) {
		return nil
	}

	ok := true
	switch want {
	case TypeString:
		_, ok = val.(string)
	case TypeInt:
		switch val.(type) {
		case int, int32, int64, float64: // PKL integers decode as int or float64 via JSON round-trips
		default:
			ok = false
		}
	case TypeFloat:
		switch val.(type) {
		case float32, float64, int, int64:
		default:
			ok = false
		}
	case TypeBool:
		_, ok = val.(bool)
	case TypeList:
		_, ok = val.([]any)
	case TypeMap:
		switch val.(type) {
		case map[string]any, map[any]any, map[string]string:
		default:
			ok = false
		}
	}

	if !ok {
		return &SchemaError{
			Address:   addr,
			Type:      resourceType,
			Attribute: name,
			Detail:    "value does not match declared type " + string(want),
		}
	}
	return nil
}

// isDeferred reports whether a string value is a reference or interpolation
// placeholder that cannot be type-checked until apply time.
func isDeferred(s string) bool {
	return strings.HasPrefix(s, "ref://") || strings.Contains(s, "${")
}
