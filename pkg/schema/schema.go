// Package schema holds the resource type schemas known to the engine and
// validates configuration against them before planning.
package schema

import "fmt"

// AttrType is the declared type of a resource attribute.
type AttrType string

const (
	TypeString AttrType = "string"
	TypeInt    AttrType = "int"
	TypeFloat  AttrType = "float"
	TypeBool   AttrType = "bool"
	TypeList   AttrType = "list"
	TypeMap    AttrType = "map"
	TypeAny    AttrType = "any"
)

// AttrSchema describes a single attribute of a resource type.
type AttrSchema struct {
	Type AttrType

	// Required attributes must be set in configuration.
	Required bool

	// Computed attributes are produced by the provider and may not be set
	// in configuration.
	Computed bool

	// ForcesReplacement marks attributes whose change requires the resource
	// to be destroyed and recreated.
	ForcesReplacement bool
}

// ResourceSchema describes a resource type: its attribute names, types and
// whether each is computed or required.
type ResourceSchema struct {
	Type       string // e.g., "aws.s3.Bucket"
	Provider   string
	Attributes map[string]*AttrSchema
}

// SchemaError reports an unknown resource type or an invalid attribute.
// It is fatal and surfaced at configuration load time, before planning.
type SchemaError struct {
	Address   string // resource address, if known
	Type      string // resource type
	Attribute string // offending attribute, if any
	Detail    string
}

func (e *SchemaError) Error() string {
	switch {
	case e.Attribute != "" && e.Address != "":
		return fmt.Sprintf("schema violation in %s: attribute %q: %s", e.Address, e.Attribute, e.Detail)
	case e.Attribute != "":
		return fmt.Sprintf("schema violation in type %s: attribute %q: %s", e.Type, e.Attribute, e.Detail)
	default:
		return fmt.Sprintf("schema violation: type %s: %s", e.Type, e.Detail)
	}
}
