// Package provider defines the contract every resource provider implements:
// plan, apply, read and delete against a remote API, with JSON-encoded
// desired and prior payloads. Providers are statically registered and run
// in-process.
package provider

import (
	"context"
	"encoding/json"

	"github.com/terrapin-dev/terrapin/pkg/schema"
)

// Action is the change a provider proposes for a resource.
type Action int

const (
	ActionNoOp Action = iota
	ActionCreate
	ActionUpdate
	ActionReplace
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "CREATE"
	case ActionUpdate:
		return "UPDATE"
	case ActionReplace:
		return "REPLACE"
	case ActionDelete:
		return "DELETE"
	default:
		return "NOOP"
	}
}

// ParseAction converts a stored action string back to an Action.
func ParseAction(s string) Action {
	switch s {
	case "CREATE":
		return ActionCreate
	case "UPDATE":
		return ActionUpdate
	case "REPLACE":
		return ActionReplace
	case "DELETE":
		return ActionDelete
	default:
		return ActionNoOp
	}
}

type ConfigureRequest struct {
	Settings map[string]string
}

type Diagnostic struct {
	Severity string // "error" or "warning"
	Summary  string
	Detail   string
}

type ConfigureResponse struct {
	Diagnostics []Diagnostic
}

type PlanRequest struct {
	Type    string
	Name    string
	Desired json.RawMessage // nil means the resource is being removed
	Prior   json.RawMessage // nil means no state record exists
}

type PlanResponse struct {
	Action            Action
	ChangedAttributes []string
}

type ApplyRequest struct {
	Type    string
	Name    string
	Desired json.RawMessage
	Prior   json.RawMessage
}

type ApplyResponse struct {
	NewState json.RawMessage
}

type ReadRequest struct {
	Type    string
	ID      string
	Current json.RawMessage
}

type ReadResponse struct {
	Exists   bool
	NewState json.RawMessage
}

type DeleteRequest struct {
	Type    string
	ID      string
	Current json.RawMessage
}

type DeleteResponse struct{}

// Interface is the capability each resource type's provider implements.
type Interface interface {
	// Configure prepares the provider (credentials, clients).
	Configure(ctx context.Context, req *ConfigureRequest) (*ConfigureResponse, error)

	// Schemas returns the resource type schemas this provider serves.
	Schemas() []*schema.ResourceSchema

	// Plan proposes the action needed to reconcile desired with prior.
	Plan(ctx context.Context, req *PlanRequest) (*PlanResponse, error)

	// Apply performs a create or update and returns the new remote state.
	Apply(ctx context.Context, req *ApplyRequest) (*ApplyResponse, error)

	// Read refreshes the remote state of an existing resource.
	Read(ctx context.Context, req *ReadRequest) (*ReadResponse, error)

	// Delete destroys the remote resource.
	Delete(ctx context.Context, req *DeleteRequest) (*DeleteResponse, error)
}
