// Package null implements a provider whose resources exist only in state.
// It is the baseline provider and the test double for the engine.
package null

import (
	"context"
	"encoding/json"
	"fmt"

	pp "github.com/terrapin-dev/terrapin/pkg/provider"
	"github.com/terrapin-dev/terrapin/pkg/schema"
)

// TypeResource is the single resource type this provider serves.
const TypeResource = "null.Resource"

type Provider struct{}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) Schemas() []*schema.ResourceSchema {
	return []*schema.ResourceSchema{
		{
			Type:     TypeResource,
			Provider: "null",
			Attributes: map[string]*schema.AttrSchema{
				"triggers": {Type: schema.TypeMap, ForcesReplacement: true},
				"id":       {Type: schema.TypeString, Computed: true},
			},
		},
	}
}

func (p *Provider) Configure(ctx context.Context, req *pp.ConfigureRequest) (*pp.ConfigureResponse, error) {
	return &pp.ConfigureResponse{}, nil
}

func (p *Provider) Plan(ctx context.Context, req *pp.PlanRequest) (*pp.PlanResponse, error) {
	if req.Desired == nil && req.Prior != nil {
		return &pp.PlanResponse{Action: pp.ActionDelete}, nil
	}
	if req.Prior == nil {
		return &pp.PlanResponse{Action: pp.ActionCreate}, nil
	}

	var desired Config
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired config: %w", err)
	}

	var prior State
	if err := json.Unmarshal(req.Prior, &prior); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
	}

	// Triggers are the only input: any change forces replacement.
	if !equal(desired.Triggers, prior.Triggers) {
		return &pp.PlanResponse{
			Action:            pp.ActionReplace,
			ChangedAttributes: []string{"triggers"},
		}, nil
	}

	return &pp.PlanResponse{Action: pp.ActionNoOp}, nil
}

func (p *Provider) Apply(ctx context.Context, req *pp.ApplyRequest) (*pp.ApplyResponse, error) {
	var desired Config
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	st := State{
		ID:       fmt.Sprintf("null-%s", req.Name),
		Triggers: desired.Triggers,
	}
	stateBytes, _ := json.Marshal(st)

	return &pp.ApplyResponse{NewState: stateBytes}, nil
}

func (p *Provider) Read(ctx context.Context, req *pp.ReadRequest) (*pp.ReadResponse, error) {
	// Null resources have no remote side; state is authoritative.
	return &pp.ReadResponse{
		Exists:   true,
		NewState: req.Current,
	}, nil
}

func (p *Provider) Delete(ctx context.Context, req *pp.DeleteRequest) (*pp.DeleteResponse, error) {
	return &pp.DeleteResponse{}, nil
}

// Internal structs for JSON handling
type Config struct {
	Triggers map[string]string `json:"triggers"`
}

type State struct {
	ID       string            `json:"id"`
	Triggers map[string]string `json:"triggers"`
}

func equal(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
