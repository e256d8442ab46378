// Package docker implements a provider for local Docker resources:
// images, containers, networks and volumes.
package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/client"
	pp "github.com/terrapin-dev/terrapin/pkg/provider"
	"github.com/terrapin-dev/terrapin/pkg/schema"
)

const (
	TypeImage     = "docker.Image"
	TypeContainer = "docker.Container"
	TypeNetwork   = "docker.Network"
	TypeVolume    = "docker.Volume"
)

type Provider struct {
	client *client.Client
}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) ensureClient() error {
	if p.client != nil {
		return nil
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return err
	}
	p.client = cli
	return nil
}

func (p *Provider) Schemas() []*schema.ResourceSchema {
	return []*schema.ResourceSchema{
		{
			Type:     TypeImage,
			Provider: "docker",
			Attributes: map[string]*schema.AttrSchema{
				"name":         {Type: schema.TypeString, Required: true, ForcesReplacement: true},
				"buildContext": {Type: schema.TypeString},
				"dockerfile":   {Type: schema.TypeString},
				"id":           {Type: schema.TypeString, Computed: true},
			},
		},
		{
			Type:     TypeContainer,
			Provider: "docker",
			Attributes: map[string]*schema.AttrSchema{
				"name":     {Type: schema.TypeString, Required: true, ForcesReplacement: true},
				"image":    {Type: schema.TypeString, Required: true, ForcesReplacement: true},
				"command":  {Type: schema.TypeList},
				"ports":    {Type: schema.TypeMap},
				"env":      {Type: schema.TypeMap},
				"labels":   {Type: schema.TypeMap},
				"volumes":  {Type: schema.TypeList},
				"networks": {Type: schema.TypeList},
				"restart":  {Type: schema.TypeString},
				"id":       {Type: schema.TypeString, Computed: true},
			},
		},
		{
			Type:     TypeNetwork,
			Provider: "docker",
			Attributes: map[string]*schema.AttrSchema{
				"name":     {Type: schema.TypeString, Required: true, ForcesReplacement: true},
				"driver":   {Type: schema.TypeString},
				"internal": {Type: schema.TypeBool},
				"labels":   {Type: schema.TypeMap},
				"id":       {Type: schema.TypeString, Computed: true},
			},
		},
		{
			Type:     TypeVolume,
			Provider: "docker",
			Attributes: map[string]*schema.AttrSchema{
				"name":   {Type: schema.TypeString, Required: true, ForcesReplacement: true},
				"driver": {Type: schema.TypeString},
				"id":     {Type: schema.TypeString, Computed: true},
			},
		},
	}
}

func (p *Provider) Configure(ctx context.Context, req *pp.ConfigureRequest) (*pp.ConfigureResponse, error) {
	if err := p.ensureClient(); err != nil {
		return &pp.ConfigureResponse{
			Diagnostics: []pp.Diagnostic{
				{
					Severity: "error",
					Summary:  "Failed to create Docker client",
					Detail:   err.Error(),
				},
			},
		}, nil
	}
	return &pp.ConfigureResponse{}, nil
}

func (p *Provider) Plan(ctx context.Context, req *pp.PlanRequest) (*pp.PlanResponse, error) {
	if req.Desired == nil && req.Prior != nil {
		return &pp.PlanResponse{Action: pp.ActionDelete}, nil
	}
	if req.Prior == nil {
		return &pp.PlanResponse{Action: pp.ActionCreate}, nil
	}

	switch req.Type {
	case TypeContainer:
		return p.planContainer(req)
	case TypeImage:
		return p.planImage(req)
	}

	// Networks and volumes are identified by name; nothing mutable beyond that.
	return &pp.PlanResponse{Action: pp.ActionNoOp}, nil
}

func (p *Provider) Apply(ctx context.Context, req *pp.ApplyRequest) (*pp.ApplyResponse, error) {
	if err := p.ensureClient(); err != nil {
		return nil, err
	}

	switch req.Type {
	case TypeImage:
		return p.applyImage(ctx, req)
	case TypeContainer:
		return p.applyContainer(ctx, req)
	case TypeNetwork:
		return p.applyNetwork(ctx, req)
	case TypeVolume:
		return p.applyVolume(ctx, req)
	}

	return nil, fmt.Errorf("unknown resource type: %s", req.Type)
}

func (p *Provider) Read(ctx context.Context, req *pp.ReadRequest) (*pp.ReadResponse, error) {
	if err := p.ensureClient(); err != nil {
		return nil, err
	}

	switch req.Type {
	case TypeContainer:
		return p.readContainer(ctx, req)
	case TypeImage:
		return p.readImage(ctx, req)
	}

	return &pp.ReadResponse{Exists: true, NewState: req.Current}, nil
}

func (p *Provider) Delete(ctx context.Context, req *pp.DeleteRequest) (*pp.DeleteResponse, error) {
	if err := p.ensureClient(); err != nil {
		return nil, err
	}

	switch req.Type {
	case TypeImage:
		return p.deleteImage(ctx, req)
	case TypeContainer:
		return p.deleteContainer(ctx, req)
	case TypeNetwork:
		return p.deleteNetwork(ctx, req)
	case TypeVolume:
		return p.deleteVolume(ctx, req)
	}

	return nil, fmt.Errorf("unknown resource type: %s", req.Type)
}
