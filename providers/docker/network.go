package docker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	pp "github.com/terrapin-dev/terrapin/pkg/provider"
)

type NetworkConfig struct {
	Name     string            `json:"name"`
	Driver   string            `json:"driver"`
	Internal bool              `json:"internal"`
	Labels   map[string]string `json:"labels"`
}

type NetworkState struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Driver string `json:"driver"`
}

func (p *Provider) applyNetwork(ctx context.Context, req *pp.ApplyRequest) (*pp.ApplyResponse, error) {
	var desired NetworkConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired config: %w", err)
	}

	resp, err := p.client.NetworkCreate(ctx, desired.Name, types.NetworkCreate{
		Driver:   desired.Driver,
		Internal: desired.Internal,
		Labels:   desired.Labels,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create network: %w", err)
	}

	newState := NetworkState{
		ID:     resp.ID,
		Name:   desired.Name,
		Driver: desired.Driver,
	}
	stateJSON, _ := json.Marshal(newState)

	return &pp.ApplyResponse{NewState: stateJSON}, nil
}

func (p *Provider) deleteNetwork(ctx context.Context, req *pp.DeleteRequest) (*pp.DeleteResponse, error) {
	if req.ID != "" {
		if err := p.client.NetworkRemove(ctx, req.ID); err != nil {
			if !client.IsErrNotFound(err) {
				return nil, fmt.Errorf("failed to remove network: %w", err)
			}
		}
	}
	return &pp.DeleteResponse{}, nil
}
