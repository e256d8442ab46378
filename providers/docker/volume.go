package docker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	pp "github.com/terrapin-dev/terrapin/pkg/provider"
)

type VolumeConfig struct {
	Name   string `json:"name"`
	Driver string `json:"driver"`
}

type VolumeState struct {
	// Volumes have no server-side ID; the name is the identifier.
	ID     string `json:"id"`
	Name   string `json:"name"`
	Driver string `json:"driver"`
}

func (p *Provider) applyVolume(ctx context.Context, req *pp.ApplyRequest) (*pp.ApplyResponse, error) {
	var desired VolumeConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired config: %w", err)
	}

	vol, err := p.client.VolumeCreate(ctx, volume.CreateOptions{
		Name:   desired.Name,
		Driver: desired.Driver,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create volume: %w", err)
	}

	newState := VolumeState{
		ID:     vol.Name,
		Name:   vol.Name,
		Driver: vol.Driver,
	}
	stateJSON, _ := json.Marshal(newState)

	return &pp.ApplyResponse{NewState: stateJSON}, nil
}

func (p *Provider) deleteVolume(ctx context.Context, req *pp.DeleteRequest) (*pp.DeleteResponse, error) {
	if req.ID != "" {
		if err := p.client.VolumeRemove(ctx, req.ID, true); err != nil {
			if !client.IsErrNotFound(err) {
				return nil, fmt.Errorf("failed to remove volume: %w", err)
			}
		}
	}
	return &pp.DeleteResponse{}, nil
}
