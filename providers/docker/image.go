package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	pp "github.com/terrapin-dev/terrapin/pkg/provider"
)

type ImageConfig struct {
	Name         string `json:"name"`
	BuildContext string `json:"buildContext"`
	Dockerfile   string `json:"dockerfile"`
}

type ImageState struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	BuildContext string `json:"buildContext"`
}

func (p *Provider) planImage(req *pp.PlanRequest) (*pp.PlanResponse, error) {
	var desired ImageConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	var prior ImageState
	if err := json.Unmarshal(req.Prior, &prior); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prior: %w", err)
	}

	if desired.Name != prior.Name {
		return &pp.PlanResponse{
			Action:            pp.ActionReplace,
			ChangedAttributes: []string{"name"},
		}, nil
	}
	if desired.BuildContext != prior.BuildContext {
		return &pp.PlanResponse{
			Action:            pp.ActionUpdate,
			ChangedAttributes: []string{"buildContext"},
		}, nil
	}

	return &pp.PlanResponse{Action: pp.ActionNoOp}, nil
}

func (p *Provider) applyImage(ctx context.Context, req *pp.ApplyRequest) (*pp.ApplyResponse, error) {
	var desired ImageConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired config: %w", err)
	}

	if desired.BuildContext != "" {
		tar, err := archive.TarWithOptions(desired.BuildContext, &archive.TarOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to create build context tar: %w", err)
		}

		opts := types.ImageBuildOptions{
			Tags:       []string{desired.Name},
			Dockerfile: desired.Dockerfile,
			Remove:     true,
		}

		resp, err := p.client.ImageBuild(ctx, tar, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to build image: %w", err)
		}
		defer resp.Body.Close()

		// Drain output to prevent blocking
		io.Copy(os.Stdout, resp.Body)
	} else {
		reader, err := p.client.ImagePull(ctx, desired.Name, image.PullOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to pull image: %w", err)
		}
		io.Copy(os.Stdout, reader)
		reader.Close()
	}

	inspect, _, err := p.client.ImageInspectWithRaw(ctx, desired.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect image: %w", err)
	}

	newState := ImageState{
		ID:           inspect.ID,
		Name:         desired.Name,
		BuildContext: desired.BuildContext,
	}
	stateJSON, _ := json.Marshal(newState)

	return &pp.ApplyResponse{NewState: stateJSON}, nil
}

func (p *Provider) readImage(ctx context.Context, req *pp.ReadRequest) (*pp.ReadResponse, error) {
	var current ImageState
	if err := json.Unmarshal(req.Current, &current); err != nil {
		return nil, fmt.Errorf("failed to unmarshal current state: %w", err)
	}

	ref := current.ID
	if ref == "" {
		ref = current.Name
	}
	inspect, _, err := p.client.ImageInspectWithRaw(ctx, ref)
	if err != nil {
		if client.IsErrNotFound(err) {
			return &pp.ReadResponse{Exists: false}, nil
		}
		return nil, fmt.Errorf("failed to inspect image: %w", err)
	}

	current.ID = inspect.ID
	stateJSON, _ := json.Marshal(current)

	return &pp.ReadResponse{Exists: true, NewState: stateJSON}, nil
}

func (p *Provider) deleteImage(ctx context.Context, req *pp.DeleteRequest) (*pp.DeleteResponse, error) {
	if req.ID != "" {
		_, err := p.client.ImageRemove(ctx, req.ID, image.RemoveOptions{Force: true})
		if err != nil && !client.IsErrNotFound(err) {
			return nil, fmt.Errorf("failed to remove image: %w", err)
		}
	}
	return &pp.DeleteResponse{}, nil
}
