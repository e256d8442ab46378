package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	pp "github.com/terrapin-dev/terrapin/pkg/provider"
)

type ContainerConfig struct {
	Name     string            `json:"name"`
	Image    string            `json:"image"`
	Command  []string          `json:"command"`
	Ports    map[string]int    `json:"ports"` // host port -> container port
	Env      map[string]string `json:"env"`
	Labels   map[string]string `json:"labels"`
	Volumes  []string          `json:"volumes"`
	Networks []string          `json:"networks"`
	Restart  string            `json:"restart"`
}

type ContainerState struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	ImageName string            `json:"image"`
	Env       map[string]string `json:"env"`
}

func (p *Provider) planContainer(req *pp.PlanRequest) (*pp.PlanResponse, error) {
	var desired ContainerConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	var prior ContainerState
	if err := json.Unmarshal(req.Prior, &prior); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prior: %w", err)
	}

	if desired.Image != prior.ImageName {
		return &pp.PlanResponse{
			Action:            pp.ActionReplace,
			ChangedAttributes: []string{"image"},
		}, nil
	}
	if !envEqual(desired.Env, prior.Env) {
		return &pp.PlanResponse{
			Action:            pp.ActionReplace,
			ChangedAttributes: []string{"env"},
		}, nil
	}

	return &pp.PlanResponse{Action: pp.ActionNoOp}, nil
}

func (p *Provider) applyContainer(ctx context.Context, req *pp.ApplyRequest) (*pp.ApplyResponse, error) {
	var desired ContainerConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired config: %w", err)
	}

	// Any change to a running container means recreate on the Docker side.
	if req.Prior != nil {
		var prior ContainerState
		if err := json.Unmarshal(req.Prior, &prior); err == nil && prior.ID != "" {
			if err := p.removeContainer(ctx, prior.ID); err != nil {
				return nil, err
			}
		}
	}

	reader, err := p.client.ImagePull(ctx, desired.Image, image.PullOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to pull image %s: %w", desired.Image, err)
	}
	io.Copy(os.Stdout, reader)
	reader.Close()

	portBindings := nat.PortMap{}
	for hostPort, containerPort := range desired.Ports {
		cp := nat.Port(fmt.Sprintf("%d/tcp", containerPort))
		portBindings[cp] = []nat.PortBinding{
			{
				HostIP:   "0.0.0.0",
				HostPort: hostPort,
			},
		}
	}

	var binds []string
	for _, v := range desired.Volumes {
		parts := strings.SplitN(v, ":", 2)
		if len(parts) > 0 && (strings.HasPrefix(parts[0], "./") || strings.HasPrefix(parts[0], "../")) {
			if abs, err := filepath.Abs(parts[0]); err == nil {
				parts[0] = abs
				binds = append(binds, strings.Join(parts, ":"))
				continue
			}
		}
		binds = append(binds, v)
	}

	hostConfig := &container.HostConfig{
		PortBindings: portBindings,
		Binds:        binds,
	}
	if len(desired.Networks) > 0 {
		hostConfig.NetworkMode = container.NetworkMode(desired.Networks[0])
	}
	if desired.Restart != "" {
		hostConfig.RestartPolicy = container.RestartPolicy{
			Name: container.RestartPolicyMode(desired.Restart),
		}
	}

	config := &container.Config{
		Image:  desired.Image,
		Cmd:    desired.Command,
		Env:    mapToEnvList(desired.Env),
		Labels: desired.Labels,
	}

	resp, err := p.client.ContainerCreate(ctx,
		config,
		hostConfig,
		&network.NetworkingConfig{},
		&v1.Platform{},
		desired.Name,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := p.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	newState := ContainerState{
		ID:        resp.ID,
		Name:      desired.Name,
		ImageName: desired.Image,
		Env:       desired.Env,
	}
	stateJSON, _ := json.Marshal(newState)

	return &pp.ApplyResponse{NewState: stateJSON}, nil
}

func (p *Provider) readContainer(ctx context.Context, req *pp.ReadRequest) (*pp.ReadResponse, error) {
	var current ContainerState
	if err := json.Unmarshal(req.Current, &current); err != nil {
		return nil, fmt.Errorf("failed to unmarshal current state: %w", err)
	}

	id := req.ID
	if id == "" {
		id = current.ID
	}
	inspect, err := p.client.ContainerInspect(ctx, id)
	if err != nil {
		if client.IsErrNotFound(err) {
			return &pp.ReadResponse{Exists: false}, nil
		}
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}

	current.ID = inspect.ID
	current.ImageName = inspect.Config.Image
	stateJSON, _ := json.Marshal(current)

	return &pp.ReadResponse{Exists: true, NewState: stateJSON}, nil
}

func (p *Provider) deleteContainer(ctx context.Context, req *pp.DeleteRequest) (*pp.DeleteResponse, error) {
	if req.ID != "" {
		if err := p.removeContainer(ctx, req.ID); err != nil {
			return nil, err
		}
	}
	return &pp.DeleteResponse{}, nil
}

func (p *Provider) removeContainer(ctx context.Context, id string) error {
	timeout := 10 // seconds
	_ = p.client.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout})
	if err := p.client.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		if !client.IsErrNotFound(err) {
			return fmt.Errorf("failed to remove container: %w", err)
		}
	}
	return nil
}

func mapToEnvList(m map[string]string) []string {
	var env []string
	for k, v := range m {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

func envEqual(a, b map[string]string) bool {
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
