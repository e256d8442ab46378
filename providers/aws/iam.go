package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	pp "github.com/terrapin-dev/terrapin/pkg/provider"
)

type RoleConfig struct {
	Name             string            `json:"name"`
	AssumeRolePolicy string            `json:"assumeRolePolicy"`
	Tags             map[string]string `json:"tags"`
}

type RoleState struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	ARN  string `json:"arn"`
}

func (p *Provider) applyRole(ctx context.Context, req *pp.ApplyRequest) (*pp.ApplyResponse, error) {
	var desired RoleConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired config: %w", err)
	}

	// Updating the trust policy in place; the role itself is create-once.
	if req.Prior != nil {
		var prior RoleState
		if err := json.Unmarshal(req.Prior, &prior); err == nil && prior.Name == desired.Name && prior.Name != "" {
			_, err := p.iamClient.UpdateAssumeRolePolicy(ctx, &iam.UpdateAssumeRolePolicyInput{
				RoleName:       &desired.Name,
				PolicyDocument: &desired.AssumeRolePolicy,
			})
			if err != nil {
				return nil, classify("update assume role policy", err)
			}
			stateJSON, _ := json.Marshal(prior)
			return &pp.ApplyResponse{NewState: stateJSON}, nil
		}
	}

	input := &iam.CreateRoleInput{
		RoleName:                 &desired.Name,
		AssumeRolePolicyDocument: &desired.AssumeRolePolicy,
	}
	if len(desired.Tags) > 0 {
		var tags []types.Tag
		for k, v := range desired.Tags {
			key, value := k, v
			tags = append(tags, types.Tag{Key: &key, Value: &value})
		}
		input.Tags = tags
	}

	resp, err := p.iamClient.CreateRole(ctx, input)
	if err != nil {
		return nil, classify("create role", err)
	}

	newState := RoleState{
		ID:   *resp.Role.RoleName,
		Name: *resp.Role.RoleName,
		ARN:  *resp.Role.Arn,
	}
	stateJSON, _ := json.Marshal(newState)

	return &pp.ApplyResponse{NewState: stateJSON}, nil
}

func (p *Provider) readRole(ctx context.Context, req *pp.ReadRequest) (*pp.ReadResponse, error) {
	var current RoleState
	if err := json.Unmarshal(req.Current, &current); err != nil {
		return nil, fmt.Errorf("failed to unmarshal current state: %w", err)
	}

	resp, err := p.iamClient.GetRole(ctx, &iam.GetRoleInput{
		RoleName: &current.Name,
	})
	if err != nil {
		var nfe *types.NoSuchEntityException
		if errors.As(err, &nfe) {
			return &pp.ReadResponse{Exists: false}, nil
		}
		return nil, classify("get role", err)
	}

	current.ARN = *resp.Role.Arn
	stateJSON, _ := json.Marshal(current)

	return &pp.ReadResponse{Exists: true, NewState: stateJSON}, nil
}

func (p *Provider) deleteRole(ctx context.Context, req *pp.DeleteRequest) (*pp.DeleteResponse, error) {
	if req.ID == "" {
		return &pp.DeleteResponse{}, nil
	}

	_, err := p.iamClient.DeleteRole(ctx, &iam.DeleteRoleInput{
		RoleName: &req.ID,
	})
	if err != nil {
		var nfe *types.NoSuchEntityException
		if errors.As(err, &nfe) {
			return &pp.DeleteResponse{}, nil
		}
		return nil, classify("delete role", err)
	}

	return &pp.DeleteResponse{}, nil
}
