package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	pp "github.com/terrapin-dev/terrapin/pkg/provider"
)

type InstanceConfig struct {
	AMI          string            `json:"ami"`
	InstanceType string            `json:"instanceType"`
	Tags         map[string]string `json:"tags"`
}

type InstanceState struct {
	ID           string            `json:"id"`
	AMI          string            `json:"ami"`
	InstanceType string            `json:"instanceType"`
	PublicIP     string            `json:"publicIp"`
	PrivateIP    string            `json:"privateIp"`
	Tags         map[string]string `json:"tags"`
}

func (p *Provider) planInstance(req *pp.PlanRequest) (*pp.PlanResponse, error) {
	var desired InstanceConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired config: %w", err)
	}

	var prior InstanceState
	if err := json.Unmarshal(req.Prior, &prior); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
	}

	// AMI and instance type are immutable.
	if prior.AMI != "" && prior.AMI != desired.AMI {
		return &pp.PlanResponse{
			Action:            pp.ActionReplace,
			ChangedAttributes: []string{"ami"},
		}, nil
	}
	if prior.InstanceType != "" && prior.InstanceType != desired.InstanceType {
		return &pp.PlanResponse{
			Action:            pp.ActionReplace,
			ChangedAttributes: []string{"instanceType"},
		}, nil
	}

	if !tagsEqual(desired.Tags, prior.Tags) {
		return &pp.PlanResponse{
			Action:            pp.ActionUpdate,
			ChangedAttributes: []string{"tags"},
		}, nil
	}

	return &pp.PlanResponse{Action: pp.ActionNoOp}, nil
}

func (p *Provider) applyInstance(ctx context.Context, req *pp.ApplyRequest) (*pp.ApplyResponse, error) {
	var desired InstanceConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired config: %w", err)
	}

	var prior InstanceState
	if req.Prior != nil {
		if err := json.Unmarshal(req.Prior, &prior); err != nil {
			prior = InstanceState{}
		}
	}

	// In-place update: tags are the only mutable attribute.
	if prior.ID != "" && prior.AMI == desired.AMI && prior.InstanceType == desired.InstanceType {
		if len(desired.Tags) > 0 {
			if _, err := p.ec2Client.CreateTags(ctx, &ec2.CreateTagsInput{
				Resources: []string{prior.ID},
				Tags:      toEC2Tags(desired.Tags),
			}); err != nil {
				return nil, classify("update tags", err)
			}
		}
		prior.Tags = desired.Tags
		stateJSON, _ := json.Marshal(prior)
		return &pp.ApplyResponse{NewState: stateJSON}, nil
	}

	// Replacement: terminate the prior instance before launching its
	// successor, otherwise it would outlive its state record.
	if oldID := replacedInstanceID(prior, desired); oldID != "" {
		if _, err := p.ec2Client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
			InstanceIds: []string{oldID},
		}); err != nil {
			var ae smithy.APIError
			if !errors.As(err, &ae) || ae.ErrorCode() != "InvalidInstanceID.NotFound" {
				return nil, classify("terminate replaced instance", err)
			}
		}
	}

	one := int32(1)
	resp, err := p.ec2Client.RunInstances(ctx, &ec2.RunInstancesInput{
		ImageId:      &desired.AMI,
		InstanceType: types.InstanceType(desired.InstanceType),
		MinCount:     &one,
		MaxCount:     &one,
	})
	if err != nil {
		return nil, classify("run instance", err)
	}
	if len(resp.Instances) == 0 {
		return nil, fmt.Errorf("no instances created")
	}

	instance := resp.Instances[0]
	id := *instance.InstanceId

	waiter := ec2.NewInstanceRunningWaiter(p.ec2Client)
	if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{id},
	}, 5*time.Minute); err != nil {
		return nil, fmt.Errorf("failed to wait for instance running: %w", err)
	}

	if len(desired.Tags) > 0 {
		if _, err := p.ec2Client.CreateTags(ctx, &ec2.CreateTagsInput{
			Resources: []string{id},
			Tags:      toEC2Tags(desired.Tags),
		}); err != nil {
			return nil, classify("tag instance", err)
		}
	}

	newState := InstanceState{
		ID:           id,
		AMI:          desired.AMI,
		InstanceType: desired.InstanceType,
		Tags:         desired.Tags,
	}

	// IPs are assigned by the time the instance is running.
	desc, err := p.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{id},
	})
	if err == nil && len(desc.Reservations) > 0 && len(desc.Reservations[0].Instances) > 0 {
		inst := desc.Reservations[0].Instances[0]
		if inst.PublicIpAddress != nil {
			newState.PublicIP = *inst.PublicIpAddress
		}
		if inst.PrivateIpAddress != nil {
			newState.PrivateIP = *inst.PrivateIpAddress
		}
	}

	stateJSON, _ := json.Marshal(newState)
	return &pp.ApplyResponse{NewState: stateJSON}, nil
}

// replacedInstanceID returns the prior instance that must be terminated when
// an immutable attribute changed, or "" when nothing is being replaced.
func replacedInstanceID(prior InstanceState, desired InstanceConfig) string {
	if prior.ID == "" {
		return ""
	}
	if prior.AMI != desired.AMI || prior.InstanceType != desired.InstanceType {
		return prior.ID
	}
	return ""
}

func (p *Provider) readInstance(ctx context.Context, req *pp.ReadRequest) (*pp.ReadResponse, error) {
	var current InstanceState
	if err := json.Unmarshal(req.Current, &current); err != nil {
		return nil, fmt.Errorf("failed to unmarshal current state: %w", err)
	}

	id := req.ID
	if id == "" {
		id = current.ID
	}
	resp, err := p.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{id},
	})
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) && ae.ErrorCode() == "InvalidInstanceID.NotFound" {
			return &pp.ReadResponse{Exists: false}, nil
		}
		return nil, classify("describe instance", err)
	}

	if len(resp.Reservations) == 0 || len(resp.Reservations[0].Instances) == 0 {
		return &pp.ReadResponse{Exists: false}, nil
	}

	instance := resp.Reservations[0].Instances[0]
	if instance.State.Name == types.InstanceStateNameTerminated {
		return &pp.ReadResponse{Exists: false}, nil
	}

	current.AMI = *instance.ImageId
	current.InstanceType = string(instance.InstanceType)
	if instance.PublicIpAddress != nil {
		current.PublicIP = *instance.PublicIpAddress
	}
	if instance.PrivateIpAddress != nil {
		current.PrivateIP = *instance.PrivateIpAddress
	}
	stateJSON, _ := json.Marshal(current)

	return &pp.ReadResponse{Exists: true, NewState: stateJSON}, nil
}

func (p *Provider) deleteInstance(ctx context.Context, req *pp.DeleteRequest) (*pp.DeleteResponse, error) {
	if req.ID == "" {
		return &pp.DeleteResponse{}, nil
	}

	_, err := p.ec2Client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{req.ID},
	})
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) && ae.ErrorCode() == "InvalidInstanceID.NotFound" {
			return &pp.DeleteResponse{}, nil
		}
		return nil, classify("terminate instance", err)
	}

	return &pp.DeleteResponse{}, nil
}

// SecurityGroup

type SecurityGroupConfig struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	VpcID       string        `json:"vpcId"`
	Ingress     []IngressRule `json:"ingress"`
}

type IngressRule struct {
	Protocol   string   `json:"protocol"`
	FromPort   int      `json:"fromPort"`
	ToPort     int      `json:"toPort"`
	CidrBlocks []string `json:"cidrBlocks"`
}

type SecurityGroupState struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (p *Provider) applySecurityGroup(ctx context.Context, req *pp.ApplyRequest) (*pp.ApplyResponse, error) {
	var desired SecurityGroupConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	input := &ec2.CreateSecurityGroupInput{
		GroupName:   &desired.Name,
		Description: &desired.Description,
	}
	if desired.VpcID != "" {
		input.VpcId = &desired.VpcID
	}

	resp, err := p.ec2Client.CreateSecurityGroup(ctx, input)
	if err != nil {
		return nil, classify("create security group", err)
	}
	groupID := *resp.GroupId

	if len(desired.Ingress) > 0 {
		var perms []types.IpPermission
		for _, rule := range desired.Ingress {
			from := int32(rule.FromPort)
			to := int32(rule.ToPort)
			var ipRanges []types.IpRange
			for _, cidr := range rule.CidrBlocks {
				ipRanges = append(ipRanges, types.IpRange{CidrIp: &cidr})
			}
			perms = append(perms, types.IpPermission{
				IpProtocol: &rule.Protocol,
				FromPort:   &from,
				ToPort:     &to,
				IpRanges:   ipRanges,
			})
		}
		if _, err := p.ec2Client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
			GroupId:       &groupID,
			IpPermissions: perms,
		}); err != nil {
			return nil, classify("authorize ingress", err)
		}
	}

	newState := SecurityGroupState{
		ID:   groupID,
		Name: desired.Name,
	}
	stateJSON, _ := json.Marshal(newState)

	return &pp.ApplyResponse{NewState: stateJSON}, nil
}

func (p *Provider) deleteSecurityGroup(ctx context.Context, req *pp.DeleteRequest) (*pp.DeleteResponse, error) {
	if req.ID == "" {
		return &pp.DeleteResponse{}, nil
	}

	_, err := p.ec2Client.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{
		GroupId: &req.ID,
	})
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) && ae.ErrorCode() == "InvalidGroup.NotFound" {
			return &pp.DeleteResponse{}, nil
		}
		return nil, classify("delete security group", err)
	}

	return &pp.DeleteResponse{}, nil
}

func toEC2Tags(m map[string]string) []types.Tag {
	var tags []types.Tag
	for k, v := range m {
		key, value := k, v
		tags = append(tags, types.Tag{Key: &key, Value: &value})
	}
	return tags
}

func tagsEqual(a, b map[string]string) bool {
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
