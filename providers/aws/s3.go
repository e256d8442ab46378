package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	pp "github.com/terrapin-dev/terrapin/pkg/provider"
)

type BucketConfig struct {
	Bucket string            `json:"bucket"`
	Tags   map[string]string `json:"tags"`
}

type BucketState struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	ARN  string `json:"arn"`
}

func (p *Provider) planBucket(req *pp.PlanRequest) (*pp.PlanResponse, error) {
	var desired BucketConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired config: %w", err)
	}

	var prior BucketState
	if err := json.Unmarshal(req.Prior, &prior); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
	}

	// Renaming a bucket requires replacement; everything else is in place.
	if prior.Name != desired.Bucket {
		return &pp.PlanResponse{
			Action:            pp.ActionReplace,
			ChangedAttributes: []string{"bucket"},
		}, nil
	}

	return &pp.PlanResponse{Action: pp.ActionNoOp}, nil
}

func (p *Provider) applyBucket(ctx context.Context, req *pp.ApplyRequest) (*pp.ApplyResponse, error) {
	var desired BucketConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired config: %w", err)
	}

	// Bucket names are globally unique, so create is idempotent if we own it.
	_, err := p.s3Client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: &desired.Bucket,
	})
	if err != nil {
		var ae smithy.APIError
		if !errors.As(err, &ae) || ae.ErrorCode() != "BucketAlreadyOwnedByYou" {
			return nil, classify("create bucket", err)
		}
	}

	newState := BucketState{
		ID:   desired.Bucket,
		Name: desired.Bucket,
		ARN:  fmt.Sprintf("arn:aws:s3:::%s", desired.Bucket),
	}
	stateJSON, _ := json.Marshal(newState)

	return &pp.ApplyResponse{NewState: stateJSON}, nil
}

func (p *Provider) readBucket(ctx context.Context, req *pp.ReadRequest) (*pp.ReadResponse, error) {
	var current BucketState
	if err := json.Unmarshal(req.Current, &current); err != nil {
		return nil, fmt.Errorf("failed to unmarshal current state: %w", err)
	}

	_, err := p.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: &current.Name,
	})
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) && (ae.ErrorCode() == "NotFound" || ae.ErrorCode() == "NoSuchBucket") {
			return &pp.ReadResponse{Exists: false}, nil
		}
		return nil, classify("head bucket", err)
	}

	return &pp.ReadResponse{Exists: true, NewState: req.Current}, nil
}

func (p *Provider) deleteBucket(ctx context.Context, req *pp.DeleteRequest) (*pp.DeleteResponse, error) {
	if req.ID == "" {
		return &pp.DeleteResponse{}, nil
	}

	_, err := p.s3Client.DeleteBucket(ctx, &s3.DeleteBucketInput{
		Bucket: &req.ID,
	})
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) && ae.ErrorCode() == "NoSuchBucket" {
			return &pp.DeleteResponse{}, nil
		}
		return nil, classify("delete bucket", err)
	}

	return &pp.DeleteResponse{}, nil
}
