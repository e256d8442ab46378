// Package aws implements a provider for a subset of AWS resources backed by
// the AWS SDK v2: S3 buckets, DynamoDB tables, EC2 instances and security
// groups, IAM roles, SQS queues and SNS topics.
package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/smithy-go"
	pp "github.com/terrapin-dev/terrapin/pkg/provider"
	"github.com/terrapin-dev/terrapin/pkg/schema"
)

const (
	TypeBucket        = "aws.s3.Bucket"
	TypeTable         = "aws.dynamodb.Table"
	TypeInstance      = "aws.ec2.Instance"
	TypeSecurityGroup = "aws.ec2.SecurityGroup"
	TypeRole          = "aws.iam.Role"
	TypeQueue         = "aws.sqs.Queue"
	TypeTopic         = "aws.sns.Topic"
)

type Provider struct {
	region string

	s3Client       *s3.Client
	dynamodbClient *dynamodb.Client
	ec2Client      *ec2.Client
	iamClient      *iam.Client
	sqsClient      *sqs.Client
	snsClient      *sns.Client
}

func New() *Provider {
	return &Provider{region: "us-east-1"}
}

func (p *Provider) ensureClients(ctx context.Context) error {
	if p.s3Client != nil {
		return nil
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(p.region))
	if err != nil {
		return fmt.Errorf("unable to load SDK config: %w", err)
	}

	p.s3Client = s3.NewFromConfig(cfg)
	p.dynamodbClient = dynamodb.NewFromConfig(cfg)
	p.ec2Client = ec2.NewFromConfig(cfg)
	p.iamClient = iam.NewFromConfig(cfg)
	p.sqsClient = sqs.NewFromConfig(cfg)
	p.snsClient = sns.NewFromConfig(cfg)

	return nil
}

func (p *Provider) Schemas() []*schema.ResourceSchema {
	return []*schema.ResourceSchema{
		{
			Type:     TypeBucket,
			Provider: "aws",
			Attributes: map[string]*schema.AttrSchema{
				"bucket": {Type: schema.TypeString, Required: true, ForcesReplacement: true},
				"tags":   {Type: schema.TypeMap},
				"id":     {Type: schema.TypeString, Computed: true},
				"arn":    {Type: schema.TypeString, Computed: true},
			},
		},
		{
			Type:     TypeTable,
			Provider: "aws",
			Attributes: map[string]*schema.AttrSchema{
				"tableName":   {Type: schema.TypeString, Required: true, ForcesReplacement: true},
				"attributes":  {Type: schema.TypeList, Required: true},
				"keySchema":   {Type: schema.TypeList, Required: true, ForcesReplacement: true},
				"billingMode": {Type: schema.TypeString},
				"id":          {Type: schema.TypeString, Computed: true},
				"arn":         {Type: schema.TypeString, Computed: true},
			},
		},
		{
			Type:     TypeInstance,
			Provider: "aws",
			Attributes: map[string]*schema.AttrSchema{
				"ami":          {Type: schema.TypeString, Required: true, ForcesReplacement: true},
				"instanceType": {Type: schema.TypeString, Required: true, ForcesReplacement: true},
				"tags":         {Type: schema.TypeMap},
				"id":           {Type: schema.TypeString, Computed: true},
				"publicIp":     {Type: schema.TypeString, Computed: true},
				"privateIp":    {Type: schema.TypeString, Computed: true},
			},
		},
		{
			Type:     TypeSecurityGroup,
			Provider: "aws",
			Attributes: map[string]*schema.AttrSchema{
				"name":        {Type: schema.TypeString, Required: true, ForcesReplacement: true},
				"description": {Type: schema.TypeString, ForcesReplacement: true},
				"vpcId":       {Type: schema.TypeString, ForcesReplacement: true},
				"ingress":     {Type: schema.TypeList},
				"id":          {Type: schema.TypeString, Computed: true},
			},
		},
		{
			Type:     TypeRole,
			Provider: "aws",
			Attributes: map[string]*schema.AttrSchema{
				"name":             {Type: schema.TypeString, Required: true, ForcesReplacement: true},
				"assumeRolePolicy": {Type: schema.TypeString, Required: true},
				"tags":             {Type: schema.TypeMap},
				"id":               {Type: schema.TypeString, Computed: true},
				"arn":              {Type: schema.TypeString, Computed: true},
			},
		},
		{
			Type:     TypeQueue,
			Provider: "aws",
			Attributes: map[string]*schema.AttrSchema{
				"queueName":              {Type: schema.TypeString, Required: true, ForcesReplacement: true},
				"visibilityTimeout":      {Type: schema.TypeInt},
				"messageRetentionPeriod": {Type: schema.TypeInt},
				"delaySeconds":           {Type: schema.TypeInt},
				"fifoQueue":              {Type: schema.TypeBool, ForcesReplacement: true},
				"tags":                   {Type: schema.TypeMap},
				"id":                     {Type: schema.TypeString, Computed: true},
				"url":                    {Type: schema.TypeString, Computed: true},
				"arn":                    {Type: schema.TypeString, Computed: true},
			},
		},
		{
			Type:     TypeTopic,
			Provider: "aws",
			Attributes: map[string]*schema.AttrSchema{
				"name":        {Type: schema.TypeString, Required: true, ForcesReplacement: true},
				"displayName": {Type: schema.TypeString},
				"fifoTopic":   {Type: schema.TypeBool, ForcesReplacement: true},
				"tags":        {Type: schema.TypeMap},
				"id":          {Type: schema.TypeString, Computed: true},
				"arn":         {Type: schema.TypeString, Computed: true},
			},
		},
	}
}

func (p *Provider) Configure(ctx context.Context, req *pp.ConfigureRequest) (*pp.ConfigureResponse, error) {
	if region := req.Settings["region"]; region != "" {
		p.region = region
	}
	if err := p.ensureClients(ctx); err != nil {
		return &pp.ConfigureResponse{
			Diagnostics: []pp.Diagnostic{
				{
					Severity: "error",
					Summary:  "Failed to load AWS config",
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
	case TypeBucket:
		return p.planBucket(req)
	case TypeInstance:
		return p.planInstance(req)
	}

	// Fallback: byte-level comparison of desired against prior inputs.
	if string(req.Desired) != string(req.Prior) {
		return &pp.PlanResponse{Action: pp.ActionReplace}, nil
	}

	return &pp.PlanResponse{Action: pp.ActionNoOp}, nil
}

func (p *Provider) Apply(ctx context.Context, req *pp.ApplyRequest) (*pp.ApplyResponse, error) {
	if err := p.ensureClients(ctx); err != nil {
		return nil, err
	}

	switch req.Type {
	case TypeBucket:
		return p.applyBucket(ctx, req)
	case TypeTable:
		return p.applyTable(ctx, req)
	case TypeInstance:
		return p.applyInstance(ctx, req)
	case TypeSecurityGroup:
		return p.applySecurityGroup(ctx, req)
	case TypeRole:
		return p.applyRole(ctx, req)
	case TypeQueue:
		return p.applyQueue(ctx, req)
	case TypeTopic:
		return p.applyTopic(ctx, req)
	}

	return nil, fmt.Errorf("unknown resource type: %s", req.Type)
}

func (p *Provider) Read(ctx context.Context, req *pp.ReadRequest) (*pp.ReadResponse, error) {
	if err := p.ensureClients(ctx); err != nil {
		return nil, err
	}

	switch req.Type {
	case TypeBucket:
		return p.readBucket(ctx, req)
	case TypeTable:
		return p.readTable(ctx, req)
	case TypeInstance:
		return p.readInstance(ctx, req)
	case TypeRole:
		return p.readRole(ctx, req)
	}

	return &pp.ReadResponse{Exists: true, NewState: req.Current}, nil
}

func (p *Provider) Delete(ctx context.Context, req *pp.DeleteRequest) (*pp.DeleteResponse, error) {
	if err := p.ensureClients(ctx); err != nil {
		return nil, err
	}

	switch req.Type {
	case TypeBucket:
		return p.deleteBucket(ctx, req)
	case TypeTable:
		return p.deleteTable(ctx, req)
	case TypeInstance:
		return p.deleteInstance(ctx, req)
	case TypeSecurityGroup:
		return p.deleteSecurityGroup(ctx, req)
	case TypeRole:
		return p.deleteRole(ctx, req)
	case TypeQueue:
		return p.deleteQueue(ctx, req)
	case TypeTopic:
		return p.deleteTopic(ctx, req)
	}

	return nil, fmt.Errorf("unknown resource type: %s", req.Type)
}

// classify maps AWS API errors onto the retryable/fatal split. Throttling
// and availability errors are worth retrying; auth and validation errors
// are not.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "Throttling", "ThrottlingException", "RequestLimitExceeded",
			"TooManyRequestsException", "ServiceUnavailable", "SlowDown",
			"RequestThrottled", "ProvisionedThroughputExceededException":
			return pp.Transientf("%s: %s", op, err.Error())
		case "AccessDenied", "AccessDeniedException", "UnauthorizedOperation",
			"InvalidClientTokenId", "ValidationError", "ValidationException",
			"MalformedPolicyDocument":
			return pp.Fatalf("%s: %s", op, err.Error())
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}
