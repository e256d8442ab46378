package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	typesSNS "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	typesSQS "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	pp "github.com/terrapin-dev/terrapin/pkg/provider"
)

type QueueConfig struct {
	QueueName              string            `json:"queueName"`
	VisibilityTimeout      int               `json:"visibilityTimeout"`
	MessageRetentionPeriod int               `json:"messageRetentionPeriod"`
	DelaySeconds           int               `json:"delaySeconds"`
	FifoQueue              bool              `json:"fifoQueue"`
	Tags                   map[string]string `json:"tags"`
}

type QueueState struct {
	ID  string `json:"id"`
	URL string `json:"url"`
	ARN string `json:"arn"`
}

type TopicConfig struct {
	Name        string            `json:"name"`
	DisplayName string            `json:"displayName"`
	FifoTopic   bool              `json:"fifoTopic"`
	Tags        map[string]string `json:"tags"`
}

type TopicState struct {
	ID  string `json:"id"`
	ARN string `json:"arn"`
}

func (p *Provider) applyQueue(ctx context.Context, req *pp.ApplyRequest) (*pp.ApplyResponse, error) {
	var desired QueueConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	attrs := map[string]string{}
	if desired.VisibilityTimeout > 0 {
		attrs["VisibilityTimeout"] = fmt.Sprintf("%d", desired.VisibilityTimeout)
	}
	if desired.MessageRetentionPeriod > 0 {
		attrs["MessageRetentionPeriod"] = fmt.Sprintf("%d", desired.MessageRetentionPeriod)
	}
	if desired.DelaySeconds > 0 {
		attrs["DelaySeconds"] = fmt.Sprintf("%d", desired.DelaySeconds)
	}
	if desired.FifoQueue {
		attrs["FifoQueue"] = "true"
	}

	resp, err := p.sqsClient.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName:  &desired.QueueName,
		Attributes: attrs,
		Tags:       desired.Tags,
	})
	if err != nil {
		return nil, classify("create queue", err)
	}

	newState := QueueState{
		ID:  *resp.QueueUrl,
		URL: *resp.QueueUrl,
	}

	out, err := p.sqsClient.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: resp.QueueUrl,
		AttributeNames: []typesSQS.QueueAttributeName{
			typesSQS.QueueAttributeNameQueueArn,
		},
	})
	if err == nil {
		if arn, ok := out.Attributes[string(typesSQS.QueueAttributeNameQueueArn)]; ok {
			newState.ARN = arn
		}
	}

	stateJSON, _ := json.Marshal(newState)
	return &pp.ApplyResponse{NewState: stateJSON}, nil
}

func (p *Provider) deleteQueue(ctx context.Context, req *pp.DeleteRequest) (*pp.DeleteResponse, error) {
	if req.ID == "" {
		return &pp.DeleteResponse{}, nil
	}

	_, err := p.sqsClient.DeleteQueue(ctx, &sqs.DeleteQueueInput{
		QueueUrl: &req.ID,
	})
	if err != nil {
		var nfe *typesSQS.QueueDoesNotExist
		if errors.As(err, &nfe) {
			return &pp.DeleteResponse{}, nil
		}
		return nil, classify("delete queue", err)
	}

	return &pp.DeleteResponse{}, nil
}

func (p *Provider) applyTopic(ctx context.Context, req *pp.ApplyRequest) (*pp.ApplyResponse, error) {
	var desired TopicConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	input := &sns.CreateTopicInput{
		Name:       &desired.Name,
		Attributes: make(map[string]string),
	}
	if desired.DisplayName != "" {
		input.Attributes["DisplayName"] = desired.DisplayName
	}
	if desired.FifoTopic {
		input.Attributes["FifoTopic"] = "true"
	}
	for k, v := range desired.Tags {
		key, value := k, v
		input.Tags = append(input.Tags, typesSNS.Tag{Key: &key, Value: &value})
	}

	resp, err := p.snsClient.CreateTopic(ctx, input)
	if err != nil {
		return nil, classify("create topic", err)
	}

	newState := TopicState{
		ID:  *resp.TopicArn,
		ARN: *resp.TopicArn,
	}
	stateJSON, _ := json.Marshal(newState)

	return &pp.ApplyResponse{NewState: stateJSON}, nil
}

func (p *Provider) deleteTopic(ctx context.Context, req *pp.DeleteRequest) (*pp.DeleteResponse, error) {
	if req.ID == "" {
		return &pp.DeleteResponse{}, nil
	}

	_, err := p.snsClient.DeleteTopic(ctx, &sns.DeleteTopicInput{
		TopicArn: &req.ID,
	})
	if err != nil {
		var nfe *typesSNS.NotFoundException
		if errors.As(err, &nfe) {
			return &pp.DeleteResponse{}, nil
		}
		return nil, classify("delete topic", err)
	}

	return &pp.DeleteResponse{}, nil
}
