package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	pp "github.com/terrapin-dev/terrapin/pkg/provider"
)

type TableConfig struct {
	TableName   string                `json:"tableName"`
	Attributes  []AttributeDefinition `json:"attributes"`
	KeySchema   []KeySchemaElement    `json:"keySchema"`
	BillingMode string                `json:"billingMode"`
}

type AttributeDefinition struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type KeySchemaElement struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type TableState struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	ARN  string `json:"arn"`
}

func (p *Provider) applyTable(ctx context.Context, req *pp.ApplyRequest) (*pp.ApplyResponse, error) {
	var desired TableConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	var attrs []types.AttributeDefinition
	for _, a := range desired.Attributes {
		attrs = append(attrs, types.AttributeDefinition{
			AttributeName: &a.Name,
			AttributeType: types.ScalarAttributeType(a.Type),
		})
	}

	var keySchema []types.KeySchemaElement
	for _, k := range desired.KeySchema {
		keySchema = append(keySchema, types.KeySchemaElement{
			AttributeName: &k.Name,
			KeyType:       types.KeyType(k.Type),
		})
	}

	billingMode := desired.BillingMode
	if billingMode == "" {
		billingMode = "PAY_PER_REQUEST"
	}

	resp, err := p.dynamodbClient.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:            &desired.TableName,
		AttributeDefinitions: attrs,
		KeySchema:            keySchema,
		BillingMode:          types.BillingMode(billingMode),
	})
	if err != nil {
		return nil, classify("create table", err)
	}

	newState := TableState{
		ID:   *resp.TableDescription.TableName,
		Name: *resp.TableDescription.TableName,
		ARN:  *resp.TableDescription.TableArn,
	}
	stateJSON, _ := json.Marshal(newState)

	return &pp.ApplyResponse{NewState: stateJSON}, nil
}

func (p *Provider) readTable(ctx context.Context, req *pp.ReadRequest) (*pp.ReadResponse, error) {
	var current TableState
	if err := json.Unmarshal(req.Current, &current); err != nil {
		return nil, fmt.Errorf("failed to unmarshal current state: %w", err)
	}

	resp, err := p.dynamodbClient.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: &current.Name,
	})
	if err != nil {
		var nfe *types.ResourceNotFoundException
		if errors.As(err, &nfe) {
			return &pp.ReadResponse{Exists: false}, nil
		}
		return nil, classify("describe table", err)
	}

	current.ARN = *resp.Table.TableArn
	stateJSON, _ := json.Marshal(current)

	return &pp.ReadResponse{Exists: true, NewState: stateJSON}, nil
}

func (p *Provider) deleteTable(ctx context.Context, req *pp.DeleteRequest) (*pp.DeleteResponse, error) {
	if req.ID == "" {
		return &pp.DeleteResponse{}, nil
	}

	_, err := p.dynamodbClient.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: &req.ID,
	})
	if err != nil {
		var nfe *types.ResourceNotFoundException
		if errors.As(err, &nfe) {
			return &pp.DeleteResponse{}, nil
		}
		return nil, classify("delete table", err)
	}

	return &pp.DeleteResponse{}, nil
}
