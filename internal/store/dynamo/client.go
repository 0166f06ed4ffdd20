// Package dynamo implements domain.Store on a single DynamoDB table with
// composite string keys. It supports DynamoDB-compatible endpoints
// (DynamoDB Local) via the Endpoint field.
package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// ClientConfig holds connection parameters for the DynamoDB client.
type ClientConfig struct {
	// Endpoint overrides the AWS endpoint, e.g. "http://localhost:8000" for
	// DynamoDB Local. Leave empty for standard AWS.
	Endpoint string

	// Region is the AWS region.
	Region string

	// Table is the single table holding every engine record.
	Table string

	// AccessKey and SecretKey are static credentials. When both are empty the
	// default AWS credential chain is used.
	AccessKey string
	SecretKey string
}

// Client wraps the AWS DynamoDB SDK client and the table name.
type Client struct {
	ddb   *dynamodb.Client
	table string
}

// New creates a new DynamoDB client from the given configuration.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Table == "" {
		return nil, fmt.Errorf("dynamo: table name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("dynamo: region is required")
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("dynamo: load aws config: %w", err)
	}

	var ddbOpts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		ddbOpts = append(ddbOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return &Client{
		ddb:   dynamodb.NewFromConfig(awsCfg, ddbOpts...),
		table: cfg.Table,
	}, nil
}

// Health performs a DescribeTable call to verify connectivity and permissions.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.ddb.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(c.table),
	})
	if err != nil {
		return fmt.Errorf("dynamo: health check failed for table %s: %w", c.table, err)
	}
	return nil
}

// DDB returns the underlying AWS SDK client.
func (c *Client) DDB() *dynamodb.Client {
	return c.ddb
}

// Table returns the configured table name.
func (c *Client) Table() string {
	return c.table
}
