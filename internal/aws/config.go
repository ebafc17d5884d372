// Package aws wires the AWS SDK clients used by the pharmacy backend.
package aws

import (
	"context"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/pkg/errors"
)

const defaultRegion = "us-east-1"

// Options selects the region and an optional DynamoDB endpoint (DynamoDB Local).
type Options struct {
	Region           string
	DynamoDBEndpoint string
}

func LoadAWSConfig(ctx context.Context, opts Options) (sdkaws.Config, error) {
	region := opts.Region
	if region == "" {
		region = defaultRegion
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return cfg, errors.Wrap(err, "failed to load AWS config")
	}
	return cfg, nil
}
