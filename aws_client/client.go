// Package aws_client builds the AWS SDK clients used by the archiver. All
// clients share a single DNS-cached HTTP client so that parallel writes do
// not flood DNS or open unbounded connections.
package aws_client

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const defaultRegion = "us-east-1"

// ClientConfig carries the connection-level settings for AWS SDK clients.
// All values are optional; the SDK default credential chain applies when no
// static keys are configured.
type ClientConfig struct {
	Region      string
	Profile     string
	AccessKey   string
	SecretKey   string
	EndpointURL string
}

func (c ClientConfig) Validate() error {
	if c.AccessKey != "" && c.SecretKey == "" {
		return fmt.Errorf("aws_access_key_id set without aws_secret_access_key")
	}
	if c.AccessKey == "" && c.SecretKey != "" {
		return fmt.Errorf("aws_secret_access_key set without aws_access_key_id")
	}
	return nil
}

// LoadConfig resolves the AWS SDK configuration for the given settings.
func LoadConfig(ctx context.Context, c ClientConfig) (aws.Config, error) {
	var configOptions []func(*config.LoadOptions) error

	if c.Profile != "" {
		configOptions = append(configOptions, config.WithSharedConfigProfile(c.Profile))
	}
	if c.AccessKey != "" && c.SecretKey != "" {
		provider := credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")
		configOptions = append(configOptions, config.WithCredentialsProvider(provider))
	}
	if c.Region != "" {
		configOptions = append(configOptions, config.WithRegion(c.Region))
	}

	// shared http client
	configOptions = append(configOptions, config.WithHTTPClient(sharedHTTPClient))

	cfg, err := config.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("error loading AWS config: %w", err)
	}

	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}
	if c.EndpointURL != "" {
		cfg.BaseEndpoint = aws.String(c.EndpointURL)
	}

	return cfg, nil
}

// NewS3Client returns an S3 client with SDK-level retries disabled - the
// batch writer owns the retry policy for object writes, and stacking the SDK
// retryer underneath it would multiply the effective attempt count.
func NewS3Client(ctx context.Context, c ClientConfig) (*s3.Client, error) {
	cfg, err := LoadConfig(ctx, c)
	if err != nil {
		return nil, err
	}
	cfg.Retryer = func() aws.Retryer { return aws.NopRetryer{} }

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		// path-style addressing keeps custom endpoints (local stacks)
		// working without virtual-host DNS
		if c.EndpointURL != "" {
			o.UsePathStyle = true
		}
	}), nil
}

// NewKinesisClient returns a Kinesis client using the SDK default retryer.
func NewKinesisClient(ctx context.Context, c ClientConfig) (*kinesis.Client, error) {
	cfg, err := LoadConfig(ctx, c)
	if err != nil {
		return nil, err
	}
	return kinesis.NewFromConfig(cfg), nil
}
