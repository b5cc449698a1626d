// Package s3blob archives view snapshots to S3 or an S3-compatible store
// (MinIO, R2, iDrive e2) using AWS SDK v2.
package s3blob

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig describes the archive bucket.
type ClientConfig struct {
	// Endpoint overrides the AWS endpoint for S3-compatible stores. A value
	// without a scheme gets https:// or http:// depending on UseSSL.
	Endpoint string
	Region   string
	Bucket   string

	// Prefix is prepended to every object key, e.g. "tradedesk/dev".
	Prefix string

	AccessKey string
	SecretKey string

	UseSSL         bool
	ForcePathStyle bool
}

// Client wraps the SDK client with the archive bucket and key prefix.
type Client struct {
	s3     *s3.Client
	bucket string
	prefix string
}

// New creates a Client. Static credentials are used when an access key is
// configured, otherwise the SDK's default chain applies.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3blob: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3blob: region is required")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)

	if cfg.Endpoint != "" {
		endpoint := normaliseEndpoint(cfg.Endpoint, cfg.UseSSL)
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &Client{
		s3:     s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Health checks that the bucket is reachable with the configured
// credentials.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3blob: health check failed for bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Close satisfies io.Closer for the app's closer list.
func (c *Client) Close() error {
	return nil
}

// S3 returns the SDK client.
func (c *Client) S3() *s3.Client {
	return c.s3
}

// Bucket returns the archive bucket.
func (c *Client) Bucket() string {
	return c.bucket
}

// Key joins the configured prefix and p into an object key.
func (c *Client) Key(p string) string {
	return joinKey(c.prefix, p)
}

func joinKey(prefix, p string) string {
	p = strings.TrimLeft(p, "/")
	if prefix == "" {
		return p
	}
	return path.Join(prefix, p)
}

// normaliseEndpoint adds a scheme to endpoint when it has none.
func normaliseEndpoint(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
