package s3infra

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-enroll-api/internal/config"
	"github.com/go-enroll-api/internal/infrastructure/awsconf"
)

// NewClient builds the S3 client for snapshot objects. A LocalStack endpoint also
// switches to path-style addressing.
func NewClient(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	awsCfg, err := awsconf.Load(ctx, cfg, cfg.AWSRegion)
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	endpoint := awsconf.Endpoint(cfg)
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = endpoint
		o.UsePathStyle = endpoint != nil
	}), nil
}

// Snapshotter persists one expiring-store snapshot as a single S3 object.
// PutObject replaces the object atomically, so readers never see a partial snapshot.
type Snapshotter struct {
	client *s3.Client
	bucket string
	key    string
}

// NewSnapshotter stores the snapshot at s3://bucket/key.
func NewSnapshotter(client *s3.Client, bucket, key string) *Snapshotter {
	return &Snapshotter{client: client, bucket: bucket, key: key}
}

func (s *Snapshotter) Save(ctx context.Context, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}

// Load returns the stored snapshot, or nil when none was written yet.
func (s *Snapshotter) Load(ctx context.Context) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil
		}
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
