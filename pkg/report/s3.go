package report

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/platinummonkey/tally/pkg/report")

// S3Config configures the snapshot archive bucket
type S3Config struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	Prefix       string
	Format       string
}

// S3Exporter archives snapshots as objects in an S3 bucket
type S3Exporter struct {
	client *s3.Client
	bucket string
	prefix string
	format string
}

// NewS3Exporter creates the client and makes sure the bucket exists
func NewS3Exporter(ctx context.Context, cfg S3Config) (*S3Exporter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		// Static credentials for MinIO or explicit keys; otherwise the default chain
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	if err := createBucketIfNotExists(ctx, client, cfg.Bucket); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}

	format := cfg.Format
	if format != FormatYAML {
		format = FormatJSON
	}
	return &S3Exporter{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, format: format}, nil
}

// Name implements Exporter
func (e *S3Exporter) Name() string {
	return "s3://" + e.bucket
}

// Export implements Exporter
func (e *S3Exporter) Export(ctx context.Context, snap *Snapshot) error {
	key := ObjectKey(e.prefix, snap, e.format)
	ctx, span := tracer.Start(ctx, "S3.PutSnapshot",
		trace.WithAttributes(
			attribute.String("s3.bucket", e.bucket),
			attribute.String("s3.key", key),
		),
	)
	defer span.End()

	data, err := Encode(snap, e.format)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to encode snapshot")
		return err
	}
	span.SetAttributes(attribute.Int("content.size", len(data)))

	hash := sha256.Sum256(data)
	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(e.format)),
		Metadata: map[string]string{
			"checksum-sha256": hex.EncodeToString(hash[:]),
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload to s3")
		return fmt.Errorf("failed to upload snapshot to s3: %w", err)
	}

	span.SetStatus(codes.Ok, "snapshot uploaded")
	return nil
}

// HealthCheck verifies the bucket is reachable
func (e *S3Exporter) HealthCheck(ctx context.Context) error {
	_, err := e.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(e.bucket)})
	if err != nil {
		return fmt.Errorf("s3 health check failed: %w", err)
	}
	return nil
}

// ObjectKey names a snapshot object: <prefix>/YYYY/MM/DD/snapshot-<timestamp>.<ext>
func ObjectKey(prefix string, snap *Snapshot, format string) string {
	t := snap.GeneratedAt.UTC()
	ext := "json"
	if format == FormatYAML {
		ext = "yaml"
	}
	name := fmt.Sprintf("snapshot-%s.%s", t.Format("20060102T150405Z"), ext)
	return path.Join(prefix, t.Format("2006/01/02"), name)
}

func contentType(format string) string {
	if format == FormatYAML {
		return "application/yaml"
	}
	return "application/json"
}

func createBucketIfNotExists(ctx context.Context, client *s3.Client, bucket string) error {
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err == nil {
		return nil
	}

	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}
