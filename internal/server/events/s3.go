package events

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config addresses the archive bucket. BaseEndpoint is set for MinIO and
// other S3-compatible stores.
type S3Config struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
	Bucket       string
	Prefix       string
}

// S3Archiver stores each event as a JSON object partitioned by day.
type S3Archiver struct {
	client objectPutter
	bucket string
	prefix string
}

func NewS3Archiver(ctx context.Context, c S3Config) (*S3Archiver, error) {
	if c.Bucket == "" {
		return nil, fmt.Errorf("s3 archiver requires a bucket")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(c.Region)}
	if c.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")))
	}
	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(c.BaseEndpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Archiver{client: client, bucket: c.Bucket, prefix: c.Prefix}, nil
}

// ObjectKey returns <prefix>/<yyyy>/<mm>/<dd>/<verification_id>.json for ev.
func ObjectKey(prefix string, ev VerificationFinalized) string {
	d := ev.FinalizedAt.UTC()
	return path.Join(prefix, fmt.Sprintf("%04d/%02d/%02d", d.Year(), d.Month(), d.Day()), ev.VerificationID+".json")
}

func (a *S3Archiver) Publish(ctx context.Context, ev VerificationFinalized) error {
	payload, err := ev.encode()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(ObjectKey(a.prefix, ev)),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 archive: %w", err)
	}
	return nil
}

func (a *S3Archiver) Close() error { return nil }
