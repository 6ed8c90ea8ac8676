package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Sink stores a rendered export and returns its location.
type Sink interface {
	Store(ctx context.Context, name string, body []byte, contentType string) (string, error)
}

// FileSink writes exports under a base directory.
type FileSink struct {
	BaseDir string
}

func (f *FileSink) Store(_ context.Context, name string, body []byte, _ string) (string, error) {
	base := f.BaseDir
	if base == "" {
		base = "./exports"
	}
	path := filepath.Join(base, sanitizeName(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create dirs: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

// S3Sink puts exports into a bucket.
type S3Sink struct {
	client *s3.Client
	bucket string
}

// S3Config selects the bucket and optionally a custom endpoint
// (path-style, for MinIO-compatible stores).
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
}

// NewS3Sink builds the sink from ambient AWS credentials.
func NewS3Sink(ctx context.Context, cfg S3Config) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               cfg.Endpoint,
					HostnameImmutable: cfg.PathStyle,
					SigningRegion:     cfg.Region,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
	})
	return &S3Sink{client: client, bucket: cfg.Bucket}, nil
}

func (s *S3Sink) Store(ctx context.Context, name string, body []byte, contentType string) (string, error) {
	key := sanitizeName(name)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

func sanitizeName(name string) string {
	name = filepath.Clean(name)
	name = strings.TrimPrefix(name, string(filepath.Separator))
	name = strings.TrimPrefix(name, "./")
	return name
}
