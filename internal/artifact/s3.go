package artifact

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/tuberip/tuberip/internal/backend"
	"github.com/tuberip/tuberip/internal/log"
)

// Uploader uploads objects to S3.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3SinkConfig is the configuration of the S3 sink.
type S3SinkConfig struct {
	Bucket    string
	KeyPrefix string
	Uploader  Uploader
	Logger    log.Logger
}

func (c *S3SinkConfig) defaults() error {
	if c.Bucket == "" {
		return fmt.Errorf("storage bucket is required")
	}
	if c.Uploader == nil {
		return fmt.Errorf("uploader is required")
	}
	c.KeyPrefix = strings.Trim(c.KeyPrefix, "/")
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "artifact.S3Sink"})
	return nil
}

// S3Sink uploads the files to Amazon S3 (or compatible APIs).
type S3Sink struct {
	bucket   string
	prefix   string
	uploader Uploader
	logger   log.Logger
}

// NewS3Sink returns a new S3 sink.
func NewS3Sink(cfg S3SinkConfig) (*S3Sink, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &S3Sink{
		bucket:   cfg.Bucket,
		prefix:   cfg.KeyPrefix,
		uploader: cfg.Uploader,
		logger:   cfg.Logger,
	}, nil
}

// Store streams the artifact to the bucket.
func (s *S3Sink) Store(ctx context.Context, a *backend.Artifact) (string, error) {
	defer a.Body.Close()

	key := safeName(a.Filename)
	if s.prefix != "" {
		key = path.Join(s.prefix, key)
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   a.Body,
		ACL:    types.ObjectCannedACLPrivate,
	}
	if a.ContentType != "" {
		input.ContentType = aws.String(a.ContentType)
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	location := fmt.Sprintf("s3://%s/%s", s.bucket, key)
	s.logger.Infof("Stored %s", location)
	return location, nil
}

// S3ClientConfig is the AWS configuration used to build the S3 uploader.
type S3ClientConfig struct {
	Region   string
	Profile  string
	Endpoint string
}

// NewS3Uploader builds an uploader from the default AWS credential chain.
func NewS3Uploader(ctx context.Context, cfg S3ClientConfig) (*manager.Uploader, error) {
	loadOpts := []func(*awscfg.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awscfg.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return manager.NewUploader(client), nil
}
