package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds configuration for the result-log archive backend.
type S3Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers
	// (e.g. Cloudflare R2, MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing (bucket in path, not
	// subdomain). Required by most S3-compatible providers.
	UsePathStyle bool
}

// Validate checks that required S3 configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("s3 bucket is required")
	}
	return nil
}

// PutObjectAPI is the slice of the S3 client the archiver uses.
// Stubbed in tests.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver uploads finished result logs to object storage.
// The upload is a post-run side effect: a failed archive never fails
// the run that produced the log.
type Archiver struct {
	cfg    S3Config
	client PutObjectAPI
}

// NewArchiver creates an archiver using the AWS SDK default credential
// chain (env vars, shared config, IAM role).
func NewArchiver(ctx context.Context, cfg S3Config) (*Archiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &Archiver{
		cfg:    cfg,
		client: s3.NewFromConfig(awsConfig, s3Opts...),
	}, nil
}

// NewArchiverWithClient creates an archiver around an existing client.
// Used by tests.
func NewArchiverWithClient(cfg S3Config, client PutObjectAPI) (*Archiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Archiver{cfg: cfg, client: client}, nil
}

// Upload puts the log file at logPath under the configured prefix,
// keyed by its base filename.
func (a *Archiver) Upload(ctx context.Context, logPath string) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("open log for archive: %w", err)
	}
	defer func() { _ = file.Close() }()

	key := a.Key(logPath)
	contentType := "application/x-ndjson"
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &a.cfg.Bucket,
		Key:         &key,
		Body:        file,
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("archive %s to s3://%s/%s: %w", logPath, a.cfg.Bucket, key, err)
	}
	return nil
}

// Key computes the object key for a log path.
func (a *Archiver) Key(logPath string) string {
	name := filepath.Base(logPath)
	if a.cfg.Prefix == "" {
		return name
	}
	return path.Join(a.cfg.Prefix, name)
}
