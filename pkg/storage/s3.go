package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/raafayk7/DocumentManagementSystem-sub001/pkg/models"
	"github.com/raafayk7/DocumentManagementSystem-sub001/pkg/observability"
	"github.com/raafayk7/DocumentManagementSystem-sub001/pkg/resilience"
)

// Uploader is the subset of the S3 transfer manager used for uploads
type Uploader interface {
	Upload(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Downloader is the subset of the S3 transfer manager used for downloads
type Downloader interface {
	Download(ctx context.Context, w io.WriterAt, params *s3.GetObjectInput, optFns ...func(*manager.Downloader)) (int64, error)
}

// S3API is the subset of the S3 client the provider depends on
type S3API interface {
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config holds configuration for the S3 provider
type S3Config struct {
	Region           string        `mapstructure:"region"`
	Bucket           string        `mapstructure:"bucket"`
	Endpoint         string        `mapstructure:"endpoint"`
	ForcePathStyle   bool          `mapstructure:"force_path_style"`
	UploadPartSize   int64         `mapstructure:"upload_part_size"`
	DownloadPartSize int64         `mapstructure:"download_part_size"`
	Concurrency      int           `mapstructure:"concurrency"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
}

// S3Storage implements Provider on top of AWS S3
type S3Storage struct {
	client     S3API
	uploader   Uploader
	downloader Downloader
	config     S3Config
	logger     observability.Logger
}

// NewS3Storage creates an S3-backed storage provider
func NewS3Storage(ctx context.Context, cfg S3Config, logger observability.Logger) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}

	var options []func(*awsconfig.LoadOptions) error
	options = append(options, awsconfig.WithRegion(cfg.Region))

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Options := []func(*s3.Options){}

	// Custom endpoint for LocalStack or other S3-compatible services
	if cfg.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Options...)

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		if cfg.UploadPartSize > 0 {
			u.PartSize = cfg.UploadPartSize
		}
		if cfg.Concurrency > 0 {
			u.Concurrency = cfg.Concurrency
		}
	})

	downloader := manager.NewDownloader(client, func(d *manager.Downloader) {
		if cfg.DownloadPartSize > 0 {
			d.PartSize = cfg.DownloadPartSize
		}
		if cfg.Concurrency > 0 {
			d.Concurrency = cfg.Concurrency
		}
	})

	return &S3Storage{
		client:     client,
		uploader:   uploader,
		downloader: downloader,
		config:     cfg,
		logger:     logger.WithPrefix("s3-storage"),
	}, nil
}

// Upload stores a file in S3
func (s *S3Storage) Upload(ctx context.Context, data []byte, filename string, mimeType string) (*models.FileInfo, error) {
	if filename == "" {
		return nil, resilience.Fatal(fmt.Errorf("filename cannot be empty"))
	}
	if len(data) == 0 {
		return nil, resilience.Fatal(fmt.Errorf("data cannot be empty"))
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(filename),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimeType),
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	out, err := s.uploader.Upload(ctx, input)
	if err != nil {
		return nil, classifyS3Error("upload", err)
	}

	info := &models.FileInfo{
		Name:         filename,
		Size:         int64(len(data)),
		MimeType:     mimeType,
		LastModified: time.Now(),
	}
	if out.ETag != nil {
		info.ETag = *out.ETag
	}
	return info, nil
}

// Download retrieves a file from S3
func (s *S3Storage) Download(ctx context.Context, filename string) ([]byte, error) {
	if filename == "" {
		return nil, resilience.Fatal(fmt.Errorf("filename cannot be empty"))
	}

	buf := manager.NewWriteAtBuffer([]byte{})

	input := &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(filename),
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	if _, err := s.downloader.Download(ctx, buf, input); err != nil {
		return nil, classifyS3Error("download", err)
	}

	return buf.Bytes(), nil
}

// Delete removes a file from S3
func (s *S3Storage) Delete(ctx context.Context, filename string) error {
	if filename == "" {
		return resilience.Fatal(fmt.Errorf("filename cannot be empty"))
	}

	input := &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(filename),
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	if _, err := s.client.DeleteObject(ctx, input); err != nil {
		return classifyS3Error("delete", err)
	}
	return nil
}

// Exists reports whether a file is present in S3
func (s *S3Storage) Exists(ctx context.Context, filename string) (bool, error) {
	if filename == "" {
		return false, resilience.Fatal(fmt.Errorf("filename cannot be empty"))
	}

	input := &s3.HeadObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(filename),
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	if _, err := s.client.HeadObject(ctx, input); err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, classifyS3Error("exists", err)
	}
	return true, nil
}

// ListFiles lists all files in the bucket
func (s *S3Storage) ListFiles(ctx context.Context) ([]models.FileInfo, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.config.Bucket),
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	var result []models.FileInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classifyS3Error("list_files", err)
		}

		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			info := models.FileInfo{Name: *obj.Key}
			if obj.Size != nil {
				info.Size = *obj.Size
			}
			if obj.ETag != nil {
				info.ETag = *obj.ETag
			}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			result = append(result, info)
		}
	}

	return result, nil
}

// GetFileInfo returns metadata for a single file
func (s *S3Storage) GetFileInfo(ctx context.Context, filename string) (*models.FileInfo, error) {
	if filename == "" {
		return nil, resilience.Fatal(fmt.Errorf("filename cannot be empty"))
	}

	input := &s3.HeadObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(filename),
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	head, err := s.client.HeadObject(ctx, input)
	if err != nil {
		if isS3NotFound(err) {
			return nil, resilience.Fatal(fmt.Errorf("file not found: %s", filename))
		}
		return nil, classifyS3Error("get_file_info", err)
	}

	info := &models.FileInfo{Name: filename}
	if head.ContentLength != nil {
		info.Size = *head.ContentLength
	}
	if head.ContentType != nil {
		info.MimeType = *head.ContentType
	}
	if head.ETag != nil {
		info.ETag = *head.ETag
	}
	if head.LastModified != nil {
		info.LastModified = *head.LastModified
	}
	return info, nil
}

// GetStorageConfig describes the S3 backing store
func (s *S3Storage) GetStorageConfig(ctx context.Context) (*models.StorageConfig, error) {
	return &models.StorageConfig{
		Provider: "s3",
		Bucket:   s.config.Bucket,
		Region:   s.config.Region,
		Endpoint: s.config.Endpoint,
	}, nil
}

// HealthCheck verifies the bucket is reachable
func (s *S3Storage) HealthCheck(ctx context.Context) (bool, error) {
	input := &s3.HeadBucketInput{
		Bucket: aws.String(s.config.Bucket),
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	if _, err := s.client.HeadBucket(ctx, input); err != nil {
		return false, classifyS3Error("health_check", err)
	}
	return true, nil
}

// requestContext applies the configured per-request timeout when set
func (s *S3Storage) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.RequestTimeout > 0 {
		return context.WithTimeout(ctx, s.config.RequestTimeout)
	}
	return ctx, func() {}
}

// classifyS3Error maps an S3 failure onto the resilience error taxonomy.
// Client-side faults (4xx) are permanent; everything else is assumed to be
// a transient service or network fault.
func classifyS3Error(operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return resilience.Timeout(fmt.Errorf("s3 %s: %w", operation, err))
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound",
			"AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch",
			"InvalidRequest", "InvalidArgument", "EntityTooLarge":
			return resilience.Fatal(fmt.Errorf("s3 %s: %w", operation, err))
		case "SlowDown", "RequestTimeout", "ServiceUnavailable", "InternalError":
			return resilience.Transient(fmt.Errorf("s3 %s: %w", operation, err))
		}
	}

	return resilience.Transient(fmt.Errorf("s3 %s: %w", operation, err))
}

// isS3NotFound reports whether err is an S3 missing-object error
func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey"
	}
	return false
}
