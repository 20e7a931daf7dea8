// Package s3 provides the Amazon S3 storage backend.
package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/AudioPress/audiopress/logger"
	"github.com/AudioPress/audiopress/storage"
)

// DefaultPresignExpiry is how long presigned URLs stay valid when the
// caller does not specify an expiry.
const DefaultPresignExpiry = 15 * time.Minute

const hashNameLength = 16

// apiClient is the subset of the S3 SDK client used by this backend.
type apiClient interface {
	PutObject(ctx context.Context, params *awss3.PutObjectInput,
		optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput,
		optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *awss3.HeadObjectInput,
		optFns ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, params *awss3.HeadBucketInput,
		optFns ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error)
}

// presignAPI is the subset of the S3 presign client used by this backend.
type presignAPI interface {
	PresignGetObject(ctx context.Context, params *awss3.GetObjectInput,
		optFns ...func(*awss3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Config configures the S3 storage backend.
type Config struct {
	// Bucket is the target bucket name. Required.
	Bucket string

	// Prefix is prepended to all object keys (e.g. "tts").
	Prefix string

	// PublicBaseURL maps stored objects to public URLs when the bucket
	// is world-readable (e.g. a CloudFront distribution). When empty,
	// URL returns presigned GET URLs instead.
	PublicBaseURL string

	// PresignExpiry is the validity window for presigned URLs.
	// Defaults to DefaultPresignExpiry.
	PresignExpiry time.Duration
}

// Store implements storage.Provider backed by an S3 bucket.
type Store struct {
	config    Config
	client    apiClient
	presigner presignAPI
}

// Option configures the S3 store.
type Option func(*Store)

// WithClient sets a custom S3 client (for testing).
func WithClient(client apiClient) Option {
	return func(s *Store) {
		s.client = client
	}
}

// WithPresigner sets a custom presign client (for testing).
func WithPresigner(p presignAPI) Option {
	return func(s *Store) {
		s.presigner = p
	}
}

// New creates an S3 storage backend from an AWS config.
func New(cfg aws.Config, config Config, opts ...Option) (*Store, error) {
	if config.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	if config.PresignExpiry <= 0 {
		config.PresignExpiry = DefaultPresignExpiry
	}

	client := awss3.NewFromConfig(cfg)
	s := &Store{
		config:    config,
		client:    client,
		presigner: awss3.NewPresignClient(client),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name implements storage.Provider.
func (s *Store) Name() string {
	return "s3"
}

// Upload implements storage.Provider. Objects land under
// <prefix>/content/<content-id>/<hash>.<ext>.
func (s *Store) Upload(ctx context.Context, input storage.UploadInput) (*storage.Object, error) {
	if len(input.Data) == 0 {
		return nil, storage.ErrEmptyData
	}
	if input.ContentID == "" {
		return nil, storage.ErrMissingContentID
	}

	key := s.keyFor(input)

	putInput := &awss3.PutObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(input.Data),
	}
	if input.MIMEType != "" {
		putInput.ContentType = aws.String(input.MIMEType)
	}
	if len(input.Metadata) > 0 {
		putInput.Metadata = input.Metadata
	}

	if _, err := s.client.PutObject(ctx, putInput); err != nil {
		return nil, fmt.Errorf("failed to upload to s3: %w", err)
	}

	url, err := s.urlFor(ctx, key, s.config.PresignExpiry)
	if err != nil {
		// The object is stored; callers can still resolve a URL later.
		logger.Warn("Failed to build URL for uploaded object", "key", key, "error", err)
		url = ""
	}

	object := &storage.Object{
		Ref:        key,
		URL:        url,
		Provider:   s.Name(),
		SizeBytes:  int64(len(input.Data)),
		UploadedAt: time.Now().UTC(),
	}
	logger.StorageUpload(s.Name(), object.Ref, object.SizeBytes, "bucket", s.config.Bucket)
	return object, nil
}

// Delete implements storage.Provider. S3 deletes are silently idempotent,
// so the object is probed first to honor the not-found contract.
func (s *Store) Delete(ctx context.Context, ref string) error {
	_, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		if isNotFound(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("failed to probe s3 object: %w", err)
	}

	_, err = s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return fmt.Errorf("failed to delete s3 object: %w", err)
	}
	return nil
}

// URL implements storage.Provider. Public buckets get stable URLs;
// private buckets get presigned GETs valid for the given expiry.
func (s *Store) URL(ctx context.Context, ref string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = s.config.PresignExpiry
	}
	return s.urlFor(ctx, ref, expiry)
}

// Validate implements storage.Provider. It verifies the bucket exists and
// the credentials can reach it.
func (s *Store) Validate(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &awss3.HeadBucketInput{
		Bucket: aws.String(s.config.Bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 bucket %q unavailable: %w", s.config.Bucket, err)
	}
	return nil
}

func (s *Store) keyFor(input storage.UploadInput) string {
	filename := input.Filename
	if filename == "" {
		hash := sha256.Sum256(input.Data)
		filename = hex.EncodeToString(hash[:])[:hashNameLength] + storage.ExtensionForMIME(input.MIMEType)
	}
	return path.Join(s.config.Prefix, "content",
		storage.SanitizeFilename(input.ContentID), storage.SanitizeFilename(filename))
}

func (s *Store) urlFor(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if s.config.PublicBaseURL != "" {
		base := strings.TrimSuffix(s.config.PublicBaseURL, "/")
		return base + "/" + key, nil
	}

	req, err := s.presigner.PresignGetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	}, func(opts *awss3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign URL: %w", err)
	}
	return req.URL, nil
}

// isNotFound reports whether an S3 error means the object is missing.
func isNotFound(err error) bool {
	var notFound *s3types.NotFound
	var noSuchKey *s3types.NoSuchKey
	return errors.As(err, &notFound) || errors.As(err, &noSuchKey)
}
