package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrEndpointInvalid indicates an endpoint that cannot be turned into a host.
var ErrEndpointInvalid = errors.New("invalid object storage endpoint")

// S3Config configures an S3-compatible store such as Cloudflare R2.
type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Region          string
}

// S3Store implements the core.ObjectStore interface over the S3 protocol with
// SigV4 signed requests.
type S3Store struct {
	client *minio.Client
	bucket string
}

// NewS3Store creates a client for the endpoint. No request is made until the
// first upload or download.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	host, secure, err := splitEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(host, &minio.Options{
		Creds:      credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:     secure,
		Region:     cfg.Region,
		MaxRetries: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client for '%s': %w", cfg.Endpoint, err)
	}

	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

// Upload performs a single PUT of the object: no multipart, no payload
// checksum and no client-side retries.
func (s *S3Store) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType:          contentType,
		DisableMultipart:     true,
		DisableContentSha256: true,
	})
	if err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, s.bucket, err)
	}

	return nil
}

// Download retrieves an object.
func (s *S3Store) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, s.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return data, nil
}

// splitEndpoint turns "https://account.r2.cloudflarestorage.com" into the
// host minio expects plus the TLS flag. A bare host defaults to TLS.
func splitEndpoint(endpoint string) (string, bool, error) {
	endpoint = strings.TrimSpace(endpoint)
	if !strings.Contains(endpoint, "://") {
		if endpoint == "" {
			return "", false, ErrEndpointInvalid
		}

		return strings.TrimRight(endpoint, "/"), true, nil
	}

	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("%w: %w", ErrEndpointInvalid, err)
	}

	if parsed.Host == "" {
		return "", false, fmt.Errorf("%w: %q has no host", ErrEndpointInvalid, endpoint)
	}

	switch parsed.Scheme {
	case "https":
		return parsed.Host, true, nil
	case "http":
		return parsed.Host, false, nil
	default:
		return "", false, fmt.Errorf("%w: unsupported scheme %q", ErrEndpointInvalid, parsed.Scheme)
	}
}
