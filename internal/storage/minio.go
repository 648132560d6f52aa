package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"stockbars/internal/model"
)

// S3Store uploads artifacts to an S3-compatible bucket using minio-go, for
// deployments where the collector box is disposable and the artifacts must
// outlive it.
type S3Store struct {
	client *minio.Client
	bucket string
}

// NewS3Store creates a new S3-backed artifact store.
func NewS3Store(cfg Config) (*S3Store, error) {
	endpoint, err := cleanEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, err
	}

	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

// cleanEndpoint removes protocol and path from endpoint URL to get
// host:port format.
func cleanEndpoint(endpoint string) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("endpoint cannot be empty")
	}

	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if strings.Contains(endpoint, "/") {
			return "", fmt.Errorf("endpoint contains path but no protocol")
		}
		return endpoint, nil
	}

	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to parse endpoint URL: %w", err)
	}
	if parsedURL.Path != "" && parsedURL.Path != "/" {
		return "", fmt.Errorf("endpoint URL cannot have paths, only host:port is allowed (got path: %s)", parsedURL.Path)
	}
	return parsedURL.Host, nil
}

// Exists reports whether a non-empty artifact object is already present.
func (s *S3Store) Exists(ctx context.Context, code string) (bool, error) {
	info, err := s.client.StatObject(ctx, s.bucket, ArtifactName(code), minio.StatObjectOptions{})
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return false, nil
		}
		return false, err
	}
	return info.Size > 0, nil
}

// Save uploads the artifact, replacing any previous object.
func (s *S3Store) Save(ctx context.Context, code string, bars model.Bars) error {
	data, err := EncodeCSV(bars)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, s.bucket, ArtifactName(code),
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "text/csv"})
	return err
}
