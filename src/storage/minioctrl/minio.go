package minioctrl

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioService stores original uploads in object storage so citations can
// carry stable source and download links even after the on-disk original is
// removed at the end of a successful ingest.
type MinioService struct {
	client *minio.Client
	bucket string
	domain string
}

// NewMinioService connects to the object store and ensures the document
// bucket exists.
func NewMinioService(endpoint, accessKeyID, secretAccessKey, bucket, domain string, useSSL bool) (*MinioService, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %v", err)
	}

	s := &MinioService{
		client: client,
		bucket: bucket,
		domain: strings.TrimRight(domain, "/"),
	}

	if err := s.ensureBucketExists(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *MinioService) ensureBucketExists(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %v", err)
	}

	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %v", err)
		}
	}

	return nil
}

// UploadOriginal stores one original document under <scope>/<storedName>
// and returns its object name.
func (s *MinioService) UploadOriginal(ctx context.Context, scopeID int64, storedName string, r io.Reader, size int64, contentType string) (string, error) {
	objectName := fmt.Sprintf("%d/%s", scopeID, storedName)

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object: %v", err)
	}

	return objectName, nil
}

// ObjectURL builds the externally reachable link for a stored object.
func (s *MinioService) ObjectURL(objectName string) string {
	return fmt.Sprintf("%s/%s/%s", s.domain, s.bucket, objectName)
}

// DeleteObject removes one stored original.
func (s *MinioService) DeleteObject(ctx context.Context, objectName string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object: %v", err)
	}
	return nil
}
