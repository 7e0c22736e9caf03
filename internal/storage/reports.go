package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/oceanlens/internal/config"
)

// ErrNotArchived is returned when no copy of a report is stored.
var ErrNotArchived = errors.New("report not archived")

type ReportVariant string

const (
	ReportFull    ReportVariant = "report"
	ReportPreview ReportVariant = "preview"
)

// ReportArchive keeps downloaded detection reports in MinIO so repeated
// downloads don't hit the analysis backend.
type ReportArchive struct {
	client *minio.Client
	bucket string
}

func NewReportArchive(cfg config.MinIOConfig) (*ReportArchive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &ReportArchive{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// ReportKey is the object key of one report variant.
func ReportKey(detectionID int64, variant ReportVariant) string {
	return fmt.Sprintf("%s%s.pdf", reportPrefix(detectionID), variant)
}

func reportPrefix(detectionID int64) string {
	return fmt.Sprintf("reports/%d/", detectionID)
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *ReportArchive) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

func (s *ReportArchive) Put(ctx context.Context, detectionID int64, variant ReportVariant, data []byte, contentType string) error {
	key := ReportKey(detectionID, variant)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Get returns the archived report and its content type, or ErrNotArchived.
func (s *ReportArchive) Get(ctx context.Context, detectionID int64, variant ReportVariant) ([]byte, string, error) {
	key := ReportKey(detectionID, variant)
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		if minio.ToErrorResponse(err).StatusCode == http.StatusNotFound {
			return nil, "", ErrNotArchived
		}
		return nil, "", fmt.Errorf("stat object %s: %w", key, err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, "", fmt.Errorf("read object %s: %w", key, err)
	}
	return data, info.ContentType, nil
}

// DeleteReports removes every archived variant of a detection.
func (s *ReportArchive) DeleteReports(ctx context.Context, detectionID int64) error {
	prefix := reportPrefix(detectionID)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objectsCh := make(chan minio.ObjectInfo)
	go func() {
		defer close(objectsCh)
		for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
			if obj.Err != nil {
				return
			}
			select {
			case objectsCh <- obj:
			case <-ctx.Done():
				return
			}
		}
	}()

	for result := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if result.Err != nil {
			return fmt.Errorf("delete object %s: %w", result.ObjectName, result.Err)
		}
	}
	return nil
}

// Ping checks MinIO connectivity.
func (s *ReportArchive) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}
