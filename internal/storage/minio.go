package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/visitrack/internal/config"
	"github.com/your-org/visitrack/internal/matching"
	"github.com/your-org/visitrack/internal/models"
)

// ExportsPrefix is where the tracking subsystem drops tracklet exports.
const ExportsPrefix = "exports/"

type MinIOStore struct {
	client *minio.Client
	bucket string
}

func NewMinIOStore(cfg config.MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinIOStore{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
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

func (s *MinIOStore) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// OpenObject streams an object. The caller closes the reader.
func (s *MinIOStore) OpenObject(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	// GetObject is lazy; Stat surfaces a missing key before the first read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat object %s: %w", key, err)
	}
	return obj, nil
}

// ListObjects returns all object keys under the given prefix, in the order MinIO returns them.
func (s *MinIOStore) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects %s: %w", prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// ListExports returns the tracklet export files of a venue.
func (s *MinIOStore) ListExports(ctx context.Context, venueID uuid.UUID) ([]string, error) {
	keys, err := s.ListObjects(ctx, ExportsPrefix+venueID.String()+"/")
	if err != nil {
		return nil, err
	}
	out := keys[:0]
	for _, k := range keys {
		if strings.HasSuffix(k, ".jsonl") {
			out = append(out, k)
		}
	}
	return out, nil
}

// Report is the audit artefact uploaded for every completed run.
type Report struct {
	Run          models.Run           `json:"run"`
	Params       matching.Params      `json:"params"`
	Stats        matching.Stats       `json:"stats"`
	Associations []models.Association `json:"associations"`
	Journeys     []models.Journey     `json:"journeys"`
}

func ReportKey(venueID, runID uuid.UUID) string {
	return fmt.Sprintf("runs/%s/%s/report.json", venueID, runID)
}

func (s *MinIOStore) PutReport(ctx context.Context, key string, r *Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return s.PutObject(ctx, key, data, "application/json")
}

// OpenReport streams a stored report as raw JSON.
func (s *MinIOStore) OpenReport(ctx context.Context, key string) (io.ReadCloser, error) {
	if key == "" {
		return nil, ErrNotFound
	}
	return s.OpenObject(ctx, key)
}

// Ping checks MinIO connectivity.
func (s *MinIOStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}
