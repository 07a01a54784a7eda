// Package archive reads offline capture files from an S3-compatible bucket
// and writes replay reconciliation reports next to them.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// DefaultBucket holds capture files when no bucket is configured.
const DefaultBucket = "icad-replay"

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("archive object not found")

// Config configures the object store. An empty Endpoint disables it.
type Config struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Region    string `yaml:"region" mapstructure:"region"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
}

// DefaultConfig returns a disabled archive.
func DefaultConfig() Config {
	return Config{Bucket: DefaultBucket, Region: "us-east-1"}
}

// Enabled reports whether an endpoint is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// Archive is a bucket-scoped object store client.
type Archive struct {
	client *minio.Client
	bucket string
	region string
	logger *zap.Logger
}

// New connects to the configured endpoint. No request is made until first use.
func New(cfg Config, logger *zap.Logger) (*Archive, error) {
	if !cfg.Enabled() {
		return nil, errors.New("archive endpoint is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := minio.New(strings.TrimSpace(cfg.Endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("archive client: %w", err)
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		bucket = DefaultBucket
	}
	return &Archive{client: client, bucket: bucket, region: cfg.Region, logger: logger.Named("archive")}, nil
}

// Bucket returns the bucket name.
func (a *Archive) Bucket() string {
	return a.bucket
}

// Fetch reads the object stored under key.
func (a *Archive) Fetch(ctx context.Context, key string) ([]byte, error) {
	obj, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", a.bucket, key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%s/%s: %w", a.bucket, key, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s/%s: %w", a.bucket, key, err)
	}
	a.logger.Debug("fetched object", zap.String("key", key), zap.Int("bytes", len(data)))
	return data, nil
}

// Put stores data under key, creating the bucket on first use.
func (a *Archive) Put(ctx context.Context, key, contentType string, data []byte) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", a.bucket, err)
		}
	}
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", a.bucket, key, err)
	}
	a.logger.Info("stored object", zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

// ReplayReport summarizes one replay run.
type ReplayReport struct {
	Source     string         `json:"source"`
	ReplayedAt time.Time      `json:"replayed_at"`
	Events     int            `json:"events"`
	Rejected   int            `json:"rejected"`
	Duplicates int            `json:"duplicates"`
	Results    []ReplayResult `json:"results"`
}

// ReplayResult is the outcome of one replayed event.
type ReplayResult struct {
	TID        string `json:"tid"`
	CassetteID string `json:"cst_id"`
	Code       string `json:"return_code"`
	CodeName   string `json:"code_name"`
	State      string `json:"state"`
	Message    string `json:"return_msg"`
}

// ReportKey returns reports/<source name>-<UTC timestamp>.json.
func ReportKey(source string, at time.Time) string {
	base := path.Base(source)
	base = strings.TrimSuffix(base, path.Ext(base))
	return fmt.Sprintf("reports/%s-%s.json", base, at.UTC().Format("20060102T150405Z"))
}

// PutReport uploads r and returns its key.
func (a *Archive) PutReport(ctx context.Context, r *ReplayReport) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	key := ReportKey(r.Source, r.ReplayedAt)
	if err := a.Put(ctx, key, "application/json", data); err != nil {
		return "", err
	}
	return key, nil
}
