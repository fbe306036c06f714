// File path: internal/filestore/minio.go
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/nicodishanthj/copybook_engine/internal/common"
)

// MinioConfig configures the object-store backed reference store used to
// stage canonicalized copybooks and data files for the bulk backend.
type MinioConfig struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Secure    bool   `json:"secure"`

	Timeout       time.Duration `json:"-"`
	TimeoutString string        `json:"timeout"`
}

// Merge overlays non-empty override fields onto c.
func (c MinioConfig) Merge(override MinioConfig) MinioConfig {
	result := c
	if strings.TrimSpace(override.Endpoint) != "" {
		result.Endpoint = strings.TrimSpace(override.Endpoint)
	}
	if strings.TrimSpace(override.AccessKey) != "" {
		result.AccessKey = override.AccessKey
	}
	if strings.TrimSpace(override.SecretKey) != "" {
		result.SecretKey = override.SecretKey
	}
	if strings.TrimSpace(override.Bucket) != "" {
		result.Bucket = strings.TrimSpace(override.Bucket)
	}
	if override.Secure {
		result.Secure = true
	}
	if override.Timeout > 0 {
		result.Timeout = override.Timeout
	}
	if strings.TrimSpace(override.TimeoutString) != "" {
		result.TimeoutString = strings.TrimSpace(override.TimeoutString)
	}
	return result
}

// LoadMinioConfig builds the object-store configuration from an optional
// JSON file plus environment overrides.
func LoadMinioConfig() (MinioConfig, error) {
	cfg := MinioConfig{}
	if path := strings.TrimSpace(os.Getenv("COPYBOOK_MINIO_CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return MinioConfig{}, fmt.Errorf("read minio config: %w", err)
		}
		var fileCfg MinioConfig
		if err := json.Unmarshal(data, &fileCfg); err != nil {
			return MinioConfig{}, fmt.Errorf("parse minio config: %w", err)
		}
		cfg = cfg.Merge(fileCfg)
	}
	cfg = cfg.Merge(minioConfigEnv())
	cfg.applyDefaults()
	return cfg, nil
}

func minioConfigEnv() MinioConfig {
	cfg := MinioConfig{}
	if v := strings.TrimSpace(os.Getenv("COPYBOOK_MINIO_ENDPOINT")); v != "" {
		cfg.Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("COPYBOOK_MINIO_ACCESS_KEY")); v != "" {
		cfg.AccessKey = v
	}
	if v := strings.TrimSpace(os.Getenv("COPYBOOK_MINIO_SECRET_KEY")); v != "" {
		cfg.SecretKey = v
	}
	if v := strings.TrimSpace(os.Getenv("COPYBOOK_MINIO_BUCKET")); v != "" {
		cfg.Bucket = v
	}
	if v := strings.TrimSpace(os.Getenv("COPYBOOK_MINIO_SECURE")); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.Secure = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("COPYBOOK_MINIO_TIMEOUT")); v != "" {
		cfg.TimeoutString = v
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = parsed
		}
	}
	return cfg
}

func (c *MinioConfig) applyDefaults() {
	if strings.TrimSpace(c.Endpoint) == "" {
		c.Endpoint = "localhost:9000"
	}
	if strings.TrimSpace(c.Bucket) == "" {
		c.Bucket = "copybook-staging"
	}
	if c.Timeout <= 0 {
		if c.TimeoutString != "" {
			if parsed, err := time.ParseDuration(c.TimeoutString); err == nil {
				c.Timeout = parsed
			}
		}
		if c.Timeout <= 0 {
			c.Timeout = 30 * time.Second
		}
	}
}

// Minio is a Store backed by an S3-compatible object store. Object keys are
// the opaque references.
type Minio struct {
	client *minio.Client
	cfg    MinioConfig
}

// NewMinio connects to the configured object store and verifies the staging
// bucket exists, creating it when absent.
func NewMinio(ctx context.Context, cfg MinioConfig) (*Minio, error) {
	cfg.applyDefaults()
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	checkCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	exists, err := client.BucketExists(checkCtx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check staging bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(checkCtx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create staging bucket: %w", err)
		}
	}
	common.Logger().Info("filestore: object store connected", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket)
	return &Minio{client: client, cfg: cfg}, nil
}

// Put uploads the payload under a fresh UUID key.
func (s *Minio) Put(ctx context.Context, data []byte) (string, error) {
	key := uuid.NewString()
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return "", fmt.Errorf("stage object: %w", err)
	}
	return key, nil
}

// Get downloads the payload behind a key.
func (s *Minio) Get(ctx context.Context, ref string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, ref, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetch object: %w", err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

// Stat reports the stored object size.
func (s *Minio) Stat(ctx context.Context, ref string) (int64, error) {
	info, err := s.client.StatObject(ctx, s.cfg.Bucket, ref, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("stat object: %w", err)
	}
	return info.Size, nil
}

// Delete removes a staged object.
func (s *Minio) Delete(ctx context.Context, ref string) error {
	err := s.client.RemoveObject(ctx, s.cfg.Bucket, ref, minio.RemoveObjectOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}
