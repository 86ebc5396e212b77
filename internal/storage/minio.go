package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bowerhall/chordial/internal/logger"
)

const defaultBucket = "chordial-backups"

// Client wraps the MinIO client for one backup bucket
type Client struct {
	mc     *minio.Client
	bucket string
}

// Config holds MinIO connection settings
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// NewClient creates a new storage client
func NewClient(cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = defaultBucket
	}

	return &Client{mc: mc, bucket: bucket}, nil
}

// Init creates the bucket if it doesn't exist
func (c *Client) Init(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", c.bucket, err)
	}

	if !exists {
		if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", c.bucket, err)
		}
		logger.Info("bucket created", "bucket", c.bucket)
	}

	return nil
}

// FileInfo represents a stored object
type FileInfo struct {
	Name  string
	Size  int64
	IsDir bool
}

// UploadFile uploads a local file under key
func (c *Client) UploadFile(ctx context.Context, key, path, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := c.mc.FPutObject(ctx, c.bucket, key, path, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", c.bucket, key, err)
	}

	logger.Debug("file uploaded", "bucket", c.bucket, "key", key, "size", info.Size)
	return nil
}

// List lists objects under prefix. Without recursive, nested keys are
// folded into their "directory" prefix.
func (c *Client) List(ctx context.Context, prefix string, recursive bool) ([]FileInfo, error) {
	var files []FileInfo

	opts := minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: recursive,
	}

	for obj := range c.mc.ListObjects(ctx, c.bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", c.bucket, obj.Err)
		}

		files = append(files, FileInfo{
			Name:  obj.Key,
			Size:  obj.Size,
			IsDir: strings.HasSuffix(obj.Key, "/"),
		})
	}

	return files, nil
}

// Delete deletes an object
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.mc.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete %s/%s: %w", c.bucket, key, err)
	}
	return nil
}

func (c *Client) Bucket() string {
	return c.bucket
}

// Healthy checks if MinIO is reachable
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.mc.BucketExists(ctx, c.bucket)
	return err == nil
}
