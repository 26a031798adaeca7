package vaultsdk

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config points the direct transfer backend at an S3-compatible store.
// Used for self-hosted vaults where content bypasses the presigned flow.
type S3Config struct {
	Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
	AccessKey string `json:"accessKey" mapstructure:"access_key"`
	SecretKey string `json:"secretKey" mapstructure:"secret_key"`
	Bucket    string `json:"bucket" mapstructure:"bucket"`
	UseSSL    bool   `json:"useSSL" mapstructure:"use_ssl"`
}

func (c *S3Config) Validate() error {
	if c.Endpoint == "" || c.Bucket == "" {
		return fmt.Errorf("s3 transfer: endpoint and bucket are required")
	}
	return nil
}

// S3Transfer implements Transfer against an S3-compatible object store.
type S3Transfer struct {
	client *minio.Client
	bucket string
}

var _ Transfer = (*S3Transfer)(nil)

func NewS3Transfer(cfg *S3Config) (*S3Transfer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		BucketLookup: minio.BucketLookupAuto,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 transfer: init client: %w", err)
	}

	return &S3Transfer{client: client, bucket: cfg.Bucket}, nil
}

// objectKey lays out content as <fileID>/v<version> so every version of a
// file stays addressable for discard and outdated pulls.
func objectKey(fileID string, version int64) string {
	return fmt.Sprintf("%s/v%d", fileID, version)
}

func (t *S3Transfer) Upload(ctx context.Context, job *UploadJob) (*UploadResult, error) {
	key := objectKey(job.FileID, job.Version)

	info, err := t.client.FPutObject(ctx, t.bucket, key, job.FilePath, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return nil, fmt.Errorf("s3 transfer: put %s: %w", key, err)
	}

	if job.Callback != nil {
		job.Callback(info.Size, info.Size)
	}

	return &UploadResult{ContentRef: key, ETag: job.ETag}, nil
}

func (t *S3Transfer) Download(ctx context.Context, job *DownloadJob) error {
	key := objectKey(job.FileID, job.Version)

	if err := t.client.FGetObject(ctx, t.bucket, key, job.DestPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("s3 transfer: get %s: %w", key, err)
	}

	if job.Callback != nil {
		if stat, err := t.client.StatObject(ctx, t.bucket, key, minio.StatObjectOptions{}); err == nil {
			job.Callback(stat.Size, stat.Size)
		}
	}

	return nil
}
