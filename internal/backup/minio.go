package backup

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig locates the bucket snapshots are uploaded to.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// MinioUploader uploads snapshots to an S3-compatible bucket.
type MinioUploader struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioUploader connects to the object store and checks that the bucket
// exists.
func NewMinioUploader(ctx context.Context, cfg MinioConfig) (*MinioUploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	ok, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !ok {
		return nil, fmt.Errorf("bucket %s does not exist", cfg.Bucket)
	}
	return &MinioUploader{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Upload puts the file under prefix/objectKey and returns its s3:// location.
func (u *MinioUploader) Upload(ctx context.Context, localPath, objectKey string) (string, error) {
	key := objectKey
	if u.prefix != "" {
		key = u.prefix + "/" + objectKey
	}
	info, err := u.client.FPutObject(ctx, u.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: "application/vnd.apache.parquet",
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", info.Bucket, info.Key), nil
}
