// Package archive keeps a copy of every WordPress export in object storage.
package archive

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// objectStore is the part of *minio.Client the uploader uses
type objectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Options configures the uploader
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Prefix    string
}

// Uploader stores exports under <prefix>/<slug>/<timestamp>.xml
type Uploader struct {
	client objectStore
	bucket string
	prefix string
	now    func() time.Time

	mu      sync.Mutex
	ensured bool
}

// NewClient creates a MinIO client
func NewClient(endpoint, key, secret string, useSSL bool) (*minio.Client, error) {
	return minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(key, secret, ""),
		Secure: useSSL,
	})
}

// NewUploader creates an uploader for opts.Bucket
func NewUploader(opts Options) (*Uploader, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	client, err := NewClient(opts.Endpoint, opts.AccessKey, opts.SecretKey, opts.UseSSL)
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return newUploader(client, opts.Bucket, opts.Prefix), nil
}

func newUploader(client objectStore, bucket, prefix string) *Uploader {
	if prefix == "" {
		prefix = "exports"
	}
	return &Uploader{client: client, bucket: bucket, prefix: prefix, now: time.Now}
}

// ObjectName returns the key an export of slug taken at t is stored under
func (u *Uploader) ObjectName(slug string, t time.Time) string {
	return path.Join(u.prefix, slug, t.UTC().Format("20060102T150405Z")+".xml")
}

// Archive uploads the export file at filePath
func (u *Uploader) Archive(ctx context.Context, slug, filePath string) error {
	if err := u.ensureBucket(ctx); err != nil {
		return err
	}
	name := u.ObjectName(slug, u.now())
	_, err := u.client.FPutObject(ctx, u.bucket, name, filePath, minio.PutObjectOptions{
		ContentType:  "text/xml",
		UserMetadata: map[string]string{"channel": slug},
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return nil
}

func (u *Uploader) ensureBucket(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.ensured {
		return nil
	}
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", u.bucket, err)
	}
	if !exists {
		if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", u.bucket, err)
		}
	}
	u.ensured = true
	return nil
}
