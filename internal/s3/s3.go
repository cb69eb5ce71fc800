package s3

import (
	"context"
	"errors"
	"fmt"
	"strings"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Client stores CR texts in a single bucket.
type Client struct {
	mc     *minio.Client
	bucket string
	region string
}

func New(endpoint, accessKey, secretKey string, useSSL bool, region, bucket string) (*Client, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("s3 endpoint is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("s3 bucket is required")
	}
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}
	return &Client{mc: mc, bucket: bucket, region: region}, nil
}

func (c *Client) Bucket() string { return c.bucket }

// EnsureBucket creates the bucket when missing.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", c.bucket, err)
	}
	if exists {
		return nil
	}
	if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{Region: c.region}); err != nil {
		return fmt.Errorf("make bucket %s: %w", c.bucket, err)
	}
	return nil
}

func (c *Client) UploadText(ctx context.Context, key, text string) error {
	_, err := c.mc.PutObject(ctx, c.bucket, key, strings.NewReader(text), int64(len(text)), minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", c.bucket, key, err)
	}
	return nil
}
