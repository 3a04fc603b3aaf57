// Package storage wraps the S3-compatible object store holding published
// artifacts. The uploader and the artifact router must agree on the exact
// key layout, so both go through ObjectKey.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrNotFound signals a missing object.
var ErrNotFound = errors.New("object not found")

// Options configures the object store client.
type Options struct {
	Endpoint  string // non-empty for MinIO / custom endpoints
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// Client is a thin wrapper over the S3 API bound to one bucket.
type Client struct {
	s3     *s3.Client
	bucket string
}

// New builds an object store client.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("bucket cannot be empty")
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load object store config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &Client{s3: client, bucket: opts.Bucket}, nil
}

// ObjectKey computes the storage key for one artifact file:
// {artifactPrefix}/{subdomain}/{relativePath}.
func ObjectKey(artifactPrefix, subdomain, relativePath string) string {
	relativePath = strings.TrimPrefix(relativePath, "/")
	return path.Join(artifactPrefix, subdomain, relativePath)
}

// ContentTypeFor derives a content type from the file extension, falling back
// to a binary default.
func ContentTypeFor(filename string) string {
	if ct := mime.TypeByExtension(path.Ext(filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Put uploads one object.
func (c *Client) Put(ctx context.Context, key, contentType string, body io.Reader) error {
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Object is a fetched artifact ready to stream to a client.
type Object struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// Get fetches one object. Missing keys map to ErrNotFound.
func (c *Client) Get(ctx context.Context, key string) (*Object, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	obj := &Object{Body: out.Body, ContentType: aws.ToString(out.ContentType)}
	if out.ContentLength != nil {
		obj.ContentLength = *out.ContentLength
	}
	return obj, nil
}
