// Package minio stores record files and run results in S3-compatible object
// storage.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/turtacn/PDB-Sieve/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PDB-Sieve/pkg/errors"
)

// Scheme prefixes object URIs accepted by ParseURI.
const Scheme = "s3://"

// ObjectAPI is the subset of the MinIO client this package uses.
type ObjectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// minioAPI adapts *minio.Client to ObjectAPI.
type minioAPI struct {
	c *minio.Client
}

func (a minioAPI) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	return a.c.BucketExists(ctx, bucketName)
}

func (a minioAPI) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	return a.c.GetObject(ctx, bucketName, objectName, opts)
}

func (a minioAPI) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	return a.c.StatObject(ctx, bucketName, objectName, opts)
}

func (a minioAPI) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return a.c.PutObject(ctx, bucketName, objectName, reader, objectSize, opts)
}

// MinIOConfig holds the object store connection settings.
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Region          string `mapstructure:"region"`
}

// MinIOClient reads record files and writes result documents.
type MinIOClient struct {
	client ObjectAPI
	config *MinIOConfig
	logger logging.Logger
	mu     sync.RWMutex
	closed bool
}

var (
	ErrMinIOClientClosed = errors.New(errors.ErrCodeInternal, "minio client is closed")
	ErrBucketNotFound    = errors.New(errors.ErrCodeNotFound, "bucket not found")
	ErrObjectNotFound    = errors.New(errors.ErrCodeNotFound, "object not found")
)

// NewMinIOClient connects to the configured endpoint.  Buckets are not
// created; reading a missing bucket fails with ErrBucketNotFound.
func NewMinIOClient(cfg *MinIOConfig, log logging.Logger) (*MinIOClient, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, errors.New(errors.ErrCodeValidation, "object store endpoint is required")
	}
	applyDefaults(cfg)

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create minio client")
	}

	log.Info("MinIO client configured", logging.String("endpoint", cfg.Endpoint), logging.Bool("ssl", cfg.UseSSL))
	return NewMinIOClientFromAPI(minioAPI{c: mc}, cfg, log), nil
}

// NewMinIOClientFromAPI wraps an existing ObjectAPI.
func NewMinIOClientFromAPI(api ObjectAPI, cfg *MinIOConfig, log logging.Logger) *MinIOClient {
	if cfg == nil {
		cfg = &MinIOConfig{}
	}
	applyDefaults(cfg)
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &MinIOClient{client: api, config: cfg, logger: log.Named("minio")}
}

func applyDefaults(cfg *MinIOConfig) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
}

// ParseURI splits "s3://bucket/path/to/object" into bucket and object name.
func ParseURI(uri string) (bucket, object string, err error) {
	if !IsURI(uri) {
		return "", "", errors.Newf(errors.CodeInvalidParam, "%q is not an %s URI", uri, Scheme)
	}
	u, perr := url.Parse(uri)
	if perr != nil {
		return "", "", errors.Wrap(perr, errors.CodeInvalidParam, "malformed object URI")
	}
	bucket = u.Host
	object = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || object == "" {
		return "", "", errors.Newf(errors.CodeInvalidParam, "object URI %q needs a bucket and an object name", uri)
	}
	return bucket, object, nil
}

// IsURI reports whether s names an object rather than a local path.
func IsURI(s string) bool { return strings.HasPrefix(s, Scheme) }

func (c *MinIOClient) checkOpen() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrMinIOClientClosed
	}
	return nil
}

func (c *MinIOClient) ensureBucket(ctx context.Context, bucket string) error {
	exists, err := c.client.BucketExists(ctx, bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to check bucket existence")
	}
	if !exists {
		return ErrBucketNotFound.WithDetail(bucket)
	}
	return nil
}

// Open returns a reader over the object named by uri.
func (c *MinIOClient) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if err := c.ensureBucket(ctx, bucket); err != nil {
		return nil, err
	}
	info, err := c.client.StatObject(ctx, bucket, object, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrObjectNotFound.WithDetail(uri)
		}
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, fmt.Sprintf("failed to stat %s", uri))
	}
	rc, err := c.client.GetObject(ctx, bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, fmt.Sprintf("failed to open %s", uri))
	}
	c.logger.Debug("object opened", logging.String("uri", uri), logging.Int64("size", info.Size))
	return rc, nil
}

// Put stores data under uri.
func (c *MinIOClient) Put(ctx context.Context, uri string, data []byte, contentType string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return err
	}
	if err := c.ensureBucket(ctx, bucket); err != nil {
		return err
	}
	start := time.Now()
	info, err := c.client.PutObject(ctx, bucket, object, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, fmt.Sprintf("failed to write %s", uri))
	}
	c.logger.Info("object written",
		logging.String("uri", uri),
		logging.Int64("size", info.Size),
		logging.Duration("took", time.Since(start)))
	return nil
}

// Close marks the client closed.
func (c *MinIOClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
