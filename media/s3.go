package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/lochel/genealogy/logging"
)

// ErrUnsupported is returned by operations a backend cannot provide.
var ErrUnsupported = errors.New("operation not supported by media store")

const s3RequestTimeout = 30 * time.Second

// S3Config holds the parameters of an S3-compatible bucket (AWS S3 or MinIO).
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional, enables a custom endpoint
	Prefix          string // optional key prefix inside the bucket
	AccessKeyID     string // optional, falls back to the default credentials chain
	SecretAccessKey string
	PathStyle       bool
}

// S3Storage implements Store on a single bucket. Relative paths map to object
// keys below Prefix.
type S3Storage struct {
	client  *s3.Client
	bucket  string
	prefix  string
	subDirs map[AssetType]string
}

// NewS3Storage connects to the configured bucket.
func NewS3Storage(ctx context.Context, cfg S3Config, subDirs map[AssetType]string) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	logging.L().Infof("media.store: initialized S3Storage on bucket %s", cfg.Bucket)
	return NewS3StorageWithClient(client, cfg.Bucket, cfg.Prefix, subDirs), nil
}

// NewS3StorageWithClient wraps an existing client.
func NewS3StorageWithClient(client *s3.Client, bucket, prefix string, subDirs map[AssetType]string) *S3Storage {
	if subDirs == nil {
		subDirs = DefaultSubDirs
	}
	return &S3Storage{
		client:  client,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		subDirs: subDirs,
	}
}

func (s *S3Storage) relPath(assetType AssetType, relativeDirHint, filename string) (string, error) {
	sub, ok := s.subDirs[assetType]
	if !ok {
		sub = string(assetType)
	}
	rel := path.Join(sub, relativeDirHint, filename)
	if rel != path.Clean("/" + rel)[1:] {
		return "", fmt.Errorf("invalid asset path '%s'", rel)
	}
	return rel, nil
}

func (s *S3Storage) key(relativePath string) string {
	clean := strings.TrimPrefix(path.Clean("/"+relativePath), "/")
	if s.prefix == "" {
		return clean
	}
	return s.prefix + "/" + clean
}

// Save uploads data, replacing any existing object with the same key.
func (s *S3Storage) Save(assetType AssetType, relativeDirHint string, filenameHint string, data io.Reader) (string, error) {
	if filenameHint == "" || filenameHint != path.Base(filenameHint) {
		return "", fmt.Errorf("invalid filename hint '%s' for S3Storage.Save", filenameHint)
	}
	rel, err := s.relPath(assetType, relativeDirHint, filenameHint)
	if err != nil {
		return "", err
	}

	// buffered so the SDK can sign a seekable body
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, data); err != nil {
		return "", fmt.Errorf("failed to read asset data for '%s': %w", rel, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s3RequestTimeout)
	defer cancel()

	key := s.key(rel)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String(http.DetectContentType(buf.Bytes())),
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload '%s' to bucket %s: %w", key, s.bucket, err)
	}
	logging.L().Infof("media.store: uploaded s3://%s/%s", s.bucket, key)
	return rel, nil
}

func (s *S3Storage) Get(relativePath string) (io.ReadCloser, os.FileInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s3RequestTimeout)
	key := s.key(relativePath)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		cancel()
		if isS3NotFound(err) {
			return nil, nil, fmt.Errorf("asset not found at '%s': %w", relativePath, os.ErrNotExist)
		}
		return nil, nil, fmt.Errorf("failed to fetch asset '%s': %w", relativePath, err)
	}

	info := s3FileInfo{name: path.Base(key), size: aws.ToInt64(out.ContentLength)}
	if out.LastModified != nil {
		info.modTime = *out.LastModified
	}
	return &cancelReadCloser{ReadCloser: out.Body, cancel: cancel}, info, nil
}

// Delete removes an object. Missing objects are not an error.
func (s *S3Storage) Delete(relativePath string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s3RequestTimeout)
	defer cancel()

	key := s.key(relativePath)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil && !isS3NotFound(err) {
		return fmt.Errorf("failed to delete asset '%s': %w", relativePath, err)
	}
	return nil
}

// GetFullPath is not available for object storage.
func (s *S3Storage) GetFullPath(relativePath string) (string, error) {
	return "", fmt.Errorf("%w: GetFullPath on s3://%s", ErrUnsupported, s.bucket)
}

// EnsureDir is a no-op; buckets have no directories. It returns the key prefix
// of the asset type.
func (s *S3Storage) EnsureDir(assetType AssetType) (string, error) {
	rel, err := s.relPath(assetType, "", "")
	if err != nil {
		return "", err
	}
	return s.key(rel), nil
}

func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}

type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}

type s3FileInfo struct {
	name    string
	size    int64
	modTime time.Time
}

func (fi s3FileInfo) Name() string       { return fi.name }
func (fi s3FileInfo) Size() int64        { return fi.size }
func (fi s3FileInfo) Mode() fs.FileMode  { return 0444 }
func (fi s3FileInfo) ModTime() time.Time { return fi.modTime }
func (fi s3FileInfo) IsDir() bool        { return false }
func (fi s3FileInfo) Sys() any           { return nil }
