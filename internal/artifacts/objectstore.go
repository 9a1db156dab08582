package artifacts

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Iron-Ham/agentlab/internal/config"
)

// ObjectStoreSink mirrors artifacts to <bucket>/<prefix>/<run id>/<file>.
type ObjectStoreSink struct {
	put    putFunc
	bucket string
	prefix string
}

type putFunc func(ctx context.Context, key, contentType, body string) error

// ValidateObjectStore checks the mirror settings.
func ValidateObjectStore(cfg config.ObjectStoreConfig) error {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if strings.Contains(cfg.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", cfg.Endpoint)
	}
	return nil
}

// NewObjectStoreSink connects to the object store and creates the bucket if
// it does not exist.
func NewObjectStoreSink(ctx context.Context, cfg config.ObjectStoreConfig, runID string) (*ObjectStoreSink, error) {
	if err := ValidateObjectStore(cfg); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	if err := ensureBucket(ctx, client, cfg.Bucket, cfg.Region); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", cfg.Bucket, err)
	}
	put := func(ctx context.Context, key, contentType, body string) error {
		_, err := client.PutObject(ctx, cfg.Bucket, key, strings.NewReader(body), int64(len(body)),
			minio.PutObjectOptions{ContentType: contentType})
		return err
	}
	return newObjectStoreSink(cfg.Bucket, objectPrefix(cfg.Prefix, runID), put), nil
}

func newObjectStoreSink(bucket, prefix string, put putFunc) *ObjectStoreSink {
	return &ObjectStoreSink{bucket: bucket, prefix: prefix, put: put}
}

func objectPrefix(prefix, runID string) string {
	return strings.Trim(path.Join(strings.Trim(prefix, "/"), runID), "/")
}

// SaveIteration uploads the iteration's files and returns their object
// URLs in s3://bucket/key form.
func (s *ObjectStoreSink) SaveIteration(ctx context.Context, it Iteration) ([]string, error) {
	var urls []string
	for _, f := range it.Files() {
		key := path.Join(s.prefix, f.Name)
		putCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		err := s.put(putCtx, key, contentType(f.Name), f.Content)
		cancel()
		if err != nil {
			return urls, fmt.Errorf("upload %s: %w", key, err)
		}
		urls = append(urls, fmt.Sprintf("s3://%s/%s", s.bucket, key))
	}
	return urls, nil
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".py":
		return "text/x-python; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
