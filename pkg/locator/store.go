// pkg/locator/store.go
package locator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/David-Botos/parquet-editor/pkg/config"
)

// Checker checks whether a referenced file exists
type Checker interface {
	Exists(ctx context.Context, ref Ref) (bool, error)
}

// Remover deletes a referenced file
type Remover interface {
	Remove(ctx context.Context, ref Ref) error
}

// ObjectStore checks and removes local files, S3 and GCS objects and HTTP URLs.
// Remote clients are created on first use; a failed creation is retried on
// the next call.
type ObjectStore struct {
	cfg    *config.StorageConfig
	logger *zap.Logger
	http   *http.Client

	mu           sync.Mutex
	s3           *s3.Client
	gcs          *storage.Client
	newGCSClient func(ctx context.Context, opts ...option.ClientOption) (*storage.Client, error)
}

// NewObjectStore creates a store using the configured storage credentials.
// A nil cfg falls back to the ambient cloud credentials.
func NewObjectStore(cfg *config.StorageConfig, logger *zap.Logger) *ObjectStore {
	if cfg == nil {
		cfg = &config.StorageConfig{}
	}
	return &ObjectStore{
		cfg:          cfg,
		logger:       logger.Named("store"),
		http:         &http.Client{},
		newGCSClient: storage.NewClient,
	}
}

// Exists reports whether ref names an existing file. Remote globs cannot be
// checked without listing and are reported as existing.
func (p *ObjectStore) Exists(ctx context.Context, ref Ref) (bool, error) {
	switch ref.Kind {
	case KindLocal:
		return localExists(ref)
	case KindS3:
		if ref.IsGlob() {
			return true, nil
		}
		return p.s3Exists(ctx, ref)
	case KindGCS:
		if ref.IsGlob() {
			return true, nil
		}
		return p.gcsExists(ctx, ref)
	case KindHTTP:
		return p.httpExists(ctx, ref)
	default:
		return false, fmt.Errorf("unsupported reference kind %s", ref.Kind)
	}
}

func localExists(ref Ref) (bool, error) {
	if ref.IsGlob() {
		matches, err := filepath.Glob(ref.Path)
		if err != nil {
			return false, fmt.Errorf("invalid glob %s: %w", ref.Path, err)
		}
		return len(matches) > 0, nil
	}

	info, err := os.Stat(ref.Path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", ref.Path, err)
	}
	return !info.IsDir(), nil
}

func (p *ObjectStore) s3Client(ctx context.Context) (*s3.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.s3 != nil {
		return p.s3, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(p.cfg.S3Region),
	}
	if p.cfg.HasS3Credentials() {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(p.cfg.S3AccessKeyID, p.cfg.S3SecretAccessKey, p.cfg.S3SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	p.s3 = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if p.cfg.S3Endpoint != "" {
			scheme := "https://"
			if !p.cfg.S3UseSSL {
				scheme = "http://"
			}
			o.BaseEndpoint = aws.String(scheme + p.cfg.S3Endpoint)
		}
		o.UsePathStyle = p.cfg.S3URLStyle == "path"
	})
	return p.s3, nil
}

func (p *ObjectStore) s3Exists(ctx context.Context, ref Ref) (bool, error) {
	client, err := p.s3Client(ctx)
	if err != nil {
		return false, err
	}

	_, err = client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	})
	if err == nil {
		return true, nil
	}

	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return false, nil
		}
	}
	return false, fmt.Errorf("failed to stat %s: %w", ref.Path, err)
}

func (p *ObjectStore) gcsClient(ctx context.Context) (*storage.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gcs != nil {
		return p.gcs, nil
	}

	var opts []option.ClientOption
	if p.cfg.GCSCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(p.cfg.GCSCredentialsFile))
	}

	client, err := p.newGCSClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	p.gcs = client
	return p.gcs, nil
}

func (p *ObjectStore) gcsExists(ctx context.Context, ref Ref) (bool, error) {
	client, err := p.gcsClient(ctx)
	if err != nil {
		return false, err
	}

	_, err = client.Bucket(ref.Bucket).Object(ref.Key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", ref.Path, err)
	}
	return true, nil
}

func (p *ObjectStore) httpExists(ctx context.Context, ref Ref) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, ref.Path, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build HEAD request: %w", err)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", ref.Path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return false, nil
	case resp.StatusCode >= 400:
		return false, fmt.Errorf("HEAD %s returned %s", ref.Path, resp.Status)
	}
	return true, nil
}

// Remove deletes the file ref names. Missing files are not an error.
// HTTP references and globs cannot be removed.
func (p *ObjectStore) Remove(ctx context.Context, ref Ref) error {
	if ref.IsGlob() {
		return fmt.Errorf("cannot remove pattern %s", ref.Path)
	}

	switch ref.Kind {
	case KindLocal:
		if err := os.Remove(ref.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", ref.Path, err)
		}
	case KindS3:
		client, err := p.s3Client(ctx)
		if err != nil {
			return err
		}
		if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(ref.Bucket),
			Key:    aws.String(ref.Key),
		}); err != nil {
			return fmt.Errorf("failed to remove %s: %w", ref.Path, err)
		}
	case KindGCS:
		client, err := p.gcsClient(ctx)
		if err != nil {
			return err
		}
		err = client.Bucket(ref.Bucket).Object(ref.Key).Delete(ctx)
		if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("failed to remove %s: %w", ref.Path, err)
		}
	default:
		return fmt.Errorf("cannot remove %s references", ref.Kind)
	}

	p.logger.Info("Removed file", zap.String("path", ref.Path))
	return nil
}

// Close releases remote clients
func (p *ObjectStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gcs != nil {
		if err := p.gcs.Close(); err != nil {
			p.logger.Warn("Failed to close GCS client", zap.Error(err))
			return err
		}
	}
	return nil
}
