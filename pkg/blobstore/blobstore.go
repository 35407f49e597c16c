// Package blobstore persists the raw bodies of ingested Documents (spec.md
// §4.9), content-addressed by SHA-256 hash, across the two storage tiers
// named in the ambient configuration: a local filesystem tier for
// development and a single-node deployment, and an S3 tier for production.
// It mirrors the teacher's pkg/artifacts package (Store interface,
// FileStore, S3Store, env-driven factory), repurposed from generic
// artifact blobs to compliance Document bodies.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/annex4parser/annex4parser/pkg/config"
)

// Store is the content-addressed storage contract for Document bodies.
type Store interface {
	// Put persists data and returns its content hash ("sha256:<hex>"),
	// the value written to Document.FilePath.
	Put(ctx context.Context, data []byte) (string, error)
	// Get retrieves data by the hash returned from Put.
	Get(ctx context.Context, hash string) ([]byte, error)
	// Exists reports whether hash has already been stored.
	Exists(ctx context.Context, hash string) (bool, error)
	// Delete removes the blob for hash, if present.
	Delete(ctx context.Context, hash string) error
}

// New builds the Store named by cfg.BlobStorageTier(): "s3" when an S3
// bucket is configured, else a local filesystem store under dataDir.
func New(ctx context.Context, cfg *config.Config, dataDir string) (Store, error) {
	switch cfg.BlobStorageTier() {
	case "s3":
		return NewS3Store(ctx, S3Config{Bucket: cfg.S3Bucket})
	default:
		return NewFileStore(filepath.Join(dataDir, "documents"))
	}
}

func hashOf(data []byte) (raw string, prefixed string) {
	sum := sha256.Sum256(data)
	raw = hex.EncodeToString(sum[:])
	return raw, "sha256:" + raw
}

func splitHash(hash string) (string, error) {
	if len(hash) < 7 || hash[:7] != "sha256:" {
		return "", fmt.Errorf("blobstore: invalid hash format: %s", hash)
	}
	raw := hash[7:]
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("blobstore: invalid hash hex: %w", err)
	}
	return raw, nil
}

// FileStore is a filesystem-backed Store, grounded on the teacher's
// artifacts.FileStore.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates a Store rooted at baseDir, creating it if absent.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create dir %q: %w", baseDir, err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) path(rawHash string) string {
	return filepath.Join(s.baseDir, rawHash+".blob")
}

func (s *FileStore) Put(ctx context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rawHash, prefixed := hashOf(data)
	path := s.path(rawHash)

	if _, err := os.Stat(path); err == nil {
		return prefixed, nil
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return "", fmt.Errorf("blobstore: write %q: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("blobstore: commit %q: %w", path, err)
	}
	return prefixed, nil
}

func (s *FileStore) Get(ctx context.Context, hash string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rawHash, err := splitHash(hash)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(s.path(rawHash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blobstore: not found: %s", hash)
		}
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(f)
}

func (s *FileStore) Exists(ctx context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rawHash, err := splitHash(hash)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(s.path(rawHash))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *FileStore) Delete(ctx context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rawHash, err := splitHash(hash)
	if err != nil {
		return err
	}

	if err := os.Remove(s.path(rawHash)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blobstore: delete %q: %w", hash, err)
	}
	return nil
}

// S3Config holds the settings needed to build an S3-backed Store.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // optional, for MinIO/LocalStack
	Prefix   string
}

// S3Store is an S3-backed Store, grounded on the teacher's artifacts.S3Store.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store builds an S3Store, defaulting region to us-east-1 when unset
// and wiring a custom endpoint (path-style addressing) for MinIO/LocalStack
// when cfg.Endpoint is set.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("blobstore: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *S3Store) key(rawHash string) string {
	return s.prefix + rawHash + ".blob"
}

func (s *S3Store) Put(ctx context.Context, data []byte) (string, error) {
	rawHash, prefixed := hashOf(data)
	key := s.key(rawHash)

	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err == nil {
		return prefixed, nil
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return "", fmt.Errorf("blobstore: s3 put: %w", err)
	}
	return prefixed, nil
}

func (s *S3Store) Get(ctx context.Context, hash string) ([]byte, error) {
	rawHash, err := splitHash(hash)
	if err != nil {
		return nil, err
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(rawHash)),
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: s3 get %s: %w", hash, err)
	}
	defer result.Body.Close()

	return io.ReadAll(result.Body)
}

func (s *S3Store) Exists(ctx context.Context, hash string) (bool, error) {
	rawHash, err := splitHash(hash)
	if err != nil {
		return false, err
	}

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(rawHash)),
	})
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (s *S3Store) Delete(ctx context.Context, hash string) error {
	rawHash, err := splitHash(hash)
	if err != nil {
		return err
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(rawHash)),
	}); err != nil {
		return fmt.Errorf("blobstore: s3 delete %s: %w", hash, err)
	}
	return nil
}
