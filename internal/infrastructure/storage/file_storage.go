package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/ticket-workflow/internal/application/port"
)

var (
	// ErrInvalidSignature is returned for a tampered or unsigned download URL
	ErrInvalidSignature = errors.New("invalid storage signature")

	// ErrURLExpired is returned for a signed URL past its expiry
	ErrURLExpired = errors.New("signed url expired")
)

// BucketStorage keeps ticket images on the local filesystem under one bucket
// directory and hands out HMAC-signed download URLs.
type BucketStorage struct {
	root       string
	publicURL  string
	signingKey []byte
	now        func() time.Time
	logger     *zap.Logger
}

// NewBucketStorage creates storage rooted at baseDir/bucket. publicURL is the
// externally reachable base of the /storage route.
func NewBucketStorage(baseDir, bucket, publicURL string, signingKey []byte, logger *zap.Logger) *BucketStorage {
	return &BucketStorage{
		root:       filepath.Join(baseDir, bucket),
		publicURL:  strings.TrimRight(publicURL, "/"),
		signingKey: signingKey,
		now:        time.Now,
		logger:     logger,
	}
}

// Save writes content to the specified relative path
func (s *BucketStorage) Save(ctx context.Context, path string, content []byte) error {
	fullPath, err := s.resolve(path)
	if err != nil {
		return err
	}

	parentDir := filepath.Dir(fullPath)
	if err := os.MkdirAll(parentDir, 0755); err != nil {
		s.logger.Error("Failed to create parent directories",
			zap.String("path", parentDir),
			zap.Error(err))
		return fmt.Errorf("failed to create directories: %w", err)
	}

	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		s.logger.Error("Failed to write file",
			zap.String("path", fullPath),
			zap.Error(err))
		return fmt.Errorf("failed to write file: %w", err)
	}

	s.logger.Debug("File saved successfully",
		zap.String("path", path),
		zap.Int("size", len(content)))
	return nil
}

// Read reads content from the specified relative path
func (s *BucketStorage) Read(ctx context.Context, path string) ([]byte, error) {
	fullPath, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return content, nil
}

// Exists checks if a file exists at the specified relative path
func (s *BucketStorage) Exists(ctx context.Context, path string) bool {
	fullPath, err := s.resolve(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(fullPath)
	return err == nil && !info.IsDir()
}

// Delete removes a file. Deleting a missing file succeeds.
func (s *BucketStorage) Delete(ctx context.Context, path string) error {
	fullPath, err := s.resolve(path)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		s.logger.Error("Failed to delete file",
			zap.String("path", fullPath),
			zap.Error(err))
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// SignedURL returns publicURL/storage/<path>?expires=<unix>&sig=<hmac>.
func (s *BucketStorage) SignedURL(path string, ttl time.Duration) (string, error) {
	if _, err := s.resolve(path); err != nil {
		return "", err
	}
	if len(s.signingKey) == 0 {
		return "", fmt.Errorf("storage signing key is not configured")
	}

	expires := s.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", s.sign(path, expires))

	escaped := (&url.URL{Path: "/" + strings.TrimPrefix(path, "/")}).EscapedPath()
	return s.publicURL + "/storage" + escaped + "?" + q.Encode(), nil
}

// Verify checks a signature produced by SignedURL.
func (s *BucketStorage) Verify(path, expires, sig string) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || sig == "" {
		return ErrInvalidSignature
	}
	if !hmac.Equal([]byte(sig), []byte(s.sign(path, exp))) {
		return ErrInvalidSignature
	}
	if s.now().Unix() > exp {
		return ErrURLExpired
	}
	return nil
}

func (s *BucketStorage) sign(path string, expires int64) string {
	mac := hmac.New(sha256.New, s.signingKey)
	mac.Write([]byte(strings.TrimPrefix(path, "/")))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// resolve maps a bucket-relative path to disk and rejects escapes from the bucket.
func (s *BucketStorage) resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("empty storage path")
	}
	fullPath := filepath.Join(s.root, filepath.FromSlash(path))

	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	absBase, err := filepath.Abs(s.root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes bucket: %s", path)
	}
	return absPath, nil
}

// Verify interface compliance
var _ port.ObjectStorage = (*BucketStorage)(nil)
