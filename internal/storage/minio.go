// Package storage hosts course thumbnails on MinIO (or any S3-compatible
// object store).  Clients send images inline as data URIs or bare base64;
// the store keeps the object key as the asset's public id so the object can
// be removed when the thumbnail is replaced.
package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/iliyamo/elearning-backend/internal/config"
	"github.com/iliyamo/elearning-backend/internal/model"
)

// ErrInvalidImage is returned when the inline payload cannot be decoded.
var ErrInvalidImage = errors.New("invalid image payload")

// maxImageBytes caps decoded uploads.
const maxImageBytes = 10 << 20

// MinioAssets uploads and deletes objects in one bucket.
type MinioAssets struct {
	mc        *minio.Client
	bucket    string
	publicURL string
	log       *zap.Logger
}

// NewMinioAssets creates the client.  The bucket is created on first use by
// EnsureBucket.
func NewMinioAssets(cfg config.MinIOConfig, log *zap.Logger) (*MinioAssets, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio access_key and secret_key are required")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "courses"
	}
	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = scheme + "://" + cfg.Endpoint
	}
	return &MinioAssets{mc: mc, bucket: bucket, publicURL: publicURL, log: log}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (m *MinioAssets) EnsureBucket(ctx context.Context) error {
	exists, err := m.mc.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := m.mc.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		m.log.Info("created bucket", zap.String("bucket", m.bucket))
	}
	return nil
}

// Upload stores an inline image under folder and returns its asset record.
// An http(s) URL is not re-hosted; it is returned as an external asset with
// an empty public id.
func (m *MinioAssets) Upload(ctx context.Context, folder, name, data string) (model.Asset, error) {
	if IsRemoteURL(data) {
		return model.Asset{URL: data}, nil
	}
	contentType, raw, err := DecodeImage(data)
	if err != nil {
		return model.Asset{}, err
	}
	key := ObjectKey(folder, name, contentType)
	_, err = m.mc.PutObject(ctx, m.bucket, key, bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return model.Asset{}, fmt.Errorf("upload %s: %w", key, err)
	}
	return model.Asset{PublicID: key, URL: m.publicURL + "/" + m.bucket + "/" + key}, nil
}

// Delete removes the object behind publicID.  Empty ids (external assets)
// are a no-op.
func (m *MinioAssets) Delete(ctx context.Context, publicID string) error {
	if publicID == "" {
		return nil
	}
	return m.mc.RemoveObject(ctx, m.bucket, publicID, minio.RemoveObjectOptions{})
}

// IsRemoteURL reports whether s is an absolute http(s) URL.
func IsRemoteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// DecodeImage accepts "data:<mime>;base64,<payload>" or bare base64 and
// returns the content type and decoded bytes.  Only image types pass.
func DecodeImage(s string) (string, []byte, error) {
	s = strings.TrimSpace(s)
	payload, declared := s, ""
	if strings.HasPrefix(s, "data:") {
		meta, body, ok := strings.Cut(s[len("data:"):], ",")
		if !ok || !strings.HasSuffix(meta, ";base64") {
			return "", nil, ErrInvalidImage
		}
		declared = strings.TrimSuffix(meta, ";base64")
		payload = body
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if raw, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return "", nil, ErrInvalidImage
		}
	}
	if len(raw) == 0 || len(raw) > maxImageBytes {
		return "", nil, ErrInvalidImage
	}
	contentType := declared
	if contentType == "" {
		contentType = http.DetectContentType(raw)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", nil, ErrInvalidImage
	}
	return contentType, raw, nil
}

// ObjectKey builds "<folder>/<slug(name)>-<uuid><ext>".
func ObjectKey(folder, name, contentType string) string {
	base := slug.Make(name)
	if base == "" {
		base = "asset"
	}
	ext := ""
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		ext = exts[0]
	}
	key := base + "-" + uuid.NewString() + ext
	if folder != "" {
		key = strings.Trim(folder, "/") + "/" + key
	}
	return key
}
