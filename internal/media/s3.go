// Package media stores chat attachments in S3 compatible object storage.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/oggyb/muzz-matching/internal/config"
)

const signedURLTTL = 7 * 24 * time.Hour

var ErrValidation = errors.New("media: invalid upload")

// Kind of attachment, mirrors the non-text message types.
type Kind string

const (
	KindImage Kind = "image"
	KindFile  Kind = "file"
)

type Upload struct {
	ChannelID   uint64
	Kind        Kind
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Uploader turns an attachment into a URL usable as a message fileUrl.
type Uploader interface {
	Upload(ctx context.Context, u Upload) (string, error)
}

func NewClient(cfg config.S3Config) (*minio.Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return client, nil
}

type S3Storage struct {
	client    *minio.Client
	bucket    string
	publicURL string

	ensureOnce sync.Once
	ensureErr  error
}

// NewS3Storage returns attachment storage on one bucket. With publicURL
// set, returned URLs are publicURL/bucket/key; otherwise they are presigned.
func NewS3Storage(client *minio.Client, bucket, publicURL string) *S3Storage {
	return &S3Storage{
		client:    client,
		bucket:    strings.TrimSpace(bucket),
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

func (s *S3Storage) EnsureBucket(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("s3 client is nil")
	}
	if s.bucket == "" {
		return fmt.Errorf("s3 bucket is empty")
	}

	s.ensureOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.ensureErr = err
			return
		}
		if exists {
			return
		}
		s.ensureErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	})

	if s.ensureErr != nil {
		return fmt.Errorf("ensure s3 bucket %q: %w", s.bucket, s.ensureErr)
	}
	return nil
}

func (s *S3Storage) Upload(ctx context.Context, u Upload) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("s3 client is nil")
	}
	if err := Validate(u); err != nil {
		return "", err
	}

	key := ObjectKey(u.ChannelID, u.Kind, u.FileName, uuid.NewString())
	_, err := s.client.PutObject(ctx, s.bucket, key, u.Body, u.Size, minio.PutObjectOptions{
		ContentType: u.ContentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object to s3: %w", err)
	}

	if s.publicURL != "" {
		return s.publicURL + "/" + s.bucket + "/" + key, nil
	}
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, signedURLTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign get object: %w", err)
	}
	return presigned.String(), nil
}

func Validate(u Upload) error {
	if u.ChannelID == 0 || u.Body == nil || u.Size <= 0 {
		return ErrValidation
	}
	if u.Kind != KindImage && u.Kind != KindFile {
		return fmt.Errorf("%w: unknown kind %q", ErrValidation, u.Kind)
	}
	if u.Kind == KindImage && u.ContentType != "" && !strings.HasPrefix(u.ContentType, "image/") {
		return fmt.Errorf("%w: %s is not an image", ErrValidation, u.ContentType)
	}
	return nil
}

// ObjectKey builds channels/<channel>/<kind>/<id><ext>. Only the extension
// of the client file name is kept.
func ObjectKey(channelID uint64, kind Kind, fileName, id string) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(fileName, "\\", "/"))))
	if len(ext) > 10 {
		ext = ""
	}
	return fmt.Sprintf("channels/%d/%s/%s%s", channelID, kind, id, ext)
}
