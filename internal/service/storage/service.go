package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/hackhub/internal/domain"
	"github.com/splax/hackhub/internal/repository"
	"github.com/splax/hackhub/pkg/config"
	jwtpkg "github.com/splax/hackhub/pkg/jwt"
)

// Service is a local-disk object store with signed upload targets.
type Service struct {
	blobs    repository.BlobRepository
	logger   *slog.Logger
	root     string
	baseURL  string
	secret   string
	ttl      time.Duration
	maxBytes int64
}

// New constructs a storage Service rooted at cfg.StorageDir.
func New(blobs repository.BlobRepository, logger *slog.Logger, cfg config.APIConfig) Service {
	ttl := cfg.UploadTokenTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	maxBytes := cfg.UploadMaxBytes
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	return Service{
		blobs:    blobs,
		logger:   logger,
		root:     cfg.StorageDir,
		baseURL:  strings.TrimRight(cfg.PublicBaseURL, "/"),
		secret:   cfg.JWTSecret,
		ttl:      ttl,
		maxBytes: maxBytes,
	}
}

// IssueUploadTarget returns a short-lived URL that accepts one upload owned by ownerID.
func (s Service) IssueUploadTarget(_ context.Context, ownerID string) (domain.UploadTarget, error) {
	if ownerID == "" {
		return domain.UploadTarget{}, domain.ErrUnauthenticated
	}
	blobID := uuid.NewString()
	token, expires, err := jwtpkg.GenerateUploadToken(ownerID, blobID, s.secret, s.ttl)
	if err != nil {
		return domain.UploadTarget{}, fmt.Errorf("sign upload token: %w", err)
	}
	return domain.UploadTarget{
		URL:       s.baseURL + "/storage/upload?token=" + url.QueryEscape(token),
		Token:     token,
		StorageID: blobID,
		ExpiresAt: expires.UTC(),
	}, nil
}

// Store writes body as the blob authorised by token and records its metadata.
func (s Service) Store(ctx context.Context, token, contentType string, body io.Reader) (*domain.Blob, error) {
	claims, err := jwtpkg.ParseUploadToken(strings.TrimSpace(token), s.secret)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return nil, domain.Invalid("only image uploads are accepted")
	}
	if _, err := s.blobs.GetBlob(ctx, claims.BlobID); err == nil {
		return nil, domain.ErrUploadUsed
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	final := s.path(claims.BlobID)
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(final), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	size, err := io.Copy(tmp, io.LimitReader(body, s.maxBytes+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("write blob: %w", err)
	}
	if size > s.maxBytes {
		return nil, domain.Invalid("file exceeds %d bytes", s.maxBytes)
	}
	if size == 0 {
		return nil, domain.Invalid("file is empty")
	}
	// Link fails if the target exists, which makes each token single-use on disk.
	if err := os.Link(tmp.Name(), final); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, domain.ErrUploadUsed
		}
		return nil, fmt.Errorf("publish blob: %w", err)
	}

	blob := &domain.Blob{
		ID:          claims.BlobID,
		OwnerID:     claims.OwnerID,
		ContentType: mediaType,
		Size:        size,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.blobs.CreateBlob(ctx, blob); err != nil {
		_ = os.Remove(final)
		if errors.Is(err, repository.ErrConflict) {
			return nil, domain.ErrUploadUsed
		}
		return nil, err
	}
	s.logger.Info("blob stored", "blob_id", blob.ID, "owner_id", blob.OwnerID, "size", size)
	return blob, nil
}

// Get returns blob metadata, or ErrBlobNotFound.
func (s Service) Get(ctx context.Context, blobID string) (*domain.Blob, error) {
	if _, err := uuid.Parse(blobID); err != nil {
		return nil, domain.ErrBlobNotFound
	}
	blob, err := s.blobs.GetBlob(ctx, blobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrBlobNotFound
		}
		return nil, err
	}
	return blob, nil
}

// Open returns blob metadata and its content. The caller closes the file.
func (s Service) Open(ctx context.Context, blobID string) (*domain.Blob, *os.File, error) {
	blob, err := s.Get(ctx, blobID)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(s.path(blob.ID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("blob metadata without content", "blob_id", blob.ID)
			return nil, nil, domain.ErrBlobNotFound
		}
		return nil, nil, err
	}
	return blob, f, nil
}

// URL is the public address of a stored blob.
func (s Service) URL(blobID string) string {
	if blobID == "" {
		return ""
	}
	return s.baseURL + "/storage/" + url.PathEscape(blobID)
}

// path shards blobs by the first two characters of their id.
func (s Service) path(blobID string) string {
	return filepath.Join(s.root, blobID[:2], blobID)
}
