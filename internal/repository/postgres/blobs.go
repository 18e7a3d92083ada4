package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/splax/hackhub/internal/domain"
	"github.com/splax/hackhub/internal/repository"
)

// CreateBlob records metadata for a stored object.
func (r *Repository) CreateBlob(ctx context.Context, blob *domain.Blob) error {
	const query = `INSERT INTO blobs (id, owner_id, content_type, size, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Exec(ctx, query, blob.ID, blob.OwnerID, blob.ContentType, blob.Size, blob.CreatedAt)
	return mapError(err)
}

// GetBlob fetches object metadata.
func (r *Repository) GetBlob(ctx context.Context, id string) (*domain.Blob, error) {
	const query = `SELECT id, owner_id, content_type, size, created_at FROM blobs WHERE id = $1`
	var b domain.Blob
	if err := r.db.QueryRow(ctx, query, id).Scan(&b.ID, &b.OwnerID, &b.ContentType, &b.Size, &b.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return &b, nil
}
