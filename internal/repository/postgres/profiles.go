package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/splax/hackhub/internal/domain"
	"github.com/splax/hackhub/internal/repository"
)

const profileColumns = `user_id, name, role, image, created_at, updated_at`

// GetProfileByUserID fetches the profile owned by userID.
func (r *Repository) GetProfileByUserID(ctx context.Context, userID string) (*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`
	return scanProfile(r.db.QueryRow(ctx, query, userID))
}

// ListProfilesByUserIDs returns the profiles that exist for the given users keyed by user id.
func (r *Repository) ListProfilesByUserIDs(ctx context.Context, userIDs []string) (map[string]domain.Profile, error) {
	out := make(map[string]domain.Profile, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = ANY($1)`
	rows, err := r.db.Query(ctx, query, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out[p.UserID] = *p
	}
	return out, rows.Err()
}

// SaveProfile executes a create or patch command and returns the stored row.
func (r *Repository) SaveProfile(ctx context.Context, cmd domain.ProfileCommand) (*domain.Profile, error) {
	switch cmd.Kind {
	case domain.ProfileCreate:
		query := `INSERT INTO profiles (user_id, name, role, image, created_at, updated_at)
			VALUES ($1, $2, $3, $4, NOW(), NOW())
			RETURNING ` + profileColumns
		row := r.db.QueryRow(ctx, query, cmd.UserID, derefString(cmd.Name), derefString(cmd.Role), cmd.Image)
		p, err := scanProfile(row)
		if err != nil {
			return nil, mapError(err)
		}
		return p, nil
	case domain.ProfilePatch:
		query := `UPDATE profiles SET
				name = COALESCE($2, name),
				role = COALESCE($3, role),
				image = COALESCE($4, image),
				updated_at = NOW()
			WHERE user_id = $1
			RETURNING ` + profileColumns
		p, err := scanProfile(r.db.QueryRow(ctx, query, cmd.UserID, cmd.Name, cmd.Role, cmd.Image))
		if err != nil {
			return nil, mapError(err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown profile command kind %d", cmd.Kind)
	}
}

// WithProfileTx runs fn in a transaction holding the profile lock for userID.
func (r *Repository) WithProfileTx(ctx context.Context, userID string, fn func(repository.ProfileStore) error) error {
	return r.inTx(ctx, func(tx *Repository) error {
		if err := tx.advisoryLock(ctx, "profile:"+userID); err != nil {
			return err
		}
		return fn(tx)
	})
}

func scanProfile(row pgx.Row) (*domain.Profile, error) {
	var (
		p     domain.Profile
		image sql.NullString
	)
	if err := row.Scan(&p.UserID, &p.Name, &p.Role, &image, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if image.Valid {
		value := image.String
		p.Image = &value
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
