package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/splax/hackhub/internal/domain"
	"github.com/splax/hackhub/internal/repository"
)

// teamSelect loads teams with their member ids in join order.
const teamSelect = `SELECT t.id, t.name, t.slug, t.description, t.captain_id, t.votes, t.image, t.created_at,
		COALESCE(
			(SELECT array_agg(m.user_id ORDER BY m.joined_at, m.user_id)
			 FROM team_members m WHERE m.team_id = t.id),
			'{}'::text[]
		) AS members
	FROM teams t`

// CreateTeam inserts the team and its captain membership.
func (r *Repository) CreateTeam(ctx context.Context, team *domain.Team) error {
	return r.inTx(ctx, func(tx *Repository) error {
		const teamInsert = `INSERT INTO teams (id, name, slug, description, captain_id, votes, image, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
		if _, err := tx.db.Exec(ctx, teamInsert,
			team.ID,
			team.Name,
			team.Slug,
			team.Description,
			team.CaptainID,
			team.Votes,
			team.Image,
			team.CreatedAt,
		); err != nil {
			return mapError(err)
		}
		const memberInsert = `INSERT INTO team_members (team_id, user_id, joined_at) VALUES ($1, $2, $3)`
		for _, userID := range team.Members {
			if _, err := tx.db.Exec(ctx, memberInsert, team.ID, userID, team.CreatedAt); err != nil {
				return mapError(err)
			}
		}
		return nil
	})
}

// GetTeamByID returns a team by identifier.
func (r *Repository) GetTeamByID(ctx context.Context, teamID string) (*domain.Team, error) {
	return scanTeam(r.db.QueryRow(ctx, teamSelect+` WHERE t.id = $1`, teamID))
}

// ListTeams returns every team, highest vote count first.
func (r *Repository) ListTeams(ctx context.Context) ([]domain.Team, error) {
	return r.queryTeams(ctx, teamSelect+` ORDER BY t.votes DESC, t.created_at ASC, t.id ASC`)
}

// ListTeamsByMember returns teams whose member set contains userID.
func (r *Repository) ListTeamsByMember(ctx context.Context, userID string) ([]domain.Team, error) {
	query := teamSelect + `
		WHERE EXISTS (SELECT 1 FROM team_members m WHERE m.team_id = t.id AND m.user_id = $1)
		ORDER BY t.created_at ASC`
	return r.queryTeams(ctx, query, userID)
}

// UpdateTeam writes the mutable team fields.
func (r *Repository) UpdateTeam(ctx context.Context, team *domain.Team) error {
	const query = `UPDATE teams SET name = $2, slug = $3, description = $4, image = $5 WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, team.ID, team.Name, team.Slug, team.Description, team.Image)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// AddMember inserts a membership row.
func (r *Repository) AddMember(ctx context.Context, member domain.TeamMember) error {
	const query = `INSERT INTO team_members (team_id, user_id, joined_at) VALUES ($1, $2, $3)`
	_, err := r.db.Exec(ctx, query, member.TeamID, member.UserID, member.JoinedAt)
	return mapError(err)
}

// RemoveMember deletes a membership row.
func (r *Repository) RemoveMember(ctx context.Context, teamID, userID string) error {
	const query = `DELETE FROM team_members WHERE team_id = $1 AND user_id = $2`
	tag, err := r.db.Exec(ctx, query, teamID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// IncrementVotes adds one vote and returns the new total.
func (r *Repository) IncrementVotes(ctx context.Context, teamID string) (int, error) {
	const query = `UPDATE teams SET votes = votes + 1 WHERE id = $1 RETURNING votes`
	var votes int
	if err := r.db.QueryRow(ctx, query, teamID).Scan(&votes); err != nil {
		return 0, mapError(err)
	}
	return votes, nil
}

// CreateComment inserts a team comment.
func (r *Repository) CreateComment(ctx context.Context, comment *domain.TeamComment) error {
	const query = `INSERT INTO team_comments (id, team_id, user_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Exec(ctx, query, comment.ID, comment.TeamID, comment.UserID, comment.Content, comment.CreatedAt)
	return mapError(err)
}

// ListComments returns a team's comments oldest first.
func (r *Repository) ListComments(ctx context.Context, teamID string) ([]domain.TeamComment, error) {
	const query = `SELECT id, team_id, user_id, content, created_at
		FROM team_comments
		WHERE team_id = $1
		ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Query(ctx, query, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := make([]domain.TeamComment, 0)
	for rows.Next() {
		var c domain.TeamComment
		if err := rows.Scan(&c.ID, &c.TeamID, &c.UserID, &c.Content, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// WithMembershipTx runs fn in a transaction holding the membership lock for userID.
func (r *Repository) WithMembershipTx(ctx context.Context, userID string, fn func(repository.TeamStore) error) error {
	return r.inTx(ctx, func(tx *Repository) error {
		if err := tx.advisoryLock(ctx, "membership:"+userID); err != nil {
			return err
		}
		return fn(tx)
	})
}

// WithTeamTx runs fn in a transaction holding a row lock on the team.
func (r *Repository) WithTeamTx(ctx context.Context, teamID string, fn func(repository.TeamStore, *domain.Team) error) error {
	return r.inTx(ctx, func(tx *Repository) error {
		var locked string
		if err := tx.db.QueryRow(ctx, `SELECT id FROM teams WHERE id = $1 FOR UPDATE`, teamID).Scan(&locked); err != nil {
			return mapError(err)
		}
		team, err := tx.GetTeamByID(ctx, teamID)
		if err != nil {
			return err
		}
		return fn(tx, team)
	})
}

func (r *Repository) queryTeams(ctx context.Context, query string, args ...any) ([]domain.Team, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	teams := make([]domain.Team, 0)
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, *team)
	}
	return teams, rows.Err()
}

func scanTeam(row pgx.Row) (*domain.Team, error) {
	var (
		team  domain.Team
		image sql.NullString
	)
	if err := row.Scan(
		&team.ID,
		&team.Name,
		&team.Slug,
		&team.Description,
		&team.CaptainID,
		&team.Votes,
		&image,
		&team.CreatedAt,
		&team.Members,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if image.Valid {
		value := image.String
		team.Image = &value
	}
	if team.Members == nil {
		team.Members = []string{}
	}
	team.CreatedAt = team.CreatedAt.UTC()
	return &team, nil
}
