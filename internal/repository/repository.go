package repository

import (
	"context"

	"github.com/splax/hackhub/internal/domain"
)

// UserRepository persists users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}

// ProfileStore reads and writes profiles.
type ProfileStore interface {
	GetProfileByUserID(ctx context.Context, userID string) (*domain.Profile, error)
	ListProfilesByUserIDs(ctx context.Context, userIDs []string) (map[string]domain.Profile, error)
	SaveProfile(ctx context.Context, cmd domain.ProfileCommand) (*domain.Profile, error)
}

// ProfileRepository adds a transactional scope around ProfileStore.
// WithProfileTx serialises writers for the same user.
type ProfileRepository interface {
	ProfileStore
	WithProfileTx(ctx context.Context, userID string, fn func(ProfileStore) error) error
}

// TeamStore reads and writes teams, memberships and comments.
type TeamStore interface {
	CreateTeam(ctx context.Context, team *domain.Team) error
	GetTeamByID(ctx context.Context, teamID string) (*domain.Team, error)
	ListTeams(ctx context.Context) ([]domain.Team, error)
	ListTeamsByMember(ctx context.Context, userID string) ([]domain.Team, error)
	UpdateTeam(ctx context.Context, team *domain.Team) error
	AddMember(ctx context.Context, member domain.TeamMember) error
	RemoveMember(ctx context.Context, teamID, userID string) error
	IncrementVotes(ctx context.Context, teamID string) (int, error)
	CreateComment(ctx context.Context, comment *domain.TeamComment) error
	ListComments(ctx context.Context, teamID string) ([]domain.TeamComment, error)
}

// TeamRepository adds transactional scopes around TeamStore.
type TeamRepository interface {
	TeamStore
	// WithMembershipTx runs fn in one transaction that holds the membership
	// lock for userID, so concurrent membership changes for that user serialise.
	WithMembershipTx(ctx context.Context, userID string, fn func(TeamStore) error) error
	// WithTeamTx runs fn in one transaction holding a row lock on the team.
	// It returns ErrNotFound without calling fn when the team does not exist.
	WithTeamTx(ctx context.Context, teamID string, fn func(TeamStore, *domain.Team) error) error
}

// BlobRepository stores object metadata.
type BlobRepository interface {
	CreateBlob(ctx context.Context, blob *domain.Blob) error
	GetBlob(ctx context.Context, id string) (*domain.Blob, error)
}
