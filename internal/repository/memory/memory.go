// Package memory keeps every record in process memory. It backs local
// development runs (DB_DRIVER=memory) and the service and router tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/splax/hackhub/internal/domain"
	"github.com/splax/hackhub/internal/repository"
)

// Repository is an in-memory implementation of the repository interfaces.
type Repository struct {
	// txMu serialises transactional scopes; mu guards the maps.
	txMu sync.Mutex
	mu   sync.RWMutex

	users       map[string]domain.User
	usersByMail map[string]string
	profiles    map[string]domain.Profile
	teams       map[string]domain.Team
	comments    map[string][]domain.TeamComment
	blobs       map[string]domain.Blob
	now         func() time.Time
}

var (
	_ repository.UserRepository    = (*Repository)(nil)
	_ repository.ProfileRepository = (*Repository)(nil)
	_ repository.TeamRepository    = (*Repository)(nil)
	_ repository.BlobRepository    = (*Repository)(nil)
)

// New constructs an empty Repository.
func New() *Repository {
	return &Repository{
		users:       make(map[string]domain.User),
		usersByMail: make(map[string]string),
		profiles:    make(map[string]domain.Profile),
		teams:       make(map[string]domain.Team),
		comments:    make(map[string][]domain.TeamComment),
		blobs:       make(map[string]domain.Blob),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateUser inserts a user.
func (r *Repository) CreateUser(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; ok {
		return repository.ErrConflict
	}
	if _, ok := r.usersByMail[user.Email]; ok {
		return repository.ErrConflict
	}
	r.users[user.ID] = *user
	r.usersByMail[user.Email] = user.ID
	return nil
}

// GetUserByEmail fetches a user by email.
func (r *Repository) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.usersByMail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u := r.users[id]
	return &u, nil
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

// GetProfileByUserID fetches the profile owned by userID.
func (r *Repository) GetProfileByUserID(_ context.Context, userID string) (*domain.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyProfile(p), nil
}

// ListProfilesByUserIDs returns the profiles that exist for the given users.
func (r *Repository) ListProfilesByUserIDs(_ context.Context, userIDs []string) (map[string]domain.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]domain.Profile, len(userIDs))
	for _, id := range userIDs {
		if p, ok := r.profiles[id]; ok {
			out[id] = *copyProfile(p)
		}
	}
	return out, nil
}

// SaveProfile executes a create or patch command.
func (r *Repository) SaveProfile(_ context.Context, cmd domain.ProfileCommand) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	existing, ok := r.profiles[cmd.UserID]
	switch cmd.Kind {
	case domain.ProfileCreate:
		if ok {
			return nil, repository.ErrConflict
		}
		p := cmd.Apply(domain.Profile{UserID: cmd.UserID, CreatedAt: now, UpdatedAt: now})
		r.profiles[cmd.UserID] = p
		return copyProfile(p), nil
	case domain.ProfilePatch:
		if !ok {
			return nil, repository.ErrNotFound
		}
		p := cmd.Apply(existing)
		p.UpdatedAt = now
		r.profiles[cmd.UserID] = p
		return copyProfile(p), nil
	default:
		return nil, fmt.Errorf("unknown profile command kind %d", cmd.Kind)
	}
}

// WithProfileTx runs fn while holding the transaction lock.
func (r *Repository) WithProfileTx(_ context.Context, _ string, fn func(repository.ProfileStore) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	return fn(r)
}

// CreateTeam inserts the team and its initial members.
func (r *Repository) CreateTeam(_ context.Context, team *domain.Team) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.teams[team.ID]; ok {
		return repository.ErrConflict
	}
	r.teams[team.ID] = copyTeam(*team)
	return nil
}

// GetTeamByID returns a team by identifier.
func (r *Repository) GetTeamByID(_ context.Context, teamID string) (*domain.Team, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	team, ok := r.teams[teamID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := copyTeam(team)
	return &out, nil
}

// ListTeams returns every team, highest vote count first.
func (r *Repository) ListTeams(_ context.Context) ([]domain.Team, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	teams := make([]domain.Team, 0, len(r.teams))
	for _, team := range r.teams {
		teams = append(teams, copyTeam(team))
	}
	sort.Slice(teams, func(i, j int) bool {
		if teams[i].Votes != teams[j].Votes {
			return teams[i].Votes > teams[j].Votes
		}
		if !teams[i].CreatedAt.Equal(teams[j].CreatedAt) {
			return teams[i].CreatedAt.Before(teams[j].CreatedAt)
		}
		return teams[i].ID < teams[j].ID
	})
	return teams, nil
}

// ListTeamsByMember returns teams whose member set contains userID.
func (r *Repository) ListTeamsByMember(_ context.Context, userID string) ([]domain.Team, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	teams := make([]domain.Team, 0, 1)
	for _, team := range r.teams {
		if team.HasMember(userID) {
			teams = append(teams, copyTeam(team))
		}
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].CreatedAt.Before(teams[j].CreatedAt) })
	return teams, nil
}

// UpdateTeam writes the mutable team fields.
func (r *Repository) UpdateTeam(_ context.Context, team *domain.Team) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.teams[team.ID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.Name = team.Name
	stored.Slug = team.Slug
	stored.Description = team.Description
	stored.Image = copyString(team.Image)
	r.teams[team.ID] = stored
	return nil
}

// AddMember appends userID to the team's member set.
func (r *Repository) AddMember(_ context.Context, member domain.TeamMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	team, ok := r.teams[member.TeamID]
	if !ok {
		return repository.ErrNotFound
	}
	if team.HasMember(member.UserID) {
		return repository.ErrConflict
	}
	team.Members = append(slices.Clone(team.Members), member.UserID)
	r.teams[member.TeamID] = team
	return nil
}

// RemoveMember drops userID from the team's member set.
func (r *Repository) RemoveMember(_ context.Context, teamID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	team, ok := r.teams[teamID]
	if !ok || !team.HasMember(userID) {
		return repository.ErrNotFound
	}
	team.Members = slices.DeleteFunc(slices.Clone(team.Members), func(id string) bool { return id == userID })
	r.teams[teamID] = team
	return nil
}

// IncrementVotes adds one vote and returns the new total.
func (r *Repository) IncrementVotes(_ context.Context, teamID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	team, ok := r.teams[teamID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	team.Votes++
	r.teams[teamID] = team
	return team.Votes, nil
}

// CreateComment appends a comment to the team feed.
func (r *Repository) CreateComment(_ context.Context, comment *domain.TeamComment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.teams[comment.TeamID]; !ok {
		return repository.ErrNotFound
	}
	r.comments[comment.TeamID] = append(r.comments[comment.TeamID], *comment)
	return nil
}

// ListComments returns a team's comments oldest first.
func (r *Repository) ListComments(_ context.Context, teamID string) ([]domain.TeamComment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	comments := slices.Clone(r.comments[teamID])
	if comments == nil {
		comments = []domain.TeamComment{}
	}
	sort.SliceStable(comments, func(i, j int) bool { return comments[i].CreatedAt.Before(comments[j].CreatedAt) })
	return comments, nil
}

// WithMembershipTx runs fn while holding the transaction lock.
func (r *Repository) WithMembershipTx(_ context.Context, _ string, fn func(repository.TeamStore) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	return fn(r)
}

// WithTeamTx runs fn with the current team while holding the transaction lock.
func (r *Repository) WithTeamTx(ctx context.Context, teamID string, fn func(repository.TeamStore, *domain.Team) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	team, err := r.GetTeamByID(ctx, teamID)
	if err != nil {
		return err
	}
	return fn(r, team)
}

// CreateBlob records object metadata.
func (r *Repository) CreateBlob(_ context.Context, blob *domain.Blob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.blobs[blob.ID]; ok {
		return repository.ErrConflict
	}
	r.blobs[blob.ID] = *blob
	return nil
}

// GetBlob fetches object metadata.
func (r *Repository) GetBlob(_ context.Context, id string) (*domain.Blob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.blobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &b, nil
}

func copyTeam(t domain.Team) domain.Team {
	t.Members = slices.Clone(t.Members)
	if t.Members == nil {
		t.Members = []string{}
	}
	t.Image = copyString(t.Image)
	return t
}

func copyProfile(p domain.Profile) *domain.Profile {
	p.Image = copyString(p.Image)
	return &p
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
