package team

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"log/slog"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/splax/hackhub/internal/domain"
	"github.com/splax/hackhub/internal/repository"
)

// DefaultCommentMaxLength bounds comment content when no limit is configured.
const DefaultCommentMaxLength = 2000

// Profiles resolves member profiles for the roster view.
type Profiles interface {
	ListByUserIDs(ctx context.Context, userIDs []string) (map[string]domain.Profile, error)
}

// Blobs is the part of the object store the team service needs.
type Blobs interface {
	Get(ctx context.Context, blobID string) (*domain.Blob, error)
	URL(blobID string) string
}

// Service handles team workflows.
type Service struct {
	repo       repository.TeamRepository
	profiles   Profiles
	blobs      Blobs
	publisher  domain.EventPublisher
	logger     *slog.Logger
	commentMax int
	now        func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithCommentMaxLength sets the maximum comment length in runes.
func WithCommentMaxLength(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.commentMax = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service.
func New(repo repository.TeamRepository, profiles Profiles, blobs Blobs, publisher domain.EventPublisher, logger *slog.Logger, opts ...Option) Service {
	s := Service{
		repo:       repo,
		profiles:   profiles,
		blobs:      blobs,
		publisher:  publisher,
		logger:     logger,
		commentMax: DefaultCommentMaxLength,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Create registers a team captained by the caller, who becomes its only member.
// It does not check whether the caller already belongs to another team.
func (s Service) Create(ctx context.Context, caller domain.Caller, name, description string) (*domain.Team, error) {
	if !caller.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.Invalid("team name is required")
	}
	team := &domain.Team{
		ID:          uuid.NewString(),
		Name:        name,
		Slug:        slug.Make(name),
		Description: strings.TrimSpace(description),
		CaptainID:   caller.UserID,
		Members:     []string{caller.UserID},
		CreatedAt:   s.now(),
	}
	if err := s.repo.CreateTeam(ctx, team); err != nil {
		return nil, err
	}
	s.logger.Info("team created", "team_id", team.ID, "captain_id", caller.UserID)
	s.publish(domain.EventTeamCreated, team.ID, caller.UserID, domain.TopicTeams)
	return s.withImageURL(team), nil
}

// List returns every team, highest vote count first.
func (s Service) List(ctx context.Context) ([]domain.Team, error) {
	teams, err := s.repo.ListTeams(ctx)
	if err != nil {
		return nil, err
	}
	return s.withImageURLs(teams), nil
}

// MyTeams returns the teams the caller belongs to. Anonymous callers get none.
func (s Service) MyTeams(ctx context.Context, caller domain.Caller) ([]domain.Team, error) {
	if !caller.Authenticated() {
		return []domain.Team{}, nil
	}
	teams, err := s.repo.ListTeamsByMember(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	return s.withImageURLs(teams), nil
}

// Get returns a single team.
func (s Service) Get(ctx context.Context, teamID string) (*domain.Team, error) {
	team, err := s.repo.GetTeamByID(ctx, teamID)
	if err != nil {
		return nil, notFound(err)
	}
	return s.withImageURL(team), nil
}

// Update changes the team's name and description. Only the captain may edit.
func (s Service) Update(ctx context.Context, caller domain.Caller, teamID, name, description string) (*domain.Team, error) {
	if !caller.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.Invalid("team name is required")
	}
	var updated *domain.Team
	err := s.repo.WithTeamTx(ctx, teamID, func(store repository.TeamStore, team *domain.Team) error {
		if !team.IsCaptain(caller.UserID) {
			return domain.ErrCaptainOnly
		}
		team.Name = name
		team.Slug = slug.Make(name)
		team.Description = strings.TrimSpace(description)
		if err := store.UpdateTeam(ctx, team); err != nil {
			return err
		}
		updated = team
		return nil
	})
	if err != nil {
		return nil, notFound(err)
	}
	s.logger.Info("team updated", "team_id", teamID, "user_id", caller.UserID)
	s.publish(domain.EventTeamUpdated, teamID, caller.UserID, domain.TopicTeams, domain.TeamTopic(teamID))
	return s.withImageURL(updated), nil
}

// AttachImage sets the team image to an uploaded blob. Only the captain may change it.
func (s Service) AttachImage(ctx context.Context, caller domain.Caller, teamID, blobID string) (*domain.Team, error) {
	if !caller.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	blobID = strings.TrimSpace(blobID)
	if blobID == "" {
		return nil, domain.Invalid("storage_id is required")
	}
	if _, err := s.blobs.Get(ctx, blobID); err != nil {
		return nil, err
	}
	var updated *domain.Team
	err := s.repo.WithTeamTx(ctx, teamID, func(store repository.TeamStore, team *domain.Team) error {
		if !team.IsCaptain(caller.UserID) {
			return domain.ErrCaptainOnly
		}
		team.Image = &blobID
		if err := store.UpdateTeam(ctx, team); err != nil {
			return err
		}
		updated = team
		return nil
	})
	if err != nil {
		return nil, notFound(err)
	}
	s.logger.Info("team image updated", "team_id", teamID, "blob_id", blobID)
	s.publish(domain.EventTeamUpdated, teamID, caller.UserID, domain.TopicTeams, domain.TeamTopic(teamID))
	return s.withImageURL(updated), nil
}

// JoinTeam adds the caller to a team. A user may belong to at most one team,
// so the membership check and insert run under the caller's membership lock.
func (s Service) JoinTeam(ctx context.Context, caller domain.Caller, teamID string) error {
	if !caller.Authenticated() {
		return domain.ErrUnauthenticated
	}
	err := s.repo.WithMembershipTx(ctx, caller.UserID, func(store repository.TeamStore) error {
		current, err := store.ListTeamsByMember(ctx, caller.UserID)
		if err != nil {
			return err
		}
		if len(current) > 0 {
			return domain.ErrAlreadyOnTeam
		}
		if _, err := store.GetTeamByID(ctx, teamID); err != nil {
			return notFound(err)
		}
		return store.AddMember(ctx, domain.TeamMember{TeamID: teamID, UserID: caller.UserID, JoinedAt: s.now()})
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return domain.ErrAlreadyOnTeam
		}
		return notFound(err)
	}
	s.logger.Info("team joined", "team_id", teamID, "user_id", caller.UserID)
	s.publish(domain.EventMemberJoined, teamID, caller.UserID, domain.TopicTeams, domain.TeamTopic(teamID))
	return nil
}

// LeaveTeam removes the caller from a team. The captain cannot leave.
func (s Service) LeaveTeam(ctx context.Context, caller domain.Caller, teamID string) error {
	if !caller.Authenticated() {
		return domain.ErrUnauthenticated
	}
	err := s.repo.WithMembershipTx(ctx, caller.UserID, func(store repository.TeamStore) error {
		team, err := store.GetTeamByID(ctx, teamID)
		if err != nil {
			return notFound(err)
		}
		if team.IsCaptain(caller.UserID) {
			return domain.ErrCaptainCannotLeave
		}
		if !team.HasMember(caller.UserID) {
			return domain.ErrNotTeamMember
		}
		return store.RemoveMember(ctx, teamID, caller.UserID)
	})
	if err != nil {
		return notFound(err)
	}
	s.logger.Info("team left", "team_id", teamID, "user_id", caller.UserID)
	s.publish(domain.EventMemberLeft, teamID, caller.UserID, domain.TopicTeams, domain.TeamTopic(teamID))
	return nil
}

// Vote adds one vote to a team and returns its new total. Votes are not
// deduplicated per user.
func (s Service) Vote(ctx context.Context, caller domain.Caller, teamID string) (int, error) {
	if !caller.Authenticated() {
		return 0, domain.ErrUnauthenticated
	}
	votes, err := s.repo.IncrementVotes(ctx, teamID)
	if err != nil {
		return 0, notFound(err)
	}
	s.logger.Info("team voted", "team_id", teamID, "user_id", caller.UserID, "votes", votes)
	s.publish(domain.EventVoteCast, teamID, caller.UserID, domain.TopicTeams, domain.TeamTopic(teamID))
	return votes, nil
}

// AddComment posts a comment to a team's feed. Only members may comment, and
// the membership check and insert share the caller's membership lock so a
// concurrent leave cannot slip between them.
func (s Service) AddComment(ctx context.Context, caller domain.Caller, teamID, content string) (*domain.TeamComment, error) {
	if !caller.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	content = strings.TrimSpace(content)
	var comment *domain.TeamComment
	err := s.repo.WithMembershipTx(ctx, caller.UserID, func(store repository.TeamStore) error {
		team, err := store.GetTeamByID(ctx, teamID)
		if err != nil {
			return err
		}
		if !team.HasMember(caller.UserID) {
			return domain.ErrCommentForbidden
		}
		if content == "" {
			return domain.Invalid("comment content is required")
		}
		if utf8.RuneCountInString(content) > s.commentMax {
			return domain.Invalid("comment exceeds %d characters", s.commentMax)
		}
		// Version 7 ids sort by creation, which keeps same-instant comments in insert order.
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		comment = &domain.TeamComment{
			ID:        id.String(),
			TeamID:    teamID,
			UserID:    caller.UserID,
			Content:   content,
			CreatedAt: s.now(),
		}
		return store.CreateComment(ctx, comment)
	})
	if err != nil {
		return nil, notFound(err)
	}
	s.logger.Info("team comment added", "team_id", teamID, "user_id", caller.UserID, "comment_id", comment.ID)
	s.publish(domain.EventCommentAdded, teamID, caller.UserID, domain.TeamCommentsTopic(teamID))
	return comment, nil
}

// GetComments returns a team's comments oldest first. Callers who are not
// members of the team see an empty feed.
func (s Service) GetComments(ctx context.Context, caller domain.Caller, teamID string) ([]domain.TeamComment, error) {
	empty := []domain.TeamComment{}
	if !caller.Authenticated() {
		return empty, nil
	}
	team, err := s.repo.GetTeamByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return empty, nil
		}
		return nil, err
	}
	if !team.HasMember(caller.UserID) {
		return empty, nil
	}
	return s.repo.ListComments(ctx, teamID)
}

// GetTeamMembers returns the team roster in join order with each member's
// profile, which is nil for members who have not created one.
func (s Service) GetTeamMembers(ctx context.Context, teamID string) ([]domain.MemberProfile, error) {
	team, err := s.repo.GetTeamByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return []domain.MemberProfile{}, nil
		}
		return nil, err
	}
	profiles, err := s.profiles.ListByUserIDs(ctx, team.Members)
	if err != nil {
		return nil, err
	}
	members := make([]domain.MemberProfile, 0, len(team.Members))
	for _, userID := range team.Members {
		entry := domain.MemberProfile{UserID: userID}
		if p, ok := profiles[userID]; ok {
			entry.Profile = &p
		}
		members = append(members, entry)
	}
	return members, nil
}

// IsMember reports whether userID currently belongs to teamID.
func (s Service) IsMember(ctx context.Context, teamID, userID string) (bool, error) {
	team, err := s.repo.GetTeamByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return team.HasMember(userID), nil
}

func (s Service) publish(kind, teamID, userID string, topics ...string) {
	if s.publisher == nil {
		return
	}
	at := s.now()
	for _, topic := range topics {
		s.publisher.Publish(domain.Event{Topic: topic, Kind: kind, TeamID: teamID, UserID: userID, At: at})
	}
}

func (s Service) withImageURL(team *domain.Team) *domain.Team {
	if team != nil && team.Image != nil && s.blobs != nil {
		team.ImageURL = s.blobs.URL(*team.Image)
	}
	return team
}

func (s Service) withImageURLs(teams []domain.Team) []domain.Team {
	for i := range teams {
		s.withImageURL(&teams[i])
	}
	return teams
}

func notFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return domain.ErrTeamNotFound
	}
	return err
}
