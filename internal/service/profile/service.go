package profile

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/splax/hackhub/internal/domain"
	"github.com/splax/hackhub/internal/repository"
)

// Blobs is the part of the object store the profile service needs.
type Blobs interface {
	IssueUploadTarget(ctx context.Context, ownerID string) (domain.UploadTarget, error)
	Get(ctx context.Context, blobID string) (*domain.Blob, error)
	URL(blobID string) string
}

// Service manages the caller's own profile.
type Service struct {
	repo      repository.ProfileRepository
	blobs     Blobs
	publisher domain.EventPublisher
	logger    *slog.Logger
}

// New constructs a profile Service.
func New(repo repository.ProfileRepository, blobs Blobs, publisher domain.EventPublisher, logger *slog.Logger) Service {
	return Service{repo: repo, blobs: blobs, publisher: publisher, logger: logger}
}

// Get returns the profile of userID, or of the caller when userID is empty.
// Absent profiles and anonymous lookups yield nil without error.
func (s Service) Get(ctx context.Context, caller domain.Caller, userID string) (*domain.Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = caller.UserID
	}
	if userID == "" {
		return nil, nil
	}
	p, err := s.repo.GetProfileByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s.withImageURL(p), nil
}

// Update sets the caller's name and role, creating the profile if needed.
func (s Service) Update(ctx context.Context, caller domain.Caller, name, role string) (*domain.Profile, error) {
	if !caller.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	return s.upsert(ctx, caller.UserID, &name, &role, nil)
}

// RequestUploadTarget issues a write target for the caller's next avatar upload.
func (s Service) RequestUploadTarget(ctx context.Context, caller domain.Caller) (domain.UploadTarget, error) {
	if !caller.Authenticated() {
		return domain.UploadTarget{}, domain.ErrUnauthenticated
	}
	return s.blobs.IssueUploadTarget(ctx, caller.UserID)
}

// AttachImage points the caller's avatar at an uploaded blob, creating a
// blank profile if the caller has none yet.
func (s Service) AttachImage(ctx context.Context, caller domain.Caller, blobID string) (*domain.Profile, error) {
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
	return s.upsert(ctx, caller.UserID, nil, nil, &blobID)
}

// ListByUserIDs returns existing profiles keyed by user id, with image URLs resolved.
func (s Service) ListByUserIDs(ctx context.Context, userIDs []string) (map[string]domain.Profile, error) {
	profiles, err := s.repo.ListProfilesByUserIDs(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	for id, p := range profiles {
		profiles[id] = *s.withImageURL(&p)
	}
	return profiles, nil
}

func (s Service) upsert(ctx context.Context, userID string, name, role, image *string) (*domain.Profile, error) {
	var saved *domain.Profile
	err := s.repo.WithProfileTx(ctx, userID, func(store repository.ProfileStore) error {
		existing, err := store.GetProfileByUserID(ctx, userID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		cmd := domain.PlanProfileWrite(existing, userID, name, role, image)
		saved, err = store.SaveProfile(ctx, cmd)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("profile saved", "user_id", userID)
	s.publish(userID)
	return s.withImageURL(saved), nil
}

func (s Service) publish(userID string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(domain.Event{
		Topic:  domain.ProfileTopic(userID),
		Kind:   domain.EventProfileUpdated,
		UserID: userID,
		At:     time.Now().UTC(),
	})
}

func (s Service) withImageURL(p *domain.Profile) *domain.Profile {
	if p == nil {
		return nil
	}
	if p.Image != nil && s.blobs != nil {
		p.ImageURL = s.blobs.URL(*p.Image)
	}
	return p
}
