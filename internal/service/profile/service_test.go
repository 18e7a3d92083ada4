package profile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/splax/hackhub/internal/domain"
	"github.com/splax/hackhub/internal/repository/memory"
)

type blobsStub struct {
	known map[string]bool
}

func (b blobsStub) IssueUploadTarget(_ context.Context, ownerID string) (domain.UploadTarget, error) {
	return domain.UploadTarget{URL: "http://hub.test/storage/upload?token=t", Token: "t", StorageID: "blob-" + ownerID}, nil
}

func (b blobsStub) Get(_ context.Context, blobID string) (*domain.Blob, error) {
	if !b.known[blobID] {
		return nil, domain.ErrBlobNotFound
	}
	return &domain.Blob{ID: blobID}, nil
}

func (b blobsStub) URL(blobID string) string {
	return "http://hub.test/storage/" + blobID
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(event domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func newTestService() (Service, *recordingPublisher) {
	pub := &recordingPublisher{}
	blobs := blobsStub{known: map[string]bool{"blob-1": true, "blob-2": true}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(memory.New(), blobs, pub, log), pub
}

func TestGetReturnsNilWhenAbsent(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	p, err := svc.Get(ctx, domain.AsUser("user-1"), "")
	if err != nil || p != nil {
		t.Fatalf("expected nil profile without error, got %+v, %v", p, err)
	}
	p, err = svc.Get(ctx, domain.Anonymous, "")
	if err != nil || p != nil {
		t.Fatalf("expected nil profile for anonymous caller, got %+v, %v", p, err)
	}
}

func TestUpdateRequiresAuthentication(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.Update(context.Background(), domain.Anonymous, "Ada", "dev"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestUpdateCreatesThenPatches(t *testing.T) {
	svc, pub := newTestService()
	ctx := context.Background()
	caller := domain.AsUser("user-1")

	created, err := svc.Update(ctx, caller, "Ada", "backend")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Name != "Ada" || created.Role != "backend" || created.Image != nil {
		t.Fatalf("unexpected created profile %+v", created)
	}

	if _, err := svc.Update(ctx, caller, "Ada L.", "frontend"); err != nil {
		t.Fatalf("patch: %v", err)
	}
	again, err := svc.Update(ctx, caller, "Ada L.", "frontend")
	if err != nil {
		t.Fatalf("repeat patch: %v", err)
	}
	if again.Name != "Ada L." || again.Role != "frontend" {
		t.Fatalf("unexpected patched profile %+v", again)
	}
	if !again.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("patch must keep the original creation time")
	}

	other, err := svc.Get(ctx, domain.AsUser("user-2"), "user-1")
	if err != nil || other == nil || other.Name != "Ada L." {
		t.Fatalf("expected to read another user's profile, got %+v, %v", other, err)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(pub.events))
	}
	if pub.events[0].Topic != domain.ProfileTopic("user-1") || pub.events[0].Kind != domain.EventProfileUpdated {
		t.Fatalf("unexpected event %+v", pub.events[0])
	}
}

func TestAttachImageCreatesBlankProfile(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	caller := domain.AsUser("user-1")

	p, err := svc.AttachImage(ctx, caller, "blob-1")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if p.Name != "" || p.Role != "" {
		t.Fatalf("expected blank name and role, got %+v", p)
	}
	if p.Image == nil || *p.Image != "blob-1" {
		t.Fatalf("expected image blob-1, got %v", p.Image)
	}
	if p.ImageURL != "http://hub.test/storage/blob-1" {
		t.Fatalf("unexpected image url %q", p.ImageURL)
	}
}

func TestAttachImageKeepsNameAndRole(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	caller := domain.AsUser("user-1")

	if _, err := svc.Update(ctx, caller, "Ada", "design"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := svc.AttachImage(ctx, caller, "blob-1"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	p, err := svc.AttachImage(ctx, caller, "blob-2")
	if err != nil {
		t.Fatalf("replace image: %v", err)
	}
	if p.Name != "Ada" || p.Role != "design" || p.Image == nil || *p.Image != "blob-2" {
		t.Fatalf("unexpected profile after image change %+v", p)
	}

	// Updating name and role leaves the image alone.
	p, err = svc.Update(ctx, caller, "Ada", "lead")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.Image == nil || *p.Image != "blob-2" {
		t.Fatalf("image lost on update: %+v", p)
	}
}

func TestAttachImageErrors(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.AttachImage(ctx, domain.Anonymous, "blob-1"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if _, err := svc.AttachImage(ctx, domain.AsUser("user-1"), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.AttachImage(ctx, domain.AsUser("user-1"), " "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if p, _ := svc.Get(ctx, domain.AsUser("user-1"), ""); p != nil {
		t.Fatalf("failed attach must not create a profile")
	}
}

func TestRequestUploadTarget(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	if _, err := svc.RequestUploadTarget(ctx, domain.Anonymous); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	target, err := svc.RequestUploadTarget(ctx, domain.AsUser("user-1"))
	if err != nil {
		t.Fatalf("request target: %v", err)
	}
	if target.StorageID != "blob-user-1" {
		t.Fatalf("unexpected target %+v", target)
	}
}
