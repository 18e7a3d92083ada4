package domain

import "time"

// Blob describes an uploaded file held by the object store.
type Blob struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// UploadTarget is a short-lived location that accepts one blob upload.
type UploadTarget struct {
	URL       string    `json:"url"`
	Token     string    `json:"token"`
	StorageID string    `json:"storage_id"`
	ExpiresAt time.Time `json:"expires_at"`
}
