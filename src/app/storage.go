package app

import (
	"context"
	"time"
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// PutOptions are the per-object upload settings.
type PutOptions struct {
	ContentType  string
	CacheControl string
}

// ObjectStore is the binary blob store holding image bytes.
// Upload never overwrites: an existing key fails with ErrObjectExists.
type ObjectStore interface {
	Upload(ctx context.Context, key string, payload []byte, opts PutOptions) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, keys ...string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	PublicURL(key string) string
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// PhotoStore is the structured store of photo records.
// Lookups of missing or foreign records return ErrNotFound.
type PhotoStore interface {
	Insert(ctx context.Context, rec *PhotoRecord) (*PhotoRecord, error)
	ListByUser(ctx context.Context, userID string) ([]*PhotoRecord, error)
	GetOwned(ctx context.Context, id, userID string) (*PhotoRecord, error)
	SetStatus(ctx context.Context, id, status string) error
	Delete(ctx context.Context, id, userID string) error
	ExistsByPath(ctx context.Context, storagePath string) (bool, error)
}

// Event is pushed to a user's subscribers (session changes, upload progress).
type Event struct {
	Type    string    `json:"type"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// Event types.
const (
	EventSignedIn       = "signed_in"
	EventSignedOut      = "signed_out"
	EventRefreshed      = "refreshed"
	EventUploadProgress = "upload.progress"
	EventPhotoAnimated  = "photo.animated"
)

// Notifier delivers events to everyone watching a user.
type Notifier interface {
	Notify(userID string, event Event)
}
