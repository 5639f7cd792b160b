package app

import "time"

// User is the identity bound to a session.
type User struct {
	// Unique user ID assigned by the identity provider.
	ID string `json:"id"`

	// User's email address.
	Email string `json:"email"`

	// User's display name (full_name metadata at sign-up).
	Name string `json:"name"`
}

// Session is the live proof of a signed-in user.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	IDToken      string    `json:"id_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// Expired reports whether the access token is no longer usable at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Account is a locally stored identity with a password hash.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name"`
	CreatedAt    time.Time `json:"created_at"`
}

func (a *Account) User() User {
	return User{ID: a.ID, Email: a.Email, Name: a.DisplayName}
}

// Photo statuses.
const (
	StatusUploaded        = "uploaded"
	StatusAnimated        = "animated"
	StatusAnimationFailed = "animation_failed"
)

// PhotoRecord is a row of the photos table. StoragePath is the key of the
// object holding the image bytes.
type PhotoRecord struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	StoragePath string    `json:"file_path"`
	CreatedAt   time.Time `json:"created_at"`
	AlbumID     *string   `json:"album_id"`
	Status      *string   `json:"status"`
}

// StatusOrEmpty returns the status tag or "" when unset.
func (p *PhotoRecord) StatusOrEmpty() string {
	if p.Status == nil {
		return ""
	}
	return *p.Status
}

func stringPtr(s string) *string {
	return &s
}
