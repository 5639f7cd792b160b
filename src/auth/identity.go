package auth

import (
	"context"
	"errors"
	"time"

	app "memcap/src/app"
)

// Provider errors. The Manager turns them into user-facing failures.
var (
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
	ErrUserExists         = errors.New("user already registered")
	ErrSignUpUnsupported  = errors.New("sign up is not supported by this identity provider")
)

type SignUpRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignUpResult struct {
	User app.User `json:"user"`
	// ConfirmationRequired means no session was issued until the e-mail is verified.
	ConfirmationRequired bool         `json:"confirmation_required"`
	Session              *app.Session `json:"session,omitempty"`
}

// IdentityProvider issues and renews sessions.
type IdentityProvider interface {
	SignUp(ctx context.Context, req SignUpRequest) (*SignUpResult, error)
	SignIn(ctx context.Context, email, password string) (*app.Session, error)
	Refresh(ctx context.Context, s *app.Session) (*app.Session, error)
	SignOut(ctx context.Context, s *app.Session) error
}

// AccountStore holds the accounts of the local provider.
type AccountStore interface {
	CreateAccount(ctx context.Context, acc *app.Account) (*app.Account, error)
	AccountByEmail(ctx context.Context, email string) (*app.Account, error)
	AccountByID(ctx context.Context, id string) (*app.Account, error)
}

// SessionStore keeps live sessions by both of their tokens.
// Lookups of unknown or expired tokens return app.ErrNotFound.
type SessionStore interface {
	Save(ctx context.Context, s *app.Session, ttl time.Duration) error
	ByAccessToken(ctx context.Context, accessToken string) (*app.Session, error)
	ByRefreshToken(ctx context.Context, refreshToken string) (*app.Session, error)
	Delete(ctx context.Context, accessToken string) error
}
