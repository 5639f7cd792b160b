package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	app "memcap/src/app"
)

const issuer = "memcap"

type accessClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// LocalProvider keeps accounts in the structured store and signs HS256
// access tokens. Accounts are confirmed on creation.
type LocalProvider struct {
	accounts AccountStore
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

func NewLocalProvider(accounts AccountStore, secret string, ttl time.Duration) *LocalProvider {
	return &LocalProvider{accounts: accounts, secret: []byte(secret), ttl: ttl, now: time.Now}
}

func randString(nByte int) (string, error) {
	b := make([]byte, nByte)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (l *LocalProvider) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResult, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	acc, err := l.accounts.CreateAccount(ctx, &app.Account{
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: string(hash),
		DisplayName:  strings.TrimSpace(req.Name),
	})
	if errors.Is(err, app.ErrAccountExists) {
		return nil, ErrUserExists
	}
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	session, err := l.issue(acc.User())
	if err != nil {
		return nil, err
	}
	return &SignUpResult{User: acc.User(), Session: session}, nil
}

func (l *LocalProvider) SignIn(ctx context.Context, email, password string) (*app.Session, error) {
	acc, err := l.accounts.AccountByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, app.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return l.issue(acc.User())
}

// Refresh checks that the old access token was signed by us for the same
// account, then issues a fresh pair. Expiry of the old token is ignored.
func (l *LocalProvider) Refresh(ctx context.Context, s *app.Session) (*app.Session, error) {
	claims, err := l.parse(s.AccessToken, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if claims.Subject != s.User.ID {
		return nil, ErrInvalidCredentials
	}
	acc, err := l.accounts.AccountByID(ctx, claims.Subject)
	if errors.Is(err, app.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	return l.issue(acc.User())
}

func (l *LocalProvider) SignOut(context.Context, *app.Session) error {
	return nil
}

// Verify returns the user of a valid, unexpired access token.
func (l *LocalProvider) Verify(accessToken string) (*app.User, error) {
	claims, err := l.parse(accessToken, jwt.WithExpirationRequired(), jwt.WithTimeFunc(l.now))
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	return &app.User{ID: claims.Subject, Email: claims.Email, Name: claims.Name}, nil
}

func (l *LocalProvider) parse(token string, opts ...jwt.ParserOption) (*accessClaims, error) {
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return l.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (l *LocalProvider) issue(user app.User) (*app.Session, error) {
	now := l.now()
	expires := now.Add(l.ttl)
	claims := accessClaims{
		Email: user.Email,
		Name:  user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   user.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.secret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refreshToken, err := randString(32)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	return &app.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expires,
		User:         user,
	}, nil
}
