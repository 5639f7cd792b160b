package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	app "memcap/src/app"
)

// OIDCProvider signs users in against an external OpenID Connect issuer
// with the resource owner password grant.
type OIDCProvider struct {
	provider *oidc.Provider
	config   *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

func NewOIDCProvider(ctx context.Context, host, clientID, clientSecret, redirect string) (*OIDCProvider, error) {
	provider, err := oidc.NewProvider(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("error creating OIDC provider: %w", err)
	}
	authConfig := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirect,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess},
	}
	return &OIDCProvider{
		provider: provider,
		config:   authConfig,
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

func (o *OIDCProvider) SignUp(context.Context, SignUpRequest) (*SignUpResult, error) {
	return nil, ErrSignUpUnsupported
}

func (o *OIDCProvider) SignIn(ctx context.Context, email, password string) (*app.Session, error) {
	token, err := o.config.PasswordCredentialsToken(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return nil, mapTokenError(err)
	}
	return o.session(ctx, token, nil)
}

func (o *OIDCProvider) Refresh(ctx context.Context, s *app.Session) (*app.Session, error) {
	stale := &oauth2.Token{RefreshToken: s.RefreshToken, Expiry: time.Now().Add(-time.Minute)}
	token, err := o.config.TokenSource(ctx, stale).Token()
	if err != nil {
		return nil, mapTokenError(err)
	}
	return o.session(ctx, token, s)
}

func (o *OIDCProvider) SignOut(context.Context, *app.Session) error {
	return nil
}

// session builds a session from a token response. A refresh response may
// omit the id_token; the user of prev is kept then.
func (o *OIDCProvider) session(ctx context.Context, token *oauth2.Token, prev *app.Session) (*app.Session, error) {
	s := &app.Session{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
	if s.RefreshToken == "" && prev != nil {
		s.RefreshToken = prev.RefreshToken
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		if prev == nil {
			return nil, fmt.Errorf("no id_token in token response")
		}
		s.IDToken = prev.IDToken
		s.User = prev.User
		return s, nil
	}

	idToken, err := o.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("error verifying ID token: %w", err)
	}
	var claims struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Nickname string `json:"nickname"`
		Verified *bool  `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("can not parse claims of ID token: %w", err)
	}
	if claims.Verified != nil && !*claims.Verified {
		return nil, ErrEmailNotConfirmed
	}
	name := claims.Name
	if name == "" {
		name = claims.Nickname
	}
	s.IDToken = rawIDToken
	s.User = app.User{ID: idToken.Subject, Email: claims.Email, Name: name}
	if s.ExpiresAt.IsZero() {
		s.ExpiresAt = idToken.Expiry
	}
	return s, nil
}

func mapTokenError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return err
	}
	if re.ErrorCode != "invalid_grant" {
		return fmt.Errorf("token endpoint: %w", err)
	}
	desc := strings.ToLower(re.ErrorDescription)
	for _, hint := range []string{"not fully set up", "not verified", "not confirmed"} {
		if strings.Contains(desc, hint) {
			return ErrEmailNotConfirmed
		}
	}
	return ErrInvalidCredentials
}
