package sso

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/sponsor-auth/internal/errors"
	"github.com/jrsteele09/sponsor-auth/sessions"
	"github.com/jrsteele09/sponsor-auth/users"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	pendingKey = "ssoPending"
	maxPending = 5
)

// Authenticator signs administrators in through an OpenID Connect provider.
// The provider only vouches for the email; the admin store still decides.
type Authenticator struct {
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
	admins   users.EmailRepo
}

// Config describes the relying party registration
type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Discover loads the provider metadata from the issuer
func Discover(ctx context.Context, cfg Config, admins users.EmailRepo) (*Authenticator, error) {
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, errors.Wrapf(err, "[sso Discover] provider %s", cfg.Issuer)
	}
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}
	return NewAuthenticator(oauthCfg, provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}), admins)
}

func NewAuthenticator(oauthCfg *oauth2.Config, verifier *oidc.IDTokenVerifier, admins users.EmailRepo) (*Authenticator, error) {
	if oauthCfg == nil {
		return nil, errors.New("[NewAuthenticator] oauth2 config is required")
	}
	if verifier == nil {
		return nil, errors.New("[NewAuthenticator] id token verifier is required")
	}
	if admins == nil {
		return nil, errors.New("[NewAuthenticator] admins repo is required")
	}
	return &Authenticator{oauth: oauthCfg, verifier: verifier, admins: admins}, nil
}

// AuthURL is the provider URL to redirect to. state doubles as the nonce.
func (a *Authenticator) AuthURL(state, verifier string) string {
	return a.oauth.AuthCodeURL(state, oidc.Nonce(state), oauth2.S256ChallengeOption(verifier))
}

// Complete redeems code and maps the verified email to an admin identity.
// Every failure is reported as ErrAuthReject.
func (a *Authenticator) Complete(ctx context.Context, code, state, verifier string) (users.Identity, error) {
	token, err := a.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		log.Err(err).Msg("sso token exchange failed")
		return users.Identity{}, errors.ErrAuthReject
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		log.Warn().Msg("sso token response has no id_token")
		return users.Identity{}, errors.ErrAuthReject
	}
	idToken, err := a.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		log.Err(err).Msg("sso id token verification failed")
		return users.Identity{}, errors.ErrAuthReject
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified *bool  `json:"email_verified"`
		Nonce         string `json:"nonce"`
	}
	if err := idToken.Claims(&claims); err != nil {
		log.Err(err).Msg("sso id token claims unreadable")
		return users.Identity{}, errors.ErrAuthReject
	}
	if claims.Nonce != state {
		log.Warn().Msg("sso nonce mismatch")
		return users.Identity{}, errors.ErrAuthReject
	}
	if claims.Email == "" || (claims.EmailVerified != nil && !*claims.EmailVerified) {
		return users.Identity{}, errors.ErrAuthReject
	}

	rec, err := a.admins.ByEmail(ctx, claims.Email)
	if err != nil {
		if !errors.Is(err, users.ErrNotFound) {
			log.Err(err).Str("role", string(users.RoleAdmin)).Msg("credential store lookup failed")
		}
		return users.Identity{}, errors.ErrAuthReject
	}
	return users.NewIdentity(users.RoleAdmin, *rec), nil
}

type pending struct {
	State    string `json:"state"`
	Verifier string `json:"verifier"`
}

// RememberVerifier records the PKCE verifier of an attempt started with
// state. Only the most recent attempts are kept.
func RememberVerifier(s *sessions.Session, state, verifier string) error {
	list, _ := sessions.GetAttr[[]pending](s, pendingKey)
	for len(list) >= maxPending {
		list = list[1:]
	}
	return sessions.SetAttr(s, pendingKey, append(list, pending{State: state, Verifier: verifier}))
}

// TakeVerifier removes and returns the verifier recorded for state
func TakeVerifier(s *sessions.Session, state string) (string, bool) {
	list, _ := sessions.GetAttr[[]pending](s, pendingKey)
	for i, p := range list {
		if p.State != state {
			continue
		}
		rest := append(list[:i:i], list[i+1:]...)
		if len(rest) == 0 {
			s.Remove(pendingKey)
		} else if err := sessions.SetAttr(s, pendingKey, rest); err != nil {
			return "", false
		}
		return p.Verifier, true
	}
	return "", false
}
