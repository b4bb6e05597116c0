package sso_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/sponsor-auth/internal/errors"
	"github.com/jrsteele09/sponsor-auth/sessions"
	"github.com/jrsteele09/sponsor-auth/sso"
	"github.com/jrsteele09/sponsor-auth/users"
	"github.com/jrsteele09/sponsor-auth/users/repofake"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const (
	testClientID = "sponsor-auth"
	testKeyID    = "k1"
)

// provider is a minimal OpenID provider: discovery, JWKS and a token
// endpoint that answers every code with the claims set by the test.
type provider struct {
	t      *testing.T
	server *httptest.Server
	key    *rsa.PrivateKey
	claims jwt.MapClaims
	code   string
}

func newProvider(t *testing.T) *provider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p := &provider{t: t, key: key, code: "good-code"}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", p.discovery)
	mux.HandleFunc("/keys", p.keys)
	mux.HandleFunc("/token", p.token)
	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *provider) discovery(w http.ResponseWriter, _ *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"issuer":                                p.server.URL,
		"authorization_endpoint":                p.server.URL + "/authorize",
		"token_endpoint":                        p.server.URL + "/token",
		"jwks_uri":                              p.server.URL + "/keys",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (p *provider) keys(w http.ResponseWriter, _ *http.Request) {
	pub := p.key.PublicKey
	_ = json.NewEncoder(w).Encode(map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"kid": testKeyID,
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

func (p *provider) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != p.code || r.PostForm.Get("code_verifier") == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
		return
	}
	idToken := jwt.NewWithClaims(jwt.SigningMethodRS256, p.claims)
	idToken.Header["kid"] = testKeyID
	signed, err := idToken.SignedString(p.key)
	require.NoError(p.t, err)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": "access",
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     signed,
	})
}

func (p *provider) setClaims(email, nonce string, extra map[string]any) {
	now := time.Now()
	p.claims = jwt.MapClaims{
		"iss":   p.server.URL,
		"aud":   testClientID,
		"sub":   "subject-1",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"email": email,
		"nonce": nonce,
	}
	for k, v := range extra {
		p.claims[k] = v
	}
}

type testFixture struct {
	ctx      context.Context
	provider *provider
	admins   *repofake.FakeRepo
	auth     *sso.Authenticator
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{
		ctx:      context.Background(),
		provider: newProvider(t),
		admins:   repofake.NewFakeRepo(),
	}
	f.admins.Upsert(users.Record{ID: 1, Email: "root@example.com", SecretHash: "digest"})

	authenticator, err := sso.Discover(f.ctx, sso.Config{
		Issuer:       f.provider.server.URL,
		ClientID:     testClientID,
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/auth/sso/callback",
	}, f.admins)
	require.NoError(t, err)
	f.auth = authenticator
	return f
}

func TestAuthURL(t *testing.T) {
	f := setupTestFixture(t)

	raw := f.auth.AuthURL("state-1", oauth2.GenerateVerifier())
	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "/authorize", u.Path)
	q := u.Query()
	require.Equal(t, "state-1", q.Get("state"))
	require.Equal(t, "state-1", q.Get("nonce"))
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	require.Equal(t, testClientID, q.Get("client_id"))
}

func TestComplete_KnownAdmin(t *testing.T) {
	f := setupTestFixture(t)
	f.provider.setClaims("root@example.com", "state-1", map[string]any{"email_verified": true})

	identity, err := f.auth.Complete(f.ctx, "good-code", "state-1", oauth2.GenerateVerifier())
	require.NoError(t, err)
	require.Equal(t, users.RoleAdmin, identity.Role)
	require.Equal(t, 1, identity.ID)
}

func TestComplete_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		email string
		nonce string
		extra map[string]any
		code  string
	}{
		{name: "unknown admin", email: "ghost@example.com", nonce: "state-1", code: "good-code"},
		{name: "nonce mismatch", email: "root@example.com", nonce: "other", code: "good-code"},
		{name: "unverified email", email: "root@example.com", nonce: "state-1", code: "good-code", extra: map[string]any{"email_verified": false}},
		{name: "wrong audience", email: "root@example.com", nonce: "state-1", code: "good-code", extra: map[string]any{"aud": "someone-else"}},
		{name: "bad code", email: "root@example.com", nonce: "state-1", code: "bad-code"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			f.provider.setClaims(tt.email, tt.nonce, tt.extra)

			_, err := f.auth.Complete(f.ctx, tt.code, "state-1", oauth2.GenerateVerifier())
			require.ErrorIs(t, err, errors.ErrAuthReject)
		})
	}
}

func TestVerifierBookkeeping(t *testing.T) {
	s := &sessions.Session{}

	for _, state := range []string{"a", "b", "c", "d", "e", "f"} {
		require.NoError(t, sso.RememberVerifier(s, state, "v-"+state))
	}

	_, ok := sso.TakeVerifier(s, "a")
	require.False(t, ok, "oldest attempt evicted")

	v, ok := sso.TakeVerifier(s, "c")
	require.True(t, ok)
	require.Equal(t, "v-c", v)

	_, ok = sso.TakeVerifier(s, "c")
	require.False(t, ok, "verifiers are single use")

	for _, state := range []string{"b", "d", "e", "f"} {
		_, ok := sso.TakeVerifier(s, state)
		require.True(t, ok)
	}
	require.False(t, s.Has("ssoPending"))
}

func TestNewAuthenticator_RequiresDependencies(t *testing.T) {
	_, err := sso.NewAuthenticator(nil, nil, nil)
	require.Error(t, err)
}
