package google_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"

	"github.com/otklabs/otk-auth/internal/adapter/google"
)

const (
	testClientID = "client-id.apps.googleusercontent.com"
	testKID      = "test-kid"
)

type tokenOverrides struct {
	audience string
	issuer   string
	expiry   time.Time
}

func newJWKSFixture(t *testing.T) (*httptest.Server, *rsa.PrivateKey) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := gojose.JSONWebKeySet{Keys: []gojose.JSONWebKey{{
		Key:       key.Public(),
		KeyID:     testKID,
		Algorithm: string(gojose.RS256),
		Use:       "sig",
	}}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(jwks))
	}))
	t.Cleanup(srv.Close)
	return srv, key
}

func signToken(t *testing.T, key *rsa.PrivateKey, o tokenOverrides) string {
	t.Helper()

	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.RS256, Key: gojose.JSONWebKey{Key: key, KeyID: testKID}},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err)

	now := time.Now()
	audience := o.audience
	if audience == "" {
		audience = testClientID
	}
	issuer := o.issuer
	if issuer == "" {
		issuer = "https://accounts.google.com"
	}
	expiry := o.expiry
	if expiry.IsZero() {
		expiry = now.Add(time.Hour)
	}

	std := gojwt.Claims{
		Subject:  "google-sub-1",
		Issuer:   issuer,
		Audience: gojwt.Audience{audience},
		IssuedAt: gojwt.NewNumericDate(now),
		Expiry:   gojwt.NewNumericDate(expiry),
	}
	custom := map[string]any{
		"email":          "g@b.com",
		"name":           "G User",
		"email_verified": true,
	}

	token, err := gojwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	require.NoError(t, err)
	return token
}

func TestVerifyValidToken(t *testing.T) {
	srv, key := newJWKSFixture(t)
	verifier := google.NewJWKSVerifier(testClientID, srv.URL, srv.Client())

	claims, err := verifier.Verify(context.Background(), signToken(t, key, tokenOverrides{}))
	require.NoError(t, err)
	require.Equal(t, "google-sub-1", claims.Subject)
	require.Equal(t, "g@b.com", claims.Email)
	require.Equal(t, "G User", claims.Name)
	require.True(t, claims.EmailVerified)
}

func TestVerifyRejectsWrongAudience(t *testing.T) {
	srv, key := newJWKSFixture(t)
	verifier := google.NewJWKSVerifier(testClientID, srv.URL, srv.Client())

	_, err := verifier.Verify(context.Background(), signToken(t, key, tokenOverrides{audience: "other-client"}))
	require.ErrorIs(t, err, google.ErrInvalidToken)
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	srv, key := newJWKSFixture(t)
	verifier := google.NewJWKSVerifier(testClientID, srv.URL, srv.Client())

	_, err := verifier.Verify(context.Background(), signToken(t, key, tokenOverrides{issuer: "https://evil.example"}))
	require.ErrorIs(t, err, google.ErrInvalidToken)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	srv, key := newJWKSFixture(t)
	verifier := google.NewJWKSVerifier(testClientID, srv.URL, srv.Client())

	_, err := verifier.Verify(context.Background(), signToken(t, key, tokenOverrides{expiry: time.Now().Add(-time.Hour)}))
	require.ErrorIs(t, err, google.ErrInvalidToken)
}

func TestVerifyRejectsMalformedToken(t *testing.T) {
	srv, _ := newJWKSFixture(t)
	verifier := google.NewJWKSVerifier(testClientID, srv.URL, srv.Client())

	_, err := verifier.Verify(context.Background(), "not-a-jwt")
	require.ErrorIs(t, err, google.ErrInvalidToken)
}

func TestVerifyNotConfigured(t *testing.T) {
	srv, key := newJWKSFixture(t)
	verifier := google.NewJWKSVerifier("", srv.URL, srv.Client())

	_, err := verifier.Verify(context.Background(), signToken(t, key, tokenOverrides{}))
	require.ErrorIs(t, err, google.ErrNotConfigured)
}

func TestVerifyUnknownSigningKey(t *testing.T) {
	srv, _ := newJWKSFixture(t)
	verifier := google.NewJWKSVerifier(testClientID, srv.URL, srv.Client())

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.RS256, Key: gojose.JSONWebKey{Key: other, KeyID: "unknown-kid"}},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err)

	token, err := gojwt.Signed(signer).Claims(gojwt.Claims{Subject: "x"}).Serialize()
	require.NoError(t, err)

	_, err = verifier.Verify(context.Background(), token)
	require.ErrorIs(t, err, google.ErrInvalidToken)
}
