package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
)

var (
	// ErrNotConfigured signals that no Google client ID is configured.
	ErrNotConfigured = errors.New("google: client id not configured")
	// ErrInvalidToken signals a malformed, expired, or mis-audienced token.
	ErrInvalidToken = errors.New("google: invalid id token")
)

var allowedIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

const keyRefreshInterval = time.Hour

// Claims holds the verified identity extracted from a Google ID token.
type Claims struct {
	Subject       string
	Email         string
	Name          string
	EmailVerified bool
}

// Verifier validates Google ID tokens against the configured OAuth client.
type Verifier interface {
	Verify(ctx context.Context, idToken string) (*Claims, error)
}

// JWKSVerifier checks token signatures against Google's published JWKS,
// refreshed periodically over HTTP.
type JWKSVerifier struct {
	clientID   string
	jwksURL    string
	httpClient *http.Client

	mu        sync.RWMutex
	keys      gojose.JSONWebKeySet
	fetchedAt time.Time
}

var _ Verifier = (*JWKSVerifier)(nil)

// NewJWKSVerifier constructs a verifier. An empty clientID produces a
// verifier that rejects every token with ErrNotConfigured.
func NewJWKSVerifier(clientID, jwksURL string, client *http.Client) *JWKSVerifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &JWKSVerifier{clientID: clientID, jwksURL: jwksURL, httpClient: client}
}

// Verify parses the token, checks its signature against Google's keys, and
// validates audience, issuer, and expiry.
func (v *JWKSVerifier) Verify(ctx context.Context, idToken string) (*Claims, error) {
	if v.clientID == "" {
		return nil, ErrNotConfigured
	}

	parsed, err := gojwt.ParseSigned(idToken, []gojose.SignatureAlgorithm{gojose.RS256})
	if err != nil {
		return nil, fmt.Errorf("%w: parse: %v", ErrInvalidToken, err)
	}
	if len(parsed.Headers) == 0 {
		return nil, ErrInvalidToken
	}

	key, err := v.signingKey(ctx, parsed.Headers[0].KeyID)
	if err != nil {
		return nil, err
	}

	var std gojwt.Claims
	var custom struct {
		Email         string `json:"email"`
		Name          string `json:"name"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := parsed.Claims(key, &std, &custom); err != nil {
		return nil, fmt.Errorf("%w: verify signature: %v", ErrInvalidToken, err)
	}

	if err := std.Validate(gojwt.Expected{
		AnyAudience: gojwt.Audience{v.clientID},
		Time:        time.Now(),
	}); err != nil {
		return nil, fmt.Errorf("%w: validate claims: %v", ErrInvalidToken, err)
	}
	if !issuerAllowed(std.Issuer) {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, std.Issuer)
	}

	return &Claims{
		Subject:       std.Subject,
		Email:         custom.Email,
		Name:          custom.Name,
		EmailVerified: custom.EmailVerified,
	}, nil
}

func (v *JWKSVerifier) signingKey(ctx context.Context, kid string) (gojose.JSONWebKey, error) {
	if key, ok := v.cachedKey(kid); ok {
		return key, nil
	}

	if err := v.refreshKeys(ctx); err != nil {
		return gojose.JSONWebKey{}, err
	}

	key, ok := v.cachedKey(kid)
	if !ok {
		return gojose.JSONWebKey{}, fmt.Errorf("%w: unknown signing key %q", ErrInvalidToken, kid)
	}
	return key, nil
}

func (v *JWKSVerifier) cachedKey(kid string) (gojose.JSONWebKey, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if time.Since(v.fetchedAt) > keyRefreshInterval {
		return gojose.JSONWebKey{}, false
	}
	keys := v.keys.Key(kid)
	if len(keys) == 0 {
		return gojose.JSONWebKey{}, false
	}
	return keys[0], true
}

func (v *JWKSVerifier) refreshKeys(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return fmt.Errorf("build jwks request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read jwks: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("fetch jwks: status=%d", resp.StatusCode)
	}

	var keySet gojose.JSONWebKeySet
	if err := json.Unmarshal(body, &keySet); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	v.mu.Lock()
	v.keys = keySet
	v.fetchedAt = time.Now()
	v.mu.Unlock()
	return nil
}

func issuerAllowed(issuer string) bool {
	for _, allowed := range allowedIssuers {
		if issuer == allowed {
			return true
		}
	}
	return false
}
