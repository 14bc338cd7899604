package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TokenCache mirrors resolved tokens to a shared cache so concurrent instances
// reuse one credential. Implementations return "" on a miss.
type TokenCache interface {
	GetToken(ctx context.Context, source string) (string, error)
	SetToken(ctx context.Context, source, token string, ttl time.Duration) error
	DeleteToken(ctx context.Context, source string) error
}

// OAuthProvider resolves bearer credentials via the OAuth2 client-credentials
// grant, caching them in memory until shortly before expiry. Tokens are never
// persisted to configuration files.
type OAuthProvider struct {
	httpClient   *http.Client
	endpoint     string
	clientID     string
	clientSecret string
	source       string
	defaultTTL   time.Duration
	cache        TokenCache
	logger       *logrus.Entry

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewOAuthProvider creates a credential provider for one portal. cache may be
// nil; the provider then relies on its in-memory copy alone.
func NewOAuthProvider(source, endpoint, clientID, clientSecret string, defaultTTL time.Duration, cache TokenCache, logger *logrus.Logger) *OAuthProvider {
	if defaultTTL <= 0 {
		defaultTTL = 50 * time.Minute
	}

	return &OAuthProvider{
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		endpoint:     endpoint,
		clientID:     clientID,
		clientSecret: clientSecret,
		source:       source,
		defaultTTL:   defaultTTL,
		cache:        cache,
		logger:       logger.WithField("component", "auth").WithField("source", source),
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Token returns a valid bearer credential, refreshing it when the cached one
// has expired.
func (p *OAuthProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && time.Now().Before(p.expiresAt) {
		return p.token, nil
	}

	if p.cache != nil {
		if cached, err := p.cache.GetToken(ctx, p.source); err != nil {
			p.logger.WithError(err).Debug("Token cache read failed")
		} else if cached != "" {
			p.token = cached
			p.expiresAt = time.Now().Add(p.defaultTTL)
			return cached, nil
		}
	}

	token, ttl, err := p.fetchToken(ctx)
	if err != nil {
		return "", err
	}

	p.token = token
	p.expiresAt = time.Now().Add(ttl)

	if p.cache != nil {
		if err := p.cache.SetToken(ctx, p.source, token, ttl); err != nil {
			p.logger.WithError(err).Debug("Token cache write failed")
		}
	}

	return token, nil
}

// Invalidate discards the cached credential so the next Token call refreshes.
func (p *OAuthProvider) Invalidate() {
	p.mu.Lock()
	p.token = ""
	p.expiresAt = time.Time{}
	p.mu.Unlock()

	if p.cache != nil {
		if err := p.cache.DeleteToken(context.Background(), p.source); err != nil {
			p.logger.WithError(err).Debug("Token cache delete failed")
		}
	}

	p.logger.Debug("Credential invalidated")
}

// fetchToken requests a fresh token using the client-credentials grant.
func (p *OAuthProvider) fetchToken(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(p.clientID, p.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", 0, fmt.Errorf("failed to decode token response: %w", err)
	}

	if payload.AccessToken == "" {
		return "", 0, fmt.Errorf("token endpoint returned no access token")
	}

	ttl := p.defaultTTL
	if payload.ExpiresIn > 0 {
		// Refresh a minute early rather than race the expiry
		ttl = time.Duration(payload.ExpiresIn)*time.Second - time.Minute
		if ttl <= 0 {
			ttl = time.Duration(payload.ExpiresIn) * time.Second
		}
	}

	p.logger.WithField("ttl", ttl.String()).Info("Fetched fresh access token")
	return payload.AccessToken, ttl, nil
}

// StaticProvider serves a fixed token from configuration, for feeds that issue
// long-lived access tokens instead of client-credential grants.
type StaticProvider struct {
	token string
}

// NewStaticProvider wraps a pre-issued access token.
func NewStaticProvider(token string) *StaticProvider {
	return &StaticProvider{token: token}
}

// Token returns the configured token.
func (p *StaticProvider) Token(ctx context.Context) (string, error) {
	if p.token == "" {
		return "", fmt.Errorf("no access token configured")
	}
	return p.token, nil
}

// Invalidate is a no-op; static tokens are rotated through configuration.
func (p *StaticProvider) Invalidate() {}
