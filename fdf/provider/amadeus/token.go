package amadeus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/MeguminKami/Flight-Deal-Finder/fdf/fetch"
)

const (
	tokenPath = "/v1/security/oauth2/token"
	// defaultExpirySeconds applies when the token reply omits expires_in.
	defaultExpirySeconds = 1799
)

// TokenManager exchanges client credentials for OAuth2 bearer tokens
// and caches them until shortly before expiry. Concurrent refreshes
// collapse into a single exchange; the secret is never logged.
type TokenManager struct {
	baseURL      string
	clientID     string
	clientSecret string
	client       *http.Client
	margin       time.Duration
	waitMax      time.Duration
	log          zerolog.Logger

	group singleflight.Group

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// TokenOptions configures a TokenManager.
type TokenOptions struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Client       *http.Client
	Margin       time.Duration // refresh this long before expiry
	WaitMax      time.Duration // max time a caller waits on a refresh
	Logger       zerolog.Logger
}

// NewTokenManager builds a TokenManager from opts.
func NewTokenManager(opts TokenOptions) *TokenManager {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	margin := opts.Margin
	if margin <= 0 {
		margin = time.Minute
	}
	waitMax := opts.WaitMax
	if waitMax <= 0 {
		waitMax = 20 * time.Second
	}
	return &TokenManager{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		client:       client,
		margin:       margin,
		waitMax:      waitMax,
		log:          opts.Logger,
	}
}

// Token returns the cached token, refreshing it when missing or within
// the expiry margin.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.token != "" && time.Until(m.expiresAt) > m.margin {
		token := m.token
		m.mu.Unlock()
		return token, nil
	}
	m.mu.Unlock()

	ch := m.group.DoChan("token", func() (any, error) {
		return m.exchange(ctx)
	})

	wait := time.NewTimer(m.waitMax)
	defer wait.Stop()
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-wait.C:
		return "", fetch.NewError(fetch.KindTimeout, 0, "timed out waiting for token refresh", nil)
	}
}

// Invalidate discards the cached token.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.token = ""
	m.expiresAt = time.Time{}
	m.mu.Unlock()
}

func (m *TokenManager) exchange(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {m.clientID},
		"client_secret": {m.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fetch.NewError(fetch.KindUpstream, 0, "token exchange failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fetch.NewError(fetch.KindUpstream, resp.StatusCode, "read token response", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest:
		return "", fetch.NewError(fetch.KindAuthFailed, resp.StatusCode, "credentials rejected", nil)
	default:
		return "", fetch.NewError(fetch.KindUpstream, resp.StatusCode, "token endpoint error", nil)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fetch.NewError(fetch.KindUpstream, resp.StatusCode, "decode token response", err)
	}
	if payload.AccessToken == "" {
		return "", fetch.NewError(fetch.KindAuthFailed, resp.StatusCode, "empty access token", nil)
	}
	if payload.ExpiresIn <= 0 {
		payload.ExpiresIn = defaultExpirySeconds
	}

	expiresAt := time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)

	m.mu.Lock()
	m.token = payload.AccessToken
	m.expiresAt = expiresAt
	m.mu.Unlock()

	m.log.Debug().Time("expires_at", expiresAt).Msg("access token refreshed")
	return payload.AccessToken, nil
}
