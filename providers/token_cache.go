package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	tokenRefreshMargin   = 60 * time.Second
	defaultTokenLifetime = 3600 * time.Second
	tokenFetchTimeout    = 30 * time.Second
	oauthPath            = "/oauth/v1/generate?grant_type=client_credentials"
)

// TokenCache holds the Daraja bearer token shared by every outbound call.
// Concurrent refreshes are collapsed into a single OAuth request.
type TokenCache struct {
	baseURL        string
	consumerKey    string
	consumerSecret string
	httpClient     *http.Client
	logger         *zap.Logger
	now            func() time.Time

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	group singleflight.Group
}

// NewTokenCache creates a TokenCache against the given Daraja base URL.
func NewTokenCache(baseURL, consumerKey, consumerSecret string, httpClient *http.Client, logger *zap.Logger) *TokenCache {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &TokenCache{
		baseURL:        strings.TrimRight(baseURL, "/"),
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		httpClient:     httpClient,
		logger:         logger,
		now:            time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (c *TokenCache) WithClock(now func() time.Time) *TokenCache {
	c.now = now
	return c
}

type oauthResponse struct {
	AccessToken string          `json:"access_token"`
	ExpiresIn   json.RawMessage `json:"expires_in"`
}

// GetToken returns the cached token, refreshing it when it is within 60s of expiry.
func (c *TokenCache) GetToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	token, expiresAt := c.token, c.expiresAt
	c.mu.RUnlock()

	if token != "" && c.now().Before(expiresAt.Add(-tokenRefreshMargin)) {
		return token, nil
	}
	return c.Refresh(ctx)
}

// Refresh unconditionally fetches a new token and stores it. The shared
// fetch is detached from ctx so one caller giving up does not fail the others.
func (c *TokenCache) Refresh(ctx context.Context) (string, error) {
	ch := c.group.DoChan("token", func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tokenFetchTimeout)
		defer cancel()
		return c.fetch(fetchCtx)
	})

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrProviderAuth, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			c.logger.Debug("Shared in-flight M-Pesa token refresh")
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached token so the next call refreshes it.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

func (c *TokenCache) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+oauthPath, nil)
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrProviderAuth, err)
	}
	req.SetBasicAuth(c.consumerKey, c.consumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("M-Pesa OAuth request failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrProviderAuth, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrProviderAuth, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("M-Pesa OAuth rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return "", fmt.Errorf("%w: status %d", ErrProviderAuth, resp.StatusCode)
	}

	var out oauthResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrProviderAuth, err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("%w: no access_token in response", ErrProviderAuth)
	}

	expiresAt := c.now().Add(parseExpiresIn(out.ExpiresIn))
	c.mu.Lock()
	c.token = out.AccessToken
	c.expiresAt = expiresAt
	c.mu.Unlock()

	c.logger.Info("M-Pesa access token refreshed", zap.Time("expires_at", expiresAt))
	return out.AccessToken, nil
}

// parseExpiresIn accepts both "3599" and 3599; Daraja sends the former.
func parseExpiresIn(raw json.RawMessage) time.Duration {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" {
		return defaultTokenLifetime
	}
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil || secs <= 0 {
		return defaultTokenLifetime
	}
	return time.Duration(secs) * time.Second
}
