package feishu

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"zsxqsync/pkg/config"
	"zsxqsync/pkg/errors"
	"zsxqsync/pkg/logger"
)

// tokenSafetyMargin is subtracted from the server TTL so a token is
// refreshed before it can expire mid-request.
const tokenSafetyMargin = 60 * time.Second

// TokenSource yields a bearer token for the destination API
type TokenSource interface {
	Token() (string, error)
}

// TokenCache obtains and caches a tenant_access_token, refreshing it
// lazily when the cached value is within the safety margin of expiry.
// The cache is mutex-guarded so concurrent callers cannot trigger
// duplicate exchanges.
type TokenCache struct {
	httpClient *http.Client
	baseURL    string
	appID      string
	appSecret  string
	logger     logger.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

// NewTokenCache creates a token cache for the given app credentials
func NewTokenCache(cfg *config.FeishuConfig, log logger.Logger) *TokenCache {
	if log == nil {
		log = logger.GetLogger()
	}
	return &TokenCache{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		appID:      cfg.AppID,
		appSecret:  cfg.AppSecret,
		logger:     log,
		now:        time.Now,
	}
}

type tokenResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int64  `json:"expire"`
}

// Token returns the cached token, exchanging credentials for a fresh one
// when expired. An exchange failure is fatal to the caller; there is no
// fallback identity.
func (c *TokenCache) Token() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	payload, err := json.Marshal(map[string]string{
		"app_id":     c.appID,
		"app_secret": c.appSecret,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal token request: %w", err)
	}

	url := c.baseURL + "/open-apis/auth/v3/tenant_access_token/internal"
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &errors.Error{
			Type:    errors.ErrorTypeNetwork,
			Message: fmt.Sprintf("token exchange failed: %v", err),
			Code:    0,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", &errors.Error{
			Type:    errors.ErrorTypeParsing,
			Message: fmt.Sprintf("failed to parse token response: %v", err),
			Code:    resp.StatusCode,
		}
	}

	if resp.StatusCode != http.StatusOK || tr.Code != 0 {
		return "", &errors.Error{
			Type:    errors.ErrorTypeAuth,
			Message: fmt.Sprintf("token exchange rejected: %s", tr.Msg),
			Code:    tr.Code,
		}
	}

	c.token = tr.TenantAccessToken
	c.expiresAt = c.now().Add(time.Duration(tr.Expire)*time.Second - tokenSafetyMargin)

	c.logger.InfoWithFields("refreshed tenant access token", map[string]interface{}{
		"expires_in": tr.Expire,
	})

	return c.token, nil
}
