package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wanpark/access-server-go/internal/model"
)

const (
	ttlockTokenPath  = "/oauth2/token"
	ttlockUnlockPath = "/v3/lock/unlock"

	// Tokens are refreshed this long before the vendor expires them.
	ttlockRefreshSkew = 60 * time.Second
	ttlockHTTPTimeout = 10 * time.Second
)

type TTLockConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Username     string
	// Password is sent as configured. The vendor expects its MD5 digest.
	Password string
}

// TTLockClient talks to the TTLock cloud API. It is safe for concurrent use.
type TTLockClient struct {
	cfg  TTLockConfig
	http *http.Client
	now  func() time.Time

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

func NewTTLockClient(cfg TTLockConfig, httpClient *http.Client) *TTLockClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: ttlockHTTPTimeout}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &TTLockClient{cfg: cfg, http: httpClient, now: time.Now}
}

type ttlockStatus struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

type ttlockTokenResponse struct {
	ttlockStatus
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Unlock opens the lock remotely. The vendor treats unlocking an open lock
// as success.
func (c *TTLockClient) Unlock(ctx context.Context, ttlockID int64) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	form := url.Values{
		"clientId":    {c.cfg.ClientID},
		"accessToken": {token},
		"lockId":      {strconv.FormatInt(ttlockID, 10)},
		"date":        {strconv.FormatInt(c.now().UnixMilli(), 10)},
	}
	var status ttlockStatus
	if err := c.post(ctx, ttlockUnlockPath, form, &status); err != nil {
		return fmt.Errorf("ttlock unlock: %w", err)
	}
	if status.ErrCode != 0 {
		return fmt.Errorf("ttlock unlock: errcode %d: %s", status.ErrCode, status.ErrMsg)
	}
	return nil
}

func (c *TTLockClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.now().Before(c.expiresAt.Add(-ttlockRefreshSkew)) {
		return c.accessToken, nil
	}

	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"username":      {c.cfg.Username},
		"password":      {c.cfg.Password},
		"grant_type":    {"password"},
	}
	var resp ttlockTokenResponse
	if err := c.post(ctx, ttlockTokenPath, form, &resp); err != nil {
		return "", fmt.Errorf("ttlock auth: %w", err)
	}
	if resp.ErrCode != 0 || resp.AccessToken == "" {
		return "", fmt.Errorf("ttlock auth: errcode %d: %s", resp.ErrCode, resp.ErrMsg)
	}

	c.accessToken = resp.AccessToken
	c.expiresAt = c.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	log.Debug().Time("expiresAt", c.expiresAt).Msg("ttlock access token refreshed")
	return c.accessToken, nil
}

func (c *TTLockClient) post(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// TTLockDriver adapts the client to a Controller for one vendor lock id.
type TTLockDriver struct {
	Client   *TTLockClient
	TTLockID int64
}

func (d TTLockDriver) Actuate(ctx context.Context, lockID string, _ model.Purpose) error {
	return d.Client.Unlock(ctx, d.TTLockID)
}
