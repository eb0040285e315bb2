package auth

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"bpsalgo/src/helpers"
	"bpsalgo/src/interfaces"
	"bpsalgo/src/logger"
	"bpsalgo/src/models"
)

// defaultTokenTTL is assumed when the broker omits expires_in.
const defaultTokenTTL = time.Hour

// -----------------------------------------------------------------------------
// SessionManager handles the mStock Type A login flow:
// step 1 sends credentials and triggers an OTP, step 2 exchanges the OTP for
// an access token, refresh renews the session from the stored refresh token.
// -----------------------------------------------------------------------------

type SessionManager struct {
	Config  *models.MConfig
	Network interfaces.INetworkManager
	Logger  *logger.Logger

	apiKey   string
	username string
	password string

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time

	now func() time.Time // injectable clock for tests
}

// -----------------------------------------------------------------------------

func NewSessionManager(cfg *models.MConfig, apiKey, username, password string, netMgr interfaces.INetworkManager, log *logger.Logger) *SessionManager {
	return &SessionManager{
		Config:   cfg,
		Network:  netMgr,
		Logger:   log,
		apiKey:   apiKey,
		username: username,
		password: password,
		now:      time.Now,
	}
}

// -----------------------------------------------------------------------------

type tokenResponse struct {
	Success      bool   `json:"success"`
	Token        string `json:"token"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Message      string `json:"message"`
}

// -----------------------------------------------------------------------------

// Step1Login posts the broker credentials; on success the broker sends an OTP
// to the account holder via SMS/email.
func (sm *SessionManager) Step1Login() error {
	if sm.username == "" || sm.password == "" {
		return helpers.NewAuthError("credentials not configured", nil)
	}

	endpoint := strings.TrimRight(sm.Config.Broker.BaseURL, "/") + "/v1/auth/login"
	body := map[string]string{
		"username": sm.username,
		"password": sm.password,
	}

	respBytes, err := sm.Network.Post(endpoint, body, sm.headers())
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}

	var resp tokenResponse
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return fmt.Errorf("failed to parse login response: %w", err)
	}
	if !resp.Success {
		return helpers.NewAuthError("login rejected: "+resp.Message, nil)
	}

	sm.Logger.Info("Login step 1 accepted, OTP dispatched")
	return nil
}

// -----------------------------------------------------------------------------

// Step2Verify exchanges the OTP for an access token.
func (sm *SessionManager) Step2Verify(otp string) error {
	if otp == "" {
		return helpers.NewAuthError("OTP required", nil)
	}

	endpoint := strings.TrimRight(sm.Config.Broker.BaseURL, "/") + "/v1/auth/token"
	body := map[string]string{
		"username":      sm.username,
		"request_token": otp,
	}

	respBytes, err := sm.Network.Post(endpoint, body, sm.headers())
	if err != nil {
		return fmt.Errorf("token request failed: %w", err)
	}

	return sm.storeTokens(respBytes)
}

// -----------------------------------------------------------------------------

// RefreshSession renews the access token using the stored refresh token.
func (sm *SessionManager) RefreshSession() error {
	sm.mu.RLock()
	refresh := sm.refreshToken
	sm.mu.RUnlock()

	if refresh == "" {
		return helpers.NewAuthError("no refresh token available", nil)
	}

	endpoint := strings.TrimRight(sm.Config.Broker.BaseURL, "/") + "/v1/auth/refresh"
	body := map[string]string{
		"refresh_token": refresh,
	}

	respBytes, err := sm.Network.Post(endpoint, body, sm.headers())
	if err != nil {
		return fmt.Errorf("refresh request failed: %w", err)
	}

	return sm.storeTokens(respBytes)
}

// -----------------------------------------------------------------------------

func (sm *SessionManager) storeTokens(respBytes []byte) error {
	var resp tokenResponse
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return fmt.Errorf("failed to parse token response: %w", err)
	}

	token := resp.AccessToken
	if token == "" {
		token = resp.Token
	}
	if !resp.Success || token == "" {
		return helpers.NewAuthError("token exchange rejected: "+resp.Message, nil)
	}

	ttl := defaultTokenTTL
	if resp.ExpiresIn > 0 {
		ttl = time.Duration(resp.ExpiresIn) * time.Second
	}

	sm.mu.Lock()
	sm.accessToken = token
	if resp.RefreshToken != "" {
		sm.refreshToken = resp.RefreshToken
	}
	sm.expiresAt = sm.now().Add(ttl)
	sm.mu.Unlock()

	sm.Logger.Info("Session established, token expires in %v", ttl)
	return nil
}

// -----------------------------------------------------------------------------

func (sm *SessionManager) headers() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + sm.apiKey,
		"Accept":        "application/json",
	}
}

// -----------------------------------------------------------------------------

// AccessToken returns the current access token (may be empty).
func (sm *SessionManager) AccessToken() string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.accessToken
}

// -----------------------------------------------------------------------------

// APIKey returns the configured broker API key.
func (sm *SessionManager) APIKey() string {
	return sm.apiKey
}

// -----------------------------------------------------------------------------

// IsTokenValid reports whether the session holds a non-expired access token.
func (sm *SessionManager) IsTokenValid() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if sm.accessToken == "" {
		return false
	}
	return sm.now().Before(sm.expiresAt)
}

// -----------------------------------------------------------------------------

// ExpiresWithin reports whether the held access token expires inside d.
// Callers use it to renew ahead of expiry instead of after it.
func (sm *SessionManager) ExpiresWithin(d time.Duration) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if sm.accessToken == "" {
		return false
	}
	return !sm.now().Add(d).Before(sm.expiresAt)
}

// -----------------------------------------------------------------------------

// WSEndpoint builds the broker stream URL. The feed authenticates via the
// API key and access token passed as query parameters.
func (sm *SessionManager) WSEndpoint() string {
	if sm.Config.Broker.WSURL == "" {
		return ""
	}

	sm.mu.RLock()
	token := sm.accessToken
	sm.mu.RUnlock()

	return fmt.Sprintf("%s?API_KEY=%s&ACCESS_TOKEN=%s",
		sm.Config.Broker.WSURL, url.QueryEscape(sm.apiKey), url.QueryEscape(token))
}
