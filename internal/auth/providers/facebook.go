package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultGraphBaseURL = "https://graph.facebook.com/v19.0"

// FacebookConfig configures access token verification against the Graph API.
type FacebookConfig struct {
	AppID      string
	AppSecret  string
	BaseURL    string
	HTTPClient *http.Client
}

// FacebookVerifier validates user access tokens with the Graph API.
// Facebook issues opaque access tokens rather than ID tokens, so
// verification is two calls: debug_token ties the token to our app, and
// the profile fetch yields the identity.
type FacebookVerifier struct {
	appID     string
	appSecret string
	baseURL   string
	client    *http.Client
}

// NewFacebookVerifier validates the configuration and returns a verifier.
func NewFacebookVerifier(cfg FacebookConfig) (*FacebookVerifier, error) {
	if strings.TrimSpace(cfg.AppID) == "" || strings.TrimSpace(cfg.AppSecret) == "" {
		return nil, errors.New("facebook provider: app id and app secret are required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultGraphBaseURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &FacebookVerifier{
		appID:     cfg.AppID,
		appSecret: cfg.AppSecret,
		baseURL:   baseURL,
		client:    client,
	}, nil
}

// Provider returns the provider key this verifier serves.
func (v *FacebookVerifier) Provider() string { return "facebook" }

type debugTokenResponse struct {
	Data struct {
		AppID   string `json:"app_id"`
		IsValid bool   `json:"is_valid"`
		UserID  string `json:"user_id"`
	} `json:"data"`
}

type graphProfile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// VerifyToken validates a user access token and fetches the profile it
// belongs to.
func (v *FacebookVerifier) VerifyToken(ctx context.Context, accessToken string) (*FederatedIdentity, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, ErrTokenInvalid
	}

	var debug debugTokenResponse
	debugQuery := url.Values{
		"input_token":  {accessToken},
		"access_token": {v.appID + "|" + v.appSecret},
	}
	if err := v.getJSON(ctx, "/debug_token", debugQuery, &debug); err != nil {
		return nil, err
	}

	if !debug.Data.IsValid || debug.Data.AppID != v.appID || debug.Data.UserID == "" {
		return nil, ErrTokenInvalid
	}

	var profile graphProfile
	profileQuery := url.Values{
		"fields":       {"id,name,email"},
		"access_token": {accessToken},
	}
	if err := v.getJSON(ctx, "/me", profileQuery, &profile); err != nil {
		return nil, err
	}

	if profile.ID != debug.Data.UserID {
		return nil, ErrTokenInvalid
	}

	return &FederatedIdentity{
		Provider:      "facebook",
		Subject:       profile.ID,
		Email:         profile.Email,
		EmailVerified: profile.Email != "",
		Name:          profile.Name,
	}, nil
}

func (v *FacebookVerifier) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("facebook provider: build request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("facebook provider: call graph api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Join(ErrTokenInvalid, fmt.Errorf("facebook provider: graph api status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("facebook provider: decode response: %w", err)
	}
	return nil
}
