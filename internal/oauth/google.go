// Package oauth exchanges a Google authorization code for an external
// identity. The HTTP client is timeout-bounded so a slow provider turns into
// a failed login rather than a hung request.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

var googleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

const defaultUserInfoURL = "https://www.googleapis.com/oauth2/v1/userinfo"

// Profile is the subset of the Google userinfo response the account resolver
// needs.
type Profile struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

type GoogleClient struct {
	config      *oauth2.Config
	httpClient  *http.Client
	userInfoURL string
}

func NewGoogleClient(clientID, clientSecret, redirectURL string, timeout time.Duration) *GoogleClient {
	return &GoogleClient{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"profile", "email"},
			Endpoint:     googleEndpoint,
		},
		httpClient:  &http.Client{Timeout: timeout},
		userInfoURL: defaultUserInfoURL,
	}
}

// Configured reports whether the provider credentials were supplied.
func (c *GoogleClient) Configured() bool {
	return c.config.ClientID != "" && c.config.RedirectURL != ""
}

// AuthCodeURL builds the consent URL embedding the anti-forgery state.
func (c *GoogleClient) AuthCodeURL(state string) string {
	return c.config.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// Exchange trades the authorization code for a provider access token.
func (c *GoogleClient) Exchange(ctx context.Context, code string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := c.config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchanging authorization code: %w", err)
	}
	return token.AccessToken, nil
}

// FetchProfile loads the external profile using the provider access token.
func (c *GoogleClient) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("userinfo returned %d: %s", resp.StatusCode, body)
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decoding userinfo: %w", err)
	}
	if profile.ID == "" {
		return nil, fmt.Errorf("userinfo response missing subject id")
	}

	return &profile, nil
}
