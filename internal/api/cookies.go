package api

import (
	"net/http"
	"time"
)

const (
	accessTokenCookie  = "token"
	refreshTokenCookie = "refreshToken"
	oauthStateCookie   = "oauth_state"

	oauthStateTTL = 5 * time.Minute
)

// CookieManager writes and clears the session cookies. Both token cookies
// are httpOnly; Secure is set outside local development.
type CookieManager struct {
	secure     bool
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewCookieManager(secure bool, accessTTL, refreshTTL time.Duration) *CookieManager {
	return &CookieManager{
		secure:     secure,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (c *CookieManager) SetSession(w http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(w, c.cookie(accessTokenCookie, accessToken, c.accessTTL))
	http.SetCookie(w, c.cookie(refreshTokenCookie, refreshToken, c.refreshTTL))
}

func (c *CookieManager) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(accessTokenCookie, "", -time.Second))
	http.SetCookie(w, c.cookie(refreshTokenCookie, "", -time.Second))
}

// SetOAuthState is SameSite=Lax rather than Strict: the provider callback
// arrives as a cross-site navigation, and a Strict cookie would not be sent
// with it.
func (c *CookieManager) SetOAuthState(w http.ResponseWriter, state string) {
	cookie := c.cookie(oauthStateCookie, state, oauthStateTTL)
	cookie.SameSite = http.SameSiteLaxMode
	http.SetCookie(w, cookie)
}

func (c *CookieManager) ClearOAuthState(w http.ResponseWriter) {
	cookie := c.cookie(oauthStateCookie, "", -time.Second)
	cookie.SameSite = http.SameSiteLaxMode
	http.SetCookie(w, cookie)
}

func (c *CookieManager) cookie(name, value string, ttl time.Duration) *http.Cookie {
	maxAge := int(ttl.Seconds())
	if ttl < 0 {
		maxAge = -1
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	}
}
