package authutils

import (
	"net/http"
	"strings"
	"time"
)

// Cookie names carrying the session credentials.
const (
	AccessCookieName  = "access_token"
	RefreshCookieName = "refresh_token"

	// RefreshHeader carries the refresh credential for clients that do not keep cookies.
	RefreshHeader = "X-Refresh-Token"
	// AccessHeader returns a renewed access credential to non-cookie clients.
	AccessHeader = "X-Access-Token"
)

// CookiePolicy decides the flags applied to both session cookies.
type CookiePolicy struct {
	Production bool
	Domain     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (p CookiePolicy) sameSite() http.SameSite {
	if p.Production {
		return http.SameSiteStrictMode
	}
	return http.SameSiteLaxMode
}

func (p CookiePolicy) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   p.Domain,
		HttpOnly: true,
		Secure:   p.Production,
		SameSite: p.sameSite(),
	}
	if maxAge > 0 {
		c.MaxAge = int(maxAge / time.Second)
		c.Expires = time.Now().Add(maxAge)
	} else {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
	}
	return c
}

// SetSessionCookies writes both credential cookies. An empty refresh token leaves
// the refresh cookie untouched.
func (p CookiePolicy) SetSessionCookies(w http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(w, p.cookie(AccessCookieName, accessToken, p.AccessTTL))
	if refreshToken != "" {
		http.SetCookie(w, p.cookie(RefreshCookieName, refreshToken, p.RefreshTTL))
	}
}

// ClearSessionCookies expires both credential cookies.
func (p CookiePolicy) ClearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, p.cookie(AccessCookieName, "", 0))
	http.SetCookie(w, p.cookie(RefreshCookieName, "", 0))
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value.
func BearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// IsBrowserClient reports whether the user agent looks like a browser.
// Browsers get credentials only as cookies, other clients also in the body.
func IsBrowserClient(userAgent string) bool {
	return strings.Contains(strings.ToLower(userAgent), "mozilla")
}
