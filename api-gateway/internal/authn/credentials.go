package authn

import (
	"net/http"
	"venue-server/shared/authutils"
)

// Credentials are the tokens presented by one request.
type Credentials struct {
	Access  string
	Refresh string
	// FromCookies is false when any credential arrived in a header; such clients
	// get renewed tokens back in response headers.
	FromCookies bool
}

// ExtractCredentials: access из cookie, затем Authorization: Bearer;
// refresh из cookie, затем X-Refresh-Token.
func ExtractCredentials(r *http.Request) Credentials {
	creds := Credentials{FromCookies: true}
	if c, err := r.Cookie(authutils.AccessCookieName); err == nil && c.Value != "" {
		creds.Access = c.Value
	} else if token := authutils.BearerToken(r.Header.Get("Authorization")); token != "" {
		creds.Access = token
		creds.FromCookies = false
	}
	if c, err := r.Cookie(authutils.RefreshCookieName); err == nil && c.Value != "" {
		creds.Refresh = c.Value
	} else if token := r.Header.Get(authutils.RefreshHeader); token != "" {
		creds.Refresh = token
		creds.FromCookies = false
	}
	return creds
}

// Empty reports whether no credential was presented.
func (c Credentials) Empty() bool {
	return c.Access == "" && c.Refresh == ""
}
