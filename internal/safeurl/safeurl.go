package safeurl

import (
	"net/url"
	"strings"
)

// IsHTTPOrHTTPS returns true if u is a valid URL with scheme http or https.
// Used to reject file://, ftp://, and other schemes that could lead to SSRF or local file access.
func IsHTTPOrHTTPS(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	s := parsed.Scheme
	return (s == "http" || s == "https") && parsed.Host != ""
}

// RedactURL returns u with userinfo and the query string removed, and with
// any Xtream-style /{kind}/{user}/{pass}/ path credentials masked, so it can
// be logged. Unparseable input is reduced to "<invalid-url>".
func RedactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return "<invalid-url>"
	}
	parsed.User = nil
	if parsed.RawQuery != "" {
		parsed.RawQuery = "redacted"
	}
	parsed.Fragment = ""
	parsed.Path = redactPath(parsed.Path)
	parsed.RawPath = ""
	return parsed.String()
}

var credentialPaths = map[string]bool{
	"live":      true,
	"movie":     true,
	"series":    true,
	"timeshift": true,
}

// redactPath masks user and password in /live/u/p/..., /timeshift/u/p/... etc.
func redactPath(p string) string {
	parts := strings.Split(p, "/")
	for i := 0; i+2 < len(parts); i++ {
		if credentialPaths[parts[i]] && parts[i+1] != "" {
			parts[i+1] = "xxx"
			parts[i+2] = "xxx"
			break
		}
	}
	return strings.Join(parts, "/")
}
