package logging

import (
	"net/http"
	"regexp"
	"strings"
)

// RedactedValue replaces credentials in logged text.
const RedactedValue = "[REDACTED]"

// credentialHeaders are never logged verbatim.
var credentialHeaders = map[string]struct{}{
	"Authorization":       {},
	"Cookie":              {},
	"Set-Cookie":          {},
	"Proxy-Authorization": {},
	"X-Auth-Token":        {},
	"X-Api-Key":           {},
}

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._~+/-]{20,}=*`),
	// JWT: header.payload.signature
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]{8,}\.[a-zA-Z0-9_-]{8,}\.[a-zA-Z0-9_-]{8,}`),
	regexp.MustCompile(`(?i)"?(token|accessToken|secret|password)"?\s*[=:]\s*"?[a-zA-Z0-9+/=_.-]{32,}"?`),
}

// Redact masks bearer tokens, JWTs and long secrets assigned to token-like
// keys. Portal error bodies and request logs pass through it.
func Redact(s string) string {
	for _, pattern := range secretPatterns {
		s = pattern.ReplaceAllString(s, RedactedValue)
	}
	return s
}

// RedactHeaders flattens h for logging with credential headers masked.
func RedactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if IsCredentialHeader(name) {
			out[name] = RedactedValue
			continue
		}
		out[name] = Redact(strings.Join(values, ", "))
	}
	return out
}

// IsCredentialHeader reports whether a header carries credentials.
func IsCredentialHeader(name string) bool {
	_, ok := credentialHeaders[http.CanonicalHeaderKey(name)]
	return ok
}
