package auth

import (
	"net/http"
	"strings"
)

// Header names and schemes.
const (
	HeaderAPIKey        = "X-API-Key"
	HeaderAuthorization = "Authorization"
	SchemeBearer        = "Bearer"
	SchemeAPIKey        = "ApiKey"
)

// Source defines where to extract API keys from
type Source struct {
	// Header is the header name
	Header string

	// Scheme is the required authorization scheme, if any
	Scheme string
}

// DefaultSources returns X-API-Key, then Bearer, then ApiKey authorization.
func DefaultSources() []Source {
	return []Source{
		{Header: HeaderAPIKey},
		{Header: HeaderAuthorization, Scheme: SchemeBearer},
		{Header: HeaderAuthorization, Scheme: SchemeAPIKey},
	}
}

// Extract returns the first non-blank credential found in sources, or "".
func Extract(r *http.Request, sources []Source) string {
	for _, source := range sources {
		value := strings.TrimSpace(r.Header.Get(source.Header))
		if value == "" {
			continue
		}

		if source.Scheme == "" {
			return value
		}

		scheme, credential, ok := strings.Cut(value, " ")
		if !ok || !strings.EqualFold(scheme, source.Scheme) {
			continue
		}
		if credential = strings.TrimSpace(credential); credential != "" {
			return credential
		}
	}
	return ""
}
