// Package callback builds the webhook address handed to the workflow engine.
package callback

import (
	"net"
	"net/url"
	"strings"

	"github.com/fentz26/tripassist/internal/apperr"
)

// WebhookPath is where the engine delivers results.
const WebhookPath = "/webhook"

// SessionParam is the query parameter carrying the session id.
const SessionParam = "sessionId"

// Resolve validates the public base address of this application. It must be an
// absolute http(s) URL whose host is not a loopback or unspecified address; any
// other value is a configuration error.
func Resolve(base string) (*url.URL, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return nil, apperr.ConfigMissing("public base URL")
	}

	u, err := url.Parse(base)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeConfigInvalid, "the public base URL is malformed").
			WithDetail("url", base)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, apperr.ConfigInvalid("the public base URL must be absolute").WithDetail("url", base)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, apperr.ConfigInvalid("the public base URL must use http or https").WithDetail("url", base)
	}
	if IsLoopback(u.Hostname()) {
		return nil, apperr.ConfigInvalid("the public base URL points to a local-only host; the engine cannot reach it").
			WithDetail("url", base)
	}

	u.RawQuery = ""
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	return u, nil
}

// IsLoopback reports whether host only resolves on the local machine.
func IsLoopback(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsUnspecified()
	}
	return false
}

// URL returns the webhook address for sessionID under base.
func URL(base *url.URL, sessionID string) string {
	u := *base
	u.Path = strings.TrimRight(base.Path, "/") + WebhookPath
	u.RawQuery = url.Values{SessionParam: []string{sessionID}}.Encode()
	return u.String()
}

