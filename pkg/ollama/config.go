package ollama

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// DefaultHost is the address a local Ollama server listens on.
const DefaultHost = "http://127.0.0.1:11434"

const defaultPort = "11434"

// Config is the client configuration. The zero value talks to DefaultHost.
type Config struct {
	// Host of the model-serving endpoint (e.g., "http://localhost:11434").
	// Scheme and port may be omitted, as with OLLAMA_HOST. See ParseHost.
	Host string

	// HTTPClient used for backend calls. Nil means a client without a
	// timeout; callers bound calls through the context instead.
	HTTPClient *http.Client
}

// ParseHost normalises an endpoint address the way Ollama reads
// OLLAMA_HOST. A bare host gets http and port 11434. An explicit scheme
// without a port gets that scheme's well-known port, 80 or 443.
func ParseHost(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = DefaultHost
	}

	port := defaultPort
	switch scheme, _, ok := strings.Cut(raw, "://"); {
	case !ok:
		raw = "http://" + raw
	case scheme == "http":
		port = "80"
	case scheme == "https":
		port = "443"
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse host %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("host %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("host %q: missing hostname", raw)
	}
	if u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), port)
	}
	u.Path = strings.TrimRight(u.Path, "/")

	return u, nil
}
