package proxypool

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Status is a proxy's availability as reported by Snapshot.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusInUse     Status = "in_use"
)

// Proxy is a read-only view of one pool entry.
type Proxy struct {
	ID          string    `json:"id"` // scheme://host:port
	Scheme      string    `json:"scheme"`
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	Source      string    `json:"source,omitempty"`
	Status      Status    `json:"status"`
	Failures    int       `json:"failures"`
	LastChecked time.Time `json:"last_checked,omitzero"`

	// URL includes credentials and is only handed to the checkout holder.
	URL string `json:"-"`
}

// Addr returns host:port.
func (p Proxy) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// Parse turns "host:port" or "scheme://[user:pass@]host:port" into a Proxy.
// defaultScheme applies to bare host:port entries.
func Parse(raw, defaultScheme string) (Proxy, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Proxy{}, fmt.Errorf("proxypool: empty proxy address")
	}
	if defaultScheme == "" {
		defaultScheme = "http"
	}
	if !strings.Contains(raw, "://") {
		raw = defaultScheme + "://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Proxy{}, fmt.Errorf("proxypool: parse %q: %w", raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "http", "https", "socks5":
	default:
		return Proxy{}, fmt.Errorf("proxypool: unsupported scheme %q in %q", u.Scheme, raw)
	}

	host := u.Hostname()
	if host == "" {
		return Proxy{}, fmt.Errorf("proxypool: missing host in %q", raw)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil || port < 1 || port > 65535 {
		return Proxy{}, fmt.Errorf("proxypool: invalid port in %q", raw)
	}

	u.Scheme = scheme
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return Proxy{
		ID:     scheme + "://" + net.JoinHostPort(host, strconv.Itoa(port)),
		Scheme: scheme,
		Host:   host,
		Port:   port,
		URL:    u.String(),
	}, nil
}
