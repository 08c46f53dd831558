package proxypool

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

// Prober checks whether a proxy can reach the outside world.
type Prober interface {
	Probe(ctx context.Context, px Proxy) error
}

// NetProber tunnels to Target through the proxy: an HTTPS HEAD request for
// http(s) proxies, a SOCKS5 dial for socks5 ones.
type NetProber struct {
	Target  string // host:port
	Timeout time.Duration
}

// Probe implements Prober.
func (n *NetProber) Probe(ctx context.Context, px Proxy) error {
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if px.Scheme == "socks5" {
		return n.probeSOCKS5(ctx, px, timeout)
	}
	return n.probeHTTP(ctx, px, timeout)
}

func (n *NetProber) probeHTTP(ctx context.Context, px Proxy, timeout time.Duration) error {
	proxyURL, err := url.Parse(px.URL)
	if err != nil {
		return fmt.Errorf("proxypool: probe %s: %w", px.ID, err)
	}
	transport := &http.Transport{
		Proxy:               http.ProxyURL(proxyURL),
		DialContext:         (&net.Dialer{Timeout: timeout}).DialContext,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
		TLSHandshakeTimeout: timeout / 2,
		DisableKeepAlives:   true,
	}
	defer transport.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, "https://"+n.Target, nil)
	if err != nil {
		return fmt.Errorf("proxypool: probe %s: %w", px.ID, err)
	}
	resp, err := (&http.Client{Transport: transport}).Do(req)
	if err != nil {
		return fmt.Errorf("proxypool: probe %s: %w", px.ID, err)
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("proxypool: probe %s: status %d", px.ID, resp.StatusCode)
	}
	return nil
}

func (n *NetProber) probeSOCKS5(ctx context.Context, px Proxy, timeout time.Duration) error {
	dialer, err := SOCKS5Dialer(px, timeout)
	if err != nil {
		return fmt.Errorf("proxypool: probe %s: %w", px.ID, err)
	}
	conn, err := dialer.DialContext(ctx, "tcp", n.Target)
	if err != nil {
		return fmt.Errorf("proxypool: probe %s: %w", px.ID, err)
	}
	return conn.Close()
}

// SOCKS5Dialer returns a context-aware dialer that tunnels through px,
// carrying any credentials embedded in its URL.
func SOCKS5Dialer(px Proxy, timeout time.Duration) (proxy.ContextDialer, error) {
	var auth *proxy.Auth
	if u, err := url.Parse(px.URL); err == nil && u.User != nil {
		pass, _ := u.User.Password()
		auth = &proxy.Auth{User: u.User.Username(), Password: pass}
	}
	d, err := proxy.SOCKS5("tcp", px.Addr(), auth, &net.Dialer{Timeout: timeout})
	if err != nil {
		return nil, err
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks5 dialer does not support contexts")
	}
	return cd, nil
}
