// Package htmldriver is a claim.Driver that fetches faucet pages over
// plain HTTP through the checked-out proxy and submits forms the way a
// browser without scripting would.
package htmldriver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/zulandar/dripyard/internal/claim"
	"golang.org/x/net/proxy"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// maxBody caps how much of a response is parsed.
const maxBody = 4 << 20

// Driver implements claim.Driver.
type Driver struct {
	UserAgent   string
	DialTimeout time.Duration
}

// New returns a Driver with default settings.
func New() *Driver {
	return &Driver{UserAgent: defaultUserAgent, DialTimeout: 15 * time.Second}
}

// Open loads targetURL through proxyURL. An empty proxyURL connects
// directly.
func (d *Driver) Open(ctx context.Context, targetURL, proxyURL string) (claim.Page, error) {
	transport, err := d.transport(proxyURL)
	if err != nil {
		return nil, err
	}
	jar, _ := cookiejar.New(nil)
	p := &page{
		client: &http.Client{Transport: transport, Jar: jar},
		ua:     d.UserAgent,
		fields: map[string]string{},
	}
	if p.ua == "" {
		p.ua = defaultUserAgent
	}
	if err := p.load(ctx, http.MethodGet, targetURL, nil); err != nil {
		transport.CloseIdleConnections()
		return nil, err
	}
	return p, nil
}

func (d *Driver) transport(proxyURL string) (*http.Transport, error) {
	dialer := &net.Dialer{Timeout: d.DialTimeout}
	t := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: 15 * time.Second,
		MaxIdleConns:        4,
		IdleConnTimeout:     30 * time.Second,
	}
	if proxyURL == "" {
		return t, nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("htmldriver: parse proxy %q: %w", proxyURL, err)
	}
	switch u.Scheme {
	case "http", "https":
		t.Proxy = http.ProxyURL(u)
	case "socks5":
		pd, err := proxy.FromURL(u, dialer)
		if err != nil {
			return nil, fmt.Errorf("htmldriver: socks5 dialer: %w", err)
		}
		cd, ok := pd.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("htmldriver: socks5 dialer lacks DialContext")
		}
		t.DialContext = cd.DialContext
	default:
		return nil, fmt.Errorf("htmldriver: unsupported proxy scheme %q", u.Scheme)
	}
	return t, nil
}

type page struct {
	client *http.Client
	ua     string
	url    *url.URL
	doc    *goquery.Document
	fields map[string]string
}

// load fetches a URL and replaces the current document.
func (p *page) load(ctx context.Context, method, target string, form url.Values) error {
	var body io.Reader
	if method == http.MethodPost {
		body = strings.NewReader(form.Encode())
	} else if len(form) > 0 {
		u, err := url.Parse(target)
		if err != nil {
			return fmt.Errorf("htmldriver: parse %q: %w", target, err)
		}
		u.RawQuery = form.Encode()
		target = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("htmldriver: build request: %w", err)
	}
	req.Header.Set("User-Agent", p.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if p.url != nil {
		req.Header.Set("Referer", p.url.String())
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %v", claim.ErrProxy, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusProxyAuthRequired,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s returned %d", claim.ErrProxy, target, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("htmldriver: %s returned %d", target, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("htmldriver: parse %s: %w", target, err)
	}
	p.doc = doc
	p.url = resp.Request.URL
	return nil
}

func (p *page) Has(_ context.Context, selector string) (bool, error) {
	return p.doc.Find(selector).Length() > 0, nil
}

func (p *page) Challenge(_ context.Context, selector string) (claim.Challenge, error) {
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return claim.Challenge{}, fmt.Errorf("htmldriver: challenge %q not found", selector)
	}
	ch := claim.Challenge{PageURL: p.url.String()}

	keyed := sel.Find("[data-sitekey]").AddSelection(sel.Filter("[data-sitekey]")).First()
	if key, ok := keyed.Attr("data-sitekey"); ok {
		ch.SiteKey = key
		class, _ := keyed.Attr("class")
		if strings.Contains(class, "h-captcha") {
			ch.Kind, ch.Field = "hcaptcha", "h-captcha-response"
		} else {
			ch.Kind, ch.Field = "recaptcha", "g-recaptcha-response"
		}
		return ch, nil
	}

	if src, ok := sel.Find("img").First().Attr("src"); ok {
		ch.Kind = "image"
		ch.ImageURL = p.resolve(src)
		ch.Field = "captcha"
		if name, ok := sel.Find("input[type=text], input:not([type])").First().Attr("name"); ok {
			ch.Field = name
		}
		return ch, nil
	}
	return claim.Challenge{}, fmt.Errorf("htmldriver: unrecognised challenge in %q", selector)
}

func (p *page) Fill(_ context.Context, field, value string) error {
	if field == "" {
		return fmt.Errorf("htmldriver: fill: empty field name")
	}
	p.fields[field] = value
	return nil
}

// Click submits the form enclosing the element, or follows it when it is
// a link.
func (p *page) Click(ctx context.Context, selector string) error {
	el := p.doc.Find(selector).First()
	if el.Length() == 0 {
		return fmt.Errorf("htmldriver: click: %q not found", selector)
	}

	form := el.Closest("form")
	if form.Length() == 0 {
		if href, ok := el.Attr("href"); ok && href != "" && !strings.HasPrefix(href, "#") {
			return p.load(ctx, http.MethodGet, p.resolve(href), nil)
		}
		return fmt.Errorf("htmldriver: click: %q is not inside a form", selector)
	}

	values := url.Values{}
	form.Find("input[name], select[name], textarea[name]").Each(func(_ int, in *goquery.Selection) {
		name, _ := in.Attr("name")
		typ, _ := in.Attr("type")
		switch strings.ToLower(typ) {
		case "submit", "button", "image", "reset":
			return
		case "checkbox", "radio":
			if _, checked := in.Attr("checked"); !checked {
				return
			}
		}
		if goquery.NodeName(in) == "select" {
			opt := in.Find("option[selected]").First()
			if opt.Length() == 0 {
				opt = in.Find("option").First()
			}
			v, _ := opt.Attr("value")
			values.Set(name, v)
			return
		}
		if goquery.NodeName(in) == "textarea" {
			values.Set(name, in.Text())
			return
		}
		v, _ := in.Attr("value")
		values.Set(name, v)
	})
	if name, ok := el.Attr("name"); ok && name != "" {
		v, _ := el.Attr("value")
		values.Set(name, v)
	}
	for k, v := range p.fields {
		values.Set(k, v)
	}

	action, _ := form.Attr("action")
	method, _ := form.Attr("method")
	method = strings.ToUpper(method)
	if method != http.MethodPost {
		method = http.MethodGet
	}
	return p.load(ctx, method, p.resolve(action), values)
}

func (p *page) Text(context.Context) (string, error) {
	return strings.Join(strings.Fields(p.doc.Find("body").Text()), " "), nil
}

func (p *page) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func (p *page) resolve(ref string) string {
	u, err := p.url.Parse(ref)
	if err != nil {
		return p.url.String()
	}
	return u.String()
}
