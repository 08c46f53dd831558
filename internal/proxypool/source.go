package proxypool

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/zulandar/dripyard/internal/config"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Source is an external proxy list feed.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]Proxy, error)
}

// TextFeed reads one proxy per line, ProxyScrape style.
type TextFeed struct {
	FeedName string
	URL      string
	Scheme   string // applied to bare host:port lines
	Limit    int
	Client   *http.Client
}

func (f *TextFeed) Name() string { return f.FeedName }

// Fetch downloads the list. Lines that fail to parse are skipped.
func (f *TextFeed) Fetch(ctx context.Context) ([]Proxy, error) {
	body, err := get(ctx, f.Client, f.URL)
	if err != nil {
		return nil, fmt.Errorf("proxypool: fetch %s: %w", f.FeedName, err)
	}
	defer body.Close()

	var out []Proxy
	sc := bufio.NewScanner(body)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		px, err := Parse(line, f.Scheme)
		if err != nil {
			continue
		}
		px.Source = f.FeedName
		out = append(out, px)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("proxypool: read %s: %w", f.FeedName, err)
	}
	return out, nil
}

// HTMLTableFeed scrapes an HTML page whose table rows start with an IP
// cell followed by a port cell.
type HTMLTableFeed struct {
	FeedName string
	URL      string
	Scheme   string
	Limit    int
	Client   *http.Client
}

func (f *HTMLTableFeed) Name() string { return f.FeedName }

// Fetch downloads and parses the page.
func (f *HTMLTableFeed) Fetch(ctx context.Context) ([]Proxy, error) {
	body, err := get(ctx, f.Client, f.URL)
	if err != nil {
		return nil, fmt.Errorf("proxypool: fetch %s: %w", f.FeedName, err)
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("proxypool: parse %s: %w", f.FeedName, err)
	}

	var out []Proxy
	doc.Find("table tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return true
		}
		host := strings.TrimSpace(cells.Eq(0).Text())
		port, err := strconv.Atoi(strings.TrimSpace(cells.Eq(1).Text()))
		if host == "" || err != nil {
			return true
		}
		px, err := Parse(fmt.Sprintf("%s:%d", host, port), f.Scheme)
		if err != nil {
			return true
		}
		px.Source = f.FeedName
		out = append(out, px)
		return f.Limit <= 0 || len(out) < f.Limit
	})
	return out, nil
}

// Static is a fixed proxy list from configuration.
type Static struct {
	URLs []string
}

func (s *Static) Name() string { return "static" }

// Fetch parses the configured URLs.
func (s *Static) Fetch(context.Context) ([]Proxy, error) {
	out := make([]Proxy, 0, len(s.URLs))
	for _, raw := range s.URLs {
		px, err := Parse(raw, "http")
		if err != nil {
			return nil, err
		}
		px.Source = "static"
		out = append(out, px)
	}
	return out, nil
}

// SourcesFromConfig builds the configured feeds. A nil client gets a
// 30 second default.
func SourcesFromConfig(cfg config.ProxiesConfig, client *http.Client) []Source {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	var out []Source
	if len(cfg.Static) > 0 {
		out = append(out, &Static{URLs: cfg.Static})
	}
	for _, src := range cfg.Sources {
		switch src.Format {
		case "html_table":
			out = append(out, &HTMLTableFeed{FeedName: src.Name, URL: src.URL, Scheme: src.Scheme, Limit: src.Limit, Client: client})
		default:
			out = append(out, &TextFeed{FeedName: src.Name, URL: src.URL, Scheme: src.Scheme, Limit: src.Limit, Client: client})
		}
	}
	return out
}

func get(ctx context.Context, client *http.Client, url string) (io.ReadCloser, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}
