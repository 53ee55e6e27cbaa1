// Package site classifies host pages into the Git-hosting sites codetree
// knows how to decorate.
package site

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// Kind is a supported hosting site.
type Kind string

const (
	None   Kind = ""
	GitHub Kind = "github"
	GitLab Kind = "gitlab"
	Gitee  Kind = "gitee"
	Gitea  Kind = "gitea"
	Gogs   Kind = "gogs"
	Gist   Kind = "gist"
)

// Kinds lists every supported site.
var Kinds = []Kind{GitHub, GitLab, Gitee, Gitea, Gogs, Gist}

// ParseKind maps a config string onto a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return None, fmt.Errorf("unknown site kind %q", s)
}

// Page is the host page: its location and, when it was fetched, its HTML.
// Location changes as the user navigates; the document does not.
type Page struct {
	mu  sync.RWMutex
	loc *url.URL
	doc *goquery.Document
}

// NewPage parses rawURL. html may be empty.
func NewPage(rawURL, html string) (*Page, error) {
	u, err := parseLocation(rawURL)
	if err != nil {
		return nil, err
	}
	p := &Page{loc: u}
	if html != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return nil, fmt.Errorf("parsing page html: %w", err)
		}
		p.doc = doc
	}
	return p, nil
}

func parseLocation(rawURL string) (*url.URL, error) {
	raw := strings.TrimSpace(rawURL)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing page url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parsing page url: missing host in %q", rawURL)
	}
	return u, nil
}

// Location returns a copy of the current URL.
func (p *Page) Location() *url.URL {
	p.mu.RLock()
	defer p.mu.RUnlock()
	u := *p.loc
	return &u
}

// Host returns the lower-cased host, port included.
func (p *Page) Host() string {
	return strings.ToLower(p.Location().Host)
}

// Navigate moves the page to rawURL. Relative paths resolve against the
// current location.
func (p *Page) Navigate(rawURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ref, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	p.loc = p.loc.ResolveReference(ref)
	return nil
}

// Document returns the parsed HTML, or nil.
func (p *Page) Document() *goquery.Document {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.doc
}

// Load builds a Page for rawURL. The HTML is fetched only when the host is not
// one of the public sites, since only then is it needed for detection.
func Load(ctx context.Context, client *http.Client, rawURL string, overrides map[string]Kind) (*Page, error) {
	p, err := NewPage(rawURL, "")
	if err != nil {
		return nil, err
	}
	if byHost(p.Host(), overrides) != None {
		return p, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.Location().String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building page request: %w", err)
	}
	req.Header.Set("Accept", "text/html")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetching page: status %d", resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("parsing page html: %w", err)
	}
	p.doc = doc
	return p, nil
}

// Detect classifies page. overrides maps extra hosts (self-hosted installs)
// to a kind and wins over every other rule.
func Detect(page *Page, overrides map[string]Kind) Kind {
	if page == nil {
		return None
	}
	if k := byHost(page.Host(), overrides); k != None {
		return k
	}
	return byMarkup(page.Document())
}

func byHost(host string, overrides map[string]Kind) Kind {
	if k, ok := overrides[host]; ok {
		return k
	}
	switch strings.TrimPrefix(host, "www.") {
	case "gist.github.com":
		return Gist
	case "github.com":
		return GitHub
	case "gitee.com":
		return Gitee
	case "gitlab.com":
		return GitLab
	}
	return None
}

func byMarkup(doc *goquery.Document) Kind {
	if doc == nil {
		return None
	}
	siteName, _ := doc.Find(`meta[property="og:site_name"]`).Attr("content")
	if strings.EqualFold(strings.TrimSpace(siteName), "GitLab") {
		return GitLab
	}

	keywords, _ := doc.Find(`meta[name="keywords"]`).Attr("content")
	footer := doc.Find("footer").Text()
	for _, text := range []string{strings.ToLower(keywords), strings.ToLower(footer)} {
		switch {
		case strings.Contains(text, "gitea"):
			return Gitea
		case strings.Contains(text, "gogs"):
			return Gogs
		}
	}
	return None
}
