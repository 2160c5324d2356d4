package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strings"

	sifterrors "github.com/logsift/logsift/internal/errors"
)

// DefaultMaxListRequests caps a single directory crawl. Log servers with
// symlink loops would otherwise keep a crawl alive forever.
const DefaultMaxListRequests = 2500

// listingBodyLimit bounds how much of an index page is parsed.
const listingBodyLimit = 8 << 20

var hrefRe = regexp.MustCompile(`(?i)<a\s+[^>]*href="([^"]+)"`)

// ListDir crawls a log-server directory index recursively and returns the
// file URLs found, in sorted order. Results are cached per base URL.
func (c *Client) ListDir(ctx context.Context, baseURL string) ([]string, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if cached, ok := c.listings.Get(baseURL); ok {
		return cached, nil
	}

	crawl := &dirCrawl{client: c, budget: c.maxRequests}
	if err := crawl.walk(ctx, baseURL, baseURL); err != nil {
		return nil, err
	}
	sort.Strings(crawl.files)
	c.listings.Add(baseURL, crawl.files)
	return crawl.files, nil
}

type dirCrawl struct {
	client *Client
	files  []string
	budget int
}

func (d *dirCrawl) walk(ctx context.Context, base, dir string) error {
	if d.budget <= 0 {
		return sifterrors.ReadError(
			fmt.Sprintf("too many requests while listing %s", base), nil)
	}
	d.budget--

	body, err := d.client.Get(ctx, dir)
	if err != nil {
		return err
	}
	page, err := io.ReadAll(io.LimitReader(body, listingBodyLimit))
	_ = body.Close()
	if err != nil {
		return sifterrors.ReadError(fmt.Sprintf("reading listing %s", dir), err)
	}

	for _, match := range hrefRe.FindAllStringSubmatch(string(page), -1) {
		href := match[1]
		if skipHref(href) {
			continue
		}
		child, ok := resolveChild(dir, href)
		if !ok {
			continue
		}
		if strings.HasSuffix(child, "/") {
			if err := d.walk(ctx, base, child); err != nil {
				return err
			}
			continue
		}
		d.files = append(d.files, child)
	}
	return nil
}

// skipHref drops navigation and sort links that "Index of" pages put in
// their header and footer; following them either loops or 404s.
func skipHref(href string) bool {
	if href == "" || href == "/" || href == "../" || href == ".." {
		return true
	}
	if strings.HasPrefix(href, "?") || strings.Contains(href, "?C=") {
		return true
	}
	if strings.HasPrefix(href, "#") {
		return true
	}
	return false
}

// resolveChild resolves an href against its directory and rejects anything
// that escapes it (absolute links to other hosts, parent traversal).
func resolveChild(dir, href string) (string, bool) {
	base, err := url.Parse(dir)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		slog.Debug("skipping unparsable href", slog.String("href", href))
		return "", false
	}
	child := base.ResolveReference(ref)
	child.RawQuery = ""
	child.Fragment = ""
	s := child.String()
	if !strings.HasPrefix(s, dir) || s == dir {
		return "", false
	}
	return s, true
}
