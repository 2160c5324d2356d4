// Package transport provides the process-wide HTTP client used to fetch
// remote log sources and crawl log-server directory indexes.
//
// The client is built once at startup: TLS roots are the system pool plus an
// optional extra CA bundle, verification can be disabled explicitly, and an
// extra auth header can be injected. All three come from the environment:
//
//	LOGSIFT_CA_EXTRA      path to an extra PEM bundle
//	                      (falls back to /etc/pki/tls/certs/ca-extra.crt)
//	LOGSIFT_SSL_NO_VERIFY disable certificate verification
//	LOGSIFT_HTTP_AUTH     "Header: value" added to every request
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	sifterrors "github.com/logsift/logsift/internal/errors"
)

// fallbackCAPath is probed when LOGSIFT_CA_EXTRA is unset.
const fallbackCAPath = "/etc/pki/tls/certs/ca-extra.crt"

// listingCacheSize bounds the directory-listing cache.
const listingCacheSize = 256

// Client is the shared HTTP transport.
type Client struct {
	http        *http.Client
	authHeader  string
	authValue   string
	retry       sifterrors.RetryConfig
	listings    *lru.Cache[string, []string]
	maxRequests int
}

// Option customizes a Client.
type Option func(*Client)

// WithMaxListRequests caps the number of HTTP requests a single ListDir
// crawl may issue.
func WithMaxListRequests(n int) Option {
	return func(c *Client) { c.maxRequests = n }
}

// WithRetry overrides the retry policy.
func WithRetry(cfg sifterrors.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// New builds the process-wide client from the environment.
func New(opts ...Option) (*Client, error) {
	tlsConfig := &tls.Config{}

	if os.Getenv("LOGSIFT_SSL_NO_VERIFY") != "" {
		slog.Warn("TLS certificate verification disabled")
		tlsConfig.InsecureSkipVerify = true
	} else if caPath := extraCAPath(); caPath != "" {
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		pem, err := os.ReadFile(caPath)
		if err != nil {
			return nil, sifterrors.ConfigError(fmt.Sprintf("cannot read CA bundle %s", caPath), err)
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, sifterrors.ConfigError(fmt.Sprintf("no certificates in %s", caPath), nil)
		}
		tlsConfig.RootCAs = pool
	}

	cache, err := lru.New[string, []string](listingCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create listing cache: %w", err)
	}

	c := &Client{
		http: &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig:     tlsConfig,
				MaxIdleConnsPerHost: 8,
			},
		},
		retry:       sifterrors.DefaultRetryConfig(),
		listings:    cache,
		maxRequests: DefaultMaxListRequests,
	}
	if auth := os.Getenv("LOGSIFT_HTTP_AUTH"); auth != "" {
		if name, value, ok := strings.Cut(auth, ":"); ok {
			c.authHeader = strings.TrimSpace(name)
			c.authValue = strings.TrimSpace(value)
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func extraCAPath() string {
	if p := os.Getenv("LOGSIFT_CA_EXTRA"); p != "" {
		return p
	}
	if _, err := os.Stat(fallbackCAPath); err == nil {
		return fallbackCAPath
	}
	return ""
}

// Get fetches a URL, retrying transient failures. The caller must close the
// returned body.
func (c *Client) Get(ctx context.Context, url string) (io.ReadCloser, error) {
	return sifterrors.RetryWithResult(ctx, c.retry, func() (io.ReadCloser, error) {
		return c.getOnce(ctx, url)
	})
}

func (c *Client) getOnce(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, sifterrors.ReadError(fmt.Sprintf("bad url %s", url), err)
	}
	if c.authHeader != "" {
		req.Header.Set(c.authHeader, c.authValue)
	}
	slog.Debug("fetching url", slog.String("url", url))
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, sifterrors.NetworkError(fmt.Sprintf("requesting %s", url), err)
	}
	if resp.StatusCode >= 500 {
		_ = resp.Body.Close()
		return nil, sifterrors.New(sifterrors.ErrCodeNetworkUnavailable,
			fmt.Sprintf("%s: %s", url, resp.Status), nil)
	}
	if resp.StatusCode >= 400 {
		_ = resp.Body.Close()
		return nil, sifterrors.New(sifterrors.ErrCodeHTTPStatus,
			fmt.Sprintf("%s: %s", url, resp.Status), nil)
	}
	return resp.Body, nil
}
