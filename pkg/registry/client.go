package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackpm/pkg/buildinfo"
	"github.com/matzehuels/stackpm/pkg/cache"
	pkgerr "github.com/matzehuels/stackpm/pkg/errors"
	"github.com/matzehuels/stackpm/pkg/observability"
)

// DefaultURL is the public npm registry.
const DefaultURL = "https://registry.npmjs.org"

// DefaultCacheTTL is how long metadata stays cached unless overridden.
const DefaultCacheTTL = 24 * time.Hour

const httpTimeout = 30 * time.Second

// Client talks to one registry. It is safe for sequential use; the
// resolver and installer never call it concurrently. Archive locations
// learned from VersionMetadata are remembered for FetchAndExtract.
type Client struct {
	baseURL string
	http    *http.Client
	cache   cache.Cache
	ttl     time.Duration
	refresh bool
	headers map[string]string
	backoff cache.Backoff
	logger  *log.Logger

	mu       sync.Mutex
	tarballs map[string]string // name@version -> dist.tarball
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client (30s timeout).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithCache caches metadata in backend for ttl. The backend is scoped by
// registry URL.
func WithCache(backend cache.Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = backend
		c.ttl = ttl
	}
}

// WithRefresh bypasses cached metadata; fresh responses are still stored.
func WithRefresh(refresh bool) Option {
	return func(c *Client) { c.refresh = refresh }
}

// WithHeaders adds headers to every request.
func WithHeaders(h map[string]string) Option {
	return func(c *Client) {
		for k, v := range h {
			c.headers[k] = v
		}
	}
}

// WithBackoff overrides the retry policy.
func WithBackoff(b cache.Backoff) Option {
	return func(c *Client) { c.backoff = b }
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a Client for the registry at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if err := pkgerr.ValidateURL(baseURL); err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: httpTimeout},
		cache:    cache.NewNullCache(),
		ttl:      DefaultCacheTTL,
		headers:  map[string]string{"Accept": "application/json", "User-Agent": buildinfo.UserAgent()},
		backoff:  cache.DefaultBackoff,
		logger:   log.New(io.Discard),
		tarballs: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cache = cache.NewScoped(c.cache, baseURL+":")
	return c, nil
}

// BaseURL returns the registry URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// cached loads key into v from the cache or runs fetch (with retries) and
// stores the populated v. Cache failures never fail the call.
func (c *Client) cached(ctx context.Context, keyType, key string, v any, fetch func() error) error {
	if !c.refresh {
		data, ok, err := c.cache.Get(ctx, key)
		if err == nil && ok && json.Unmarshal(data, v) == nil {
			observability.Cache().OnCacheHit(ctx, keyType)
			c.logger.Debug("cache hit", "key", key)
			return nil
		}
		observability.Cache().OnCacheMiss(ctx, keyType)
	}

	if err := c.backoff.Retry(ctx, fetch); err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Debug("cache write failed", "key", key, "err", err)
		return nil
	}
	observability.Cache().OnCacheSet(ctx, keyType, len(data))
	return nil
}

// getJSON performs a GET and decodes the body into v. Undecodable bodies
// are MALFORMED_RESPONSE.
func (c *Client) getJSON(ctx context.Context, rawURL string, v any) error {
	body, err := c.get(ctx, rawURL)
	if err != nil {
		return err
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return pkgerr.Wrap(pkgerr.ErrCodeMalformedResponse, err, "decode %s", rawURL)
	}
	return nil
}

// get performs a GET with the client's headers. Transport failures and
// 5xx statuses are wrapped as retryable NETWORK_ERRORs.
func (c *Client) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.ErrCodeInvalidInput, err, "build request")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	host, path := req.URL.Host, req.URL.Path
	hooks := observability.HTTP()
	hooks.OnRequest(ctx, http.MethodGet, host, path)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, http.MethodGet, host, path, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, cache.Retryable(pkgerr.Wrap(pkgerr.ErrCodeNetwork, err, "GET %s", rawURL))
	}
	hooks.OnResponse(ctx, http.MethodGet, host, path, resp.StatusCode, time.Since(start))
	c.logger.Debug("GET", "url", rawURL, "status", resp.StatusCode)

	if err := checkStatus(rawURL, resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func checkStatus(rawURL string, code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return pkgerr.New(pkgerr.ErrCodeNotFound, "%s", rawURL)
	case code >= 500:
		return cache.Retryable(pkgerr.New(pkgerr.ErrCodeNetwork, "GET %s: status %d", rawURL, code))
	default:
		return pkgerr.New(pkgerr.ErrCodeNetwork, "GET %s: status %d", rawURL, code)
	}
}

// escapeName encodes a package name as a single path segment. Scoped names
// keep their "@" and have the slash escaped, as npm registries expect.
func escapeName(name string) string {
	return strings.ReplaceAll(url.PathEscape(name), "%40", "@")
}

func (c *Client) packumentURL(name string) string {
	return c.baseURL + "/" + escapeName(name)
}

func (c *Client) versionURL(name, version string) string {
	return c.packumentURL(name) + "/" + url.PathEscape(version)
}

// rememberTarball records the dist.tarball advertised for name@version.
// Non-http(s) locations are ignored.
func (c *Client) rememberTarball(name, version, tarball string) {
	if tarball == "" || pkgerr.ValidateURL(tarball) != nil {
		return
	}
	c.mu.Lock()
	c.tarballs[name+"@"+version] = tarball
	c.mu.Unlock()
}

// ArchiveURL returns where name@version is downloaded from: the
// dist.tarball seen in its metadata, otherwise [Client.TarballURL].
func (c *Client) ArchiveURL(name, version string) string {
	c.mu.Lock()
	u, ok := c.tarballs[name+"@"+version]
	c.mu.Unlock()
	if ok {
		return u
	}
	return c.TarballURL(name, version)
}

// TarballURL returns the deterministic archive URL for name@version:
// {base}/{name}/-/{basename}-{version}.tgz. Scoped names keep their
// scope in the path but not in the file name.
func (c *Client) TarballURL(name, version string) string {
	base := name
	if i := strings.LastIndex(name, "/"); i >= 0 {
		base = name[i+1:]
	}
	return fmt.Sprintf("%s/%s/-/%s-%s.tgz", c.baseURL, name, base, version)
}
