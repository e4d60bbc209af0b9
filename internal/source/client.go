// Package source fetches and parses racing data pages: the static entry
// card, individual horse profiles, and the per-race enrichment picks.
package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/paddock-labs/raceday-cli/internal/config"
	"github.com/paddock-labs/raceday-cli/internal/resilience"
	"github.com/paddock-labs/raceday-cli/pkg/twocaptcha"
)

const browserUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122 Safari/537.36"

// Client fetches pages from the racing data provider. One Client serves a
// whole session; its cookie jar accumulates the consent and WAF cookies the
// provider expects on subsequent requests.
type Client struct {
	http    *resty.Client
	base    *url.URL
	limiter *rate.Limiter
	gate    twocaptcha.Client
	snapDir string
	timeout time.Duration

	mu           sync.Mutex
	bootstrapped bool
}

// New builds a Client from configuration. The captcha gate may be nil, in
// which case challenge pages fail immediately instead of being solved.
func New(cfg config.SourceConfig, gate twocaptcha.Client) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, eris.Wrapf(err, "parse source base url %q", cfg.BaseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, eris.Wrap(err, "cookie jar")
	}

	timeout := time.Duration(cfg.PageTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 12 * time.Second
	}

	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 1.0
	}
	limiter := rate.NewLimiter(rate.Limit(rps), 2)

	httpClient := resty.New()
	httpClient.SetBaseURL(cfg.BaseURL)
	httpClient.SetCookieJar(jar)
	httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	httpClient.SetHeader("user-agent", browserUA)
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(base.Hostname()))
	httpClient.SetTimeout(timeout)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Wait(req.Context())
	})

	return &Client{
		http:    httpClient,
		base:    base,
		limiter: limiter,
		gate:    gate,
		snapDir: cfg.SnapshotDir,
		timeout: timeout,
	}, nil
}

// Bootstrap visits the provider homepage once, collecting session cookies
// and planting the consent cookie, so data pages render instead of the
// consent interstitial. Safe to call repeatedly.
func (c *Client) Bootstrap(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bootstrapped {
		return nil
	}

	resp, err := c.http.R().SetContext(ctx).Get("/")
	if err != nil {
		return eris.Wrap(err, "bootstrap homepage")
	}
	if resp.IsError() {
		return c.statusError(resp.StatusCode(), c.base.String())
	}

	c.http.GetClient().Jar.SetCookies(c.base, []*http.Cookie{{
		Name:  "OptanonAlertBoxClosed",
		Value: time.Now().UTC().Format(time.RFC3339),
		Path:  "/",
	}})
	c.bootstrapped = true
	zap.L().Debug("source bootstrap complete", zap.String("host", c.base.Hostname()))
	return nil
}

// fetch GETs a page and returns its body. Transport failures, timeouts and
// retryable status codes come back as TransientError; a 404 is a
// NotFoundError for the page itself.
func (c *Client) fetch(ctx context.Context, pageURL string) (string, error) {
	resp, err := c.http.R().SetContext(ctx).Get(pageURL)
	if err != nil {
		return "", &resilience.TransientError{Err: eris.Wrapf(err, "get %s", pageURL)}
	}
	if resp.StatusCode() == http.StatusNotFound {
		return "", &resilience.NotFoundError{Resource: pageURL}
	}
	if resp.IsError() {
		return "", c.statusError(resp.StatusCode(), pageURL)
	}
	return string(resp.Body()), nil
}

func (c *Client) statusError(code int, pageURL string) error {
	err := eris.Errorf("unexpected status %d fetching %s", code, pageURL)
	if resilience.IsTransientHTTPStatus(code) {
		return &resilience.TransientError{Err: err, StatusCode: code}
	}
	return err
}

// saveSnapshot writes the page body next to the logs so a parse failure can
// be diagnosed later. Returns the written path, or "" when snapshots are
// disabled or the write fails.
func (c *Client) saveSnapshot(name, body string) string {
	if c.snapDir == "" {
		return ""
	}
	if err := os.MkdirAll(c.snapDir, 0o755); err != nil {
		zap.L().Warn("snapshot dir", zap.Error(err))
		return ""
	}
	path := filepath.Join(c.snapDir, fmt.Sprintf("%s_%d.html", name, time.Now().UnixMilli()))
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		zap.L().Warn("snapshot write", zap.String("path", path), zap.Error(err))
		return ""
	}
	return path
}

// absoluteURL resolves a scraped href against the provider host.
func (c *Client) absoluteURL(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return c.base.ResolveReference(ref).String()
}
