// Package twocaptcha implements the 2Captcha API for solving hCaptcha
// challenges encountered on enrichment pages.
package twocaptcha

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/paddock-labs/raceday-cli/internal/resilience"
)

const (
	defaultBaseURL      = "https://2captcha.com"
	defaultPollInterval = 5 * time.Second
	notReadyMarker      = "CAPCHA_NOT_READY"
)

// Client solves visual challenges and reports account balance.
// Solve is synchronous from the caller's point of view though it may block
// for tens of seconds while the provider works the challenge.
type Client interface {
	Solve(ctx context.Context, siteKey, pageURL string) (string, error)
	Balance(ctx context.Context) (float64, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithPollInterval overrides the result polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *httpClient) { c.pollInterval = d }
}

type httpClient struct {
	apiKey       string
	baseURL      string
	pollInterval time.Duration
	http         *http.Client
}

// NewClient creates a 2Captcha API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		pollInterval: defaultPollInterval,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// apiResponse is the JSON envelope shared by in.php and res.php.
type apiResponse struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

// Solve submits an hCaptcha task and polls until a token is returned, the
// provider reports an error, or ctx is done. Provider error codes are
// surfaced verbatim and never retried here; retry policy belongs to the
// caller.
func (c *httpClient) Solve(ctx context.Context, siteKey, pageURL string) (string, error) {
	taskID, err := c.submit(ctx, siteKey, pageURL)
	if err != nil {
		return "", err
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", eris.Wrap(ctx.Err(), "twocaptcha: solve canceled")
		case <-ticker.C:
		}

		token, ready, err := c.poll(ctx, taskID)
		if err != nil {
			return "", err
		}
		if ready {
			return token, nil
		}
	}
}

// Balance returns the remaining provider balance in USD. Advisory only.
func (c *httpClient) Balance(ctx context.Context) (float64, error) {
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("action", "getbalance")
	params.Set("json", "1")

	resp, err := c.get(ctx, "/res.php", params)
	if err != nil {
		return 0, err
	}
	if resp.Status != 1 {
		return 0, &resilience.ProviderError{Code: resp.Request}
	}

	amount, err := strconv.ParseFloat(resp.Request, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "twocaptcha: parse balance %q", resp.Request)
	}
	return amount, nil
}

func (c *httpClient) submit(ctx context.Context, siteKey, pageURL string) (string, error) {
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("method", "hcaptcha")
	params.Set("sitekey", siteKey)
	params.Set("pageurl", pageURL)
	params.Set("json", "1")

	resp, err := c.get(ctx, "/in.php", params)
	if err != nil {
		return "", err
	}
	if resp.Status != 1 {
		return "", &resilience.ProviderError{Code: resp.Request}
	}
	return resp.Request, nil
}

func (c *httpClient) poll(ctx context.Context, taskID string) (token string, ready bool, err error) {
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("action", "get")
	params.Set("id", taskID)
	params.Set("json", "1")

	resp, err := c.get(ctx, "/res.php", params)
	if err != nil {
		return "", false, err
	}
	if resp.Status == 1 {
		return resp.Request, true, nil
	}
	if resp.Request == notReadyMarker {
		return "", false, nil
	}
	return "", false, &resilience.ProviderError{Code: resp.Request}
}

func (c *httpClient) get(ctx context.Context, path string, params url.Values) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "twocaptcha: create request")
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "twocaptcha: send request")
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "twocaptcha: read response")
	}

	if httpResp.StatusCode != http.StatusOK {
		if resilience.IsTransientHTTPStatus(httpResp.StatusCode) {
			return nil, resilience.NewTransientError(
				eris.Errorf("twocaptcha: status %d", httpResp.StatusCode), httpResp.StatusCode)
		}
		return nil, eris.Errorf("twocaptcha: unexpected status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(body)))
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "twocaptcha: unmarshal response")
	}
	return &resp, nil
}
