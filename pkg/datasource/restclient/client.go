// Package restclient is the JSON over HTTP client shared by the remote data sources. It
// rate limits requests and retries server errors with exponential backoff.
package restclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
	"k8s.io/apimachinery/pkg/util/wait"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
)

const userAgent = "culprit"

// DefaultBackoff retries four times, from half a second up.
var DefaultBackoff = wait.Backoff{
	Duration: 500 * time.Millisecond,
	Factor:   2,
	Jitter:   0.1,
	Steps:    4,
}

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	Backoff    wait.Backoff
}

// Option is a functional option for configuring the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.HTTPClient = httpClient
	}
}

// WithRateLimit limits the client to rps requests per second. Zero disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.Limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.Limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithBackoff(b wait.Backoff) Option {
	return func(c *Client) {
		c.Backoff = b
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		Limiter: rate.NewLimiter(rate.Limit(5), 5),
		Backoff: DefaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.code, e.url)
}

func retriable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	// transport errors
	return true
}

// Get fetches path and parses the body as JSON. A 404 is reported as ErrPushNotFound.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (gjson.Result, error) {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body []byte
	var lastErr error
	err := wait.ExponentialBackoffWithContext(ctx, c.Backoff, func(ctx context.Context) (bool, error) {
		b, err := c.do(ctx, u)
		if err == nil {
			body = b
			return true, nil
		}
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return false, errors.Wrapf(v1.ErrPushNotFound, "%s", u)
		}
		if ctx.Err() != nil || !retriable(err) {
			return false, err
		}
		lastErr = err
		log.WithError(err).WithField("url", u).Debug("request failed, retrying")
		return false, nil
	})
	if err != nil {
		if wait.Interrupted(err) && lastErr != nil && ctx.Err() == nil {
			return gjson.Result{}, errors.WithMessagef(lastErr, "giving up after %d attempts", c.Backoff.Steps)
		}
		return gjson.Result{}, err
	}

	if !gjson.ValidBytes(body) {
		return gjson.Result{}, errors.Errorf("invalid JSON from %s", u)
	}
	return gjson.ParseBytes(body), nil
}

func (c *Client) do(ctx context.Context, u string) ([]byte, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &statusError{code: resp.StatusCode, url: u}
	}
	return io.ReadAll(resp.Body)
}
