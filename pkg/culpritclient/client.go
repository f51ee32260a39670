package culpritclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
	"github.com/openshift/culprit/pkg/regression"
)

const (
	DefaultServerURL = "http://localhost:8080"
)

// Client is a client for the culprit API, for tools that want reports from a shared
// server instead of querying the CI systems themselves.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      string
}

// Option is a functional option for configuring the client
type Option func(*Client)

// WithServerURL sets the server URL for the client
func WithServerURL(url string) Option {
	return func(c *Client) {
		c.BaseURL = strings.TrimSuffix(url, "/")
	}
}

// WithToken sets the authentication token for the client
func WithToken(token string) Option {
	return func(c *Client) {
		c.Token = token
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.HTTPClient = httpClient
	}
}

// New creates a new culprit API client
func New(opts ...Option) *Client {
	client := &Client{
		BaseURL: DefaultServerURL,
		HTTPClient: &http.Client{
			// classifying a cold push fetches a whole window
			Timeout: 5 * time.Minute,
		},
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// StatusError is returned for non 2xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d: %s", e.Code, e.Message)
}

// Unwrap maps the status back to the error the server classified.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusNotFound:
		return v1.ErrPushNotFound
	case http.StatusServiceUnavailable:
		return v1.ErrDataUnavailable
	}
	return nil
}

// Get performs a GET request to the specified path and decodes the JSON response
func (c *Client) Get(ctx context.Context, path string, result interface{}) error {
	url := c.BaseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		var failure struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &failure) != nil || failure.Message == "" {
			failure.Message = string(body)
		}
		return &StatusError{Code: resp.StatusCode, Message: failure.Message}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// Query selects the push and the classifier options of a request. Zero values use the
// server defaults.
type Query struct {
	Branch       string
	Rev          string
	Kind         v1.RunnableKind
	MaxDepth     int
	ForceRefresh bool
}

func (q Query) encode() string {
	v := url.Values{}
	v.Set("rev", q.Rev)
	if q.Branch != "" {
		v.Set("branch", q.Branch)
	}
	if q.Kind != "" {
		v.Set("kind", string(q.Kind))
	}
	if q.MaxDepth > 0 {
		v.Set("maxDepth", strconv.Itoa(q.MaxDepth))
	}
	if q.ForceRefresh {
		v.Set("forceRefresh", "true")
	}
	return v.Encode()
}

// Regressions returns the classification report of a push.
func (c *Client) Regressions(ctx context.Context, q Query) (*regression.Report, error) {
	var report regression.Report
	if err := c.Get(ctx, "/api/regressions?"+q.encode(), &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Candidates returns the candidate regressions of a push, ordered by name.
func (c *Client) Candidates(ctx context.Context, q Query) ([]v1.Runnable, error) {
	var resp struct {
		Candidates []v1.Runnable `json:"candidates"`
	}
	if err := c.Get(ctx, "/api/candidates?"+q.encode(), &resp); err != nil {
		return nil, err
	}
	return resp.Candidates, nil
}

// Health returns the data sources of the server, in priority order.
func (c *Client) Health(ctx context.Context) ([]string, error) {
	var resp struct {
		Status  string   `json:"status"`
		Sources []string `json:"sources"`
	}
	if err := c.Get(ctx, "/api/health", &resp); err != nil {
		return nil, err
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("server reported status %q", resp.Status)
	}
	return resp.Sources, nil
}
