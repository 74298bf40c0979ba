package fleet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the SyncSign cloud endpoint.
	DefaultBaseURL = "https://api.sync-sign.com"

	// DefaultTimeout bounds a single remote call.
	DefaultTimeout = 10 * time.Second

	maxResponseSize = 1 << 20
	defaultAgent    = "gray-logic-syncsign"
)

// API is the remote fleet contract. *Client implements it.
type API interface {
	AccountInfo(ctx context.Context) (*AccountRecord, error)
	ListHubs(ctx context.Context) ([]HubRecord, error)
	GetHub(ctx context.Context, id string) (*HubRecord, error)
	ListNodes(ctx context.Context) ([]NodeRecord, error)
	GetNode(ctx context.Context, id string) (*NodeRecord, error)
	RenderOnNode(ctx context.Context, nodeID, contents string) error
}

// Factory builds an API for a key. NewAPI is the production factory.
type Factory func(apiKey string) (API, error)

// Client is the HTTP implementation of API.
type Client struct {
	apiKey    string
	baseURL   string
	http      *http.Client
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another endpoint (tests, proxies).
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(base, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-call timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient creates a client for one account.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	c := &Client{
		apiKey:    apiKey,
		baseURL:   DefaultBaseURL,
		http:      &http.Client{Timeout: DefaultTimeout},
		userAgent: defaultAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewFactory returns a Factory that applies opts to every client it builds.
func NewFactory(opts ...Option) Factory {
	return func(apiKey string) (API, error) {
		return NewClient(apiKey, opts...)
	}
}

// AccountInfo fetches the account owning the key.
func (c *Client) AccountInfo(ctx context.Context) (*AccountRecord, error) {
	var rec AccountRecord
	if err := c.do(ctx, http.MethodGet, "GET /user", nil, &rec, "user"); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListHubs lists every hub of the account.
func (c *Client) ListHubs(ctx context.Context) ([]HubRecord, error) {
	var recs []HubRecord
	if err := c.do(ctx, http.MethodGet, "GET /devices", nil, &recs, "devices"); err != nil {
		return nil, err
	}
	return recs, nil
}

// GetHub fetches one hub by thing name.
func (c *Client) GetHub(ctx context.Context, id string) (*HubRecord, error) {
	var rec HubRecord
	op := "GET /devices/{id}"
	if err := c.do(ctx, http.MethodGet, op, nil, &rec, "devices", id); err != nil {
		return nil, err
	}
	if rec.Network.Connected == nil {
		return nil, &APIError{Kind: ErrMalformedResponse, Op: op, Message: "network.connected missing"}
	}
	return &rec, nil
}

// ListNodes lists every display node of the account.
func (c *Client) ListNodes(ctx context.Context) ([]NodeRecord, error) {
	var recs []NodeRecord
	if err := c.do(ctx, http.MethodGet, "GET /nodes", nil, &recs, "nodes"); err != nil {
		return nil, err
	}
	return recs, nil
}

// GetNode fetches one node by id.
func (c *Client) GetNode(ctx context.Context, id string) (*NodeRecord, error) {
	var rec NodeRecord
	op := "GET /nodes/{id}"
	if err := c.do(ctx, http.MethodGet, op, nil, &rec, "nodes", id); err != nil {
		return nil, err
	}
	if rec.Onlined == nil {
		return nil, &APIError{Kind: ErrMalformedResponse, Op: op, Message: "onlined missing"}
	}
	return &rec, nil
}

// RenderOnNode posts contents to a node as the request body, byte for byte.
func (c *Client) RenderOnNode(ctx context.Context, nodeID, contents string) error {
	return c.do(ctx, http.MethodPost, "POST /nodes/{id}/renders", []byte(contents), nil, "nodes", nodeID, "renders")
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) endpoint(parts ...string) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	b.WriteString("/v2/key/")
	b.WriteString(url.PathEscape(c.apiKey))
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}

// do performs one call. out nil means the data member is not required.
func (c *Client) do(ctx context.Context, method, op string, body []byte, out any, parts ...string) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(parts...), reader)
	if err != nil {
		return &APIError{Kind: ErrTransport, Op: op, Err: redact(err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Kind: ErrTransport, Op: op, Err: redact(err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &APIError{Kind: ErrTransport, Op: op, StatusCode: resp.StatusCode, Err: redact(err)}
	}

	if kind := statusKind(resp.StatusCode); kind != nil {
		apiErr := &APIError{Kind: kind, Op: op, StatusCode: resp.StatusCode}
		var env envelope
		if json.Unmarshal(raw, &env) == nil {
			apiErr.Code = env.Code
			apiErr.Message = env.Msg
		}
		return apiErr
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{Kind: ErrMalformedResponse, Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if env.Code != 0 {
		return &APIError{Kind: ErrUnauthorized, Op: op, StatusCode: resp.StatusCode, Code: env.Code, Message: env.Msg}
	}
	if out == nil {
		return nil
	}
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return &APIError{Kind: ErrMalformedResponse, Op: op, StatusCode: resp.StatusCode, Message: "data missing"}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &APIError{Kind: ErrMalformedResponse, Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

func statusKind(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return ErrNotFound
	case status >= 400 && status < 500:
		return ErrUnauthorized
	default:
		return ErrTransport
	}
}

// redact strips the request URL, which carries the API key, from err.
func redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", strings.ToLower(urlErr.Op), urlErr.Err)
	}
	return err
}
