package postgrest

import (
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// Client builds queries against one PostgREST endpoint. A Client is
// read-only after construction and safe for concurrent use.
type Client struct {
	baseURL   *url.URL
	headers   http.Header
	schema    string
	transport Transport
	logger    *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHeader sets a header sent with every request, e.g. an API key.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Set(key, value)
	}
}

// WithHeaders sets several default headers.
func WithHeaders(h map[string]string) Option {
	return func(c *Client) {
		for k, v := range h {
			c.headers.Set(k, v)
		}
	}
}

// WithSchema selects a non default schema via Accept-Profile / Content-Profile.
func WithSchema(schema string) Option {
	return func(c *Client) {
		c.schema = schema
	}
}

// WithTransport replaces the HTTP transport.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient returns a client for the PostgREST server at rawURL, e.g.
// http://localhost:3000.
func NewClient(rawURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q: scheme and host required", rawURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawQuery = ""

	c := &Client{
		baseURL: u,
		headers: make(http.Header),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		c.transport = NewHTTPTransport(HTTPTransportConfig{Logger: c.logger})
	}
	return c, nil
}

// Schema returns a copy of the client targeting schema.
func (c *Client) Schema(schema string) *Client {
	cp := *c
	cp.headers = c.headers.Clone()
	cp.schema = schema
	return &cp
}

// From starts a query on a table or view.
func (c *Client) From(relation string) Query {
	return Query{
		client: c,
		method: http.MethodGet,
		path:   "/" + relation,
		schema: c.schema,
		header: c.headers.Clone(),
	}
}

// RPCOptions configures RPC.
type RPCOptions struct {
	Head  bool  // HEAD request, only the count is returned
	Get   bool  // GET request with arguments in the query string (read-only functions)
	Count Count // count algorithm
}

// RPC calls a database function. Arguments are sent as a json body, or as
// query parameters with Get or Head. The returned query can be filtered,
// ordered and selected like a table when the function returns a set.
func (c *Client) RPC(fn string, args map[string]any, opts ...RPCOptions) Query {
	var o RPCOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	q := Query{
		client: c,
		method: http.MethodPost,
		path:   "/rpc/" + fn,
		schema: c.schema,
		header: c.headers.Clone(),
	}
	if o.Head || o.Get {
		q.method = http.MethodGet
		if o.Head {
			q.method = http.MethodHead
		}
		for _, k := range slices.Sorted(maps.Keys(args)) {
			q.state.Extra = append(q.state.Extra, Param{Key: k, Value: formatValue(args[k])})
		}
	} else {
		q.body = args
		q.hasBody = true
	}
	if o.Count != "" {
		q.prefer = append(q.prefer, "count="+string(o.Count))
	}
	return q
}
