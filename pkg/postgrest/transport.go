package postgrest

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/edgeflare/pgrest/pkg/httputil"
	"go.uber.org/zap"
)

// Request is a fully assembled PostgREST request.
type Request struct {
	Method string
	URL    string // absolute, with the encoded query string
	Path   string
	Params Params
	Header http.Header
	Body   []byte // json, nil without body
}

// RawResponse is what a Transport hands back: status, headers and the
// unparsed body.
type RawResponse struct {
	Status     int
	StatusText string
	Header     http.Header
	Body       []byte
}

// Transport sends a Request. An error means no HTTP response was received;
// any status code, including 4xx and 5xx, is a RawResponse.
type Transport interface {
	Do(ctx context.Context, req *Request) (*RawResponse, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *Request) (*RawResponse, error)

func (f TransportFunc) Do(ctx context.Context, req *Request) (*RawResponse, error) {
	return f(ctx, req)
}

// HTTPTransportConfig configures HTTPTransport.
type HTTPTransportConfig struct {
	Client *http.Client
	Logger *zap.Logger
	// Timeout bounds each attempt. Zero means no timeout: the request lives
	// as long as the caller's context.
	Timeout time.Duration
	// Retry resends requests that failed to connect or hit a gateway error.
	// Leave it off for non idempotent mutations.
	Retry          bool
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// HTTPTransport sends requests with net/http, with optional exponential
// backoff retry.
type HTTPTransport struct {
	cfg HTTPTransportConfig
}

// NewHTTPTransport returns an HTTPTransport. Zero retry fields take the
// defaults of httputil.DefaultRequestConfig; a zero Timeout stays zero.
func NewHTTPTransport(cfg HTTPTransportConfig) *HTTPTransport {
	def := httputil.DefaultRequestConfig("", "")
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &HTTPTransport{cfg: cfg}
}

func (t *HTTPTransport) Do(ctx context.Context, req *Request) (*RawResponse, error) {
	rc := httputil.DefaultRequestConfig(req.Method, req.URL)
	rc.Client = t.cfg.Client
	rc.Logger = t.cfg.Logger
	rc.Headers = req.Header
	rc.Timeout = t.cfg.Timeout
	rc.RetryEnabled = t.cfg.Retry
	rc.MaxRetries = t.cfg.MaxRetries
	rc.InitialBackoff = t.cfg.InitialBackoff
	rc.MaxBackoff = t.cfg.MaxBackoff

	resp, err := httputil.Request(ctx, rc, req.Body)
	if err != nil {
		return nil, err
	}
	return &RawResponse{
		Status:     resp.StatusCode,
		StatusText: statusText(resp.Status, resp.StatusCode),
		Header:     resp.Headers,
		Body:       resp.Body,
	}, nil
}

// statusText strips the code from an http.Response.Status like "200 OK".
func statusText(status string, code int) string {
	if _, text, ok := strings.Cut(status, " "); ok {
		return text
	}
	return http.StatusText(code)
}
