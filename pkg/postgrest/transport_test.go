package postgrest

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/edgeflare/pgrest/pkg/httputil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTransport(t *testing.T) {
	type captured struct {
		r    *http.Request
		body []byte
	}
	reqs := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		reqs <- captured{r: r.Clone(context.Background()), body: body}
		w.Header().Set("Content-Range", "0-0/1")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[{"id":1}]`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPTransportConfig{})
	resp, err := tr.Do(context.Background(), &Request{
		Method: http.MethodPost,
		URL:    srv.URL + "/users?select=id",
		Header: http.Header{"Prefer": {"return=representation"}},
		Body:   []byte(`{"name":"a"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, "Created", resp.StatusText)
	assert.Equal(t, "0-0/1", resp.Header.Get("Content-Range"))
	assert.JSONEq(t, `[{"id":1}]`, string(resp.Body))

	c := <-reqs
	got, body := c.r, c.body
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/users", got.URL.Path)
	assert.Equal(t, "select=id", got.URL.RawQuery)
	assert.Equal(t, "return=representation", got.Header.Get("Prefer"))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.NotEmpty(t, got.Header.Get(httputil.RequestIDHeader))
	assert.JSONEq(t, `{"name":"a"}`, string(body))
}

func TestHTTPTransportRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	req := &Request{Method: http.MethodGet, URL: srv.URL + "/users"}

	noRetry := NewHTTPTransport(HTTPTransportConfig{})
	resp, err := noRetry.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)

	retry := NewHTTPTransport(HTTPTransportConfig{
		Retry:          true,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	})
	resp, err = retry.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPTransportConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tr := NewHTTPTransport(HTTPTransportConfig{Timeout: time.Second})
	_, err := tr.Do(context.Background(), &Request{Method: http.MethodGet, URL: url})
	assert.Error(t, err)
}

func TestNewHTTPTransportDefaults(t *testing.T) {
	tr := NewHTTPTransport(HTTPTransportConfig{})
	assert.Zero(t, tr.cfg.Timeout)
	assert.False(t, tr.cfg.Retry)
	assert.Equal(t, 3, tr.cfg.MaxRetries)
}

func TestHTTPTransportTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, WithTransport(NewHTTPTransport(HTTPTransportConfig{Timeout: 50 * time.Millisecond})))
	require.NoError(t, err)
	resp, err := client.From("users").Execute(context.Background())
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "FetchError: ")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	client, err = NewClient(srv.URL)
	require.NoError(t, err)
	resp, err = client.From("users").Execute(ctx)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "AbortError: ")
}

func TestStatusText(t *testing.T) {
	assert.Equal(t, "OK", statusText("200 OK", 200))
	assert.Equal(t, "Not Acceptable", statusText("406", 406))
}
