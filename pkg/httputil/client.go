package httputil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader carries the id correlating a client request with server logs.
const RequestIDHeader = "X-Request-Id"

// RequestConfig holds configuration for HTTP requests
type RequestConfig struct {
	Client         *http.Client
	Logger         *zap.Logger
	Headers        http.Header
	Method         string
	URL            string
	Timeout        time.Duration
	RetryEnabled   bool
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// RetryStatus lists status codes that are retried in addition to
	// connection errors, e.g. 502, 503 and 504.
	RetryStatus []int
}

// DefaultRequestConfig returns a RequestConfig with sensible defaults. Retry is
// off: PostgREST mutations are not idempotent.
func DefaultRequestConfig(method, url string) RequestConfig {
	return RequestConfig{
		Method:         method,
		URL:            url,
		Timeout:        10 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		RetryStatus:    []int{http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout},
		Logger:         zap.NewNop(),
	}
}

// Response represents an HTTP response with its body read
type Response struct {
	Headers    http.Header
	Body       []byte
	StatusCode int
	Status     string
	Attempts   int
}

type retryableStatus struct {
	code int
}

func (e *retryableStatus) Error() string {
	return fmt.Sprintf("retryable status code %d", e.code)
}

// Request performs an HTTP request. Any status is returned as a Response;
// only transport failures (and exhausted retries on RetryStatus) are errors.
// A fresh *http.Request is built per attempt so the body can be resent.
func Request(ctx context.Context, config RequestConfig, body []byte) (*Response, error) {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	requestID := config.Headers.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.New().String()
	}

	var response *Response
	attempts := 0
	operation := func() error {
		attempts++
		if attempts > 1 {
			logger.Debug("retrying request",
				zap.String("url", config.URL),
				zap.Int("attempt", attempts),
				zap.String("request_id", requestID),
			)
		}

		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, config.Method, config.URL, reqBody)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		for key, values := range config.Headers {
			for _, value := range values {
				req.Header.Add(key, value)
			}
		}
		req.Header.Set(RequestIDHeader, requestID)
		if body != nil && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response body: %w", err)
		}
		response = &Response{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       data,
			Headers:    resp.Header,
		}
		if config.RetryEnabled && slices.Contains(config.RetryStatus, resp.StatusCode) {
			return &retryableStatus{code: resp.StatusCode}
		}
		return nil
	}

	var err error
	if config.RetryEnabled {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = config.InitialBackoff
		b.MaxInterval = config.MaxBackoff
		var policy backoff.BackOff = b
		if config.MaxRetries > 0 {
			policy = backoff.WithMaxRetries(b, uint64(config.MaxRetries))
		}
		err = backoff.Retry(operation, backoff.WithContext(policy, ctx))
	} else {
		err = operation()
	}

	if response != nil {
		response.Attempts = attempts
	}
	if _, ok := err.(*retryableStatus); ok && response != nil {
		// retries exhausted, hand back the last response as is
		return response, nil
	}
	if err != nil {
		logger.Debug("request failed",
			zap.String("url", config.URL),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return nil, err
	}
	return response, nil
}
