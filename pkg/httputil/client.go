package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const HeaderRequestID = "X-Request-Id"

// Request is a fully resolved outgoing HTTP request. Body is JSON-encoded unless it is
// already []byte, string or nil.
type Request struct {
	Header http.Header
	Body   any
	Method string
	URL    string
}

// Response is a buffered HTTP response.
type Response struct {
	Headers    http.Header
	Body       []byte
	StatusCode int
}

// JSON decodes the body into a generic value with json.Number for numbers.
// An empty body decodes to nil.
func (r *Response) JSON() (any, error) {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return v, nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Body       []byte
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.StatusCode, e.Body)
}

// ClientConfig holds configuration for the HTTP client
type ClientConfig struct {
	Logger         *zap.Logger
	HTTPClient     *http.Client
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	RetryEnabled   bool
	// RateLimit caps outgoing requests per second; zero disables limiting.
	RateLimit float64
}

// DefaultClientConfig returns a ClientConfig with sensible defaults
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:        5 * time.Second,
		RetryEnabled:   false,
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Logger:         zap.NewNop(),
	}
}

// Client sends Requests over net/http.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	config  ClientConfig
}

// NewClient returns a Client for config.
func NewClient(config ClientConfig) *Client {
	c := &Client{config: config, logger: config.Logger, http: config.HTTPClient}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: config.Timeout}
	}
	if config.RateLimit > 0 {
		burst := max(int(config.RateLimit), 1)
		c.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}
	return c
}

// Send performs req. Non-2xx responses yield a *StatusError together with the response.
// When retry is enabled, network errors and 5xx responses are retried with exponential backoff.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	payload, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}
	requestID := req.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.New().String()
	}

	var response *Response
	attempt := 0

	operation := func() error {
		if attempt > 0 {
			c.logger.Debug("retrying request", zap.String("url", req.URL), zap.Int("attempt", attempt))
		}
		attempt++

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		// the body reader is consumed per attempt
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		for key, values := range req.Header {
			for _, value := range values {
				httpReq.Header.Add(key, value)
			}
		}
		httpReq.Header.Set(HeaderRequestID, requestID)
		if payload != nil && httpReq.Header.Get("Content-Type") == "" {
			httpReq.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(httpReq)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		response = &Response{StatusCode: resp.StatusCode, Body: data, Headers: resp.Header}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			statusErr := &StatusError{StatusCode: resp.StatusCode, Body: data}
			if resp.StatusCode < 500 {
				return backoff.Permanent(statusErr)
			}
			return statusErr
		}
		return nil
	}

	if c.config.RetryEnabled {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = c.config.InitialBackoff
		b.MaxInterval = c.config.MaxBackoff
		err = backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(c.config.MaxRetries, 0))), ctx))
	} else {
		err = operation()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
	}

	if err != nil {
		c.logger.Debug("request failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL),
			zap.String("request_id", requestID),
			zap.Error(err))
		return response, err
	}
	return response, nil
}

func encodeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	case json.RawMessage:
		return v, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		return data, nil
	}
}
