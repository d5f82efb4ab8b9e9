package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/TheMichaelB/blockbox/internal/config"
	"github.com/TheMichaelB/blockbox/internal/events"
)

// DefaultRetryDelay is the first backoff wait between RPC attempts.
const DefaultRetryDelay = time.Second

// DefaultMaxResponseSize bounds how much of a response body is read.
const DefaultMaxResponseSize int64 = 1 << 30

// HTTPClient posts RPCs to a content node. Every call is a POST, as the
// node RPC API requires, and transient failures are retried with backoff.
type HTTPClient struct {
	client    *http.Client
	baseURL   string
	userAgent string
	token     string
	backoff   Backoff
	maxBody   int64
	logger    *events.Logger
}

// NewHTTPClient creates a client for cfg.APIURL.
func NewHTTPClient(cfg *config.ContentConfig, logger *events.Logger) *HTTPClient {
	rt := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
	}
	if err := http2.ConfigureTransport(rt); err != nil {
		logger.WithError(err).Warn("HTTP/2 unavailable, using HTTP/1.1")
	}

	c := &HTTPClient{
		client:    &http.Client{Timeout: cfg.Timeout, Transport: rt},
		baseURL:   strings.TrimRight(cfg.APIURL, "/"),
		userAgent: cfg.UserAgent,
		maxBody:   DefaultMaxResponseSize,
		logger:    logger.WithField("component", "rpc_client"),
	}
	c.backoff = Backoff{
		Retries:   cfg.MaxRetries,
		Delay:     DefaultRetryDelay,
		Max:       30 * time.Second,
		Retryable: retryable,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			c.logger.WithError(err).WithFields(map[string]interface{}{
				"attempt": attempt,
				"delay":   delay.String(),
			}).Debug("Retrying request")
		},
	}
	return c
}

// SetToken sets the bearer token sent with every request.
func (c *HTTPClient) SetToken(token string) {
	c.token = token
}

// GetToken returns the bearer token.
func (c *HTTPClient) GetToken() string {
	return c.token
}

// SetRetryDelay overrides the first backoff wait.
func (c *HTTPClient) SetRetryDelay(d time.Duration) {
	c.backoff.Delay = d
}

// SetMaxResponseSize overrides the response body limit.
func (c *HTTPClient) SetMaxResponseSize(n int64) {
	c.maxBody = n
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// Call posts an RPC with query arguments and no body.
func (c *HTTPClient) Call(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return c.post(ctx, path, query, "", nil)
}

// Upload posts data as the single "file" part of a multipart form.
func (c *HTTPClient) Upload(ctx context.Context, path string, query url.Values, filename string, data []byte) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("multipart: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("multipart: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("multipart: %w", err)
	}

	return c.post(ctx, path, query, mw.FormDataContentType(), body.Bytes())
}

func (c *HTTPClient) post(ctx context.Context, path string, query url.Values, contentType string, body []byte) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	log := c.logger.WithContext(ctx).WithField("path", path)
	log.WithField("size", len(body)).Debug("Sending request")

	policy := c.backoff
	if IsSingleAttempt(ctx) {
		policy.Retries = 0
	}

	var resp []byte
	err := policy.Do(ctx, func() error {
		var err error
		resp, err = c.roundTrip(ctx, target, contentType, body)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.WithField("size", len(resp)).Debug("Received response")
	return resp, nil
}

func (c *HTTPClient) roundTrip(ctx context.Context, target, contentType string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", req.URL.Path, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(data)) > c.maxBody {
		return nil, fmt.Errorf("%s: %w: over %d bytes", req.URL.Path, ErrResponseTooLarge, c.maxBody)
	}
	if res.StatusCode/100 != 2 {
		return nil, parseAPIError(res.StatusCode, data)
	}
	return data, nil
}

// retryable treats transport failures and temporary statuses as worth
// another attempt. Definite answers and caller cancellation are final.
func retryable(err error) bool {
	if !notContextError(err) || errors.Is(err, ErrResponseTooLarge) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}
