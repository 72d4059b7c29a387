// Package api is the HTTP client for the contract analysis backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yildizm/contractis/internal/logger"
	"github.com/yildizm/contractis/internal/settings"
)

// Options configures a Client
type Options struct {
	BaseURL string

	// RequestTimeout optionally bounds history, stats and health calls.
	// Estimate and Analyze never get one from the client; the caller decides
	// through its context.
	RequestTimeout time.Duration

	UserAgent  string
	HTTPClient *http.Client
	Logger     *logger.Logger
}

// Client talks to the backend. It never retries.
type Client struct {
	baseURL        *url.URL
	client         *http.Client
	requestTimeout time.Duration
	userAgent      string
	logger         *logger.Logger
}

// New creates a client for the backend at opts.BaseURL
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, NewError(ErrTypeValidation, "base URL is required", "")
	}
	baseURL, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, NewErrorWithCause(ErrTypeValidation, fmt.Sprintf("invalid base URL: %q", opts.BaseURL), "", err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		// No client-wide Timeout: local analysis may run for a long time
		httpClient = &http.Client{}
	}

	log := opts.Logger
	if log == nil {
		log = logger.Nop("api")
	}

	return &Client{
		baseURL:        baseURL,
		client:         httpClient,
		requestTimeout: opts.RequestTimeout,
		userAgent:      opts.UserAgent,
		logger:         log,
	}, nil
}

// BaseURL returns the backend root
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Estimate posts the file and the configured token budget to /estimate
func (c *Client) Estimate(ctx context.Context, file FileSource, maxTokens int) (*Estimation, error) {
	const endpoint = "/estimate"

	body, contentType, err := multipartBody(file, map[string]string{
		"maxTokens": strconv.Itoa(maxTokens),
	})
	if err != nil {
		return nil, NewErrorWithCause(ErrTypeValidation, "failed to read the selected file", endpoint, err)
	}

	data, err := c.do(ctx, http.MethodPost, endpoint, nil, body, contentType)
	if err != nil {
		return nil, err
	}

	var resp estimateResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, NewErrorWithCause(ErrTypeDecode, "failed to decode estimate response", endpoint, err)
	}
	if !resp.Success {
		return nil, NewError(ErrTypeServer, serverMessage(resp.Error), endpoint)
	}

	estimation := resp.Estimation
	return &estimation, nil
}

// Analyze posts the file and the full serialized LLM configuration to
// /upload and returns the analysis text.
func (c *Client) Analyze(ctx context.Context, file FileSource, cfg settings.LLMConfig) (string, error) {
	const endpoint = "/upload"

	llmConfig, err := json.Marshal(cfg)
	if err != nil {
		return "", NewErrorWithCause(ErrTypeValidation, "failed to encode LLM configuration", endpoint, err)
	}

	body, contentType, err := multipartBody(file, map[string]string{
		"llmConfig": string(llmConfig),
	})
	if err != nil {
		return "", NewErrorWithCause(ErrTypeValidation, "failed to read the selected file", endpoint, err)
	}

	data, err := c.do(ctx, http.MethodPost, endpoint, nil, body, contentType)
	if err != nil {
		return "", err
	}

	var analysis string
	if err := decodeEnvelope(data, endpoint, &analysis); err != nil {
		return "", err
	}
	return analysis, nil
}

// Health calls /health
func (c *Client) Health(ctx context.Context) (*Health, error) {
	const endpoint = "/health"

	ctx, cancel := c.withRequestTimeout(ctx)
	defer cancel()

	data, err := c.do(ctx, http.MethodGet, endpoint, nil, nil, "")
	if err != nil {
		return nil, err
	}

	var health Health
	if err := json.Unmarshal(data, &health); err != nil {
		return nil, NewErrorWithCause(ErrTypeDecode, "failed to decode health response", endpoint, err)
	}
	return &health, nil
}

func (c *Client) withRequestTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}

// do sends one request and returns the body of a 2xx response
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body io.Reader, contentType string) ([]byte, error) {
	target := c.baseURL.JoinPath(endpoint)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, NewErrorWithCause(ErrTypeValidation, "failed to create request", endpoint, err)
	}

	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		apiErr := transportError(ctx, endpoint, err)
		c.logger.DebugWithFields("request failed", []logger.Field{
			logger.F("endpoint", endpoint),
			logger.F("request_id", requestID),
			logger.F("type", apiErr.Type),
			logger.Duration(time.Since(start)),
			logger.Error(err),
		})
		return nil, apiErr
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ctx, endpoint, err)
	}

	c.logger.DebugWithFields("request finished", []logger.Field{
		logger.F("endpoint", endpoint),
		logger.F("request_id", requestID),
		logger.F("status", resp.StatusCode),
		logger.Duration(time.Since(start)),
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, endpoint, data)
	}
	return data, nil
}

// statusError prefers the envelope's message and falls back to "HTTP <code>: <text>"
func statusError(code int, endpoint string, body []byte) *Error {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != "" {
		apiErr := NewError(ErrTypeServer, env.Error, endpoint)
		apiErr.StatusCode = code
		return apiErr
	}

	apiErr := NewError(ErrTypeHTTPStatus, fmt.Sprintf("HTTP %d: %s", code, http.StatusText(code)), endpoint)
	apiErr.StatusCode = code
	return apiErr
}

func decodeEnvelope(body []byte, endpoint string, out any) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return NewErrorWithCause(ErrTypeDecode, "failed to decode response", endpoint, err)
	}
	if !env.Success {
		return NewError(ErrTypeServer, serverMessage(env.Error), endpoint)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return NewErrorWithCause(ErrTypeDecode, "failed to decode response data", endpoint, err)
	}
	return nil
}

func serverMessage(msg string) string {
	if msg == "" {
		return "Unknown error"
	}
	return msg
}

func multipartBody(file FileSource, fields map[string]string) (io.Reader, string, error) {
	if file == nil {
		return nil, "", fmt.Errorf("no file selected")
	}

	rc, err := file.Open()
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = rc.Close() }()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", file.FileName())
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, rc); err != nil {
		return nil, "", err
	}
	for key, value := range fields {
		if err := w.WriteField(key, value); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
