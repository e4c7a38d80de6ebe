package poller

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

const maxResponseBodySize = 1 << 20 // 1MB

// connection pooling limits; a session talks to one or two hosts
const (
	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 4
	defaultMaxConnsPerHost     = 4
	defaultIdleConnTimeout     = 60 * time.Second
)

// DefaultTimeout is the per-request timeout used when a [Request] does not set one.
const DefaultTimeout = 30 * time.Second

// Request describes a single HTTP call made by [Client].
type Request struct {
	// Method is the HTTP method. Empty defaults to GET.
	Method string

	// URL is the request target.
	URL string

	// Headers are set on the request after ContentType.
	Headers map[string]string

	// Body is sent as the request body. May be nil.
	Body []byte

	// ContentType is the Content-Type header for Body.
	ContentType string

	// Timeout is the per-request timeout. Zero uses [DefaultTimeout].
	Timeout time.Duration
}

// Response holds the result of a successful (2xx) call made by [Client].
type Response struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// ContentType is the response Content-Type header.
	ContentType string

	// Body contains the response body, limited to 1MB.
	Body []byte

	// Payload is Body decoded according to ContentType.
	Payload Payload

	// Latency is the total time taken for the request.
	Latency time.Duration
}

// Client is an HTTP client wrapper for the analysis API.
//
// Client performs exactly one network call per [Client.Do]; retries belong
// to the [Poller]. Timeouts are applied per request through the context
// rather than globally on the underlying http.Client.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new [Client] with its own pooled transport.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			// no default timeout - we use per-request timeouts via context
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
	}
}

// NewClientWith wraps an existing http.Client. A nil hc uses [NewClient].
func NewClientWith(hc *http.Client) *Client {
	if hc == nil {
		return NewClient()
	}
	return &Client{httpClient: hc}
}

// Do performs req and returns the decoded [Response].
//
// Non-2xx responses are returned as [*HTTPError] carrying the status code
// and raw body text. Transport failures, including cancellation of ctx, are
// wrapped so errors.Is(err, context.Canceled) still holds.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to create request: %w", err)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return Response{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Response{}, &HTTPError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
			URL:        req.URL,
		}
	}

	contentType := resp.Header.Get("Content-Type")
	return Response{
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        data,
		Payload:     DecodeBody(contentType, data),
		Latency:     time.Since(start),
	}, nil
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times and on a nil receiver. After Close, the client
// remains usable but new connections will be established as needed.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	c.httpClient.CloseIdleConnections()
}

// File is an attachment sent with a multipart submission.
type File struct {
	FieldName string
	Name      string
	Content   io.Reader
}

// NewMultipart encodes fields and an optional file as multipart/form-data.
// Empty field values are omitted. It returns the body and its content type.
func NewMultipart(fields [][2]string, file *File) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write field %q: %w", f[0], err)
		}
	}

	if file != nil && file.Content != nil {
		fieldName := file.FieldName
		if fieldName == "" {
			fieldName = "file"
		}
		part, err := w.CreateFormFile(fieldName, file.Name)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create file part: %w", err)
		}
		if _, err := io.Copy(part, file.Content); err != nil {
			return nil, "", fmt.Errorf("failed to write file part: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
