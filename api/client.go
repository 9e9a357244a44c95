// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package api is the authenticated request gateway to the StudyBuddy
// backend, plus typed wrappers for every route the client consumes.
//
// Every request carries the client's cookie jar and, when a token is
// cached, an Authorization: Bearer header; the backend accepts either
// mechanism. Response bodies are decoded defensively: a body that is
// not JSON (an HTML page from a misconfigured redirect, for instance)
// is treated as an empty object rather than an error, unless the
// caller needs typed data from it.
//
// Failures are one of three types: [*NetworkError] (no response),
// [*HTTPError] (non-2xx), or [*ParseError] (2xx without the required
// JSON). A 401 on any call not marked SkipUnauthorizedHook is also
// reported to the handler installed with
// [Client.SetUnauthorizedHandler], which is where the session layer
// tears down credentials.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/studybuddy/lib/clock"
	"github.com/bureau-foundation/studybuddy/lib/netutil"
)

// ClientConfig holds the parameters for NewClient.
type ClientConfig struct {
	// BaseURL is the API root including its path prefix, e.g.
	// "http://127.0.0.1:5000/api". Route paths are appended to it.
	BaseURL string

	// HTTPClient is used for all requests. If its Jar is nil the
	// client installs its own. Nil creates a client with Timeout.
	HTTPClient *http.Client

	// Timeout bounds each request when HTTPClient is nil. Zero means
	// no client-side timeout.
	Timeout time.Duration

	// Tokens supplies the cached bearer token. Nil sends no token
	// unless a request context carries one from WithToken.
	Tokens TokenSource

	// Clock stamps the cache-busting query parameter. Defaults to
	// clock.Real().
	Clock clock.Clock

	// DisableCacheBust stops GET requests from carrying the _t query
	// parameter.
	DisableCacheBust bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client is a gateway to one backend. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	jar        *sessionJar
	tokens     TokenSource
	clock      clock.Clock
	cacheBust  bool
	logger     *slog.Logger

	hookMu         sync.RWMutex
	onUnauthorized func(*HTTPError)
}

// NewClient creates a Client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("api: BaseURL is required")
	}
	parsed, err := url.Parse(config.BaseURL)
	if err != nil || !parsed.IsAbs() {
		return nil, fmt.Errorf("api: BaseURL %q must be an absolute URL", config.BaseURL)
	}

	jar, err := newSessionJar()
	if err != nil {
		return nil, fmt.Errorf("api: creating cookie jar: %w", err)
	}

	var httpClient *http.Client
	if config.HTTPClient != nil {
		copied := *config.HTTPClient
		httpClient = &copied
	} else {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	if httpClient.Jar == nil {
		httpClient.Jar = jar
	} else {
		jar = nil
	}

	requestClock := config.Clock
	if requestClock == nil {
		requestClock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpClient,
		jar:        jar,
		tokens:     config.Tokens,
		clock:      requestClock,
		cacheBust:  !config.DisableCacheBust,
		logger:     logger,
	}, nil
}

// BaseURL returns the API root this client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// SetUnauthorizedHandler installs the function called for every 401
// response on a request not marked SkipUnauthorizedHook. The handler
// runs synchronously before the request returns its error. Nil removes
// the handler.
func (c *Client) SetUnauthorizedHandler(handler func(*HTTPError)) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.onUnauthorized = handler
}

// ResetCookies drops every cookie the client holds. Does nothing when
// the caller supplied its own jar.
func (c *Client) ResetCookies() {
	if c.jar != nil {
		c.jar.reset()
	}
}

// Request describes one backend call.
type Request struct {
	Method string

	// Path is appended to the base URL, e.g. "/auth/me".
	Path string

	Query url.Values

	// Body is JSON-encoded when non-nil. Ignored when Form is set.
	Body any

	// Form sends a multipart/form-data body instead of JSON.
	Form *Multipart

	// SkipUnauthorizedHook suppresses the unauthorized handler for
	// this request. Set by calls that interpret 401 themselves (login,
	// identity verification, logout).
	SkipUnauthorizedHook bool
}

// Multipart is a file-bearing request body.
type Multipart struct {
	Fields map[string]string
	Files  []FilePart
}

// FilePart is one file in a Multipart body.
type FilePart struct {
	Field    string
	Filename string
	Content  io.Reader
}

// Response is a successful (2xx) response.
type Response struct {
	StatusCode int
	Raw        []byte

	// JSON reports whether Raw parsed as JSON.
	JSON bool

	// Fields is the top-level JSON object. It is empty, never nil,
	// when the body was not a JSON object.
	Fields map[string]any

	method string
	path   string
}

// Decode unmarshals the body into target. Returns a *ParseError if the
// body is not JSON or does not match target.
func (r *Response) Decode(target any) error {
	if !r.JSON {
		return &ParseError{Method: r.method, Path: r.path, Err: errNotJSON}
	}
	if err := json.Unmarshal(r.Raw, target); err != nil {
		return &ParseError{Method: r.method, Path: r.path, Err: err}
	}
	return nil
}

// Do performs one request. It returns the parsed response for any 2xx
// status and an error otherwise.
func (c *Client) Do(ctx context.Context, request Request) (*Response, error) {
	method := request.Method
	if method == "" {
		method = http.MethodGet
	}
	requestID := uuid.NewString()

	httpRequest, err := c.newHTTPRequest(ctx, method, request)
	if err != nil {
		return nil, err
	}
	httpRequest.Header.Set("X-Request-ID", requestID)

	response, err := c.httpClient.Do(httpRequest)
	if err != nil {
		c.logger.Debug("request failed",
			"method", method, "path", request.Path, "request_id", requestID, "error", err)
		return nil, &NetworkError{Method: method, Path: request.Path, Err: err}
	}
	defer response.Body.Close()

	body, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, &NetworkError{Method: method, Path: request.Path, Err: err}
	}

	parsed := parseBody(body)
	parsed.StatusCode = response.StatusCode
	parsed.method = method
	parsed.path = request.Path

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return parsed, nil
	}

	httpErr := &HTTPError{
		StatusCode: response.StatusCode,
		Message:    errorMessage(parsed.Fields, response.StatusCode),
		Method:     method,
		Path:       request.Path,
		RequestID:  requestID,
	}
	c.logger.Debug("request rejected",
		"method", method, "path", request.Path, "status", response.StatusCode,
		"request_id", requestID, "message", httpErr.Message)

	if response.StatusCode == http.StatusUnauthorized && !request.SkipUnauthorizedHook {
		c.hookMu.RLock()
		handler := c.onUnauthorized
		c.hookMu.RUnlock()
		if handler != nil {
			handler(httpErr)
		}
	}
	return nil, httpErr
}

// DoJSON performs request and decodes the body into target. A nil
// target discards the body.
func (c *Client) DoJSON(ctx context.Context, request Request, target any) error {
	response, err := c.Do(ctx, request)
	if err != nil {
		return err
	}
	if target == nil {
		return nil
	}
	return response.Decode(target)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, target any) error {
	return c.DoJSON(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, target)
}

func (c *Client) send(ctx context.Context, method, path string, body, target any) error {
	return c.DoJSON(ctx, Request{Method: method, Path: path, Body: body}, target)
}

// mutate performs a call whose only useful output is the backend's
// message. The body is parsed defensively.
func (c *Client) mutate(ctx context.Context, method, path string, body any) (string, error) {
	response, err := c.Do(ctx, Request{Method: method, Path: path, Body: body})
	if err != nil {
		return "", err
	}
	message, _ := response.Fields["message"].(string)
	return message, nil
}

func (c *Client) newHTTPRequest(ctx context.Context, method string, request Request) (*http.Request, error) {
	query := url.Values{}
	for key, values := range request.Query {
		query[key] = append([]string(nil), values...)
	}
	if method == http.MethodGet && c.cacheBust {
		query.Set("_t", strconv.FormatInt(c.clock.Now().UnixMilli(), 10))
	}
	requestURL := c.baseURL + request.Path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	var contentType string
	switch {
	case request.Form != nil:
		encoded, formType, err := encodeMultipart(request.Form)
		if err != nil {
			return nil, fmt.Errorf("api: encoding form for %s: %w", request.Path, err)
		}
		bodyReader = bytes.NewReader(encoded)
		contentType = formType
	case request.Body != nil:
		encoded, err := json.Marshal(request.Body)
		if err != nil {
			return nil, fmt.Errorf("api: encoding body for %s: %w", request.Path, err)
		}
		bodyReader = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	httpRequest, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("api: creating request: %w", err)
	}
	httpRequest.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpRequest.Header.Set("Content-Type", contentType)
	}

	token, overridden := tokenOverride(ctx)
	if !overridden && c.tokens != nil {
		token = c.tokens.Token()
	}
	if token != "" {
		httpRequest.Header.Set("Authorization", "Bearer "+token)
	}
	return httpRequest, nil
}

func encodeMultipart(form *Multipart) ([]byte, string, error) {
	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)
	for name, value := range form.Fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", err
		}
	}
	for _, file := range form.Files {
		part, err := writer.CreateFormFile(file.Field, file.Filename)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, file.Content); err != nil {
			return nil, "", fmt.Errorf("reading %s: %w", file.Filename, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buffer.Bytes(), writer.FormDataContentType(), nil
}

func parseBody(body []byte) *Response {
	response := &Response{Raw: body, Fields: map[string]any{}}
	if len(bytes.TrimSpace(body)) == 0 {
		return response
	}
	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return response
	}
	response.JSON = true
	if fields, ok := value.(map[string]any); ok {
		response.Fields = fields
	}
	return response
}

func errorMessage(fields map[string]any, status int) string {
	for _, key := range []string{"error", "msg", "message"} {
		if message, ok := fields[key].(string); ok && strings.TrimSpace(message) != "" {
			return message
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d", status)
}

// sessionJar is a cookie jar that can be emptied on logout.
type sessionJar struct {
	mu  sync.Mutex
	jar *cookiejar.Jar
}

func newSessionJar() (*sessionJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &sessionJar{jar: jar}, nil
}

func (j *sessionJar) current() *cookiejar.Jar {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jar
}

func (j *sessionJar) SetCookies(target *url.URL, cookies []*http.Cookie) {
	j.current().SetCookies(target, cookies)
}

func (j *sessionJar) Cookies(target *url.URL) []*http.Cookie {
	return j.current().Cookies(target)
}

func (j *sessionJar) reset() {
	jar, _ := cookiejar.New(nil)
	j.mu.Lock()
	j.jar = jar
	j.mu.Unlock()
}
