// Package api is the HTTP layer shared by every resource client: request
// execution, the uniform error shape, and list envelope normalization.
package api

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

	"github.com/google/uuid"

	"github.com/code-and-cash/cashctl/internal/log"
)

// DefaultTimeout bounds a request when Options.Timeout is zero.
const DefaultTimeout = 15 * time.Second

// TokenSource supplies the bearer token for each request. The session
// store satisfies it.
type TokenSource interface {
	Token() string
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *log.Logger
	UserAgent  string

	// OnAuthFailure is invoked once for every 401/403 response before the
	// error is returned to the caller.
	OnAuthFailure func(*Error)
}

// Client executes JSON requests against the backend.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	tokens        TokenSource
	timeout       time.Duration
	logger        *log.Logger
	userAgent     string
	onAuthFailure func(*Error)
}

// Request describes a single call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any // JSON-encoded unless it is a *Multipart
	Header http.Header
}

// NewClient creates a Client that reads its token from tokens.
func NewClient(tokens TokenSource, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "cashctl"
	}

	return &Client{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		httpClient:    httpClient,
		tokens:        tokens,
		timeout:       timeout,
		logger:        opts.Logger,
		userAgent:     userAgent,
		onAuthFailure: opts.OnAuthFailure,
	}
}

type authHookKey struct{}

// WithoutAuthHook returns a context whose requests report 401/403 to the
// caller only; OnAuthFailure is not run for them.
func WithoutAuthHook(ctx context.Context) context.Context {
	return context.WithValue(ctx, authHookKey{}, true)
}

func authHookSkipped(ctx context.Context) bool {
	skip, _ := ctx.Value(authHookKey{}).(bool)
	return skip
}

// Do executes req and decodes the JSON response into out. A nil out, an
// empty body or a 204 leaves out untouched.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	raw, err := c.Raw(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("api: decoding %s %s: %w", req.method(), req.Path, err)
	}
	return nil
}

// Raw executes req and returns the undecoded response body.
func (c *Client) Raw(ctx context.Context, req Request) (json.RawMessage, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	method := req.method()

	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return nil, fmt.Errorf("api: encoding %s %s: %w", method, req.Path, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, method, c.url(req.Path, req.Query), body)
	if err != nil {
		return nil, fmt.Errorf("api: building %s %s: %w", method, req.Path, err)
	}

	requestID := uuid.New().String()
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("X-Request-ID", requestID)
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		err = c.classify(ctx, reqCtx, method, req.Path, err)
		c.logFailure(requestID, method, req.Path, 0, err, start)
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		err = c.classify(ctx, reqCtx, method, req.Path, err)
		c.logFailure(requestID, method, req.Path, resp.StatusCode, err, start)
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := parseError(resp.StatusCode, data)
		apiErr.RequestID = requestID
		c.logFailure(requestID, method, req.Path, resp.StatusCode, apiErr, start)
		if apiErr.IsAuthFailure() && c.onAuthFailure != nil && !authHookSkipped(ctx) {
			c.onAuthFailure(apiErr)
		}
		return nil, apiErr
	}

	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return json.RawMessage(data), nil
}

// classify turns a transport error into ErrTimeout, ErrNetwork or the
// caller's own context error.
func (c *Client) classify(parent, reqCtx context.Context, method, path string, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, parent.Err())
	}
	if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s %s after %s", ErrTimeout, method, path, c.timeout)
	}
	return fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, path, err)
}

func (c *Client) url(path string, query url.Values) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) logFailure(requestID, method, path string, status int, err error, start time.Time) {
	if c.logger == nil {
		return
	}
	_ = c.logger.Append(log.LogEvent{
		Event:      log.EventRequestFailed,
		RequestID:  requestID,
		Method:     method,
		Path:       path,
		Status:     status,
		Kind:       Kind(err),
		Error:      err.Error(),
		DurationMs: time.Since(start).Milliseconds(),
	})
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "application/json", nil
	case *Multipart:
		return b.encode()
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

// parseError extracts a human-readable message from an error body,
// falling back to "HTTP <status>".
func parseError(status int, data []byte) *Error {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(data, &body); err != nil {
		return NewError(status, "", "")
	}

	message := stringField(body, "message")
	if message == "" {
		message = nestedMessage(body["error"])
	}
	if message == "" {
		message = firstErrorMessage(body["errors"])
	}

	return NewError(status, message, stringField(body, "code"))
}

func stringField(body map[string]json.RawMessage, key string) string {
	raw, ok := body[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// nestedMessage accepts either "error": "text" or "error": {"message": "text"}.
func nestedMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		return stringField(obj, "message")
	}
	return ""
}

func firstErrorMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil || len(list) == 0 {
		return ""
	}
	return nestedMessage(list[0])
}
