package chorussdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/felixgeelhaar/fortify/timeout"
)

// DefaultBaseURL is the API root used when none is configured.
const DefaultBaseURL = "http://localhost:8000"

// Client is a minimal Chorus HTTP API client. It never retries.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
	Logger      *log.Logger
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// APIError wraps non-2xx responses. Code is "unknown" when the server did
// not send a well-formed error envelope.
type APIError struct {
	Status    int            `json:"-"`
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details"`
	RequestID string         `json:"request_id"`
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("api error: status=%d code=%s request_id=%s: %s", e.Status, e.Code, e.RequestID, e.Message)
	}
	return fmt.Sprintf("api error: status=%d code=%s: %s", e.Status, e.Code, e.Message)
}

// IsStatus reports whether err is an *APIError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// TransportError is returned when no HTTP response was received.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Do performs one request against the API root. A JSON body and its
// content type are sent only when body is non-nil. 204 responses and nil out
// values skip decoding.
func (c *Client) Do(ctx context.Context, method, endpoint string, body any, out any) error {
	d := c.Timeout
	if d <= 0 {
		d = 10 * time.Second
	}
	t := timeout.New[struct{}](timeout.Config{DefaultTimeout: d})
	// finished carries the call's own error so callers see *APIError unwrapped.
	// The call decodes into raw, which only this goroutine reads back once the
	// call has finished; a call abandoned by the timeout never touches out.
	finished := make(chan error, 1)
	var raw json.RawMessage
	var sink any
	if out != nil {
		sink = &raw
	}
	_, err := t.Execute(ctx, d, func(ctx context.Context) (struct{}, error) {
		callErr := c.do(ctx, method, endpoint, body, sink)
		finished <- callErr
		return struct{}{}, callErr
	})
	select {
	case callErr := <-finished:
		if callErr != nil || out == nil || len(raw) == 0 {
			return callErr
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, endpoint, err)
		}
		return nil
	default:
		return &TransportError{Method: method, Path: endpoint, Err: err}
	}
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	path := "/" + strings.TrimLeft(endpoint, "/")
	url := c.base() + path
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = &buf
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	start := time.Now()
	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		c.logger().Debug("request failed", "method", method, "path", path, "err", err)
		return &TransportError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()
	c.logger().Debug("request", "method", method, "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return decodeAPIError(resp, data)
	}
	if resp.StatusCode == http.StatusNoContent || out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response, data []byte) *APIError {
	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error != nil {
		apiErr := envelope.Error
		apiErr.Status = resp.StatusCode
		if apiErr.Details == nil {
			apiErr.Details = map[string]any{}
		}
		if apiErr.RequestID == "" {
			apiErr.RequestID = resp.Header.Get("X-Request-Id")
		}
		return apiErr
	}
	return &APIError{
		Status:    resp.StatusCode,
		Code:      "unknown",
		Message:   http.StatusText(resp.StatusCode),
		Details:   map[string]any{},
		RequestID: "",
	}
}

var discard = log.New(io.Discard)

func (c *Client) logger() *log.Logger {
	if c.Logger == nil {
		return discard
	}
	return c.Logger
}

func (c *Client) base() string {
	if c.BaseURL == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(c.BaseURL, "/")
}
