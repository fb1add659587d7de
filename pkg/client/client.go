// Package client is a Go client for the mock server control plane.
package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mock-server/mockserver-sub017/pkg/engine/api"
	"github.com/mock-server/mockserver-sub017/pkg/expectation"
	"github.com/mock-server/mockserver-sub017/pkg/requestlog"
	"github.com/mock-server/mockserver-sub017/pkg/verification"
)

// DefaultTimeout bounds every control request.
const DefaultTimeout = 30 * time.Second

// APIError is an error response from the control plane, or a failure to
// reach it (StatusCode 0, ErrorCode "connection_error").
type APIError struct {
	StatusCode int
	ErrorCode  string
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// VerificationError is returned when a verification ran and failed.
type VerificationError struct {
	Message string
}

func (e *VerificationError) Error() string {
	return e.Message
}

// IsConnectionError reports whether err means the server could not be reached.
func IsConnectionError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == "connection_error"
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// Client talks to the control plane of one server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the server at baseURL, e.g. "http://localhost:1080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the server URL the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Upsert stores expectations, replacing any with the same ID, and returns
// them as stored.
func (c *Client) Upsert(es ...*expectation.Expectation) ([]*expectation.Expectation, error) {
	body, err := json.Marshal(es)
	if err != nil {
		return nil, fmt.Errorf("failed to encode expectations: %w", err)
	}
	return c.UpsertJSON(body)
}

// UpsertJSON stores an expectation document: one expectation or an array.
func (c *Client) UpsertJSON(data []byte) ([]*expectation.Expectation, error) {
	resp, err := c.put("/expectation", nil, data)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		return nil, c.parseError(resp)
	}
	var stored []*expectation.Expectation
	if err := json.NewDecoder(resp.Body).Decode(&stored); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return stored, nil
}

// Clear removes expectations, logged requests or both, selected by filter.
// A nil filter selects everything.
func (c *Client) Clear(filter *api.Filter, typ api.ClearType) (*api.ClearResponse, error) {
	body, err := encodeFilter(filter)
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	if typ != "" {
		query.Set("type", string(typ))
	}
	resp, err := c.put("/clear", query, body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}
	var result api.ClearResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &result, nil
}

// Reset removes every expectation and logged request.
func (c *Client) Reset() error {
	resp, err := c.put("/reset", nil, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}
	return nil
}

// RetrieveRecordedRequests returns the logged requests selected by filter,
// oldest first.
func (c *Client) RetrieveRecordedRequests(filter *api.Filter) ([]*expectation.HttpRequest, error) {
	var out []*expectation.HttpRequest
	if err := c.retrieve(api.RetrieveRequests, filter, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RetrieveLogEntries returns the log entries selected by filter, oldest first.
func (c *Client) RetrieveLogEntries(filter *api.Filter) ([]*requestlog.Entry, error) {
	var out []*requestlog.Entry
	if err := c.retrieve(api.RetrieveLogEntries, filter, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RetrieveActiveExpectations returns the active expectations selected by
// filter, in match order.
func (c *Client) RetrieveActiveExpectations(filter *api.Filter) ([]*expectation.Expectation, error) {
	var out []*expectation.Expectation
	if err := c.retrieve(api.RetrieveActiveExpectations, filter, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RetrieveActiveExpectationsYAML returns the active expectations as a YAML
// document.
func (c *Client) RetrieveActiveExpectationsYAML(filter *api.Filter) ([]byte, error) {
	body, err := encodeFilter(filter)
	if err != nil {
		return nil, err
	}
	query := url.Values{"type": {string(api.RetrieveActiveExpectations)}, "format": {"yaml"}}
	resp, err := c.put("/retrieve", query, body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return data, nil
}

func (c *Client) retrieve(typ api.RetrieveType, filter *api.Filter, out any) error {
	body, err := encodeFilter(filter)
	if err != nil {
		return err
	}
	resp, err := c.put("/retrieve", url.Values{"type": {string(typ)}}, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// Verify checks how often a request was received. A failed verification
// returns a *VerificationError describing what was recorded.
func (c *Client) Verify(v *verification.Verification) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode verification: %w", err)
	}
	return c.verify("/verify", body)
}

// VerifySequence checks that requests were received in order.
func (c *Client) VerifySequence(s *verification.Sequence) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode verification: %w", err)
	}
	return c.verify("/verifySequence", body)
}

func (c *Client) verify(path string, body []byte) error {
	resp, err := c.put(path, nil, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusAccepted:
		return nil
	case http.StatusNotAcceptable:
		msg, _ := io.ReadAll(resp.Body)
		return &VerificationError{Message: strings.TrimSpace(string(msg))}
	default:
		return c.parseError(resp)
	}
}

// Status describes the running server.
func (c *Client) Status() (*api.StatusResponse, error) {
	resp, err := c.doRequest(http.MethodGet, "/status", nil, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}
	var status api.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &status, nil
}

// Health checks that the server is up.
func (c *Client) Health() error {
	resp, err := c.doRequest(http.MethodGet, "/health", nil, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}
	return nil
}

// encodeFilter writes the /clear and /retrieve body. A nil or zero filter
// has no body.
func encodeFilter(filter *api.Filter) ([]byte, error) {
	switch {
	case filter.IsZero():
		return nil, nil
	case filter.ExpectationID != "":
		return json.Marshal(map[string]string{"id": filter.ExpectationID})
	default:
		data, err := json.Marshal(filter.Pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request pattern: %w", err)
		}
		return data, nil
	}
}

func (c *Client) put(path string, query url.Values, body []byte) (*http.Response, error) {
	return c.doRequest(http.MethodPut, path, query, body)
}

func (c *Client) doRequest(method, path string, query url.Values, body []byte) (*http.Response, error) {
	fullURL := c.baseURL + api.BasePath + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{
			ErrorCode: "connection_error",
			Message:   fmt.Sprintf("cannot connect to mock server at %s: %v", c.baseURL, err),
		}
	}
	return resp, nil
}

func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			ErrorCode:  errResp.Error,
			Message:    errResp.Message,
		}
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		ErrorCode:  "unknown_error",
		Message:    fmt.Sprintf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
	}
}
