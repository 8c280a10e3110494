// Package client is a Go client of the durable vote HTTP API.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	jsoniter "github.com/json-iterator/go"
	serviceerrors "github.com/textileio/go-durablevote/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Error is a failed API call.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed call (status: %d, message: %s)", e.StatusCode, e.Message)
}

// StatusCode returns the HTTP status of a failed API call, or zero if err isn't one.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Client is the durable vote API client.
type Client struct {
	http    *http.Client
	baseURL *url.URL
}

type config struct {
	http *http.Client
}

// NewClientOption controls the behavior of NewClient.
type NewClientOption func(*config)

// NewClientHTTPClient specifies the http client used to reach the API.
func NewClientHTTPClient(c *http.Client) NewClientOption {
	return func(cfg *config) {
		cfg.http = c
	}
}

// NewClient creates a new Client targeting the API at endpoint.
func NewClient(endpoint string, opts ...NewClientOption) (*Client, error) {
	cfg := config{
		http: &http.Client{Timeout: time.Second * 30},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	baseURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint URL: %s", err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("invalid endpoint URL: %s", endpoint)
	}

	return &Client{
		http:    cfg.http,
		baseURL: baseURL,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling body: %s", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("creating request: %s", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s %s: %s", method, path, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg, _ := io.ReadAll(res.Body)
		var svcErr serviceerrors.ServiceError
		if err := json.Unmarshal(msg, &svcErr); err != nil || svcErr.Message == "" {
			svcErr.Message = string(msg)
		}
		return &Error{StatusCode: res.StatusCode, Message: svcErr.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("unmarshaling result: %s", err)
	}
	return nil
}
