package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/textileio/go-durablevote/internal/router/controllers/apiv1"
)

// CheckHealth returns true if the targeted endpoint is considered healthy, and false otherwise.
func (c *Client) CheckHealth(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.JoinPath("/health").String(), nil)
	if err != nil {
		return false, fmt.Errorf("creating request: %s", err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("http get error: %s", err)
	}
	defer func() { _ = res.Body.Close() }()

	return res.StatusCode == http.StatusOK, nil
}

// Version returns build information of the targeted server.
func (c *Client) Version(ctx context.Context) (apiv1.VersionInfo, error) {
	var info apiv1.VersionInfo
	err := c.do(ctx, http.MethodGet, "/version", nil, nil, &info)
	return info, err
}
