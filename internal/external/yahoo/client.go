package yahoo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/wonny/movers/pkg/httputil"
	"github.com/wonny/movers/pkg/logger"
)

// DefaultBaseURL is the public Yahoo Finance query host
const DefaultBaseURL = "https://query1.finance.yahoo.com"

// Client handles communication with the Yahoo Finance chart API
// ⭐ SSOT: Yahoo Finance API 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
}

// NewClient creates a new Yahoo Finance client
func NewClient(httpClient *httputil.Client, log *logger.Logger, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		logger:     log.WithModule("yahoo"),
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// fetchBody performs a GET and returns the body with its status code
func (c *Client) fetchBody(ctx context.Context, fullURL string) ([]byte, int, error) {
	resp, err := c.httpClient.Get(ctx, fullURL)
	if err != nil {
		return nil, 0, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response body failed: %w", err)
	}

	return body, resp.StatusCode, nil
}

// ProviderError is an error reported by the chart API itself
type ProviderError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("yahoo: unexpected status code: %d", e.StatusCode)
	}
	return fmt.Sprintf("yahoo: %s: %s (status %d)", e.Code, e.Description, e.StatusCode)
}

// Temporary reports whether the status is worth another attempt (5xx, 429)
func (e *ProviderError) Temporary() bool {
	return httputil.IsRetryableStatus(e.StatusCode)
}

func isOK(status int) bool {
	return status == http.StatusOK
}
