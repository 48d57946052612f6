package query

//go:generate mockgen -package mocks -destination mocks/mock_client.go github.com/ethpandaops/resultgrid/internal/query Client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Compile-time interface compliance check.
var _ Client = (*HTTPClient)(nil)

// Client talks to the remote query service.
type Client interface {
	// Query posts payload to route and returns the raw JSON response body.
	Query(ctx context.Context, route string, payload Payload) ([]byte, error)
}

// StatusError is returned when the query service answers with a non-200 status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// HTTPClient is the HTTP implementation of Client.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     logrus.FieldLogger
}

// NewHTTPClient creates a query service client for baseURL.
func NewHTTPClient(logger logrus.FieldLogger, baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.WithField("component", "query_client"),
	}
}

// Query posts payload as JSON to route. No retries happen at this layer.
func (c *HTTPClient) Query(
	ctx context.Context,
	route string,
	payload Payload,
) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	reqURL := c.baseURL + "/" + strings.TrimPrefix(route, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query service request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	c.logger.WithFields(logrus.Fields{
		"route":       route,
		"skip":        payload.Skip,
		"limit":       payload.Limit,
		"count":       payload.Count,
		"bytes":       len(respBody),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Query service responded")

	return respBody, nil
}
