package dpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/maia-experience/dpc-cicd/internal/platform/requestid"
)

const maxResponseBody = 8 << 20

// Response is a fully read API response. Callers decide which statuses count
// as success; the accepted set differs per endpoint.
type Response struct {
	StatusCode int
	Body       []byte
}

// StatusError reports an API call that completed with an unaccepted status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status=%d body=%s", e.Op, e.StatusCode, e.Body)
}

func newStatusError(op string, resp Response) *StatusError {
	return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(resp.Body))}
}

// Client performs bearer-authenticated calls against the DPC API.
type Client struct {
	http      *http.Client
	token     string
	requestID string
}

func NewClient(httpClient *http.Client, token, requestID string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		http:      httpClient,
		token:     strings.TrimSpace(token),
		requestID: strings.TrimSpace(requestID),
	}
}

func (c *Client) do(req *http.Request) (Response, error) {
	requestid.Set(req, c.requestID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return Response{}, fmt.Errorf("read %s %s response: %w", req.Method, req.URL, err)
	}
	return Response{StatusCode: resp.StatusCode, Body: body}, nil
}

func (c *Client) Get(ctx context.Context, url string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

func (c *Client) PostJSON(ctx context.Context, url string, in any) (Response, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return Response{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// PostMultipart sends body as-is. Entries in headers are written with the
// exact casing given, since the artifact endpoint documents camelCase names.
func (c *Client) PostMultipart(ctx context.Context, url string, headers map[string]string, body []byte, contentType string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	for name, value := range headers {
		req.Header[name] = []string{value}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", contentType)
	return c.do(req)
}
