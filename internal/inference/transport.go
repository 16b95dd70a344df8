package inference

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxBodyBytes = 64 << 20

type Response struct {
	Status int
	Body   []byte
}

// Transport performs one HTTP exchange with the endpoint. Errors are reserved
// for transport-level failures; any HTTP status is a Response.
type Transport interface {
	Post(ctx context.Context, url, token string, body []byte) (*Response, error)
	Get(ctx context.Context, url, token string) (*Response, error)
}

type HTTPTransport struct {
	Client *http.Client
}

func NewHTTPTransport(client *http.Client, timeout time.Duration) *HTTPTransport {
	if client == nil {
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPTransport{Client: client}
}

func (t *HTTPTransport) Post(ctx context.Context, url, token string, body []byte) (*Response, error) {
	return t.do(ctx, http.MethodPost, url, token, body)
}

func (t *HTTPTransport) Get(ctx context.Context, url, token string) (*Response, error) {
	return t.do(ctx, http.MethodGet, url, token, nil)
}

func (t *HTTPTransport) do(ctx context.Context, method, url, token string, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &Response{Status: resp.StatusCode, Body: data}, nil
}
