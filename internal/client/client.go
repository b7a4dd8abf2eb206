// Package client talks to the capture/classification backend over HTTP.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/darkace1998/FlowSentry/internal/model"
)

// FetchError is the single failure kind for backend calls: a network error,
// a timeout, a non-2xx status, or an undecodable body.
type FetchError struct {
	Op     string // e.g. "GET /flows"
	Status int    // HTTP status, 0 when no response was received
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: backend returned %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsFetchFailure reports whether err is, or wraps, a FetchError.
func IsFetchFailure(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// Client is a backend API client. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the backend rooted at baseURL, e.g.
// "http://localhost:5000/api". timeout bounds each request.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// FetchFlows returns the backend's current flow list.
func (c *Client) FetchFlows(ctx context.Context) ([]model.FlowRecord, error) {
	var resp model.FlowsResponse
	if err := c.do(ctx, http.MethodGet, "/flows", &resp); err != nil {
		return nil, err
	}
	if resp.Flows == nil {
		resp.Flows = []model.FlowRecord{}
	}
	return resp.Flows, nil
}

// FetchStatus returns the backend's processing status.
func (c *Client) FetchStatus(ctx context.Context) (model.ApiStatus, error) {
	var st model.ApiStatus
	err := c.do(ctx, http.MethodGet, "/status", &st)
	return st, err
}

// StartCapture asks the backend to start packet sniffing.
func (c *Client) StartCapture(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/start", nil)
}

// StopCapture asks the backend to stop packet sniffing.
func (c *Client) StopCapture(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/stop", nil)
}

// FetchIPStats returns the backend's per-source flow histogram.
func (c *Client) FetchIPStats(ctx context.Context) (model.IPStats, error) {
	var st model.IPStats
	err := c.do(ctx, http.MethodGet, "/ip-stats", &st)
	return st, err
}

// do performs one request and decodes a JSON body into out when out is non-nil.
// Every failure is returned as a *FetchError.
func (c *Client) do(ctx context.Context, method, path string, out any) error {
	op := method + " " + path

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return &FetchError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &FetchError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &FetchError{Op: op, Status: resp.StatusCode, Err: errors.New(msg)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &FetchError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}
