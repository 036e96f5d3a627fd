// Package client provides an HTTP client for talking to the recurd control
// plane when NATS is not configured. It delivers due events, sends
// heartbeats and pulls pending schedule assignments.
//
// The client uses hashicorp/go-retryablehttp for automatic retry with
// backoff and jitter. Due-event batches are idempotent on the server side
// (each event carries a stable ID) so retrying a POST is safe.
//
// Usage:
//
//	c := client.NewClient("https://recurd.example.com", logger)
//	c.SetAPIKey(apiKey)
//	c.SetNodeID(nodeID)
//	err := c.PublishDueEvents(ctx, batch)
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/doughall/recurd/internal/events"
	"github.com/doughall/recurd/internal/version"
)

// ErrNoAPIKey is returned by authenticated calls made before SetAPIKey.
var ErrNoAPIKey = errors.New("api key not set")

// Client is the HTTP client for the control plane.
type Client struct {
	httpClient *http.Client
	serverURL  string
	apiKey     string
	nodeID     string
	logger     *slog.Logger
}

// NewClient creates a new Client configured with retryable HTTP settings.
//
// The client is configured with:
//   - RetryMax: 3 retries
//   - RetryWaitMin: 1 second
//   - RetryWaitMax: 10 seconds
//   - Backoff: Linear jitter (prevents thundering herd)
//   - Timeout: 30 seconds per request
func NewClient(serverURL string, logger *slog.Logger) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Backoff = retryablehttp.LinearJitterBackoff

	// Disable retryablehttp's internal logging - we use slog instead
	retryClient.Logger = nil

	retryClient.HTTPClient.Timeout = 30 * time.Second
	retryClient.HTTPClient.Transport = &http.Transport{
		MaxIdleConns:        10,
		IdleConnTimeout:     60 * time.Second,
		MaxIdleConnsPerHost: 2,
	}

	return &Client{
		httpClient: retryClient.StandardClient(),
		serverURL:  serverURL,
		logger:     logger.With(slog.String("component", "http_client")),
	}
}

// SetAPIKey sets the bearer token used for every request.
func (c *Client) SetAPIKey(key string) {
	c.apiKey = key
}

// SetNodeID sets the node identifier reported to the server.
func (c *Client) SetNodeID(id string) {
	c.nodeID = id
}

type heartbeatPayload struct {
	NodeID    string `json:"nodeId"`
	Version   string `json:"version"`
	Schedules int    `json:"schedules"`
}

// SendHeartbeat tells the server the node is alive and how many schedules
// it tracks.
func (c *Client) SendHeartbeat(ctx context.Context, schedules int) error {
	if c.apiKey == "" {
		return ErrNoAPIKey
	}

	u := c.serverURL + "/api/nodes/heartbeat"
	c.logger.Debug("sending heartbeat", slog.String("url", u))

	resp, err := c.doJSONRequest(ctx, http.MethodPost, u, heartbeatPayload{
		NodeID:    c.nodeID,
		Version:   version.Version,
		Schedules: schedules,
	}, nil)
	if err != nil {
		return fmt.Errorf("heartbeat request failed: %w", err)
	}
	drain(resp)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("heartbeat failed with status %d", resp.StatusCode)
	}
	return nil
}

type dueEventPayload struct {
	Events []dueEventItem `json:"events"`
}

type dueEventItem struct {
	EventID   string `json:"eventId"`
	TaskID    string `json:"taskId"`
	DueAt     string `json:"dueAt"`
	EmittedAt string `json:"emittedAt"`
	NodeID    string `json:"nodeId,omitempty"`
}

// PublishDueEvents uploads a batch of due events. The server answers 200 or
// 201; anything else leaves the batch queued for the next dispatch cycle.
func (c *Client) PublishDueEvents(ctx context.Context, evs []*events.DueEvent) error {
	if c.apiKey == "" {
		return ErrNoAPIKey
	}

	u := c.serverURL + "/api/occurrences/due"

	payload := dueEventPayload{Events: make([]dueEventItem, len(evs))}
	for i, e := range evs {
		payload.Events[i] = dueEventItem{
			EventID:   e.ID.String(),
			TaskID:    e.TaskID,
			DueAt:     e.DueAt.UTC().Format(time.RFC3339Nano),
			EmittedAt: e.EmittedAt.UTC().Format(time.RFC3339Nano),
			NodeID:    c.nodeID,
		}
	}

	c.logger.Debug("submitting due events",
		slog.String("url", u),
		slog.Int("count", len(evs)),
	)

	resp, err := c.doJSONRequest(ctx, http.MethodPost, u, payload, nil)
	if err != nil {
		return fmt.Errorf("due events request failed: %w", err)
	}
	drain(resp)

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("due events failed with status %d", resp.StatusCode)
	}
	return nil
}

// Assignment is a pending schedule change fetched over HTTP. Schedule holds
// the same JSON document the NATS transport carries.
type Assignment struct {
	ID       string          `json:"id"`
	TaskID   string          `json:"taskId"`
	Action   string          `json:"action"`
	Schedule json.RawMessage `json:"schedule,omitempty"`
}

// FetchAssignments retrieves pending schedule assignments for this node.
func (c *Client) FetchAssignments(ctx context.Context) ([]Assignment, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	u := c.serverURL + "/api/nodes/" + url.PathEscape(c.nodeID) + "/assignments"

	var result struct {
		Assignments []Assignment `json:"assignments"`
	}
	resp, err := c.doJSONRequest(ctx, http.MethodGet, u, nil, &result)
	if err != nil {
		return nil, fmt.Errorf("fetch assignments: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return result.Assignments, nil
}

// AckAssignment marks an assignment as applied so it is not returned again.
func (c *Client) AckAssignment(ctx context.Context, id string) error {
	if c.apiKey == "" {
		return ErrNoAPIKey
	}

	u := c.serverURL + "/api/assignments/" + url.PathEscape(id) + "/ack"
	resp, err := c.doJSONRequest(ctx, http.MethodPost, u, nil, nil)
	if err != nil {
		return fmt.Errorf("ack assignment: %w", err)
	}
	drain(resp)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}

// doJSONRequest is a helper for making JSON requests to the server.
// It handles JSON encoding of the request body and decoding of the response.
func (c *Client) doJSONRequest(ctx context.Context, method, url string, body, response any) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Recurd-Version", version.Version)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if response != nil {
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, resp.Body)
			return resp, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
			// Ensure body is drained even on decode error
			_, _ = io.Copy(io.Discard, resp.Body)
			return resp, fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return resp, nil
}

// drain closes the body so the connection can be reused.
func drain(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}
