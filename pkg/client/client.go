// Package client provides HTTP client functionality to communicate with a
// running opsup daemon's control API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // optional logger for client operations
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:7654",
		Timeout: 10 * time.Second,
	}
}

// Client talks to the opsup daemon.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// New creates a new control API client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the daemon is running and reachable.
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Status fetches the daemon's status summary.
func (c *Client) Status(ctx context.Context) (StatusSummary, error) {
	var out StatusSummary
	err := c.get(ctx, "/status", &out)
	return out, err
}

// Debug fetches the full debug snapshot.
func (c *Client) Debug(ctx context.Context) (DebugSnapshot, error) {
	var out DebugSnapshot
	err := c.get(ctx, "/debug", &out)
	return out, err
}

// Doctor runs the daemon's diagnostic probes and returns per-endpoint
// outcomes.
func (c *Client) Doctor(ctx context.Context) ([]EndpointOutcome, error) {
	var out []EndpointOutcome
	err := c.get(ctx, "/doctor", &out)
	return out, err
}

// Start asks the daemon to begin the start sequence.
func (c *Client) Start(ctx context.Context) error { return c.post(ctx, "/start") }

// Stop asks the daemon to stop the CLI.
func (c *Client) Stop(ctx context.Context) error { return c.post(ctx, "/stop") }

// Restart asks the daemon to restart the CLI.
func (c *Client) Restart(ctx context.Context) error { return c.post(ctx, "/restart") }

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("daemon request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("daemon: %s", e.Error)
		}
		return fmt.Errorf("daemon returned HTTP %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}
