// Package management talks to the fleet management server: alert and metric
// push, node heartbeat and task polling. Every call is best effort.
package management

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	apperrors "github.com/shizukutanaka/seccollector/internal/errors"
	"github.com/shizukutanaka/seccollector/internal/model"
)

// Config holds the client settings
type Config struct {
	ServerURL string
	APIToken  string
	NodeID    string
	Compress  bool
	Timeout   time.Duration
}

// Client is an HTTP client for the management API
type Client struct {
	logger     *zap.Logger
	config     Config
	httpClient *http.Client
}

// NewClient creates a client. A zero timeout uses 30 seconds.
func NewClient(logger *zap.Logger, config Config) (*Client, error) {
	if config.ServerURL == "" {
		return nil, fmt.Errorf("management server url is required")
	}
	if _, err := url.ParseRequestURI(config.ServerURL); err != nil {
		return nil, fmt.Errorf("invalid management server url: %w", err)
	}
	config.ServerURL = strings.TrimRight(config.ServerURL, "/")
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Client{
		logger:     logger,
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

// NodeID returns the node id the client reports as
func (c *Client) NodeID() string { return c.config.NodeID }

// PushAlert forwards one alert to the alert webhook
func (c *Client) PushAlert(ctx context.Context, a model.Alert) error {
	return c.do(ctx, http.MethodPost, "/api/v1/webhooks/alerts", a, nil)
}

// PushMetrics reports the latest snapshot for this node
func (c *Client) PushMetrics(ctx context.Context, snap model.MetricsSnapshot) error {
	body := struct {
		NodeID  string                `json:"node_id"`
		Metrics model.MetricsSnapshot `json:"metrics"`
	}{c.config.NodeID, snap}
	return c.do(ctx, http.MethodPost, "/api/v1/fleet/metrics", body, nil)
}

// Register announces the node and its capabilities
func (c *Client) Register(ctx context.Context, reg Registration) error {
	return c.do(ctx, http.MethodPost, "/api/v1/fleet/register", reg, nil)
}

// Heartbeat reports the node as alive
func (c *Client) Heartbeat(ctx context.Context, hb Heartbeat) error {
	return c.do(ctx, http.MethodPost, "/api/v1/fleet/heartbeat", hb, nil)
}

// FetchTasks returns the pending tasks for this node
func (c *Client) FetchTasks(ctx context.Context) ([]Task, error) {
	q := url.Values{}
	q.Set("node_id", c.config.NodeID)
	q.Set("status", "pending")

	var resp struct {
		Tasks []Task `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/fleet/tasks?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// ReportTaskResult sends the outcome of a task
func (c *Client) ReportTaskResult(ctx context.Context, result TaskResult) error {
	path := fmt.Sprintf("/api/v1/fleet/tasks/%s/result", url.PathEscape(result.TaskID))
	return c.do(ctx, http.MethodPost, path, result, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	encoding := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		if c.config.Compress {
			var buf bytes.Buffer
			zw := gzip.NewWriter(&buf)
			if _, err := zw.Write(data); err != nil {
				return fmt.Errorf("failed to compress request: %w", err)
			}
			if err := zw.Close(); err != nil {
				return fmt.Errorf("failed to compress request: %w", err)
			}
			data = buf.Bytes()
			encoding = "gzip"
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.ServerURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIToken)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindRemoteUnreachable, "management", method+" "+path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperrors.New(apperrors.KindRemoteUnreachable, "management",
			fmt.Sprintf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(err, apperrors.KindRemoteUnreachable, "management", "decode "+path)
	}
	return nil
}
