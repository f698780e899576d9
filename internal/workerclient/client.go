// Package workerclient is the HTTP client for the per-agent worker
// containers. Workers expose a small control API: message evaluation,
// config push, and health.
package workerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/botcrew/botcrew/internal/common/config"
	"github.com/botcrew/botcrew/internal/common/logger"
)

const (
	// evaluateTimeout bounds a model-backed evaluation call.
	evaluateTimeout = 120 * time.Second
	// configPushTimeout bounds the fire-and-forget config push.
	configPushTimeout = 5 * time.Second
	// healthTimeout bounds the liveness probe.
	healthTimeout = 10 * time.Second
)

// EvaluateRequest asks a worker to consider responding to a message.
type EvaluateRequest struct {
	ChannelID            string `json:"channel_id"`
	MessageContent       string `json:"message_content"`
	MessageID            string `json:"message_id"`
	SenderUserIdentifier string `json:"sender_user_identifier"`
	IsDM                 bool   `json:"is_dm"`
}

// Client talks to worker containers by agent id. Workers are addressed
// by container name on the shared network, optionally qualified with a
// DNS domain.
type Client struct {
	domain string
	port   int
	http   *http.Client
	logger *logger.Logger
}

// New creates a worker client from agent addressing config.
func New(cfg config.AgentConfig, log *logger.Logger) *Client {
	return &Client{
		domain: cfg.WorkerDomain,
		port:   cfg.WorkerPort,
		http:   &http.Client{},
		logger: log,
	}
}

// BaseURL returns the root URL of an agent's worker.
func (c *Client) BaseURL(agentID string) string {
	host := "agent-" + agentID
	if c.domain != "" {
		host += "." + c.domain
	}
	return fmt.Sprintf("http://%s:%d", host, c.port)
}

// Evaluate posts a message to the worker's evaluate endpoint and waits
// for it to finish deciding (and possibly responding).
func (c *Client) Evaluate(ctx context.Context, agentID string, req EvaluateRequest) error {
	ctx, cancel := context.WithTimeout(ctx, evaluateTimeout)
	defer cancel()
	return c.post(ctx, agentID, "/evaluate", req)
}

// PushConfig notifies a worker that its agent configuration changed.
func (c *Client) PushConfig(ctx context.Context, agentID string, payload any) error {
	ctx, cancel := context.WithTimeout(ctx, configPushTimeout)
	defer cancel()
	return c.post(ctx, agentID, "/config", payload)
}

// Health probes the worker's health endpoint.
func (c *Client) Health(ctx context.Context, agentID string) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL(agentID)+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("worker health check failed: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("worker health check returned %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, agentID, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal worker request: %w", err)
	}

	url := c.BaseURL(agentID) + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("worker request to %s failed: %w", path, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode >= 300 {
		c.logger.Warn("Worker request rejected",
			zap.String("agent_id", agentID),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("worker %s returned %d for %s", agentID, resp.StatusCode, path)
	}
	return nil
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}
