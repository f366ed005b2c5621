package streams

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mr4pson/prostable-tg-bot/internal/infra/httpclient"
)

// Client manages wallet-address subscriptions with the blockchain-event
// indexing provider. A subscribed address gets its transfers reported back
// to the webhook endpoints.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpclient.New(timeout),
		logger:  logger,
	}
}

func (c *Client) Register(ctx context.Context, address string) error {
	return c.send(ctx, http.MethodPost, address)
}

func (c *Client) Remove(ctx context.Context, address string) error {
	return c.send(ctx, http.MethodDelete, address)
}

func (c *Client) send(ctx context.Context, method, address string) error {
	if c == nil || c.http == nil {
		return fmt.Errorf("streams client is not initialized")
	}

	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("wallet address is required")
	}

	body, err := json.Marshal(map[string]string{"address": address})
	if err != nil {
		return fmt.Errorf("marshal stream payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/addresses", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call stream provider: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("unexpected stream provider status: %d", resp.StatusCode)
	}

	c.logger.Debug("stream subscription updated",
		zap.String("method", method), zap.String("address", address))

	return nil
}
