// Package authority talks to the external approval authority that vets visitors and issues passes.
package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/placepass/backend/internal/models"
)

// Config configures the authority client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RatePerSecond caps outgoing queries across all sessions. Zero means unlimited.
	RatePerSecond float64
	Burst         int
}

// Client queries participant approval status over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates an authority client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return &Client{baseURL: cfg.BaseURL, apiKey: cfg.APIKey, http: httpClient, limiter: limiter, logger: logger}
}

type statusRequest struct {
	IDs []uuid.UUID `json:"ids"`
}

type statusResponse struct {
	Statuses []models.ApprovalStatus `json:"statuses"`
}

// QueryStatus returns the approval status of each id known to the authority.
func (c *Client) QueryStatus(ctx context.Context, ids []uuid.UUID) ([]models.ApprovalStatus, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	body, err := json.Marshal(statusRequest{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("marshal status request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/participants/status", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("authority returned error", zap.Int("status", resp.StatusCode), zap.ByteString("body", msg))
		return nil, fmt.Errorf("status request returned %s", resp.Status)
	}

	var out statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	return out.Statuses, nil
}
