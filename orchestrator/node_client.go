// Copyright 2025 Potter Labs
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"potterlabs/ailogic/orchestrator/video"
)

// DispatchResult is the execution API's acknowledgement of an accepted job.
type DispatchResult struct {
	JobID             string `json:"jobId"`
	EstimatedDuration string `json:"estimatedDuration,omitempty"`

	// Raw is the full response body, passed through to the caller.
	Raw map[string]any `json:"-"`
}

// NodeAPIClient dispatches prepared job configurations to the downstream
// execution API. It never talks to provider SDKs directly; everything goes
// through the Node API.
type NodeAPIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewNodeAPIClient creates a client for the execution API configured through
// NODE_API_URL and API_KEY.
func NewNodeAPIClient(baseURL, apiKey string) *NodeAPIClient {
	return &NodeAPIClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			// Per-call deadlines come from the caller's context; this is the
			// hard ceiling for a batch dispatch.
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Dispatch posts a job configuration to the execution API. Only HTTP 202 is
// accepted; any other status is surfaced verbatim as a transport error.
func (c *NodeAPIClient) Dispatch(ctx context.Context, config video.JobConfig) (*DispatchResult, error) {
	provider := config.Provider()

	body, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job config: %w", err)
	}

	url := fmt.Sprintf("%s/video/generate", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, video.NewTransportError(provider, 0, fmt.Sprintf("execution API unreachable: %v", err))
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("[NodeAPI] Error closing response body: %v", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, video.NewTransportError(provider, 0, fmt.Sprintf("failed to read execution API response: %v", err))
	}

	if resp.StatusCode != http.StatusAccepted {
		return nil, video.NewTransportError(provider, resp.StatusCode,
			fmt.Sprintf("execution API error: %s", string(respBody)))
	}

	var raw map[string]any
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, video.NewTransportError(provider, 0, fmt.Sprintf("failed to parse execution API response: %v", err))
	}

	result := &DispatchResult{Raw: raw}
	if jobID, ok := raw["jobId"].(string); ok {
		result.JobID = jobID
	}
	if estimated, ok := raw["estimatedDuration"].(string); ok {
		result.EstimatedDuration = estimated
	}

	log.Printf("[NodeAPI] Dispatched %s job %s", provider, result.JobID)
	return result, nil
}

// IsHealthy checks whether the execution API is reachable. Used by the
// service health endpoint.
func (c *NodeAPIClient) IsHealthy() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/video/providers/health", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("[NodeAPI] Error closing response body: %v", err)
		}
	}()

	return resp.StatusCode == http.StatusOK
}
