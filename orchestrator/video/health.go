// Copyright 2025 Potter Labs
// SPDX-License-Identifier: BUSL-1.1

package video

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

// defaultRecoveryBackoff is the fixed re-probe schedule used by
// WaitForRecovery.
var defaultRecoveryBackoff = []time.Duration{
	5 * time.Second,
	10 * time.Second,
	20 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

// providerEnvKeys maps each remote provider to the environment variable whose
// presence implies the provider is usable when the execution API cannot be
// reached. The slideshow generator is local and needs no key.
var providerEnvKeys = map[Provider]string{
	ProviderRunway:    "RUNWAY_API_KEY",
	ProviderPika:      "PIKA_API_KEY",
	ProviderGeminiVeo: "GEMINI_API_KEY",
}

// HealthChecker probes provider liveness through the downstream execution
// API. It is stateless across calls and safe for concurrent use.
type HealthChecker struct {
	nodeAPIURL      string
	apiKey          string
	registry        *Registry
	httpClient      *http.Client
	recoveryBackoff []time.Duration
}

// HealthCheckerOption configures a HealthChecker.
type HealthCheckerOption func(*HealthChecker)

// WithNodeAPI overrides the execution API endpoint and key.
func WithNodeAPI(url, apiKey string) HealthCheckerOption {
	return func(h *HealthChecker) {
		h.nodeAPIURL = url
		h.apiKey = apiKey
	}
}

// WithRecoveryBackoff overrides the recovery re-probe schedule.
func WithRecoveryBackoff(schedule []time.Duration) HealthCheckerOption {
	return func(h *HealthChecker) {
		h.recoveryBackoff = schedule
	}
}

// NewHealthChecker creates a health checker wired to the execution API
// configured through NODE_API_URL and API_KEY.
func NewHealthChecker(registry *Registry, opts ...HealthCheckerOption) *HealthChecker {
	h := &HealthChecker{
		nodeAPIURL: getenvDefault("NODE_API_URL", "http://localhost:3000"),
		apiKey:     getenvDefault("API_KEY", "testkey"),
		registry:   registry,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		recoveryBackoff: defaultRecoveryBackoff,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Check probes a single provider and returns its status. Probe failures are
// reported as unhealthy statuses, never as errors.
func (h *HealthChecker) Check(ctx context.Context, provider Provider) ProviderStatus {
	start := time.Now()

	healthy, reason := h.probe(ctx, provider)

	status := ProviderStatus{
		Provider:       provider,
		IsHealthy:      healthy,
		ResponseTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
	}
	if caps, ok := h.registry.Capabilities(provider); ok {
		status.Capabilities = &caps
	}
	if !healthy {
		status.Error = reason
	}
	return status
}

// CheckAll probes every provider concurrently and returns one status per
// provider id. Statuses resolve in no particular order.
func (h *HealthChecker) CheckAll(ctx context.Context) map[Provider]ProviderStatus {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		statuses = make(map[Provider]ProviderStatus, len(AllProviders))
	)

	for _, provider := range AllProviders {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			status := h.Check(ctx, p)
			mu.Lock()
			statuses[p] = status
			mu.Unlock()
		}(provider)
	}

	wg.Wait()
	return statuses
}

// HealthyProviders returns the providers currently reporting healthy.
func (h *HealthChecker) HealthyProviders(ctx context.Context) []Provider {
	statuses := h.CheckAll(ctx)

	var healthy []Provider
	for _, p := range AllProviders {
		if statuses[p].IsHealthy {
			healthy = append(healthy, p)
		}
	}
	return healthy
}

// WaitForRecovery re-probes provider on the fixed backoff schedule, stopping
// on the first healthy status or once the cumulative wait reaches maxWait.
// Returns whether the provider recovered. Cancelling ctx aborts the wait
// between sleep intervals.
func (h *HealthChecker) WaitForRecovery(ctx context.Context, provider Provider, maxWait time.Duration) bool {
	var waited time.Duration

	for _, wait := range h.recoveryBackoff {
		if waited >= maxWait {
			break
		}

		log.Printf("[Health] Waiting %v for %s to recover...", wait, provider)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
		waited += wait

		if status := h.Check(ctx, provider); status.IsHealthy {
			log.Printf("[Health] %s has recovered", provider)
			return true
		}
	}

	log.Printf("[Health] %s did not recover within %v", provider, maxWait)
	return false
}

// probe decides liveness for one provider. The slideshow generator is local
// and always healthy. Remote providers are checked through the execution
// API's health endpoint; when that endpoint is unreachable or non-2xx, the
// provider's API-key environment variable decides instead.
func (h *HealthChecker) probe(ctx context.Context, provider Provider) (bool, string) {
	if provider == ProviderSlideshow {
		return true, ""
	}

	healthy, err := h.probeNodeAPI(ctx, provider)
	if err == nil {
		if !healthy {
			return false, fmt.Sprintf("execution API reports %s unhealthy", provider)
		}
		return true, ""
	}

	log.Printf("[Health] Execution API health check failed for %s: %v", provider, err)
	return h.checkEnvKey(provider)
}

// probeNodeAPI queries the execution API's provider health map.
func (h *HealthChecker) probeNodeAPI(ctx context.Context, provider Provider) (bool, error) {
	url := fmt.Sprintf("%s/video/providers/health", h.nodeAPIURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create health request: %w", err)
	}
	req.Header.Set("X-API-KEY", h.apiKey)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("execution API unreachable: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("[Health] Error closing response body: %v", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("execution API health endpoint returned status %d", resp.StatusCode)
	}

	var body struct {
		Providers map[string]struct {
			Healthy bool `json:"healthy"`
		} `json:"providers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("failed to parse health response: %w", err)
	}

	return body.Providers[string(provider)].Healthy, nil
}

// checkEnvKey is the degraded-mode liveness check: the provider counts as
// healthy iff its API-key environment variable is present and non-empty.
func (h *HealthChecker) checkEnvKey(provider Provider) (bool, string) {
	key, required := providerEnvKeys[provider]
	if !required {
		return true, ""
	}
	if os.Getenv(key) == "" {
		return false, fmt.Sprintf("execution API unreachable and %s is not set", key)
	}
	return true, ""
}
