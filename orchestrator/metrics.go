// Copyright 2025 Potter Labs
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"sync"
	"time"
)

// MetricsCollector aggregates per-endpoint and per-provider metrics for the
// orchestration service. Exposed as JSON at /metrics; Prometheus collectors
// live in run.go.
type MetricsCollector struct {
	metrics *Metrics
	mu      sync.RWMutex
}

// Metrics represents collected metrics
type Metrics struct {
	EndpointMetrics   map[string]*EndpointMetrics      `json:"endpoint_metrics"`
	ProviderMetrics   map[string]*ProviderUsageMetrics `json:"provider_metrics"`
	RoutingMetrics    *RoutingMetrics                  `json:"routing_metrics"`
	SystemMetrics     *SystemMetrics                   `json:"system_metrics"`
	LastResetTime     time.Time                        `json:"last_reset_time"`
	CollectionStarted time.Time                        `json:"collection_started"`
}

// EndpointMetrics tracks metrics per API endpoint
type EndpointMetrics struct {
	TotalRequests   int64         `json:"total_requests"`
	SuccessCount    int64         `json:"success_count"`
	ErrorCount      int64         `json:"error_count"`
	AvgResponseTime time.Duration `json:"avg_response_time_ms"`
	P95ResponseTime time.Duration `json:"p95_response_time_ms"`
	P99ResponseTime time.Duration `json:"p99_response_time_ms"`
	responseTimes   []time.Duration
}

// ProviderUsageMetrics tracks metrics per video provider
type ProviderUsageMetrics struct {
	DispatchCount   int64   `json:"dispatch_count"`
	SuccessCount    int64   `json:"success_count"`
	ErrorCount      int64   `json:"error_count"`
	FallbackCount   int64   `json:"fallback_count"`
	Availability    float64 `json:"availability_percentage"`
	AvgRoutingScore float64 `json:"avg_routing_score"`
	totalScore      float64
	scoredDecisions int64
}

// RoutingMetrics tracks routing decision metrics
type RoutingMetrics struct {
	TotalDecisions    int64            `json:"total_decisions"`
	FallbacksUsed     int64            `json:"fallbacks_used"`
	NoViableProvider  int64            `json:"no_viable_provider"`
	PreferredOverride int64            `json:"preferred_override"`
	StyleDistribution map[string]int64 `json:"style_distribution"`
}

// SystemMetrics tracks system-level metrics
type SystemMetrics struct {
	UptimeSeconds     int64     `json:"uptime_seconds"`
	TotalRequests     int64     `json:"total_requests"`
	LastHealthCheck   time.Time `json:"last_health_check"`
	HealthCheckPassed bool      `json:"health_check_passed"`
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		metrics: &Metrics{
			EndpointMetrics: make(map[string]*EndpointMetrics),
			ProviderMetrics: make(map[string]*ProviderUsageMetrics),
			RoutingMetrics: &RoutingMetrics{
				StyleDistribution: make(map[string]int64),
			},
			SystemMetrics:     &SystemMetrics{},
			CollectionStarted: time.Now(),
			LastResetTime:     time.Now(),
		},
	}
}

// RecordRequest records a completed request for an endpoint
func (c *MetricsCollector) RecordRequest(endpoint string, success bool, responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	em := c.endpointMetricsLocked(endpoint)
	em.TotalRequests++
	if success {
		em.SuccessCount++
	} else {
		em.ErrorCount++
	}
	em.responseTimes = append(em.responseTimes, responseTime)

	// Keep only last 1000 response times for percentile calculation
	if len(em.responseTimes) > 1000 {
		em.responseTimes = em.responseTimes[len(em.responseTimes)-1000:]
	}

	c.metrics.SystemMetrics.TotalRequests++
}

// RecordRoutingDecision records a routing decision and its score
func (c *MetricsCollector) RecordRoutingDecision(provider, style string, score float64, preferredOverride bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.RoutingMetrics.TotalDecisions++
	c.metrics.RoutingMetrics.StyleDistribution[style]++
	if preferredOverride {
		c.metrics.RoutingMetrics.PreferredOverride++
	}

	pm := c.providerMetricsLocked(provider)
	pm.totalScore += score
	pm.scoredDecisions++
}

// RecordFallback records that a fallback provider was substituted
func (c *MetricsCollector) RecordFallback(toProvider string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.RoutingMetrics.FallbacksUsed++
	c.providerMetricsLocked(toProvider).FallbackCount++
}

// RecordNoViableProvider records a request that no provider could serve
func (c *MetricsCollector) RecordNoViableProvider() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.RoutingMetrics.NoViableProvider++
}

// RecordDispatch records a dispatch attempt to the execution API
func (c *MetricsCollector) RecordDispatch(provider string, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pm := c.providerMetricsLocked(provider)
	pm.DispatchCount++
	if success {
		pm.SuccessCount++
	} else {
		pm.ErrorCount++
	}
}

// RecordHealthCheck records the outcome of a downstream health probe
func (c *MetricsCollector) RecordHealthCheck(passed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.SystemMetrics.LastHealthCheck = time.Now()
	c.metrics.SystemMetrics.HealthCheckPassed = passed
}

// GetMetrics returns a deep copy of the current metrics
func (c *MetricsCollector) GetMetrics() *Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calculateDerivedMetricsLocked()

	metricsCopy := &Metrics{
		EndpointMetrics:   make(map[string]*EndpointMetrics),
		ProviderMetrics:   make(map[string]*ProviderUsageMetrics),
		RoutingMetrics:    c.copyRoutingMetricsLocked(),
		SystemMetrics:     c.copySystemMetricsLocked(),
		LastResetTime:     c.metrics.LastResetTime,
		CollectionStarted: c.metrics.CollectionStarted,
	}

	for k, v := range c.metrics.EndpointMetrics {
		metricsCopy.EndpointMetrics[k] = &EndpointMetrics{
			TotalRequests:   v.TotalRequests,
			SuccessCount:    v.SuccessCount,
			ErrorCount:      v.ErrorCount,
			AvgResponseTime: v.AvgResponseTime,
			P95ResponseTime: v.P95ResponseTime,
			P99ResponseTime: v.P99ResponseTime,
		}
	}

	for k, v := range c.metrics.ProviderMetrics {
		metricsCopy.ProviderMetrics[k] = &ProviderUsageMetrics{
			DispatchCount:   v.DispatchCount,
			SuccessCount:    v.SuccessCount,
			ErrorCount:      v.ErrorCount,
			FallbackCount:   v.FallbackCount,
			Availability:    v.Availability,
			AvgRoutingScore: v.AvgRoutingScore,
		}
	}

	return metricsCopy
}

// ResetMetrics resets all metrics
func (c *MetricsCollector) ResetMetrics() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics = &Metrics{
		EndpointMetrics: make(map[string]*EndpointMetrics),
		ProviderMetrics: make(map[string]*ProviderUsageMetrics),
		RoutingMetrics: &RoutingMetrics{
			StyleDistribution: make(map[string]int64),
		},
		SystemMetrics:     &SystemMetrics{},
		CollectionStarted: c.metrics.CollectionStarted,
		LastResetTime:     time.Now(),
	}
}

func (c *MetricsCollector) endpointMetricsLocked(endpoint string) *EndpointMetrics {
	em, exists := c.metrics.EndpointMetrics[endpoint]
	if !exists {
		em = &EndpointMetrics{responseTimes: make([]time.Duration, 0, 1000)}
		c.metrics.EndpointMetrics[endpoint] = em
	}
	return em
}

func (c *MetricsCollector) providerMetricsLocked(provider string) *ProviderUsageMetrics {
	pm, exists := c.metrics.ProviderMetrics[provider]
	if !exists {
		pm = &ProviderUsageMetrics{}
		c.metrics.ProviderMetrics[provider] = pm
	}
	return pm
}

// calculateDerivedMetricsLocked calculates percentiles, averages and availability
func (c *MetricsCollector) calculateDerivedMetricsLocked() {
	for _, em := range c.metrics.EndpointMetrics {
		if len(em.responseTimes) > 0 {
			var total time.Duration
			for _, rt := range em.responseTimes {
				total += rt
			}
			em.AvgResponseTime = total / time.Duration(len(em.responseTimes))
			em.P95ResponseTime = calculatePercentile(em.responseTimes, 95)
			em.P99ResponseTime = calculatePercentile(em.responseTimes, 99)
		}
	}

	for _, pm := range c.metrics.ProviderMetrics {
		if pm.DispatchCount > 0 {
			pm.Availability = float64(pm.SuccessCount) / float64(pm.DispatchCount) * 100
		}
		if pm.scoredDecisions > 0 {
			pm.AvgRoutingScore = pm.totalScore / float64(pm.scoredDecisions)
		}
	}

	c.metrics.SystemMetrics.UptimeSeconds = int64(time.Since(c.metrics.CollectionStarted).Seconds())
}

// calculatePercentile calculates the nth percentile of response times
func calculatePercentile(times []time.Duration, percentile int) time.Duration {
	if len(times) == 0 {
		return 0
	}

	index := (len(times) * percentile) / 100
	if index >= len(times) {
		index = len(times) - 1
	}

	return times[index]
}

func (c *MetricsCollector) copyRoutingMetricsLocked() *RoutingMetrics {
	rm := &RoutingMetrics{
		TotalDecisions:    c.metrics.RoutingMetrics.TotalDecisions,
		FallbacksUsed:     c.metrics.RoutingMetrics.FallbacksUsed,
		NoViableProvider:  c.metrics.RoutingMetrics.NoViableProvider,
		PreferredOverride: c.metrics.RoutingMetrics.PreferredOverride,
		StyleDistribution: make(map[string]int64),
	}
	for k, v := range c.metrics.RoutingMetrics.StyleDistribution {
		rm.StyleDistribution[k] = v
	}
	return rm
}

func (c *MetricsCollector) copySystemMetricsLocked() *SystemMetrics {
	return &SystemMetrics{
		UptimeSeconds:     c.metrics.SystemMetrics.UptimeSeconds,
		TotalRequests:     c.metrics.SystemMetrics.TotalRequests,
		LastHealthCheck:   c.metrics.SystemMetrics.LastHealthCheck,
		HealthCheckPassed: c.metrics.SystemMetrics.HealthCheckPassed,
	}
}
