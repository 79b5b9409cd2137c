// Copyright 2025 Potter Labs
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"potterlabs/ailogic/orchestrator/video"
)

// Per-operation deadlines. Health probes and dispatches run under the
// incoming request's context bounded by these.
const (
	healthCheckTimeout   = 10 * time.Second
	dispatchTimeout      = 30 * time.Second
	batchDispatchTimeout = 60 * time.Second
)

// OrchestrationResponse is the success payload for a single orchestration.
type OrchestrationResponse struct {
	RequestID         string         `json:"request_id"`
	JobID             string         `json:"job_id,omitempty"`
	Provider          video.Provider `json:"provider"`
	Mode              video.Mode     `json:"mode"`
	RoutingReason     string         `json:"routing_reason"`
	EstimatedDuration string         `json:"estimated_duration,omitempty"`
	NodeAPIResponse   map[string]any `json:"node_api_response,omitempty"`
}

// BatchOrchestrationRequest is the input to the batch endpoint.
type BatchOrchestrationRequest struct {
	Requests []video.VideoRequest `json:"requests"`
}

// BatchItemResult is the per-item outcome in a batch response. One failed
// item never aborts the rest of the batch.
type BatchItemResult struct {
	Status    string                 `json:"status"`
	RequestID string                 `json:"request_id,omitempty"`
	Result    *OrchestrationResponse `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

type errorBody struct {
	Kind       video.ErrorKind `json:"kind"`
	Provider   video.Provider  `json:"provider,omitempty"`
	StatusCode int             `json:"status_code,omitempty"`
	Message    string          `json:"message"`
}

type errorResponse struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

func orchestrateVideoHandler(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	var req video.VideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	response, err := orchestrateOne(r.Context(), req)
	latency := time.Since(startTime)
	if err != nil {
		metricsCollector.RecordRequest("orchestrate_video", false, latency)
		promRequestsTotal.WithLabelValues("orchestrate_video", "error").Inc()
		promRequestDuration.WithLabelValues("orchestrate_video").Observe(float64(latency.Milliseconds()))
		requestLogger.ErrorWithCode(req.RequestID, "Orchestration failed", errorHTTPStatus(err), err, map[string]interface{}{
			"style": string(req.Style),
		})
		sendOrchestrationError(w, err)
		return
	}

	metricsCollector.RecordRequest("orchestrate_video", true, latency)
	promRequestsTotal.WithLabelValues("orchestrate_video", "success").Inc()
	promRequestDuration.WithLabelValues("orchestrate_video").Observe(float64(latency.Milliseconds()))
	requestLogger.InfoWithDuration(response.RequestID, "Orchestration completed", float64(latency.Milliseconds()), map[string]interface{}{
		"provider": string(response.Provider),
		"mode":     string(response.Mode),
		"job_id":   response.JobID,
	})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// orchestrateOne runs the full pipeline for one request: validate, route,
// health-check with a single fallback substitution, transform, dispatch.
func orchestrateOne(ctx context.Context, req video.VideoRequest) (*OrchestrationResponse, error) {
	decision, err := routeAndCheck(ctx, &req)
	if err != nil {
		return nil, err
	}

	config := jobTransformer.Prepare(req, decision)

	dispatchCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	result, err := nodeClient.Dispatch(dispatchCtx, config)
	if err != nil {
		metricsCollector.RecordDispatch(string(decision.Provider), false)
		promDispatches.WithLabelValues(string(decision.Provider), "error").Inc()
		return nil, err
	}
	metricsCollector.RecordDispatch(string(decision.Provider), true)
	promDispatches.WithLabelValues(string(decision.Provider), "success").Inc()

	return &OrchestrationResponse{
		RequestID:         req.RequestID,
		JobID:             result.JobID,
		Provider:          decision.Provider,
		Mode:              decision.Mode,
		RoutingReason:     decision.Reason,
		EstimatedDuration: result.EstimatedDuration,
		NodeAPIResponse:   result.Raw,
	}, nil
}

// routeAndCheck validates the request, routes it, and verifies the chosen
// provider's health. An unhealthy primary gets exactly one substitution with
// the scoring runner-up; an unhealthy runner-up fails the request.
func routeAndCheck(ctx context.Context, req *video.VideoRequest) (video.RoutingDecision, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return video.RoutingDecision{}, err
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	decision, err := videoRouter.Route(*req)
	if err != nil {
		metricsCollector.RecordNoViableProvider()
		return video.RoutingDecision{}, err
	}
	metricsCollector.RecordRoutingDecision(string(decision.Provider), string(req.Style), decision.Confidence, req.PreferredProvider != "")
	promRoutingDecisions.WithLabelValues(string(decision.Provider)).Inc()

	healthCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	status := healthChecker.Check(healthCtx, decision.Provider)
	if status.IsHealthy {
		return decision, nil
	}

	if decision.FallbackProvider == "" {
		metricsCollector.RecordNoViableProvider()
		return video.RoutingDecision{}, video.NewNoViableProviderError(
			fmt.Sprintf("%s is unhealthy and no fallback is available", decision.Provider))
	}

	fallback := decision.FallbackProvider
	fbStatus := healthChecker.Check(healthCtx, fallback)
	if !fbStatus.IsHealthy {
		metricsCollector.RecordNoViableProvider()
		return video.RoutingDecision{}, video.NewNoViableProviderError(
			fmt.Sprintf("%s and fallback %s are both unhealthy", decision.Provider, fallback))
	}

	log.Printf("[Orchestrator] %s unhealthy, substituting fallback %s", decision.Provider, fallback)
	metricsCollector.RecordFallback(string(fallback))
	promFallbacksUsed.Inc()

	decision.Provider = fallback
	decision.Mode = video.ModeFor(fallback)
	decision.Reason = fmt.Sprintf("Primary provider unavailable, using fallback: %s", fallback)
	decision.FallbackProvider = ""

	return decision, nil
}

func batchOrchestrateHandler(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	var batchReq BatchOrchestrationRequest
	if err := json.NewDecoder(r.Body).Decode(&batchReq); err != nil {
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(batchReq.Requests) == 0 {
		sendErrorResponse(w, "Batch must contain at least one request", http.StatusBadRequest)
		return
	}

	results := make([]BatchItemResult, len(batchReq.Requests))

	// Route and health-check sequentially so scoring stays deterministic,
	// then prepare the surviving items as one batch.
	var (
		okIndexes   []int
		okRequests  []video.VideoRequest
		okDecisions []video.RoutingDecision
	)
	for i := range batchReq.Requests {
		req := batchReq.Requests[i]
		decision, err := routeAndCheck(r.Context(), &req)
		if err != nil {
			results[i] = BatchItemResult{
				Status:    "error",
				RequestID: req.RequestID,
				Error:     err.Error(),
			}
			continue
		}
		okIndexes = append(okIndexes, i)
		okRequests = append(okRequests, req)
		okDecisions = append(okDecisions, decision)
	}

	configs := jobTransformer.PrepareBatch(okRequests, okDecisions)

	// Dispatch concurrently under one batch deadline.
	dispatchCtx, cancel := context.WithTimeout(r.Context(), batchDispatchTimeout)
	defer cancel()

	var wg sync.WaitGroup
	var mu sync.Mutex
	for j, config := range configs {
		wg.Add(1)
		go func(idx int, req video.VideoRequest, decision video.RoutingDecision, config video.JobConfig) {
			defer wg.Done()

			result, err := nodeClient.Dispatch(dispatchCtx, config)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				metricsCollector.RecordDispatch(string(decision.Provider), false)
				promDispatches.WithLabelValues(string(decision.Provider), "error").Inc()
				results[idx] = BatchItemResult{
					Status:    "error",
					RequestID: req.RequestID,
					Error:     err.Error(),
				}
				return
			}
			metricsCollector.RecordDispatch(string(decision.Provider), true)
			promDispatches.WithLabelValues(string(decision.Provider), "success").Inc()
			results[idx] = BatchItemResult{
				Status:    "success",
				RequestID: req.RequestID,
				Result: &OrchestrationResponse{
					RequestID:         req.RequestID,
					JobID:             result.JobID,
					Provider:          decision.Provider,
					Mode:              decision.Mode,
					RoutingReason:     decision.Reason,
					EstimatedDuration: result.EstimatedDuration,
					NodeAPIResponse:   result.Raw,
				},
			}
		}(okIndexes[j], okRequests[j], okDecisions[j], config)
	}
	wg.Wait()

	completed := 0
	for _, item := range results {
		if item.Status == "success" {
			completed++
		}
	}

	latency := time.Since(startTime)
	requestLogger.InfoWithDuration("", "Batch orchestration completed", float64(latency.Milliseconds()), map[string]interface{}{
		"total":     len(results),
		"completed": completed,
		"failed":    len(results) - completed,
	})
	batchSucceeded := completed > 0
	outcome := "success"
	if !batchSucceeded {
		outcome = "error"
	}
	metricsCollector.RecordRequest("batch_orchestrate", batchSucceeded, latency)
	promRequestsTotal.WithLabelValues("batch_orchestrate", outcome).Inc()
	promRequestDuration.WithLabelValues("batch_orchestrate").Observe(float64(latency.Milliseconds()))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"batch_results": results,
		"total_count":   len(results),
	}); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func analyzeRequestHandler(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	var req video.VideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		sendOrchestrationError(w, err)
		return
	}

	analysis, err := videoRouter.Analyze(req)
	latency := time.Since(startTime)
	if err != nil {
		metricsCollector.RecordRequest("analyze_request", false, latency)
		promRequestsTotal.WithLabelValues("analyze_request", "error").Inc()
		sendOrchestrationError(w, err)
		return
	}

	metricsCollector.RecordRequest("analyze_request", true, latency)
	promRequestsTotal.WithLabelValues("analyze_request", "success").Inc()
	promRequestDuration.WithLabelValues("analyze_request").Observe(float64(latency.Milliseconds()))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"routing_decision":      analysis.Decision,
		"provider_capabilities": videoRouter.Capabilities(),
		"analysis": map[string]any{
			"scores":  analysis.Scores,
			"weights": analysis.Weights,
		},
	}); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func providerStatusHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	statuses := healthChecker.CheckAll(ctx)

	healthyCount := 0
	for _, status := range statuses {
		if status.IsHealthy {
			healthyCount++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"providers":     statuses,
		"healthy_count": healthyCount,
		"total_count":   len(statuses),
		"timestamp":     time.Now().UTC(),
	}); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func providerCapabilitiesHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"capabilities":    videoRouter.Capabilities(),
		"canonical_order": video.AllProviders,
	}); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	nodeAPIHealthy := nodeClient.IsHealthy()
	metricsCollector.RecordHealthCheck(nodeAPIHealthy)

	health := map[string]any{
		"status":    "healthy",
		"service":   "ai-logic",
		"version":   "1.0.0",
		"timestamp": time.Now().UTC(),
		"components": map[string]bool{
			"router":      videoRouter != nil,
			"registry":    providerRegistry != nil,
			"transformer": jobTransformer != nil,
			"node_api":    nodeAPIHealthy,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(health); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func metricsHandler(w http.ResponseWriter, r *http.Request) {
	metrics := metricsCollector.GetMetrics()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(metrics); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func errorHTTPStatus(err error) int {
	var orchErr *video.OrchestrationError
	if errors.As(err, &orchErr) {
		return orchErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// sendOrchestrationError maps engine errors onto HTTP statuses. Unclassified
// errors come back as 500s.
func sendOrchestrationError(w http.ResponseWriter, err error) {
	var orchErr *video.OrchestrationError
	if !errors.As(err, &orchErr) {
		orchErr = &video.OrchestrationError{
			Kind:    video.ErrKindInternal,
			Message: err.Error(),
		}
	}

	response := errorResponse{
		Success: false,
		Error: errorBody{
			Kind:       orchErr.Kind,
			Provider:   orchErr.Provider,
			StatusCode: orchErr.StatusCode,
			Message:    orchErr.Message,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(orchErr.HTTPStatus())
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func sendErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	response := errorResponse{
		Success: false,
		Error: errorBody{
			Kind:    video.ErrKindValidation,
			Message: message,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
