// Copyright 2025 Potter Labs
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"potterlabs/ailogic/orchestrator/video"
	"potterlabs/ailogic/shared/logger"
)

// fakeExecutionAPI stands in for the downstream Node API: it answers provider
// health queries and accepts job dispatches, recording every config it
// receives.
type fakeExecutionAPI struct {
	server *httptest.Server

	mu             sync.Mutex
	received       []map[string]any
	providerHealth map[string]bool
	dispatchStatus int
	dispatchBody   string
}

func newFakeExecutionAPI(t *testing.T) *fakeExecutionAPI {
	t.Helper()

	f := &fakeExecutionAPI{
		providerHealth: map[string]bool{
			"runway":     true,
			"pika":       true,
			"gemini_veo": true,
		},
		dispatchStatus: http.StatusAccepted,
		dispatchBody:   `{"jobId":"job-123","estimatedDuration":"90 seconds"}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/video/providers/health", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		providers := make(map[string]map[string]bool, len(f.providerHealth))
		for p, h := range f.providerHealth {
			providers[p] = map[string]bool{"healthy": h}
		}
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"providers": providers}))
	})
	mux.HandleFunc("/video/generate", func(w http.ResponseWriter, r *http.Request) {
		var config map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&config))
		f.mu.Lock()
		f.received = append(f.received, config)
		status := f.dispatchStatus
		body := f.dispatchBody
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeExecutionAPI) setProviderHealth(provider string, healthy bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providerHealth[provider] = healthy
}

func (f *fakeExecutionAPI) setDispatchResponse(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatchStatus = status
	f.dispatchBody = body
}

func (f *fakeExecutionAPI) receivedConfigs() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, len(f.received))
	copy(out, f.received)
	return out
}

// setupTestComponents wires the package singletons to a fake execution API.
func setupTestComponents(t *testing.T) *fakeExecutionAPI {
	t.Helper()

	fake := newFakeExecutionAPI(t)

	providerRegistry = video.NewRegistry()
	videoRouter = video.NewRouter(providerRegistry)
	healthChecker = video.NewHealthChecker(providerRegistry, video.WithNodeAPI(fake.server.URL, "test-key"))
	jobTransformer = video.NewTransformer()
	nodeClient = NewNodeAPIClient(fake.server.URL, "test-key")
	metricsCollector = NewMetricsCollector()
	requestLogger = logger.New("orchestrator-test")

	return fake
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestOrchestrateVideoHandlerSuccess(t *testing.T) {
	fake := setupTestComponents(t)

	w := postJSON(t, orchestrateVideoHandler, "/orchestrate/video", map[string]any{
		"topic":        "a storm over the Atlantic",
		"style":        "cinematic",
		"content_type": "entertainment",
		"duration":     45,
	})

	require.Equal(t, http.StatusOK, w.Code)

	var resp OrchestrationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, video.ProviderRunway, resp.Provider)
	assert.Equal(t, video.ModeAIGenerated, resp.Mode)
	assert.Equal(t, "job-123", resp.JobID)
	assert.Equal(t, "90 seconds", resp.EstimatedDuration)
	assert.Equal(t, "runway excels at cinematic style content", resp.RoutingReason)
	assert.NotEmpty(t, resp.RequestID, "missing request ids are generated")

	configs := fake.receivedConfigs()
	require.Len(t, configs, 1)
	assert.Equal(t, "runway", configs[0]["provider"])
	assert.Equal(t, "a storm over the Atlantic", configs[0]["topic"])
}

func TestOrchestrateVideoHandlerPassesRequestIDThrough(t *testing.T) {
	setupTestComponents(t)

	w := postJSON(t, orchestrateVideoHandler, "/orchestrate/video", map[string]any{
		"request_id": "req-fixed",
		"topic":      "x",
		"style":      "cinematic",
	})

	require.Equal(t, http.StatusOK, w.Code)
	var resp OrchestrationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "req-fixed", resp.RequestID)
}

func TestOrchestrateVideoHandlerInvalidBody(t *testing.T) {
	setupTestComponents(t)

	req := httptest.NewRequest(http.MethodPost, "/orchestrate/video", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	orchestrateVideoHandler(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrchestrateVideoHandlerValidationError(t *testing.T) {
	setupTestComponents(t)

	w := postJSON(t, orchestrateVideoHandler, "/orchestrate/video", map[string]any{
		"style": "cinematic", // topic missing
	})

	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, video.ErrKindValidation, resp.Error.Kind)
}

func TestOrchestrateVideoHandlerNoViableProvider(t *testing.T) {
	setupTestComponents(t)

	w := postJSON(t, orchestrateVideoHandler, "/orchestrate/video", map[string]any{
		"topic":    "a feature film",
		"style":    "cinematic",
		"duration": 700,
	})

	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, video.ErrKindNoViableProvider, resp.Error.Kind)
}

func TestOrchestrateVideoHandlerFallbackSubstitution(t *testing.T) {
	fake := setupTestComponents(t)
	fake.setProviderHealth("runway", false)

	w := postJSON(t, orchestrateVideoHandler, "/orchestrate/video", map[string]any{
		"topic":        "a storm over the Atlantic",
		"style":        "cinematic",
		"content_type": "entertainment",
		"duration":     45,
	})

	require.Equal(t, http.StatusOK, w.Code)

	var resp OrchestrationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	// runway scores highest but is down; the scoring runner-up takes over
	assert.Equal(t, video.ProviderGeminiVeo, resp.Provider)
	assert.Equal(t, video.ModeAIGenerated, resp.Mode)
	assert.Equal(t, "Primary provider unavailable, using fallback: gemini_veo", resp.RoutingReason)
}

func TestOrchestrateVideoHandlerPrimaryAndFallbackDown(t *testing.T) {
	fake := setupTestComponents(t)
	fake.setProviderHealth("runway", false)
	fake.setProviderHealth("gemini_veo", false)

	w := postJSON(t, orchestrateVideoHandler, "/orchestrate/video", map[string]any{
		"topic":        "a storm over the Atlantic",
		"style":        "cinematic",
		"content_type": "entertainment",
		"duration":     45,
	})

	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, video.ErrKindNoViableProvider, resp.Error.Kind)
}

func TestOrchestrateVideoHandlerDispatchFailure(t *testing.T) {
	fake := setupTestComponents(t)
	fake.setDispatchResponse(http.StatusInternalServerError, `{"error":"provider exploded"}`)

	w := postJSON(t, orchestrateVideoHandler, "/orchestrate/video", map[string]any{
		"topic": "x",
		"style": "cinematic",
	})

	// Downstream status codes surface verbatim
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, video.ErrKindTransport, resp.Error.Kind)
	assert.Equal(t, video.ProviderRunway, resp.Error.Provider)
	assert.Contains(t, resp.Error.Message, "provider exploded")
}

func TestOrchestrateVideoHandlerPreferredProvider(t *testing.T) {
	fake := setupTestComponents(t)

	w := postJSON(t, orchestrateVideoHandler, "/orchestrate/video", map[string]any{
		"topic":              "city timelapse",
		"style":              "cinematic",
		"preferred_provider": "slideshow",
	})

	require.Equal(t, http.StatusOK, w.Code)

	var resp OrchestrationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, video.ProviderSlideshow, resp.Provider)
	assert.Equal(t, video.ModeSlideshow, resp.Mode)
	assert.Equal(t, "User explicitly requested slideshow", resp.RoutingReason)

	configs := fake.receivedConfigs()
	require.Len(t, configs, 1)
	// Emulation hints ride along for the non-canonical provider
	assert.Contains(t, configs[0], "adaptations")
	assert.Contains(t, configs[0], "image_style_override")
}

func TestBatchOrchestrateHandler(t *testing.T) {
	fake := setupTestComponents(t)

	w := postJSON(t, batchOrchestrateHandler, "/batch/orchestrate", map[string]any{
		"requests": []map[string]any{
			{"topic": "one", "style": "animation", "preferred_provider": "pika"},
			{"topic": "two", "style": "animation", "preferred_provider": "pika"},
			{"topic": "three", "style": "animation", "preferred_provider": "pika"},
		},
	})

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		BatchResults []BatchItemResult `json:"batch_results"`
		TotalCount   int               `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	require.Len(t, resp.BatchResults, 3)
	assert.Equal(t, 3, resp.TotalCount)
	for _, item := range resp.BatchResults {
		assert.Equal(t, "success", item.Status)
		require.NotNil(t, item.Result)
		assert.Equal(t, video.ProviderPika, item.Result.Provider)
		assert.Equal(t, "job-123", item.Result.JobID)
	}

	// The three same-provider jobs are staggered 10s apart; dispatch order
	// is concurrent, so collect the delays
	configs := fake.receivedConfigs()
	require.Len(t, configs, 3)
	delays := make(map[float64]bool)
	for _, config := range configs {
		assert.Equal(t, true, config["batch_processing"])
		delay, ok := config["batch_delay"].(float64)
		require.True(t, ok, "missing batch_delay in %v", config)
		delays[delay] = true
	}
	assert.Equal(t, map[float64]bool{0: true, 10: true, 20: true}, delays)
}

func TestBatchOrchestrateHandlerPartialFailure(t *testing.T) {
	setupTestComponents(t)

	w := postJSON(t, batchOrchestrateHandler, "/batch/orchestrate", map[string]any{
		"requests": []map[string]any{
			{"topic": "one", "style": "cinematic"},
			{"topic": "too long", "style": "cinematic", "duration": 700},
			{"style": "cinematic"}, // topic missing
		},
	})

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		BatchResults []BatchItemResult `json:"batch_results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.BatchResults, 3)

	assert.Equal(t, "success", resp.BatchResults[0].Status)
	assert.Equal(t, "error", resp.BatchResults[1].Status)
	assert.Contains(t, resp.BatchResults[1].Error, "no provider can serve")
	assert.Equal(t, "error", resp.BatchResults[2].Status)
	assert.NotEmpty(t, resp.BatchResults[2].Error)
}

func TestBatchOrchestrateHandlerMetricsReflectOutcome(t *testing.T) {
	setupTestComponents(t)

	// Every item fails: the batch counts as an error
	w := postJSON(t, batchOrchestrateHandler, "/batch/orchestrate", map[string]any{
		"requests": []map[string]any{
			{"topic": "too long", "style": "cinematic", "duration": 700},
			{"style": "cinematic"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	em := metricsCollector.GetMetrics().EndpointMetrics["batch_orchestrate"]
	require.NotNil(t, em)
	assert.Equal(t, int64(1), em.ErrorCount)
	assert.Equal(t, int64(0), em.SuccessCount)

	// A batch with at least one completed item counts as a success
	w = postJSON(t, batchOrchestrateHandler, "/batch/orchestrate", map[string]any{
		"requests": []map[string]any{
			{"topic": "ok", "style": "cinematic"},
			{"topic": "too long", "style": "cinematic", "duration": 700},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	em = metricsCollector.GetMetrics().EndpointMetrics["batch_orchestrate"]
	assert.Equal(t, int64(1), em.ErrorCount)
	assert.Equal(t, int64(1), em.SuccessCount)
}

func TestBatchOrchestrateHandlerEmptyBatch(t *testing.T) {
	setupTestComponents(t)

	w := postJSON(t, batchOrchestrateHandler, "/batch/orchestrate", map[string]any{
		"requests": []map[string]any{},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalyzeRequestHandler(t *testing.T) {
	setupTestComponents(t)

	w := postJSON(t, analyzeRequestHandler, "/analyze/request", map[string]any{
		"topic":        "a storm over the Atlantic",
		"style":        "cinematic",
		"content_type": "entertainment",
		"duration":     45,
	})

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		RoutingDecision      video.RoutingDecision         `json:"routing_decision"`
		ProviderCapabilities map[string]video.Capabilities `json:"provider_capabilities"`
		Analysis             struct {
			Scores  map[video.Provider]video.ProviderScore `json:"scores"`
			Weights map[string]float64                     `json:"weights"`
		} `json:"analysis"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, video.ProviderRunway, resp.RoutingDecision.Provider)
	assert.Len(t, resp.ProviderCapabilities, 4)
	assert.Len(t, resp.Analysis.Scores, 4)
	assert.InDelta(t, 0.89, resp.Analysis.Scores[video.ProviderRunway].Total, 1e-9)
	assert.InDelta(t, 0.30, resp.Analysis.Weights["style"], 1e-9)
	assert.InDelta(t, 0.10, resp.Analysis.Weights["cost"], 1e-9)
}

func TestAnalyzeRequestHandlerValidationError(t *testing.T) {
	setupTestComponents(t)

	w := postJSON(t, analyzeRequestHandler, "/analyze/request", map[string]any{
		"topic": "x",
		"style": "vaporwave",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProviderStatusHandler(t *testing.T) {
	fake := setupTestComponents(t)
	fake.setProviderHealth("pika", false)

	req := httptest.NewRequest(http.MethodGet, "/providers/status", nil)
	w := httptest.NewRecorder()
	providerStatusHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Providers    map[string]video.ProviderStatus `json:"providers"`
		HealthyCount int                             `json:"healthy_count"`
		TotalCount   int                             `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, 4, resp.TotalCount)
	assert.Equal(t, 3, resp.HealthyCount)
	assert.False(t, resp.Providers["pika"].IsHealthy)
	assert.True(t, resp.Providers["slideshow"].IsHealthy)
	require.NotNil(t, resp.Providers["runway"].Capabilities)
	assert.Equal(t, 300, resp.Providers["runway"].Capabilities.MaxDuration)
}

func TestProviderCapabilitiesHandler(t *testing.T) {
	setupTestComponents(t)

	req := httptest.NewRequest(http.MethodGet, "/providers/capabilities", nil)
	w := httptest.NewRecorder()
	providerCapabilitiesHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Capabilities   map[string]video.Capabilities `json:"capabilities"`
		CanonicalOrder []video.Provider              `json:"canonical_order"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Len(t, resp.Capabilities, 4)
	assert.Equal(t, 600, resp.Capabilities["slideshow"].MaxDuration)
	assert.Equal(t, []video.Provider{
		video.ProviderRunway, video.ProviderPika, video.ProviderGeminiVeo, video.ProviderSlideshow,
	}, resp.CanonicalOrder)
}

func TestHealthHandler(t *testing.T) {
	setupTestComponents(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	healthHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "ai-logic", resp["service"])

	components, ok := resp["components"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, components["router"])
}

func TestMetricsHandler(t *testing.T) {
	setupTestComponents(t)

	// Drive one request through so the metrics are non-empty
	postJSON(t, orchestrateVideoHandler, "/orchestrate/video", map[string]any{
		"topic": "x",
		"style": "cinematic",
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	metricsHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var metrics Metrics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &metrics))

	require.Contains(t, metrics.EndpointMetrics, "orchestrate_video")
	assert.Equal(t, int64(1), metrics.EndpointMetrics["orchestrate_video"].TotalRequests)
	require.Contains(t, metrics.ProviderMetrics, "runway")
	assert.Equal(t, int64(1), metrics.ProviderMetrics["runway"].DispatchCount)
	assert.Equal(t, int64(1), metrics.RoutingMetrics.TotalDecisions)
}
